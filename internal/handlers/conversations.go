package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lushlocks/chat-service/internal/chat"
	"github.com/lushlocks/chat-service/internal/models"
)

const maxMessageBytes = 4096

// CreateConversationRequest represents the conversation creation request.
type CreateConversationRequest struct {
	SessionID      string `json:"session_id"`
	InitialMessage string `json:"initial_message"`
	VisitorName    string `json:"visitor_name,omitempty"`
}

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// UpdateStatusRequest represents the admin status change request.
type UpdateStatusRequest struct {
	Status models.ConversationStatus `json:"status"`
}

// CreateConversation handles the REST fallback for starting a conversation.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		h.Error(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.InitialMessage == "" {
		h.Error(w, http.StatusBadRequest, "initial_message is required")
		return
	}
	if len(req.InitialMessage) > maxMessageBytes {
		h.Error(w, http.StatusUnprocessableEntity, "initial_message too long (max 4096 bytes)")
		return
	}

	conv, err := h.svc.CreateConversation(r.Context(), req.SessionID, req.InitialMessage, sanitizeName(req.VisitorName))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	h.JSON(w, http.StatusCreated, conv)
}

// GetConversation handles conversation reads. With a session_id query
// parameter it is the visitor path and is scoped to the owning session;
// without one it requires admin credentials.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return
	}

	sessionID := r.URL.Query().Get("session_id")

	var conv *models.Conversation
	if sessionID != "" {
		conv, err = h.svc.GetConversationForSession(r.Context(), id, sessionID)
	} else {
		if !h.auth.Verify(r) {
			h.Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		conv, err = h.svc.GetConversation(r.Context(), id)
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if conv == nil {
		h.Error(w, http.StatusNotFound, "conversation not found")
		return
	}

	h.JSON(w, http.StatusOK, conv)
}

// PostMessage handles the REST fallback for sending a visitor message.
// Unlike the realtime path it does not trigger a generation cycle; the
// assistant reply arrives when the visitor reconnects over the gateway.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		h.Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > maxMessageBytes {
		h.Error(w, http.StatusUnprocessableEntity, "content too long (max 4096 bytes)")
		return
	}

	msg, err := h.svc.AddVisitorMessage(r.Context(), id, sessionID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotFound):
			h.Error(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, chat.ErrUnauthorized):
			h.Error(w, http.StatusForbidden, "session does not own this conversation")
		default:
			h.Error(w, http.StatusInternalServerError, "failed to store message")
		}
		return
	}

	h.JSON(w, http.StatusOK, msg)
}

// ListConversations handles the admin conversation listing.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	take := queryInt(r, "take", 50)

	summaries, err := h.svc.ListConversations(r.Context(), skip, take)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if summaries == nil {
		summaries = []models.ConversationSummary{}
	}

	h.JSON(w, http.StatusOK, summaries)
}

// GetStats handles the admin stats endpoint.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetStats(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	h.JSON(w, http.StatusOK, stats)
}

// UpdateStatus handles admin conversation status changes.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch req.Status {
	case models.StatusActive, models.StatusArchived, models.StatusClosed:
	default:
		h.Error(w, http.StatusBadRequest, "status must be active, archived or closed")
		return
	}

	if err := h.svc.UpdateStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, defaultValue int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}
