package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/redis/go-redis/v9"

	"github.com/lushlocks/chat-service/internal/api/middleware"
	"github.com/lushlocks/chat-service/internal/chat"
	"github.com/lushlocks/chat-service/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc   *chat.Service
	store store.ConversationStore
	redis *redis.Client // nil when Redis is not configured
	auth  *middleware.AdminAuth
}

// NewHandler creates a new Handler.
func NewHandler(svc *chat.Service, st store.ConversationStore, redisClient *redis.Client, auth *middleware.AdminAuth) *Handler {
	return &Handler{svc: svc, store: st, redis: redisClient, auth: auth}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits a visitor name to 100 characters, removing
// control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
