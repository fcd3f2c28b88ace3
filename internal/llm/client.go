package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lushlocks/chat-service/internal/metrics"
	"github.com/lushlocks/chat-service/internal/models"
)

// FallbackApology is the single fragment yielded when the upstream request
// cannot be established. It is streamed to the visitor but never persisted.
const FallbackApology = "I'm sorry, I'm having a little trouble right now. Please give me a moment and try again."

// historyWindow bounds how many persisted messages are sent upstream.
const historyWindow = 20

const apiVersion = "2023-06-01"

// PromptSource provides the system instruction for each request.
type PromptSource interface {
	Build() string
}

// Config carries the LLM backend settings.
type Config struct {
	APIURL    string
	APIKey    string
	Model     string
	MaxTokens int
}

// Client streams completions from an Anthropic-style messages endpoint.
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	maxTokens  int
	prompts    PromptSource
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a streaming client. The HTTP timeout is generous
// because it spans the whole stream, not just connection setup.
func NewClient(cfg Config, prompts PromptSource, logger zerolog.Logger) *Client {
	return &Client{
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		prompts:    prompts,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logger,
	}
}

// chatMessage is one turn in the upstream request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// generateRequest is the request body for the messages endpoint.
type generateRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
}

// GenerateResponse sends the bounded conversation window plus the new
// visitor message upstream and returns the reply as a fragment stream.
//
// Transport failures are absorbed: if the request cannot even start, the
// returned stream yields exactly one apology fragment and terminates. The
// caller never sees an error from this method.
func (c *Client) GenerateResponse(ctx context.Context, history []models.Message, visitorMessage string) *Stream {
	reqBody := generateRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    c.prompts.Build(),
		Messages:  buildTurns(history, visitorMessage),
		Stream:    true,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode generation request")
		metrics.LLMRequestFailures.Inc()
		return NewFallbackStream(FallbackApology)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to create generation request")
		metrics.LLMRequestFailures.Inc()
		return NewFallbackStream(FallbackApology)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("llm request failed to start")
		metrics.LLMRequestFailures.Inc()
		return NewFallbackStream(FallbackApology)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("llm request rejected")
		metrics.LLMRequestFailures.Inc()
		return NewFallbackStream(FallbackApology)
	}

	return newBodyStream(resp.Body)
}

// buildTurns maps the most recent historyWindow messages to upstream turns,
// oldest first, and appends the new visitor message as the final user turn.
// Empty history is valid: the request is then a single-turn user message.
func buildTurns(history []models.Message, visitorMessage string) []chatMessage {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	turns := make([]chatMessage, 0, len(history)+1)
	for _, msg := range history {
		role := "user"
		if msg.Sender == models.SenderAssistant {
			role = "assistant"
		}
		turns = append(turns, chatMessage{Role: role, Content: msg.Content})
	}

	return append(turns, chatMessage{Role: "user", Content: visitorMessage})
}
