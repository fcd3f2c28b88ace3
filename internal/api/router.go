package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lushlocks/chat-service/internal/api/middleware"
	"github.com/lushlocks/chat-service/internal/gateway"
	"github.com/lushlocks/chat-service/internal/handlers"
)

// NewRouter creates and configures the HTTP router. redisClient may be nil;
// rate limiting is skipped without it.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, gw *gateway.Gateway, auth *middleware.AdminAuth, redisClient *redis.Client) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if redisClient != nil {
		limiter := middleware.NewRateLimiter(redisClient, logger)
		r.Use(limiter.Middleware)
	}

	// CORS - visitors connect from any storefront domain
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/health", h.Health)
	r.Get("/ws", gateway.ServeWS(gw, logger))

	// REST fallback for clients without websocket support
	r.Post("/conversations", h.CreateConversation)
	r.Get("/conversations/{id}", h.GetConversation)
	r.Post("/conversations/{id}/messages", h.PostMessage)

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin)

		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/stats", h.GetStats)
		r.Patch("/conversations/{id}/status", h.UpdateStatus)
	})

	return r
}
