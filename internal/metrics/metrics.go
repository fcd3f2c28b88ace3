package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	ConversationsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_conversations_started_total",
			Help: "Total conversations started",
		},
	)

	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Total messages appended to the log",
		},
		[]string{"sender"}, // "visitor" or "assistant"
	)

	GenerationCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_generation_cycles_total",
			Help: "Total generation cycles by outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "empty", "fallback"
	)

	ChunksStreamed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_chunks_streamed_total",
			Help: "Total response chunks broadcast to subscribers",
		},
	)

	LLMRequestFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_llm_request_failures_total",
			Help: "Total LLM requests that failed to start",
		},
	)

	// Event bus metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_published_total",
			Help: "Total domain events published",
		},
		[]string{"type"},
	)

	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_event_publish_failures_total",
			Help: "Total domain events dropped on publish failure",
		},
	)

	// Gateway metrics
	GatewaySubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_gateway_subscribers",
			Help: "Live connections subscribed to a conversation",
		},
	)
)
