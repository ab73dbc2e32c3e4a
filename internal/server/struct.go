package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lektor-ai/lvai-go/internal/pipeline"
	"github.com/lektor-ai/lvai-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// GenerateTimeout bounds a single POST /api/generate request.
	GenerateTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus metric registrations.
	// If nil, prometheus.DefaultRegisterer is used.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint.
	// If nil, prometheus.DefaultGatherer is used.
	MetricsGatherer prometheus.Gatherer
}

// generator is the interface handleGenerate calls to produce a lesson.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type generator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.LessonDocument, error)
}

// Server is the HTTP server that exposes the lesson generation pipeline.
type Server struct {
	// generator produces lesson documents; the pipeline in production,
	// a fake in tests.
	generator generator
	// lessons persists generated lessons. May be nil (history disabled).
	lessons store.LessonStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this instance's Prometheus metrics.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// generateRequest is the JSON body for POST /api/generate.
type generateRequest struct {
	// Prompt is the user's lesson prompt.
	Prompt string `json:"prompt"`
	// Subject optionally narrows image research.
	Subject string `json:"subject,omitempty"`
	// DurationSeconds is the target narration length.
	DurationSeconds int `json:"durationSeconds,omitempty"`
	// IndexWaitSeconds bounds the wait on background image indexing.
	IndexWaitSeconds int `json:"indexWaitSeconds,omitempty"`
}

// imageResponse is the per-directive image result in a generate response.
type imageResponse struct {
	// ID is the directive id.
	ID string `json:"id"`
	// Prompt is the directive's visual description.
	Prompt string `json:"prompt"`
	// BaseImageURL is the matched base image, empty when synthesized.
	BaseImageURL string `json:"baseImageUrl,omitempty"`
	// FinalImageURL is the image injected into the document.
	FinalImageURL string `json:"finalImageUrl,omitempty"`
	// Status is "pending" or "fulfilled".
	Status string `json:"status"`
	// Metadata carries base metadata plus stage annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// generateResponse is the JSON body returned by POST /api/generate.
type generateResponse struct {
	// ID is the lesson document id.
	ID string `json:"id"`
	// PromptID identifies the originating request.
	PromptID string `json:"promptId"`
	// TopicID is the index partition the lesson's images came from.
	TopicID string `json:"topicId"`
	// Content is the final script with media references injected.
	Content string `json:"content"`
	// IndexedImageCount is how many candidates the indexing job stored.
	IndexedImageCount int `json:"indexedImageCount"`
	// Images are the per-directive results, in directive order.
	Images []imageResponse `json:"images"`
}

// lessonSummary is one entry in the GET /api/lessons listing.
type lessonSummary struct {
	// ID is the lesson document id.
	ID string `json:"id"`
	// Prompt is the prompt the lesson was generated from.
	Prompt string `json:"prompt"`
	// Subject is the optional research subject.
	Subject string `json:"subject,omitempty"`
	// TopicID is the lesson's index partition.
	TopicID string `json:"topicId"`
	// SlotCount is how many image directives the script carried.
	SlotCount int `json:"slotCount"`
	// FulfilledCount is how many directives ended up with an image.
	FulfilledCount int `json:"fulfilledCount"`
	// CreatedAt is when the lesson was generated (RFC3339).
	CreatedAt string `json:"createdAt"`
}

// lessonResponse is the JSON body returned by GET /api/lessons/{id}.
type lessonResponse struct {
	lessonSummary
	// Content is the full lesson text.
	Content string `json:"content"`
	// IndexedImageCount is how many candidates the indexing job stored.
	IndexedImageCount int `json:"indexedImageCount"`
}
