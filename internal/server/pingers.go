package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/lektor-ai/lvai-go/internal/transform"
)

// LLMPinger probes the chat model backend by sending a minimal single-token
// generate request. It satisfies the Pinger interface and is used by
// GET /api/ready.
type LLMPinger struct {
	// model is the chat model to probe.
	model model.ToolCallingChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.ToolCallingChatModel, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a minimal generate request. This consumes a handful of tokens,
// so /api/ready should not be polled aggressively against paid backends.
func (p *LLMPinger) Ping(ctx context.Context) error {
	msgs := []*schema.Message{
		schema.UserMessage("ping"),
	}
	resp, err := p.model.Generate(ctx, msgs, model.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// TransformPinger probes the image transformation backend via its liveness
// endpoint. The transform stage is optional, so a failing probe here means
// lessons will pass images through untransformed rather than fail.
type TransformPinger struct {
	// backend is the transform backend to probe.
	backend transform.Backend
}

// NewTransformPinger constructs a TransformPinger for the given backend.
func NewTransformPinger(backend transform.Backend) *TransformPinger {
	return &TransformPinger{backend: backend}
}

// Name returns the dependency label used in readiness responses.
func (p *TransformPinger) Name() string { return "transform" }

// Ping reports whether the transform backend answers its health endpoint.
func (p *TransformPinger) Ping(ctx context.Context) error {
	if p.backend == nil {
		return fmt.Errorf("transform backend not configured")
	}
	if !p.backend.IsAvailable(ctx) {
		return fmt.Errorf("health endpoint unreachable")
	}
	return nil
}
