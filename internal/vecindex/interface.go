// Package vecindex defines the interfaces for the semantic image index:
// vector storage scoped by lesson topic, and text/image embedding.
// Concrete implementations (Qdrant, etc.) satisfy these interfaces so the
// resolver layer never depends on a specific backend.
package vecindex

import (
	"context"
	"fmt"
)

// Record is one indexed image candidate: its embedding plus the payload
// needed to resolve it back into a lesson.
type Record struct {
	// ID is the unique point identifier (UUID string).
	ID string

	// ImageURL is the direct URL of the indexed image.
	ImageURL string

	// Vector is the pre-computed embedding for this image.
	Vector []float32

	// TopicID scopes the record to one lesson topic. Every query filters on
	// this field so lessons never surface each other's candidates.
	TopicID string

	// OriginalPrompt is the user prompt that triggered the research run.
	OriginalPrompt string

	// Metadata holds candidate attributes (title, license, source provider).
	Metadata map[string]string

	// Score is the similarity score assigned during search (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32
}

// Index is the interface for persisting and searching image embeddings.
// Implementations must be safe to call from multiple goroutines.
type Index interface {
	// Upsert stores or updates a batch of records. Each Record must carry a
	// pre-computed Vector of the configured dimensionality.
	Upsert(ctx context.Context, records []Record) error

	// Search returns the top-k records most similar to the query embedding,
	// restricted to the given topic. An unknown topic yields an empty slice,
	// not an error.
	Search(ctx context.Context, queryEmbedding []float32, topicID string, topK int) ([]Record, error)

	// DeleteByTopic removes every record indexed under the given topic.
	DeleteByTopic(ctx context.Context, topicID string) error

	// Close releases any resources held by the index.
	Close() error
}

// Embedder converts lesson text and candidate images into dense vectors in a
// shared embedding space. Implementations must be safe to call from multiple
// goroutines.
type Embedder interface {
	// EmbedText converts a single text into its embedding.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedImages converts a batch of image URLs into embeddings. Images that
	// cannot be fetched or encoded are skipped rather than failing the batch:
	// the returned indices identify, in ascending order, which input positions
	// produced a vector — vectors[i] belongs to urls[indices[i]]. An error is
	// returned only when the embedding call itself fails.
	EmbedImages(ctx context.Context, urls []string) ([][]float32, []int, error)
}

// DimensionError reports an embedding whose length does not match the index
// configuration. This is a configuration fault, not a transient failure —
// callers should abort rather than retry.
type DimensionError struct {
	// Want is the vector size the index was configured with.
	Want uint64
	// Got is the length of the offending embedding.
	Got int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vecindex: embedding dimension %d does not match configured vector size %d", e.Got, e.Want)
}
