package indexjob

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lektor-ai/lvai-go/internal/logging"
	"github.com/lektor-ai/lvai-go/internal/research"
	"github.com/lektor-ai/lvai-go/internal/vecindex"
)

// defaultMaxImages caps the candidate pool researched per job.
const defaultMaxImages = 20

// Indexer builds indexing jobs: research candidates for a topic, embed them,
// and upsert the survivors into the vector index.
type Indexer struct {
	// researcher assembles the candidate pool.
	researcher *research.Client

	// embedder converts candidate images into vectors.
	embedder vecindex.Embedder

	// index persists the embedded candidates.
	index vecindex.Index

	// maxImages caps the candidate pool per job.
	maxImages int
}

// IndexerConfig holds the settings for constructing an Indexer.
type IndexerConfig struct {
	// MaxImages caps the candidate pool per job (default: 20).
	MaxImages int
}

// NewIndexer constructs an Indexer from the provided dependencies and config.
func NewIndexer(researcher *research.Client, embedder vecindex.Embedder, index vecindex.Index, cfg *IndexerConfig) (*Indexer, error) {
	if researcher == nil {
		return nil, fmt.Errorf("indexjob: researcher must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("indexjob: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("indexjob: index must not be nil")
	}
	if cfg == nil {
		cfg = &IndexerConfig{}
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = defaultMaxImages
	}

	return &Indexer{
		researcher: researcher,
		embedder:   embedder,
		index:      index,
		maxImages:  cfg.MaxImages,
	}, nil
}

// NewJob creates a pending job that indexes image candidates for the given
// topic. prompt is the user prompt driving the research queries; subject is
// the lesson subject used to narrow them. Submit the job to a Pool to run it.
func (ix *Indexer) NewJob(topicID, prompt, subject string) *Job {
	return NewJob(topicID, func(ctx context.Context) (Result, error) {
		return ix.runJob(ctx, topicID, prompt, subject)
	})
}

// runJob is the job body: research → embed → upsert. An empty candidate pool
// or a pool whose every image fails to embed completes the job with an
// IndexedCount of zero — only embedding-call or upsert failures fail the job.
func (ix *Indexer) runJob(ctx context.Context, topicID, prompt, subject string) (Result, error) {
	log := logging.FromContext(ctx)

	pool := ix.researcher.Research(ctx, prompt, subject, ix.maxImages)
	result := Result{TopicID: topicID, Candidates: pool}
	if len(pool) == 0 {
		log.Info("indexjob: no candidates found", slog.String("topic_id", topicID))
		return result, nil
	}

	urls := make([]string, len(pool))
	for i, cand := range pool {
		urls[i] = cand.SourceURL
	}

	vectors, indices, err := ix.embedder.EmbedImages(ctx, urls)
	if err != nil {
		return result, fmt.Errorf("indexjob: embed candidates: %w", err)
	}
	if len(vectors) == 0 {
		log.Warn("indexjob: no candidates survived embedding",
			slog.String("topic_id", topicID),
			slog.Int("candidates", len(pool)),
		)
		return result, nil
	}

	records := make([]vecindex.Record, len(vectors))
	for i, vec := range vectors {
		cand := pool[indices[i]]
		records[i] = vecindex.Record{
			ID:             recordID(topicID, cand.SourceURL),
			ImageURL:       cand.SourceURL,
			Vector:         vec,
			TopicID:        topicID,
			OriginalPrompt: prompt,
			Metadata:       recordMetadata(cand),
		}
	}

	if err := ix.index.Upsert(ctx, records); err != nil {
		return result, fmt.Errorf("indexjob: upsert records: %w", err)
	}

	result.IndexedCount = len(records)
	log.Info("indexjob: topic indexed",
		slog.String("topic_id", topicID),
		slog.Int("candidates", len(pool)),
		slog.Int("indexed", result.IndexedCount),
	)
	return result, nil
}

// recordID derives a deterministic point id from the topic and image URL, so
// re-indexing a topic updates points instead of duplicating them.
func recordID(topicID, sourceURL string) string {
	space, err := uuid.Parse(topicID)
	if err != nil {
		space = uuid.NewSHA1(uuid.NameSpaceOID, []byte(topicID))
	}
	return uuid.NewSHA1(space, []byte(sourceURL)).String()
}

// recordMetadata flattens the candidate attributes worth carrying into the
// index payload.
func recordMetadata(cand research.ImageCandidate) map[string]string {
	meta := map[string]string{
		"title":   cand.Title,
		"license": cand.License,
		"source":  cand.Source,
	}
	if cand.Width > 0 && cand.Height > 0 {
		meta["dimensions"] = fmt.Sprintf("%dx%d", cand.Width, cand.Height)
	}
	for k, v := range cand.Metadata {
		meta[k] = v
	}
	return meta
}
