package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"

	"github.com/lektor-ai/lvai-go/internal/embedder"
	"github.com/lektor-ai/lvai-go/internal/indexjob"
	"github.com/lektor-ai/lvai-go/internal/pipeline"
	"github.com/lektor-ai/lvai-go/internal/provider"
	"github.com/lektor-ai/lvai-go/internal/research"
	"github.com/lektor-ai/lvai-go/internal/resolver"
	"github.com/lektor-ai/lvai-go/internal/scriptwriter"
	"github.com/lektor-ai/lvai-go/internal/transform"
	"github.com/lektor-ai/lvai-go/internal/vecindex"
)

// defaultCollection is the Qdrant collection used when QDRANT_COLLECTION is
// not set.
const defaultCollection = "lesson-images"

// stack bundles everything a command needs to run lesson generation.
type stack struct {
	pipeline *pipeline.Pipeline
	pool     *indexjob.Pool
	index    *vecindex.QdrantIndex
	backend  transform.Backend
	model    model.ToolCallingChatModel
	cleanup  func()
}

// buildResearchClient assembles the image research providers. Openverse and
// Wikimedia Commons are always on; a scrape target and a SearxNG fallback are
// added when configured.
func buildResearchClient(log *slog.Logger) *research.Client {
	providers := []research.Provider{
		research.NewOpenverseProvider(nil),
		research.NewWikimediaProvider(nil),
	}
	if scrapeURL := os.Getenv("RESEARCH_SCRAPE_URL"); scrapeURL != "" {
		p, err := research.NewScrapeProvider(&research.ScrapeConfig{SearchURL: scrapeURL})
		if err != nil {
			log.Warn("research: scrape provider misconfigured, skipping", slog.Any("error", err))
		} else {
			providers = append(providers, p)
		}
	}

	var fallback research.Provider
	if endpoint := os.Getenv("SEARCH_ENDPOINT"); endpoint != "" {
		p, err := research.NewWebSearchProvider(&research.WebSearchConfig{Endpoint: endpoint})
		if err != nil {
			log.Warn("research: web search fallback misconfigured, skipping", slog.Any("error", err))
		} else {
			fallback = p
		}
	}

	return research.NewClient(providers, fallback)
}

// buildIndexStack constructs the embedder and Qdrant index from env.
func buildIndexStack(ctx context.Context) (vecindex.Embedder, *vecindex.QdrantIndex, error) {
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, err
	}

	idx, err := vecindex.NewQdrantIndex(ctx, &vecindex.QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Port:       envInt("QDRANT_PORT", 0),
		Collection: envOrDefault("QDRANT_COLLECTION", defaultCollection),
		VectorSize: uint64(embedder.DefaultDimensions()),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, err
	}
	return emb, idx, nil
}

// buildIndexer constructs the indexer and its worker pool on top of an
// existing embedder and index.
func buildIndexer(ctx context.Context, log *slog.Logger, emb vecindex.Embedder, idx *vecindex.QdrantIndex) (*indexjob.Indexer, *indexjob.Pool, error) {
	indexer, err := indexjob.NewIndexer(buildResearchClient(log), emb, idx, &indexjob.IndexerConfig{
		MaxImages: envInt("RESEARCH_MAX_IMAGES", 0),
	})
	if err != nil {
		return nil, nil, err
	}
	pool := indexjob.NewPool(ctx, &indexjob.PoolConfig{
		Workers:   envInt("POOL_WORKERS", 0),
		QueueSize: envInt("POOL_QUEUE_SIZE", 0),
	})
	return indexer, pool, nil
}

// buildTransformBackend constructs the optional image transformation backend.
// Returns nil when TRANSFORM_ENDPOINT is not set; the stage then passes every
// batch through untransformed.
func buildTransformBackend(log *slog.Logger) transform.Backend {
	endpoint := os.Getenv("TRANSFORM_ENDPOINT")
	if endpoint == "" {
		log.Info("transform: TRANSFORM_ENDPOINT not set, images pass through untransformed")
		return nil
	}
	backend, err := transform.NewHTTPBackend(&transform.HTTPConfig{
		Endpoint: endpoint,
		APIKey:   os.Getenv("TRANSFORM_API_KEY"),
	})
	if err != nil {
		log.Warn("transform: backend misconfigured, disabling", slog.Any("error", err))
		return nil
	}
	return backend
}

// buildStack wires the full generation pipeline from env. The returned
// cleanup closes the worker pool and the index connection.
func buildStack(ctx context.Context, log *slog.Logger) (*stack, error) {
	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise model provider: %w", err)
	}
	writer, err := scriptwriter.New(chatModel)
	if err != nil {
		return nil, err
	}

	emb, idx, err := buildIndexStack(ctx)
	if err != nil {
		return nil, err
	}

	indexer, pool, err := buildIndexer(ctx, log, emb, idx)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	res, err := resolver.NewResolver(emb, idx, 0)
	if err != nil {
		pool.Close()
		_ = idx.Close()
		return nil, err
	}

	backend := buildTransformBackend(log)
	stage := transform.NewStage(backend)

	p, err := pipeline.New(writer, indexer, pool, res, stage)
	if err != nil {
		pool.Close()
		_ = idx.Close()
		return nil, err
	}

	return &stack{
		pipeline: p,
		pool:     pool,
		index:    idx,
		backend:  backend,
		model:    chatModel,
		cleanup: func() {
			pool.Close()
			if err := idx.Close(); err != nil {
				log.Warn("index close failed", slog.Any("error", err))
			}
		},
	}, nil
}

// envOrDefault returns the value of the named environment variable, or
// fallback when unset.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer value of the named environment variable, or
// fallback when unset or unparseable.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
