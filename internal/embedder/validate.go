package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// knownTextOnlyModelPrefixes contains name fragments that identify text-only
// embedding models, which cannot embed candidate images into the shared
// space. If EMBEDDING_MODEL matches any of these, a warning is emitted so
// the operator knows image indexing will fail at runtime.
var knownTextOnlyModelPrefixes = []string{
	"text-embedding-3",
	"text-embedding-ada",
	"text-embedding-004",
	"nomic-embed-text",
	"bge-",
	"gte-",
	"e5-",
	"all-minilm",
	"mxbai-embed",
	"snowflake-arctic-embed",
	"amazon.titan-embed-text",
}

// looksLikeTextOnlyModel returns true when the model name resembles a known
// text-only embedding model rather than a multimodal one.
func looksLikeTextOnlyModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownTextOnlyModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// ValidateForIndexing checks that the embedder configuration is safe to use
// when QDRANT_HOST is set. It returns an error if the configuration is
// clearly broken (e.g. jina backend with no API key), and logs a warning if
// EMBEDDING_MODEL looks like a text-only model rather than a multimodal one.
//
// This is a pre-flight check — call it before constructing the embedder or
// the vector index so operators get a clear error at startup rather than a
// cryptic failure during the first indexing job.
func ValidateForIndexing(log *slog.Logger) error {
	qdrantHost := os.Getenv("QDRANT_HOST")
	if qdrantHost == "" {
		// Semantic indexing not configured — nothing to validate.
		return nil
	}

	backend := getEnvOrDefault("EMBEDDING_PROVIDER", "jina")

	switch backend {
	case "jina":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("JINA_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: QDRANT_HOST is set but no Jina API key found — set JINA_API_KEY or EMBEDDING_API_KEY")
		}

	case "azure":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: QDRANT_HOST is set but no Azure API key found — set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := os.Getenv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return fmt.Errorf("embedder: QDRANT_HOST is set but no Azure endpoint found — set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}

	case "custom":
		if os.Getenv("EMBEDDING_ENDPOINT") == "" {
			return fmt.Errorf("embedder: QDRANT_HOST is set but EMBEDDING_ENDPOINT is not — the custom backend needs an endpoint")
		}
		if os.Getenv("EMBEDDING_MODEL") == "" {
			return fmt.Errorf("embedder: QDRANT_HOST is set but EMBEDDING_MODEL is not — the custom backend needs a model name")
		}
	}

	// Warn if EMBEDDING_MODEL looks text-only.
	model := os.Getenv("EMBEDDING_MODEL")
	if model != "" && looksLikeTextOnlyModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a text-only model — "+
			"image candidates cannot be embedded into the same space",
			slog.String("model", model),
			slog.String("hint", "use a multimodal embedding model e.g. jina-clip-v2"),
		)
	}

	return nil
}
