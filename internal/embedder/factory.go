package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/lektor-ai/lvai-go/internal/vecindex"
)

// Default embedding models per backend.
const (
	defaultJinaModel    = "jina-clip-v2"
	defaultJinaEndpoint = "https://api.jina.ai/v1"

	// defaultDimensions is the output dimension of jina-clip-v2. Other
	// multimodal models may differ — override with EMBEDDING_DIMENSIONS.
	defaultDimensions = 1024
)

// DefaultDimensions returns the embedding vector size the index should be
// created with. Callers that need to pre-configure a vector collection
// (Qdrant collection creation) should use this rather than hardcoding a
// value. EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions() int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	return defaultDimensions
}

// NewFromEnv constructs a vecindex.Embedder from environment variables.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER — "jina" (default), "azure", or "custom"
//  2. EMBEDDING_ENDPOINT — overrides the backend's default API base
//  3. EMBEDDING_MODEL — overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY — the authentication key (required for jina/azure)
//  5. EMBEDDING_DIMENSIONS — overrides the default dimensions (1024)
func NewFromEnv() (vecindex.Embedder, error) {
	backend := getEnvOrDefault("EMBEDDING_PROVIDER", "jina")
	dims := getEnvInt("EMBEDDING_DIMENSIONS", defaultDimensions)

	switch backend {
	case "jina":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("JINA_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: jina requires JINA_API_KEY or EMBEDDING_API_KEY")
		}
		return NewMultimodalEmbedder(&MultimodalConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", defaultJinaEndpoint),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultJinaModel),
			Dimensions: dims,
		}), nil

	case "azure":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := getEnv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		apiVersion := getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		return NewMultimodalEmbedder(&MultimodalConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultJinaModel),
			Dimensions: dims,
			Azure:      true,
			APIVersion: apiVersion,
		}), nil

	case "custom":
		// Self-hosted OpenAI-compatible endpoint (vLLM, Infinity, etc.).
		// No API key required.
		endpoint := getEnv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: custom backend requires EMBEDDING_ENDPOINT")
		}
		model := getEnv("EMBEDDING_MODEL")
		if model == "" {
			return nil, fmt.Errorf("embedder: custom backend requires EMBEDDING_MODEL")
		}
		return NewMultimodalEmbedder(&MultimodalConfig{
			BaseURL:    endpoint,
			APIKey:     getEnv("EMBEDDING_API_KEY"),
			Model:      model,
			Dimensions: dims,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: jina, azure, custom", backend)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
