// Package embedder provides implementations of the vecindex.Embedder
// interface for converting lesson text and candidate images into dense
// vectors in a shared embedding space. The backend is any OpenAI-compatible
// multimodal embeddings endpoint, reached via plain HTTP — no additional SDK
// dependencies are required.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lektor-ai/lvai-go/internal/logging"
)

// imageFetchConcurrency bounds the number of candidate images downloaded and
// encoded at once during a batch embed.
const imageFetchConcurrency = 4

// MultimodalEmbedder implements vecindex.Embedder using an OpenAI-compatible
// multimodal embeddings REST API (e.g. jina-clip served by Jina AI or a local
// inference server). It is safe for concurrent use.
type MultimodalEmbedder struct {
	// baseURL is the API base (e.g. "https://api.jina.ai/v1" or a local endpoint).
	baseURL string
	// apiKey is the Bearer token (standard) or api-key header value (Azure).
	apiKey string
	// model is the embedding model name (e.g. "jina-clip-v2").
	model string
	// dimensions is the desired embedding vector length (0 = model default).
	dimensions int
	// azure selects Azure-style auth (api-key header) over Bearer token.
	azure bool
	// apiVersion is the Azure API version query param (ignored otherwise).
	apiVersion string
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
	// fetcher downloads and base64-encodes candidate images.
	fetcher *imageFetcher
}

// MultimodalConfig holds the settings for constructing a MultimodalEmbedder.
type MultimodalConfig struct {
	// BaseURL is the API base URL (e.g. "https://api.jina.ai/v1").
	BaseURL string
	// APIKey is the authentication key. May be empty for local endpoints.
	APIKey string
	// Model is the embedding model name (e.g. "jina-clip-v2").
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure-style auth (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure API version. Ignored when Azure is false.
	APIVersion string
	// MaxImageBytes caps the download size per candidate image (default: 10 MiB).
	MaxImageBytes int64
}

// NewMultimodalEmbedder constructs a MultimodalEmbedder from the given config.
func NewMultimodalEmbedder(cfg *MultimodalConfig) *MultimodalEmbedder {
	return &MultimodalEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		apiVersion: cfg.APIVersion,
		client:     &http.Client{Timeout: 60 * time.Second},
		fetcher:    newImageFetcher(cfg.MaxImageBytes),
	}
}

// embedInput is one item in the embeddings request. Exactly one field is set.
type embedInput struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// embedRequest is the JSON body sent to the embeddings endpoint.
type embedRequest struct {
	Input      []embedInput `json:"input"`
	Model      string       `json:"model"`
	Dimensions int          `json:"dimensions,omitempty"`
}

// embedResponse is the JSON body returned from the embeddings endpoint.
type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// EmbedText converts a single text into its embedding.
func (e *MultimodalEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []embedInput{{Text: text}})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedImages downloads and encodes the candidate images (at most
// imageFetchConcurrency at a time), skipping any image that cannot be fetched
// or encoded, then embeds the survivors in a single batch call. The returned
// indices identify, in ascending order, which input positions produced a
// vector. An error is returned only when the embedding call itself fails.
func (e *MultimodalEmbedder) EmbedImages(ctx context.Context, urls []string) ([][]float32, []int, error) {
	log := logging.FromContext(ctx)

	encoded := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageFetchConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			data, err := e.fetcher.fetch(gctx, u)
			if err != nil {
				log.Warn("embedder: skipping image candidate",
					slog.String("url", u),
					slog.Any("error", err),
				)
				return nil
			}
			encoded[i] = data
			return nil
		})
	}
	// Fetch goroutines swallow their errors; Wait only surfaces ctx cancellation.
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("embedder: image fetch: %w", err)
	}

	indices := make([]int, 0, len(urls))
	inputs := make([]embedInput, 0, len(urls))
	for i, enc := range encoded {
		if enc == "" {
			continue
		}
		indices = append(indices, i)
		inputs = append(inputs, embedInput{Image: enc})
	}
	if len(inputs) == 0 {
		return nil, nil, nil
	}

	vectors, err := e.embed(ctx, inputs)
	if err != nil {
		return nil, nil, err
	}
	return vectors, indices, nil
}

// embed sends one batch to the embeddings endpoint and returns the vectors
// in input order.
func (e *MultimodalEmbedder) embed(ctx context.Context, inputs []embedInput) ([][]float32, error) {
	body := embedRequest{
		Input: inputs,
		Model: e.model,
	}
	if e.dimensions > 0 {
		body.Dimensions = e.dimensions
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal request: %w", err)
	}

	url := e.baseURL + "/embeddings"
	if e.azure {
		url = e.baseURL + "/deployments/" + e.model + "/embeddings?api-version=" + e.apiVersion
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case e.azure:
		req.Header.Set("api-key", e.apiKey)
	case e.apiKey != "":
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embedder: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != nil {
			msg = result.Error.Message
		}
		return nil, fmt.Errorf("embedder: %s", msg)
	}

	if len(result.Data) != len(inputs) {
		return nil, fmt.Errorf("embedder: expected %d embeddings, got %d", len(inputs), len(result.Data))
	}

	// The API may return data out of order; sort by index.
	vectors := make([][]float32, len(inputs))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(inputs) {
			return nil, fmt.Errorf("embedder: index %d out of range [0, %d)", d.Index, len(inputs))
		}
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}
