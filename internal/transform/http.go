package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// probeTimeout bounds the availability probe so a dead backend is detected
// quickly rather than once per image.
const probeTimeout = 2 * time.Second

// HTTPBackend implements Backend against an image transformation service
// exposing a health endpoint and a transform endpoint, via plain HTTP — no
// additional SDK dependencies are required.
type HTTPBackend struct {
	// endpoint is the service base URL.
	endpoint string
	// apiKey is the optional Bearer token.
	apiKey string
	// client is the shared HTTP client with a request timeout.
	client *http.Client
}

// HTTPConfig holds the settings for constructing an HTTPBackend.
type HTTPConfig struct {
	// Endpoint is the service base URL (required).
	Endpoint string
	// APIKey is the optional Bearer token.
	APIKey string
	// Timeout bounds each transform request (default: 120s — image
	// generation is slow).
	Timeout time.Duration
}

// NewHTTPBackend constructs an HTTPBackend from the given config.
func NewHTTPBackend(cfg *HTTPConfig) (*HTTPBackend, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("transform: backend requires an endpoint")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &HTTPBackend{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// IsAvailable probes the backend's health endpoint with a short timeout.
func (b *HTTPBackend) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, b.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// transformRequest is the JSON body sent to the transform endpoint.
type transformRequest struct {
	BaseImageURL  string  `json:"base_image_url,omitempty"`
	Prompt        string  `json:"prompt"`
	Style         string  `json:"style,omitempty"`
	AspectRatio   string  `json:"aspect_ratio,omitempty"`
	Size          string  `json:"size,omitempty"`
	GuidanceScale float64 `json:"guidance_scale"`
	Strength      float64 `json:"strength"`
}

// transformResponse is the JSON body returned from the transform endpoint.
type transformResponse struct {
	ImageURL string `json:"image_url"`
	Error    string `json:"error,omitempty"`
}

// Transform runs one transformation and returns the final image URL.
func (b *HTTPBackend) Transform(ctx context.Context, r Request) (string, error) {
	payload, err := json.Marshal(transformRequest{
		BaseImageURL:  r.BaseImageURL,
		Prompt:        r.Prompt,
		Style:         r.Style,
		AspectRatio:   r.AspectRatio,
		Size:          r.Size,
		GuidanceScale: r.GuidanceScale,
		Strength:      r.Strength,
	})
	if err != nil {
		return "", fmt.Errorf("transform: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/v1/transform", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("transform: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transform: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result transformResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("transform: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != "" {
			msg = result.Error
		}
		return "", fmt.Errorf("transform: %s", msg)
	}
	if result.ImageURL == "" {
		return "", fmt.Errorf("transform: backend returned no image URL")
	}

	return result.ImageURL, nil
}
