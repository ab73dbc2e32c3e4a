package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// defaultOpenverseEndpoint is the public Openverse API base.
const defaultOpenverseEndpoint = "https://api.openverse.org/v1"

// OpenverseProvider retrieves openly licensed images from the Openverse
// catalogue via its structured REST API.
type OpenverseProvider struct {
	// endpoint is the API base URL.
	endpoint string
	// client is the shared HTTP client with a request timeout.
	client *http.Client
	// limiter paces requests so research bursts stay within the anonymous
	// API quota.
	limiter *rate.Limiter
}

// OpenverseConfig holds the settings for constructing an OpenverseProvider.
type OpenverseConfig struct {
	// Endpoint overrides the API base URL (default: the public instance).
	Endpoint string
	// Timeout bounds each search request (default: 15s).
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests (default: 2).
	RequestsPerSecond float64
}

// NewOpenverseProvider constructs an OpenverseProvider from the given config.
func NewOpenverseProvider(cfg *OpenverseConfig) *OpenverseProvider {
	if cfg == nil {
		cfg = &OpenverseConfig{}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultOpenverseEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	return &OpenverseProvider{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// Name returns the provider label.
func (p *OpenverseProvider) Name() string { return "openverse" }

// Kind reports that Openverse is a structured API provider.
func (p *OpenverseProvider) Kind() Kind { return KindAPI }

// openverseResponse is the subset of the Openverse search response consumed
// here.
type openverseResponse struct {
	Results []struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		URL       string `json:"url"`
		Thumbnail string `json:"thumbnail"`
		License   string `json:"license"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		ForeignLandingURL string `json:"foreign_landing_url"`
		Tags      []struct {
			Name string `json:"name"`
		} `json:"tags"`
	} `json:"results"`
}

// Search queries the Openverse images endpoint and normalizes the response.
func (p *OpenverseProvider) Search(ctx context.Context, query string, limit int) ([]ImageCandidate, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("openverse: rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("page_size", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/images/?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("openverse: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openverse: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openverse: unexpected status %d", resp.StatusCode)
	}

	var body openverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("openverse: decode response: %w", err)
	}

	cands := make([]ImageCandidate, 0, len(body.Results))
	for _, r := range body.Results {
		tags := make([]string, 0, len(r.Tags))
		for _, t := range r.Tags {
			tags = append(tags, t.Name)
		}
		meta := map[string]string{}
		if r.ForeignLandingURL != "" {
			meta["landing_url"] = r.ForeignLandingURL
		}
		if r.Thumbnail != "" {
			meta["thumbnail"] = r.Thumbnail
		}
		cands = append(cands, ImageCandidate{
			ID:        r.ID,
			SourceURL: r.URL,
			Title:     r.Title,
			Width:     r.Width,
			Height:    r.Height,
			License:   r.License,
			Source:    p.Name(),
			Tags:      tags,
			Metadata:  meta,
		})
	}
	return cands, nil
}
