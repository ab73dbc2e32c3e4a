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

// WebSearchProvider is the general-purpose text-image-search fallback, backed
// by a SearxNG-compatible JSON endpoint. It is the provider of last resort:
// always registered as the research client's fallback so a thin candidate
// pool can be topped up even when every curated source is down.
type WebSearchProvider struct {
	// endpoint is the SearxNG instance base URL.
	endpoint string
	// client is the shared HTTP client with a request timeout.
	client *http.Client
	// limiter paces outgoing requests.
	limiter *rate.Limiter
}

// WebSearchConfig holds the settings for constructing a WebSearchProvider.
type WebSearchConfig struct {
	// Endpoint is the SearxNG instance base URL (required).
	Endpoint string
	// Timeout bounds each search request (default: 15s).
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests (default: 1).
	RequestsPerSecond float64
}

// NewWebSearchProvider constructs a WebSearchProvider from the given config.
func NewWebSearchProvider(cfg *WebSearchConfig) (*WebSearchProvider, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("research: web search provider requires an endpoint")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	return &WebSearchProvider{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// Name returns the provider label.
func (p *WebSearchProvider) Name() string { return "websearch" }

// Kind reports that the fallback search is a structured API provider.
func (p *WebSearchProvider) Kind() Kind { return KindAPI }

// websearchResponse is the subset of the SearxNG JSON response consumed here.
type websearchResponse struct {
	Results []struct {
		ImgSrc  string `json:"img_src"`
		Title   string `json:"title"`
		Content string `json:"content"`
		URL     string `json:"url"`
	} `json:"results"`
}

// Search queries the images category and normalizes the response.
func (p *WebSearchProvider) Search(ctx context.Context, query string, limit int) ([]ImageCandidate, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("websearch: rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("categories", "images")
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("websearch: unexpected status %d", resp.StatusCode)
	}

	var body websearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("websearch: decode response: %w", err)
	}

	cands := make([]ImageCandidate, 0, len(body.Results))
	for _, r := range body.Results {
		if r.ImgSrc == "" {
			continue
		}
		meta := map[string]string{}
		if r.URL != "" {
			meta["landing_url"] = r.URL
		}
		cands = append(cands, ImageCandidate{
			SourceURL:   r.ImgSrc,
			Title:       r.Title,
			Description: r.Content,
			Source:      p.Name(),
			Metadata:    meta,
		})
		if len(cands) >= limit {
			break
		}
	}
	return cands, nil
}
