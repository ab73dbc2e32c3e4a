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

// defaultWikimediaEndpoint is the Wikimedia Commons MediaWiki API.
const defaultWikimediaEndpoint = "https://commons.wikimedia.org/w/api.php"

// WikimediaProvider retrieves freely licensed media from Wikimedia Commons
// via the MediaWiki search/imageinfo API.
type WikimediaProvider struct {
	// endpoint is the MediaWiki api.php URL.
	endpoint string
	// userAgent is sent on every request per Wikimedia API etiquette.
	userAgent string
	// client is the shared HTTP client with a request timeout.
	client *http.Client
	// limiter paces outgoing requests.
	limiter *rate.Limiter
}

// WikimediaConfig holds the settings for constructing a WikimediaProvider.
type WikimediaConfig struct {
	// Endpoint overrides the api.php URL (default: Wikimedia Commons).
	Endpoint string
	// UserAgent overrides the request User-Agent header.
	UserAgent string
	// Timeout bounds each search request (default: 15s).
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests (default: 2).
	RequestsPerSecond float64
}

// NewWikimediaProvider constructs a WikimediaProvider from the given config.
func NewWikimediaProvider(cfg *WikimediaConfig) *WikimediaProvider {
	if cfg == nil {
		cfg = &WikimediaConfig{}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultWikimediaEndpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "lvai-go/1.0 (lesson visual research)"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	return &WikimediaProvider{
		endpoint:  cfg.Endpoint,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// Name returns the provider label.
func (p *WikimediaProvider) Name() string { return "wikimedia" }

// Kind reports that Wikimedia Commons is a structured API provider.
func (p *WikimediaProvider) Kind() Kind { return KindAPI }

// wikimediaResponse is the subset of the MediaWiki query response consumed
// here. Pages arrive as a map keyed by page id.
type wikimediaResponse struct {
	Query struct {
		Pages map[string]struct {
			Title     string `json:"title"`
			ImageInfo []struct {
				URL         string `json:"url"`
				Width       int    `json:"width"`
				Height      int    `json:"height"`
				ExtMetadata struct {
					LicenseShortName struct {
						Value string `json:"value"`
					} `json:"LicenseShortName"`
					ImageDescription struct {
						Value string `json:"value"`
					} `json:"ImageDescription"`
				} `json:"extmetadata"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

// Search queries the Commons file namespace and normalizes the response.
func (p *WikimediaProvider) Search(ctx context.Context, query string, limit int) ([]ImageCandidate, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wikimedia: rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("generator", "search")
	q.Set("gsrsearch", query)
	q.Set("gsrnamespace", "6") // File: namespace
	q.Set("gsrlimit", fmt.Sprintf("%d", limit))
	q.Set("prop", "imageinfo")
	q.Set("iiprop", "url|size|extmetadata")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("wikimedia: create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikimedia: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikimedia: unexpected status %d", resp.StatusCode)
	}

	var body wikimediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("wikimedia: decode response: %w", err)
	}

	cands := make([]ImageCandidate, 0, len(body.Query.Pages))
	for pageID, page := range body.Query.Pages {
		if len(page.ImageInfo) == 0 {
			continue
		}
		info := page.ImageInfo[0]
		cands = append(cands, ImageCandidate{
			ID:          "wm_" + pageID,
			SourceURL:   info.URL,
			Title:       page.Title,
			Description: info.ExtMetadata.ImageDescription.Value,
			Width:       info.Width,
			Height:      info.Height,
			License:     info.ExtMetadata.LicenseShortName.Value,
			Source:      p.Name(),
			Metadata:    map[string]string{},
		})
		if len(cands) >= limit {
			break
		}
	}
	return cands, nil
}
