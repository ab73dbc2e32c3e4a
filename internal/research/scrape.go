package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// imgTagPattern extracts src and (optionally) alt attributes from <img>
// elements in fetched gallery pages. Best-effort by design — scraping
// providers degrade, they never guarantee.
var imgTagPattern = regexp.MustCompile(`(?is)<img[^>]*\ssrc="([^"]+)"[^>]*?(?:\salt="([^"]*)")?[^>]*>`)

// ScrapeProvider retrieves image candidates from a gallery-style HTML page
// by fetching the page for a query and extracting <img> sources. It covers
// sources that expose no structured API.
type ScrapeProvider struct {
	// name labels this scrape target in logs and candidate metadata.
	name string
	// searchURL is the page URL; the query is appended as ?q=<query>.
	searchURL string
	// userAgent is the request User-Agent header.
	userAgent string
	// client is the shared HTTP client with a request timeout.
	client *http.Client
	// limiter paces outgoing requests.
	limiter *rate.Limiter
}

// ScrapeConfig holds the settings for constructing a ScrapeProvider.
type ScrapeConfig struct {
	// Name labels the scrape target (default: "scrape").
	Name string
	// SearchURL is the gallery page URL to fetch (required).
	SearchURL string
	// UserAgent overrides the request User-Agent header.
	UserAgent string
	// Timeout bounds each fetch (default: 15s).
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests (default: 1).
	RequestsPerSecond float64
}

// NewScrapeProvider constructs a ScrapeProvider from the given config.
func NewScrapeProvider(cfg *ScrapeConfig) (*ScrapeProvider, error) {
	if cfg == nil || cfg.SearchURL == "" {
		return nil, fmt.Errorf("research: scrape provider requires a search URL")
	}
	if cfg.Name == "" {
		cfg.Name = "scrape"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "lvai-go/1.0 (lesson visual research)"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	return &ScrapeProvider{
		name:      cfg.Name,
		searchURL: cfg.SearchURL,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// Name returns the scrape target label.
func (p *ScrapeProvider) Name() string { return p.name }

// Kind reports that this provider scrapes rather than calls an API.
func (p *ScrapeProvider) Kind() Kind { return KindScrape }

// Search fetches the gallery page for the query and extracts image sources.
func (p *ScrapeProvider) Search(ctx context.Context, query string, limit int) ([]ImageCandidate, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", p.name, err)
	}

	sep := "?"
	if strings.Contains(p.searchURL, "?") {
		sep = "&"
	}
	pageURL := p.searchURL + sep + "q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", p.name, resp.StatusCode)
	}

	// Cap the page read so a pathological response cannot exhaust memory.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", p.name, err)
	}

	return p.extract(string(body), pageURL, limit), nil
}

// extract pulls image candidates out of page HTML, resolving relative image
// URLs against the page URL and skipping inline data: sources.
func (p *ScrapeProvider) extract(page, pageURL string, limit int) []ImageCandidate {
	base, _ := url.Parse(pageURL)

	var cands []ImageCandidate
	for _, m := range imgTagPattern.FindAllStringSubmatch(page, -1) {
		if len(cands) >= limit {
			break
		}
		src := strings.TrimSpace(m[1])
		if src == "" || strings.HasPrefix(src, "data:") {
			continue
		}
		if base != nil {
			if ref, err := url.Parse(src); err == nil {
				src = base.ResolveReference(ref).String()
			}
		}
		cands = append(cands, ImageCandidate{
			SourceURL: src,
			Title:     strings.TrimSpace(m[2]),
			Source:    p.name,
			Metadata:  map[string]string{"page_url": pageURL},
		})
	}
	return cands
}
