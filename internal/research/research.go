// Package research builds pools of image candidates for a lesson topic by
// querying an ordered list of image-source providers. Provider failures are
// isolated — one dead provider never aborts the whole research call — and a
// general-purpose search fallback tops up thin pools. All providers speak
// plain HTTP; no provider SDKs are required.
package research

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"github.com/lektor-ai/lvai-go/internal/logging"
)

// lowWaterMark is the candidate count below which the fallback search is
// attempted with an augmented query after all providers have been tried.
const lowWaterMark = 5

// Kind classifies how a provider retrieves candidates.
type Kind string

const (
	// KindAPI marks providers with a structured request/response API.
	KindAPI Kind = "api"
	// KindScrape marks providers doing best-effort page scraping.
	KindScrape Kind = "scrape"
)

// ImageCandidate is a researched image before embedding.
type ImageCandidate struct {
	// ID identifies the candidate; derived from the provider's native id or
	// a hash of the source URL.
	ID string

	// SourceURL is the direct image URL.
	SourceURL string

	// Title is the provider-supplied title, if any.
	Title string

	// Description is the provider-supplied description, if any.
	Description string

	// Width and Height are pixel dimensions when the provider reports them.
	Width  int
	Height int

	// License is the provider-reported license label, if any.
	License string

	// Source names the provider that produced this candidate.
	Source string

	// Tags are provider-supplied keyword labels.
	Tags []string

	// Metadata carries additional provider fields (landing page, thumbnail).
	Metadata map[string]string
}

// Provider is the capability interface implemented once per image source.
// Search returns up to limit normalized candidates for the query.
// Implementations must be safe to call from multiple goroutines.
type Provider interface {
	// Name returns the provider label used in logs and candidate metadata.
	Name() string

	// Kind reports whether the provider is API-backed or scraping-based.
	Kind() Kind

	// Search retrieves and normalizes up to limit candidates for query.
	Search(ctx context.Context, query string, limit int) ([]ImageCandidate, error)
}

// Client iterates a configured ordered list of providers to build a candidate
// pool, with a fallback general-purpose search as the last resort.
type Client struct {
	// providers is the ordered list tried for every research call.
	providers []Provider

	// fallback is the general-purpose search used to top up thin pools.
	// May be nil, in which case no top-up is attempted.
	fallback Provider
}

// NewClient constructs a Client from the ordered provider list and an
// optional fallback search provider.
func NewClient(providers []Provider, fallback Provider) *Client {
	return &Client{providers: providers, fallback: fallback}
}

// Research collects up to maxImages candidates for the query across all
// providers combined — the cap is global, not per-provider. Provider failures
// are logged and skipped. If fewer than the low-water mark survive, a final
// fallback search runs with an augmented query. Returns whatever was
// collected, possibly empty — never an error for "no images found".
func (c *Client) Research(ctx context.Context, query, subject string, maxImages int) []ImageCandidate {
	log := logging.FromContext(ctx)
	if maxImages <= 0 {
		return nil
	}

	seen := map[string]bool{}
	var pool []ImageCandidate

	providerQuery := joinQuery(subject, query)
	for _, p := range c.providers {
		if len(pool) >= maxImages {
			break
		}
		cands, err := p.Search(ctx, providerQuery, maxImages-len(pool))
		if err != nil {
			log.Warn("research: provider failed, continuing",
				slog.String("provider", p.Name()),
				slog.String("kind", string(p.Kind())),
				slog.Any("error", err),
			)
			continue
		}
		pool = appendCandidates(pool, cands, seen, maxImages)
	}

	if len(pool) < lowWaterMark && c.fallback != nil {
		augmented := fmt.Sprintf("%s %s diagram illustration", subject, query)
		cands, err := c.fallback.Search(ctx, augmented, maxImages-len(pool))
		if err != nil {
			log.Warn("research: fallback search failed",
				slog.String("provider", c.fallback.Name()),
				slog.Any("error", err),
			)
		} else {
			pool = appendCandidates(pool, cands, seen, maxImages)
		}
	}

	log.Info("research: pool assembled",
		slog.String("subject", subject),
		slog.Int("candidates", len(pool)),
	)
	return pool
}

// appendCandidates adds candidates to the pool, skipping blanks and source
// URLs already collected, up to the global cap.
func appendCandidates(pool, cands []ImageCandidate, seen map[string]bool, maxImages int) []ImageCandidate {
	for _, cand := range cands {
		if len(pool) >= maxImages {
			break
		}
		if cand.SourceURL == "" || seen[cand.SourceURL] {
			continue
		}
		seen[cand.SourceURL] = true
		if cand.ID == "" {
			cand.ID = urlID(cand.SourceURL)
		}
		pool = append(pool, cand)
	}
	return pool
}

// joinQuery combines the subject and query, dropping an empty component.
func joinQuery(subject, query string) string {
	switch {
	case subject == "":
		return query
	case query == "":
		return subject
	default:
		return subject + " " + query
	}
}

// urlID derives a stable candidate id from a source URL.
func urlID(sourceURL string) string {
	h := sha256.Sum256([]byte(sourceURL))
	return fmt.Sprintf("%x", h[:16])
}
