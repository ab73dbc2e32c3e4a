// Package resolver maps parsed image directives to the best-matching indexed
// image for a lesson topic. A directive with no match is flagged for
// synthesis rather than treated as an error — the transformation stage
// consumes that signal to switch into text-to-image mode.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lektor-ai/lvai-go/internal/logging"
	"github.com/lektor-ai/lvai-go/internal/tag"
	"github.com/lektor-ai/lvai-go/internal/vecindex"
)

// defaultTopK is the number of index candidates considered per directive.
const defaultTopK = 3

// ResolvedBase is one directive paired with its best indexed match, or with
// the synthesis flag when no match was found.
type ResolvedBase struct {
	// Tag is the directive being resolved.
	Tag tag.ImageTag

	// BaseImageURL is the matched image URL. Empty when NeedsSynthesis.
	BaseImageURL string

	// BaseMetadata carries the matched record's payload (title, license,
	// source, similarity score).
	BaseMetadata map[string]string

	// NeedsSynthesis marks a directive with no usable match. Not an error:
	// downstream stages generate the image from the prompt instead.
	NeedsSynthesis bool

	// VectorID is the matched record's id, when a match was found.
	VectorID string
}

// Resolver resolves directives against the vector index.
type Resolver struct {
	// embedder converts directive queries into vectors.
	embedder vecindex.Embedder

	// index performs the topic-scoped similarity search.
	index vecindex.Index

	// defaultTopK is the candidate count used when the caller passes 0.
	defaultTopK int
}

// NewResolver constructs a Resolver from the given embedder and index.
// topK sets the fallback candidate count when ResolveTagsForTopic is called
// with topK=0.
func NewResolver(embedder vecindex.Embedder, index vecindex.Index, topK int) (*Resolver, error) {
	if embedder == nil {
		return nil, fmt.Errorf("resolver: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("resolver: index must not be nil")
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Resolver{
		embedder:    embedder,
		index:       index,
		defaultTopK: topK,
	}, nil
}

// ResolveTagsForTopic resolves each directive independently against the
// given topic and returns one ResolvedBase per input tag, in input order.
// Failures are isolated per tag: an embed or search error marks that tag
// NeedsSynthesis and resolution continues.
func (r *Resolver) ResolveTagsForTopic(ctx context.Context, topicID string, tags []tag.ImageTag, topK int) []ResolvedBase {
	log := logging.FromContext(ctx)
	if topK <= 0 {
		topK = r.defaultTopK
	}

	resolved := make([]ResolvedBase, len(tags))
	for i, t := range tags {
		resolved[i] = r.resolveOne(ctx, topicID, t, topK)
		if resolved[i].NeedsSynthesis {
			log.Debug("resolver: directive flagged for synthesis",
				slog.String("tag_id", t.ID),
				slog.String("topic_id", topicID),
			)
		}
	}
	return resolved
}

// resolveOne embeds the directive's query and takes the highest-similarity
// match from the topic partition.
func (r *Resolver) resolveOne(ctx context.Context, topicID string, t tag.ImageTag, topK int) ResolvedBase {
	log := logging.FromContext(ctx)
	base := ResolvedBase{Tag: t, NeedsSynthesis: true}

	query := t.Query
	if query == "" {
		query = t.Prompt
	}

	vec, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		log.Warn("resolver: embed query failed",
			slog.String("tag_id", t.ID),
			slog.Any("error", err),
		)
		return base
	}

	records, err := r.index.Search(ctx, vec, topicID, topK)
	if err != nil {
		log.Warn("resolver: index search failed",
			slog.String("tag_id", t.ID),
			slog.String("topic_id", topicID),
			slog.Any("error", err),
		)
		return base
	}
	if len(records) == 0 {
		return base
	}

	// Search results arrive ranked; the first record is the best match.
	best := records[0]
	meta := make(map[string]string, len(best.Metadata)+1)
	for k, v := range best.Metadata {
		meta[k] = v
	}
	meta["similarity"] = fmt.Sprintf("%.4f", best.Score)

	return ResolvedBase{
		Tag:            t,
		BaseImageURL:   best.ImageURL,
		BaseMetadata:   meta,
		NeedsSynthesis: false,
		VectorID:       best.ID,
	}
}
