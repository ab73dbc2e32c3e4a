// Package transform applies an optional image-to-image transformation to
// each resolved base image. The backend is probed once per batch: when it is
// down, the whole batch passes through untouched instead of timing out once
// per image. Directives flagged for synthesis run the same operation in
// text-to-image mode.
package transform

import (
	"context"
	"log/slog"

	"github.com/lektor-ai/lvai-go/internal/logging"
	"github.com/lektor-ai/lvai-go/internal/resolver"
	"github.com/lektor-ai/lvai-go/internal/tag"
)

// ResolvedImage is the final per-directive artifact: the directive, its base
// image, and the final image after optional transformation.
type ResolvedImage struct {
	// Tag is the directive this image fulfils.
	Tag tag.ImageTag

	// BaseImageURL is the matched base image. Empty for synthesized images.
	BaseImageURL string

	// FinalImageURL is the image injected into the document. Falls back to
	// BaseImageURL on per-item failure; empty only when nothing at all was
	// available.
	FinalImageURL string

	// VectorID is the matched index record, when resolution found one.
	VectorID string

	// Metadata carries the base metadata plus stage annotations
	// (transformation_skipped, transform_error, synthesized).
	Metadata map[string]string
}

// Request is one transform invocation. An empty BaseImageURL selects
// text-to-image mode.
type Request struct {
	// BaseImageURL is the source image, or empty for text-to-image.
	BaseImageURL string
	// Prompt guides the transformation or synthesis.
	Prompt string
	// Style is the optional visual style label.
	Style string
	// AspectRatio is the optional "W:H" target ratio.
	AspectRatio string
	// Size is the optional target size label.
	Size string
	// GuidanceScale controls prompt adherence.
	GuidanceScale float64
	// Strength controls how far the result departs from the base image.
	// Zero in text-to-image mode.
	Strength float64
}

// Backend is the capability interface for a transform service.
type Backend interface {
	// IsAvailable is a cheap liveness probe with a short timeout.
	IsAvailable(ctx context.Context) bool

	// Transform runs one transformation and returns the final image URL.
	Transform(ctx context.Context, req Request) (string, error)
}

// Stage runs the transformation step of the pipeline.
type Stage struct {
	backend Backend
}

// NewStage constructs a Stage over the given backend. A nil backend is
// allowed: the stage then behaves as permanently unavailable and every batch
// passes through.
func NewStage(backend Backend) *Stage {
	return &Stage{backend: backend}
}

// Transform converts each resolved base into a final image, in input order.
// When the backend probe fails, the whole batch short-circuits: every base
// passes through verbatim with transformation_skipped set. Per-item failures
// fall back to the base image with the error recorded in metadata — one
// failing image never aborts the batch.
func (s *Stage) Transform(ctx context.Context, bases []resolver.ResolvedBase) []ResolvedImage {
	log := logging.FromContext(ctx)

	if s.backend == nil || !s.backend.IsAvailable(ctx) {
		log.Warn("transform: backend unavailable, passing batch through",
			slog.Int("images", len(bases)),
		)
		return passthrough(bases)
	}

	images := make([]ResolvedImage, len(bases))
	for i, base := range bases {
		images[i] = s.transformOne(ctx, base)
	}
	return images
}

// transformOne runs one item. Synthesis items (no base image) invoke the
// backend in text-to-image mode with strength zero.
func (s *Stage) transformOne(ctx context.Context, base resolver.ResolvedBase) ResolvedImage {
	log := logging.FromContext(ctx)
	img := fromBase(base)

	req := Request{
		BaseImageURL:  base.BaseImageURL,
		Prompt:        base.Tag.Prompt,
		Style:         base.Tag.Style,
		AspectRatio:   base.Tag.AspectRatio,
		Size:          base.Tag.Size,
		GuidanceScale: base.Tag.GuidanceScale,
		Strength:      base.Tag.Strength,
	}
	if base.NeedsSynthesis {
		req.BaseImageURL = ""
		req.Strength = 0
		img.Metadata["synthesized"] = "true"
	}

	finalURL, err := s.backend.Transform(ctx, req)
	if err != nil {
		log.Warn("transform: item failed, falling back to base image",
			slog.String("tag_id", base.Tag.ID),
			slog.Any("error", err),
		)
		img.FinalImageURL = base.BaseImageURL
		img.Metadata["transform_error"] = err.Error()
		return img
	}

	img.FinalImageURL = finalURL
	return img
}

// passthrough returns every base verbatim as its own final image, annotated
// as skipped.
func passthrough(bases []resolver.ResolvedBase) []ResolvedImage {
	images := make([]ResolvedImage, len(bases))
	for i, base := range bases {
		img := fromBase(base)
		img.FinalImageURL = base.BaseImageURL
		img.Metadata["transformation_skipped"] = "true"
		images[i] = img
	}
	return images
}

// fromBase seeds a ResolvedImage with the resolution outcome.
func fromBase(base resolver.ResolvedBase) ResolvedImage {
	meta := make(map[string]string, len(base.BaseMetadata)+1)
	for k, v := range base.BaseMetadata {
		meta[k] = v
	}
	return ResolvedImage{
		Tag:          base.Tag,
		BaseImageURL: base.BaseImageURL,
		VectorID:     base.VectorID,
		Metadata:     meta,
	}
}

// RenderedImages converts the stage output into the neutral form the tag
// serializer consumes.
func RenderedImages(images []ResolvedImage) []tag.RenderedImage {
	rendered := make([]tag.RenderedImage, len(images))
	for i, img := range images {
		rendered[i] = tag.RenderedImage{
			Tag:           img.Tag,
			BaseImageURL:  img.BaseImageURL,
			FinalImageURL: img.FinalImageURL,
		}
	}
	return rendered
}
