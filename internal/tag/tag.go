// Package tag implements the inline [IMAGE ...] directive micro-language
// embedded in generated lesson scripts. It parses directives into ImageTag
// values, serializes tags back to directive text, and injects resolved media
// references into cleaned content. The package is pure — no I/O — so every
// operation is deterministic and trivially testable.
package tag

// Default values applied when a directive omits or mangles the corresponding
// attribute. They mirror the reference image-to-image deployment settings.
const (
	// DefaultGuidanceScale is the classifier-free guidance applied when the
	// "guidance" attribute is absent or unparsable.
	DefaultGuidanceScale = 7.5

	// DefaultStrength is the img2img denoising strength applied when the
	// "strength" attribute is absent or unparsable.
	DefaultStrength = 0.7

	// MaxAltTextLen is the maximum number of characters of the tag prompt
	// carried into an injected media reference's alt text.
	MaxAltTextLen = 100
)

// placementAxes are the free-form placement attribute names recognized by the
// parser, in the canonical order used for serialization.
var placementAxes = []string{"x", "y", "width", "height", "scale"}

// ImageTag is one parsed [IMAGE ...] directive. Instances are created by
// Parse and are immutable thereafter.
type ImageTag struct {
	// ID uniquely identifies the tag within one document. Synthesized as
	// "img_<n>" by parse order when the directive omits it.
	ID string

	// Prompt is the visual description used for synthesis and alt text.
	Prompt string

	// Query is an optional retrieval query; when empty, Prompt is used for
	// semantic resolution.
	Query string

	// Style is an optional rendering style hint (e.g. "diagram", "photo").
	Style string

	// AspectRatio is an optional "W:H" ratio with positive integer terms.
	AspectRatio string

	// Size is an optional pixel size hint (e.g. "1024x768").
	Size string

	// GuidanceScale is the guidance value in [0, 20]. Defaults to
	// DefaultGuidanceScale.
	GuidanceScale float64

	// Strength is the img2img strength in [0, 1]. Defaults to DefaultStrength.
	Strength float64

	// TimeOffset is the earliest presentation time in seconds, if given.
	TimeOffset float64

	// Duration is the on-screen duration in seconds, if given.
	Duration float64

	// Layout is an optional named layout hint (e.g. "fullscreen", "inset").
	Layout string

	// Notes carries free-form operator notes from the directive.
	Notes string

	// Placement maps placement axes (x, y, width, height, scale) to values.
	Placement map[string]float64

	// Extra preserves unrecognized attributes so the language stays
	// forward-compatible — unknown keys round-trip rather than vanish.
	Extra map[string]string
}

// RenderedImage pairs a tag with the image URLs chosen for it, ready for
// injection into cleaned content.
type RenderedImage struct {
	// Tag is the directive this image fulfils.
	Tag ImageTag

	// BaseImageURL is the pre-transformation image, empty for pure synthesis.
	BaseImageURL string

	// FinalImageURL is the URL injected into the document.
	FinalImageURL string
}
