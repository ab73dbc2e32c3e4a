package tag

import (
	"strings"
)

// Inject replaces each [[IMAGE:<id>]] placeholder in cleanedContent with a
// media reference for the matching rendered image: an <img> element carrying
// truncated alt text, the final URL, and side-channel data attributes (style,
// aspect ratio, and the base image URL when it differs from the final one).
//
// Placeholders with no matching image — or whose image has an empty final
// URL — are left untouched, never deleted, so callers can detect unresolved
// slots by scanning the output. Inject(content, nil) returns content as-is.
func Inject(cleanedContent string, images []RenderedImage) string {
	out := cleanedContent
	for _, img := range images {
		if img.FinalImageURL == "" {
			continue
		}
		out = strings.ReplaceAll(out, Placeholder(img.Tag.ID), mediaRef(img))
	}
	return out
}

// mediaRef renders one rendered image as an <img> element.
func mediaRef(img RenderedImage) string {
	var b strings.Builder
	b.WriteString(`<img id="`)
	b.WriteString(Sanitize(img.Tag.ID))
	b.WriteString(`" src="`)
	b.WriteString(Sanitize(img.FinalImageURL))
	b.WriteString(`" alt="`)
	b.WriteString(Sanitize(TruncateAlt(img.Tag.Prompt)))
	b.WriteString(`"`)

	if img.Tag.Style != "" {
		b.WriteString(` data-style="`)
		b.WriteString(Sanitize(img.Tag.Style))
		b.WriteString(`"`)
	}
	if img.Tag.AspectRatio != "" {
		b.WriteString(` data-aspect="`)
		b.WriteString(Sanitize(img.Tag.AspectRatio))
		b.WriteString(`"`)
	}
	if img.BaseImageURL != "" && img.BaseImageURL != img.FinalImageURL {
		b.WriteString(` data-base-src="`)
		b.WriteString(Sanitize(img.BaseImageURL))
		b.WriteString(`"`)
	}

	b.WriteString(`>`)
	return b.String()
}

// TruncateAlt caps alt text at MaxAltTextLen characters.
func TruncateAlt(prompt string) string {
	if len(prompt) <= MaxAltTextLen {
		return prompt
	}
	return prompt[:MaxAltTextLen]
}
