package tag

import (
	"sort"
	"strconv"
	"strings"
)

// Serialize renders the tag back to directive text. Attribute order is
// stable — id, prompt, query, style, aspect, size, guidance, strength, time,
// duration, layout, placement axes, notes, then extras sorted by key — and
// values are sanitized so the emitted directive always re-parses.
func Serialize(t ImageTag) string {
	var b strings.Builder
	b.WriteString(directiveKeyword)

	writeAttr(&b, "id", t.ID)
	writeAttr(&b, "prompt", t.Prompt)
	writeAttr(&b, "query", t.Query)
	writeAttr(&b, "style", t.Style)
	writeAttr(&b, "aspect", t.AspectRatio)
	writeAttr(&b, "size", t.Size)
	writeAttr(&b, "guidance", formatFloat(t.GuidanceScale))
	writeAttr(&b, "strength", formatFloat(t.Strength))
	if t.TimeOffset != 0 {
		writeAttr(&b, "time", formatFloat(t.TimeOffset))
	}
	if t.Duration != 0 {
		writeAttr(&b, "duration", formatFloat(t.Duration))
	}
	writeAttr(&b, "layout", t.Layout)
	for _, axis := range placementAxes {
		if v, ok := t.Placement[axis]; ok {
			writeAttr(&b, axis, formatFloat(v))
		}
	}
	writeAttr(&b, "notes", t.Notes)

	extraKeys := make([]string, 0, len(t.Extra))
	for k := range t.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		writeAttr(&b, k, t.Extra[k])
	}

	b.WriteByte(']')
	return b.String()
}

// writeAttr appends one key="value" pair, skipping empty values.
func writeAttr(b *strings.Builder, key, val string) {
	val = Sanitize(val)
	if val == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteString(`="`)
	b.WriteString(val)
	b.WriteByte('"')
}

// Sanitize makes a value safe to embed in a directive attribute: embedded
// double quotes become single quotes and surrounding whitespace is trimmed.
func Sanitize(val string) string {
	return strings.TrimSpace(strings.ReplaceAll(val, `"`, `'`))
}

// formatFloat renders a float without trailing zeros ("7.5", "0.7", "12").
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
