package tag

import (
	"fmt"
	"strconv"
	"strings"
)

// directiveKeyword is the directive opener, matched case-insensitively.
const directiveKeyword = "[IMAGE"

// Parse scans content for [IMAGE key="value" ...] directives, replaces each
// one in place with a [[IMAGE:<id>]] placeholder, and returns the cleaned
// content alongside the parsed tags in document order.
//
// Unknown attribute keys are preserved in the tag's Extra map. A directive
// whose id duplicates an earlier tag is removed from the content and dropped
// from the result; the condition is reported in the returned error slice so
// one researched image is never issued twice with divergent placement.
// Malformed directives (unterminated value or missing ']') are left verbatim.
func Parse(content string) (string, []ImageTag, []error) {
	var (
		out     strings.Builder
		tags    []ImageTag
		errs    []error
		seen    = map[string]bool{}
		ordinal = 0
		i       = 0
	)

	for i < len(content) {
		j := indexDirective(content, i)
		if j < 0 {
			out.WriteString(content[i:])
			break
		}
		out.WriteString(content[i:j])

		attrs, keys, end, ok := scanAttributes(content, j+len(directiveKeyword))
		if !ok {
			// Not a well-formed directive: emit the opener verbatim and
			// resume scanning after it.
			out.WriteString(content[j : j+len(directiveKeyword)])
			i = j + len(directiveKeyword)
			continue
		}

		ordinal++
		t := buildTag(attrs, keys, ordinal)
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("tag: duplicate id %q at directive %d — occurrence dropped", t.ID, ordinal))
			i = end
			continue
		}
		seen[t.ID] = true
		tags = append(tags, t)

		out.WriteString(Placeholder(t.ID))
		i = end
	}

	return out.String(), tags, errs
}

// Placeholder returns the placeholder token emitted for the given tag id.
func Placeholder(id string) string {
	return "[[IMAGE:" + id + "]]"
}

// indexDirective returns the index of the next case-insensitive "[IMAGE"
// opener at or after from that is followed by whitespace or ']', or -1.
func indexDirective(content string, from int) int {
	for k := from; k+len(directiveKeyword) <= len(content); k++ {
		if content[k] != '[' {
			continue
		}
		if !strings.EqualFold(content[k:k+len(directiveKeyword)], directiveKeyword) {
			continue
		}
		rest := k + len(directiveKeyword)
		if rest >= len(content) {
			return -1
		}
		switch content[rest] {
		case ' ', '\t', '\n', '\r', ']':
			return k
		}
	}
	return -1
}

// scanAttributes reads key="value" pairs starting at pos (just past the
// directive keyword) until the closing ']'. It returns the attribute map, the
// keys in source order, the index one past ']', and whether the directive was
// well-formed. Values may contain escaped quotes (\") which are unescaped.
func scanAttributes(content string, pos int) (map[string]string, []string, int, bool) {
	attrs := map[string]string{}
	var keys []string

	for {
		for pos < len(content) && isSpace(content[pos]) {
			pos++
		}
		if pos >= len(content) {
			return nil, nil, 0, false
		}
		if content[pos] == ']' {
			return attrs, keys, pos + 1, true
		}

		start := pos
		for pos < len(content) && isKeyChar(content[pos]) {
			pos++
		}
		key := strings.ToLower(content[start:pos])
		if key == "" || pos >= len(content) || content[pos] != '=' {
			return nil, nil, 0, false
		}
		pos++ // '='
		if pos >= len(content) || content[pos] != '"' {
			return nil, nil, 0, false
		}
		pos++ // opening quote

		var val strings.Builder
		for {
			if pos >= len(content) {
				return nil, nil, 0, false
			}
			c := content[pos]
			if c == '\\' && pos+1 < len(content) && content[pos+1] == '"' {
				val.WriteByte('"')
				pos += 2
				continue
			}
			if c == '"' {
				pos++
				break
			}
			val.WriteByte(c)
			pos++
		}

		if _, dup := attrs[key]; !dup {
			keys = append(keys, key)
		}
		attrs[key] = val.String()
	}
}

// buildTag maps scanned attributes onto an ImageTag, applying defaults and
// routing unknown keys to Extra.
func buildTag(attrs map[string]string, keys []string, ordinal int) ImageTag {
	t := ImageTag{
		GuidanceScale: DefaultGuidanceScale,
		Strength:      DefaultStrength,
		Placement:     map[string]float64{},
		Extra:         map[string]string{},
	}

	for _, key := range keys {
		val := strings.TrimSpace(attrs[key])
		switch key {
		case "id":
			t.ID = val
		case "prompt":
			t.Prompt = val
		case "query":
			t.Query = val
		case "style":
			t.Style = val
		case "aspect":
			t.AspectRatio = val
		case "size":
			t.Size = val
		case "guidance":
			t.GuidanceScale = parseFloatOr(val, DefaultGuidanceScale)
		case "strength":
			t.Strength = parseFloatOr(val, DefaultStrength)
		case "time":
			t.TimeOffset = parseFloatOr(val, 0)
		case "duration":
			t.Duration = parseFloatOr(val, 0)
		case "layout":
			t.Layout = val
		case "notes":
			t.Notes = val
		case "x", "y", "width", "height", "scale":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				t.Placement[key] = f
			}
		default:
			t.Extra[key] = val
		}
	}

	if t.ID == "" {
		t.ID = fmt.Sprintf("img_%d", ordinal)
	}
	return t
}

// parseFloatOr parses s as a float64, returning fallback when s is empty or
// unparsable.
func parseFloatOr(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

// isSpace reports whether c is directive-internal whitespace.
func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// isKeyChar reports whether c may appear in an attribute key.
func isKeyChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}
