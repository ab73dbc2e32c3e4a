package tag

import (
	"strings"
	"testing"
)

func TestInjectEmptyListIsIdentity(t *testing.T) {
	t.Parallel()

	const content = "A [[IMAGE:x]] B [[IMAGE:y]] C"
	if got := Inject(content, nil); got != content {
		t.Errorf("Inject(content, nil) = %q, want unchanged content", got)
	}
}

func TestInjectReplacesMatchingPlaceholder(t *testing.T) {
	t.Parallel()

	images := []RenderedImage{{
		Tag:           ImageTag{ID: "x", Prompt: "a red fox", Style: "photo", AspectRatio: "4:3"},
		BaseImageURL:  "https://img.example/base.png",
		FinalImageURL: "https://img.example/final.png",
	}}

	got := Inject("A [[IMAGE:x]] B", images)

	for _, want := range []string{
		`src="https://img.example/final.png"`,
		`alt="a red fox"`,
		`data-style="photo"`,
		`data-aspect="4:3"`,
		`data-base-src="https://img.example/base.png"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "[[IMAGE:x]]") {
		t.Errorf("placeholder not replaced: %s", got)
	}
}

func TestInjectLeavesUnmatchedPlaceholders(t *testing.T) {
	t.Parallel()

	images := []RenderedImage{{
		Tag:           ImageTag{ID: "x", Prompt: "p"},
		FinalImageURL: "https://img.example/x.png",
	}}

	got := Inject("[[IMAGE:x]] and [[IMAGE:orphan]]", images)
	if !strings.Contains(got, "[[IMAGE:orphan]]") {
		t.Errorf("unmatched placeholder was removed: %s", got)
	}
}

func TestInjectSkipsEmptyFinalURL(t *testing.T) {
	t.Parallel()

	images := []RenderedImage{{Tag: ImageTag{ID: "x", Prompt: "p"}, FinalImageURL: ""}}

	const content = "A [[IMAGE:x]] B"
	if got := Inject(content, images); got != content {
		t.Errorf("empty final URL should leave placeholder untouched, got %q", got)
	}
}

func TestInjectOmitsBaseWhenSameAsFinal(t *testing.T) {
	t.Parallel()

	images := []RenderedImage{{
		Tag:           ImageTag{ID: "x", Prompt: "p"},
		BaseImageURL:  "https://img.example/same.png",
		FinalImageURL: "https://img.example/same.png",
	}}

	got := Inject("[[IMAGE:x]]", images)
	if strings.Contains(got, "data-base-src") {
		t.Errorf("data-base-src should be omitted when base == final: %s", got)
	}
}

func TestTruncateAlt(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", MaxAltTextLen+40)
	if got := TruncateAlt(long); len(got) != MaxAltTextLen {
		t.Errorf("len(TruncateAlt(long)) = %d, want %d", len(got), MaxAltTextLen)
	}
	if got := TruncateAlt("short"); got != "short" {
		t.Errorf("TruncateAlt(short) = %q", got)
	}
}
