package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/lektor-ai/lvai-go/internal/tag"
	"github.com/lektor-ai/lvai-go/internal/vecindex"
)

// fakeEmbedder records queries and optionally fails specific ones.
type fakeEmbedder struct {
	queries []string
	failOn  string
}

func (e *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	e.queries = append(e.queries, text)
	if e.failOn != "" && text == e.failOn {
		return nil, errors.New("embed failed")
	}
	return []float32{1, 0}, nil
}

func (e *fakeEmbedder) EmbedImages(_ context.Context, _ []string) ([][]float32, []int, error) {
	return nil, nil, errors.New("not used")
}

// fakeIndex returns canned records per topic, or an error.
type fakeIndex struct {
	records []vecindex.Record
	err     error
	topics  []string
}

func (f *fakeIndex) Upsert(_ context.Context, _ []vecindex.Record) error { return nil }

func (f *fakeIndex) Search(_ context.Context, _ []float32, topicID string, _ int) ([]vecindex.Record, error) {
	f.topics = append(f.topics, topicID)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeIndex) DeleteByTopic(_ context.Context, _ string) error { return nil }
func (f *fakeIndex) Close() error                                    { return nil }

func TestResolveTagsForTopic(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{records: []vecindex.Record{
		{ID: "rec-1", ImageURL: "https://img.example/best.png", Score: 0.91,
			Metadata: map[string]string{"license": "cc0"}},
		{ID: "rec-2", ImageURL: "https://img.example/second.png", Score: 0.72},
	}}
	r, err := NewResolver(&fakeEmbedder{}, idx, 0)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	tags := []tag.ImageTag{{ID: "img_1", Prompt: "water cycle diagram"}}
	resolved := r.ResolveTagsForTopic(context.Background(), "topic-1", tags, 0)

	if len(resolved) != 1 {
		t.Fatalf("len(resolved) = %d, want 1", len(resolved))
	}
	got := resolved[0]
	if got.NeedsSynthesis {
		t.Error("match found but NeedsSynthesis set")
	}
	if got.BaseImageURL != "https://img.example/best.png" || got.VectorID != "rec-1" {
		t.Errorf("resolved = %+v, want the top-ranked record", got)
	}
	if got.BaseMetadata["license"] != "cc0" {
		t.Errorf("metadata not carried: %v", got.BaseMetadata)
	}
	if got.BaseMetadata["similarity"] != "0.9100" {
		t.Errorf("similarity = %q", got.BaseMetadata["similarity"])
	}
	if idx.topics[0] != "topic-1" {
		t.Errorf("searched topic = %q", idx.topics[0])
	}
}

func TestResolvePrefersQueryOverPrompt(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{}
	r, _ := NewResolver(emb, &fakeIndex{}, 0)

	tags := []tag.ImageTag{
		{ID: "a", Prompt: "long synthesis prompt", Query: "short search query"},
		{ID: "b", Prompt: "prompt only"},
	}
	r.ResolveTagsForTopic(context.Background(), "t", tags, 0)

	if emb.queries[0] != "short search query" {
		t.Errorf("queries[0] = %q, want the query attribute", emb.queries[0])
	}
	if emb.queries[1] != "prompt only" {
		t.Errorf("queries[1] = %q, want the prompt fallback", emb.queries[1])
	}
}

func TestResolveNoMatchFlagsSynthesis(t *testing.T) {
	t.Parallel()

	r, _ := NewResolver(&fakeEmbedder{}, &fakeIndex{}, 0)

	resolved := r.ResolveTagsForTopic(context.Background(), "t",
		[]tag.ImageTag{{ID: "img_1", Prompt: "p"}}, 0)

	got := resolved[0]
	if !got.NeedsSynthesis {
		t.Error("zero matches should flag synthesis")
	}
	if got.BaseImageURL != "" {
		t.Errorf("BaseImageURL = %q, want empty", got.BaseImageURL)
	}
	if got.Tag.ID != "img_1" {
		t.Errorf("tag not carried through: %+v", got.Tag)
	}
}

func TestResolveIsolatesPerTagFailures(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{failOn: "broken query"}
	idx := &fakeIndex{records: []vecindex.Record{{ID: "rec-1", ImageURL: "https://img.example/a.png"}}}
	r, _ := NewResolver(emb, idx, 0)

	tags := []tag.ImageTag{
		{ID: "a", Prompt: "fine"},
		{ID: "b", Prompt: "broken query"},
		{ID: "c", Prompt: "also fine"},
	}
	resolved := r.ResolveTagsForTopic(context.Background(), "t", tags, 0)

	if len(resolved) != 3 {
		t.Fatalf("len(resolved) = %d, want 3 — output must mirror input", len(resolved))
	}
	for i, want := range []string{"a", "b", "c"} {
		if resolved[i].Tag.ID != want {
			t.Errorf("resolved[%d].Tag.ID = %q, want %q", i, resolved[i].Tag.ID, want)
		}
	}
	if resolved[0].NeedsSynthesis || resolved[2].NeedsSynthesis {
		t.Error("healthy tags should resolve despite a neighbour failing")
	}
	if !resolved[1].NeedsSynthesis {
		t.Error("failed tag should be flagged for synthesis")
	}
}

func TestResolveSearchErrorFlagsSynthesis(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{err: errors.New("index unavailable")}
	r, _ := NewResolver(&fakeEmbedder{}, idx, 0)

	resolved := r.ResolveTagsForTopic(context.Background(), "t",
		[]tag.ImageTag{{ID: "a", Prompt: "p"}}, 0)

	if !resolved[0].NeedsSynthesis {
		t.Error("search failure should flag synthesis, not abort")
	}
}

func TestResolveEmptyTagList(t *testing.T) {
	t.Parallel()

	r, _ := NewResolver(&fakeEmbedder{}, &fakeIndex{}, 0)
	resolved := r.ResolveTagsForTopic(context.Background(), "t", nil, 0)
	if len(resolved) != 0 {
		t.Errorf("len(resolved) = %d, want 0", len(resolved))
	}
}
