package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lektor-ai/lvai-go/internal/pipeline"
	"github.com/lektor-ai/lvai-go/internal/store"
	"github.com/lektor-ai/lvai-go/internal/tag"
	"github.com/lektor-ai/lvai-go/internal/transform"
)

// fakeGenerator implements the generator interface for tests.
type fakeGenerator struct {
	// doc is returned on success.
	doc *pipeline.LessonDocument
	// err is returned as the error value.
	err error
	// lastReq records the request the handler passed in.
	lastReq pipeline.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req pipeline.Request) (*pipeline.LessonDocument, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

// newTestServer builds a *Server with a fake generator and a fresh metrics
// registry so tests stay hermetic.
func newTestServer() *Server {
	return &Server{
		generator: &fakeGenerator{},
		cfg:       &Config{GenerateTimeout: time.Minute},
		log:       slog.Default(),
		metrics:   newServerMetrics(prometheus.NewRegistry()),
	}
}

// newGenerateTestServer wires a fake generator and an in-memory lesson store.
func newGenerateTestServer(t *testing.T, gen *fakeGenerator) *Server {
	t.Helper()
	lessons, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = lessons.Close() })

	s := newTestServer()
	s.generator = gen
	s.lessons = lessons
	return s
}

func sampleDocument() *pipeline.LessonDocument {
	return &pipeline.LessonDocument{
		ID:                "doc-1",
		PromptID:          "req-1",
		TopicID:           "topic-1",
		Content:           `Intro. <img id="img_1" src="https://cdn.example/a.png" alt="diagram"> Outro.`,
		IndexedImageCount: 7,
		Images: []transform.ResolvedImage{
			{
				Tag:           tag.ImageTag{ID: "img_1", Prompt: "labeled diagram"},
				BaseImageURL:  "https://img.example/a.png",
				FinalImageURL: "https://cdn.example/a.png",
			},
		},
		ImageSlots: []pipeline.ImageSlot{
			{ID: "img_1", SequenceIndex: 0, Status: pipeline.SlotFulfilled},
		},
	}
}

func TestHandleGenerate_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`not-json`))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleGenerate_MissingPrompt(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/generate",
		strings.NewReader(`{"subject":"biology"}`))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleGenerate_Success(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{doc: sampleDocument()}
	s := newGenerateTestServer(t, gen)

	req := httptest.NewRequest(http.MethodPost, "/api/generate",
		strings.NewReader(`{"prompt":"the water cycle","subject":"earth science","durationSeconds":300}`))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp generateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "doc-1" || resp.TopicID != "topic-1" {
		t.Errorf("response = %+v", resp)
	}
	if resp.IndexedImageCount != 7 {
		t.Errorf("indexedImageCount = %d, want 7", resp.IndexedImageCount)
	}
	if len(resp.Images) != 1 || resp.Images[0].Status != "fulfilled" {
		t.Errorf("images = %+v", resp.Images)
	}

	if gen.lastReq.Prompt != "the water cycle" || gen.lastReq.DurationSeconds != 300 {
		t.Errorf("pipeline request = %+v", gen.lastReq)
	}
}

func TestHandleGenerate_PersistsLesson(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{doc: sampleDocument()}
	s := newGenerateTestServer(t, gen)

	req := httptest.NewRequest(http.MethodPost, "/api/generate",
		strings.NewReader(`{"prompt":"the water cycle"}`))
	s.handleGenerate(httptest.NewRecorder(), req)

	rec, err := s.lessons.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("lesson not persisted: %v", err)
	}
	if rec.Prompt != "the water cycle" || rec.SlotCount != 1 || rec.FulfilledCount != 1 {
		t.Errorf("persisted record = %+v", rec)
	}
}

func TestHandleGenerate_GeneratorError(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: fmt.Errorf("pipeline exploded")}
	s := newGenerateTestServer(t, gen)

	req := httptest.NewRequest(http.MethodPost, "/api/generate",
		strings.NewReader(`{"prompt":"volcanoes"}`))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestHandleGenerate_Timeout(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: fmt.Errorf("generate: %w", context.DeadlineExceeded)}
	s := newGenerateTestServer(t, gen)

	req := httptest.NewRequest(http.MethodPost, "/api/generate",
		strings.NewReader(`{"prompt":"volcanoes"}`))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", w.Code)
	}
}

func TestHandleLessons_ListsNewestFirst(t *testing.T) {
	t.Parallel()

	s := newGenerateTestServer(t, &fakeGenerator{})
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := range 3 {
		rec := store.LessonRecord{
			ID:        fmt.Sprintf("doc-%d", i),
			Prompt:    fmt.Sprintf("prompt %d", i),
			TopicID:   "t",
			Content:   "c",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.lessons.Save(ctx, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/lessons?limit=2", nil)
	w := httptest.NewRecorder()

	s.handleLessons(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp map[string][]lessonSummary
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	lessons := resp["lessons"]
	if len(lessons) != 2 {
		t.Fatalf("want 2 lessons, got %d", len(lessons))
	}
	if lessons[0].ID != "doc-2" || lessons[1].ID != "doc-1" {
		t.Errorf("ordering wrong: %+v", lessons)
	}
}

func TestHandleLessons_BadLimit(t *testing.T) {
	t.Parallel()

	s := newGenerateTestServer(t, &fakeGenerator{})
	req := httptest.NewRequest(http.MethodGet, "/api/lessons?limit=banana", nil)
	w := httptest.NewRecorder()

	s.handleLessons(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleLessons_HistoryDisabled(t *testing.T) {
	t.Parallel()

	s := newTestServer() // no lesson store wired
	req := httptest.NewRequest(http.MethodGet, "/api/lessons", nil)
	w := httptest.NewRecorder()

	s.handleLessons(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 when history disabled, got %d", w.Code)
	}
}

func TestHandleLesson_FoundAndMissing(t *testing.T) {
	t.Parallel()

	s := newGenerateTestServer(t, &fakeGenerator{})
	ctx := context.Background()
	rec := store.LessonRecord{ID: "doc-x", Prompt: "p", TopicID: "t", Content: "full lesson text"}
	if err := s.lessons.Save(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/lessons/doc-x", nil)
	req.SetPathValue("id", "doc-x")
	w := httptest.NewRecorder()
	s.handleLesson(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp lessonResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Content != "full lesson text" {
		t.Errorf("content = %q", resp.Content)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/lessons/nope", nil)
	req2.SetPathValue("id", "nope")
	w2 := httptest.NewRecorder()
	s.handleLesson(w2, req2)

	if w2.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing lesson, got %d", w2.Code)
	}
}
