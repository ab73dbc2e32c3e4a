package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lektor-ai/lvai-go/internal/logging"
	"github.com/lektor-ai/lvai-go/internal/pipeline"
	"github.com/lektor-ai/lvai-go/internal/store"
)

// defaultLessonsLimit is the page size for GET /api/lessons when the caller
// does not specify one.
const defaultLessonsLimit = 20

// maxLessonsLimit caps the page size for GET /api/lessons.
const maxLessonsLimit = 100

// handleGenerate handles POST /api/generate: it runs one prompt through the
// full pipeline and returns the assembled lesson document. Degraded results
// (no images, failed script) still return 200 — the document itself records
// what happened.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.GenerateTimeout)
	defer cancel()

	start := time.Now()
	s.metrics.generateActive.Inc()
	doc, err := s.generator.Generate(ctx, pipeline.Request{
		Prompt:          req.Prompt,
		Subject:         req.Subject,
		DurationSeconds: req.DurationSeconds,
		IndexWait:       time.Duration(req.IndexWaitSeconds) * time.Second,
	})
	s.metrics.generateActive.Dec()
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
	}
	s.metrics.generateRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.generateDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if err != nil {
		log.Error("generate failed",
			slog.String("outcome", outcome),
			slog.Any("error", err),
		)
		status := http.StatusInternalServerError
		if outcome == "timeout" {
			status = http.StatusGatewayTimeout
		}
		http.Error(w, "lesson generation failed", status)
		return
	}

	s.metrics.imagesIndexedTotal.Add(float64(doc.IndexedImageCount))
	s.persistLesson(r.Context(), req, doc)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(documentResponse(doc)); err != nil {
		log.Error("generate encode error", slog.Any("error", err))
	}
}

// persistLesson saves the document to the history store. Persistence failures
// are logged, never surfaced — the caller already has their lesson.
func (s *Server) persistLesson(ctx context.Context, req generateRequest, doc *pipeline.LessonDocument) {
	if s.lessons == nil {
		return
	}

	fulfilled := 0
	for _, slot := range doc.ImageSlots {
		if slot.Status == pipeline.SlotFulfilled {
			fulfilled++
		}
	}
	rec := store.LessonRecord{
		ID:                doc.ID,
		PromptID:          doc.PromptID,
		Prompt:            req.Prompt,
		Subject:           req.Subject,
		TopicID:           doc.TopicID,
		Content:           doc.Content,
		IndexedImageCount: doc.IndexedImageCount,
		SlotCount:         len(doc.ImageSlots),
		FulfilledCount:    fulfilled,
	}
	if err := s.lessons.Save(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("lesson history save failed",
			slog.String("lesson_id", doc.ID),
			slog.Any("error", err),
		)
	}
}

// handleLessons handles GET /api/lessons: a newest-first listing of persisted
// lessons. Returns 404 when history is disabled.
func (s *Server) handleLessons(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.lessons == nil {
		http.Error(w, "lesson history is disabled", http.StatusNotFound)
		return
	}

	limit := defaultLessonsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLessonsLimit)
	}

	recs, err := s.lessons.Recent(r.Context(), limit)
	if err != nil {
		log.Error("lesson listing failed", slog.Any("error", err))
		http.Error(w, "could not list lessons", http.StatusInternalServerError)
		return
	}

	summaries := make([]lessonSummary, len(recs))
	for i, rec := range recs {
		summaries[i] = summarize(rec)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]lessonSummary{"lessons": summaries}); err != nil {
		log.Error("lessons encode error", slog.Any("error", err))
	}
}

// handleLesson handles GET /api/lessons/{id}: one persisted lesson with its
// full content.
func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.lessons == nil {
		http.Error(w, "lesson history is disabled", http.StatusNotFound)
		return
	}

	rec, err := s.lessons.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "lesson not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error("lesson lookup failed", slog.Any("error", err))
		http.Error(w, "could not load lesson", http.StatusInternalServerError)
		return
	}

	resp := lessonResponse{
		lessonSummary:     summarize(rec),
		Content:           rec.Content,
		IndexedImageCount: rec.IndexedImageCount,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("lesson encode error", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// documentResponse converts a pipeline document into the API response shape.
func documentResponse(doc *pipeline.LessonDocument) generateResponse {
	images := make([]imageResponse, len(doc.Images))
	for i, img := range doc.Images {
		status := string(pipeline.SlotPending)
		if img.FinalImageURL != "" {
			status = string(pipeline.SlotFulfilled)
		}
		images[i] = imageResponse{
			ID:            img.Tag.ID,
			Prompt:        img.Tag.Prompt,
			BaseImageURL:  img.BaseImageURL,
			FinalImageURL: img.FinalImageURL,
			Status:        status,
			Metadata:      img.Metadata,
		}
	}
	return generateResponse{
		ID:                doc.ID,
		PromptID:          doc.PromptID,
		TopicID:           doc.TopicID,
		Content:           doc.Content,
		IndexedImageCount: doc.IndexedImageCount,
		Images:            images,
	}
}

// summarize maps a stored record to the listing shape.
func summarize(rec store.LessonRecord) lessonSummary {
	return lessonSummary{
		ID:             rec.ID,
		Prompt:         rec.Prompt,
		Subject:        rec.Subject,
		TopicID:        rec.TopicID,
		SlotCount:      rec.SlotCount,
		FulfilledCount: rec.FulfilledCount,
		CreatedAt:      rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}
