// Package pipeline orchestrates one lesson generation request end to end:
// it forks a background image-indexing job and script generation, joins on
// both, then parses, resolves, transforms, and injects the visual directives
// to assemble the final LessonDocument. Every external-service failure
// degrades to "fewer or no images, but a valid document" — the orchestrator
// errors only on an empty prompt or a catastrophic internal fault.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lektor-ai/lvai-go/internal/indexjob"
	"github.com/lektor-ai/lvai-go/internal/logging"
	"github.com/lektor-ai/lvai-go/internal/resolver"
	"github.com/lektor-ai/lvai-go/internal/scriptwriter"
	"github.com/lektor-ai/lvai-go/internal/tag"
	"github.com/lektor-ai/lvai-go/internal/transform"
)

// topicNamespace is the UUIDv5 namespace for deriving topic ids from prompt
// text. Fixed so identical prompts always land in the same index partition,
// across processes and restarts.
var topicNamespace = uuid.MustParse("8f9a1d52-3c41-4e8b-9d15-7a2b6c90e4f3")

// Request is one lesson generation request.
type Request struct {
	// Prompt is the user's lesson prompt (required).
	Prompt string

	// Subject optionally narrows image research (e.g. "biology").
	Subject string

	// DurationSeconds is the target narration length (0 = writer default).
	DurationSeconds int

	// IndexWait bounds the join on the background indexing job. Negative
	// waits indefinitely; zero applies DefaultIndexWait.
	IndexWait time.Duration
}

// DefaultIndexWait bounds the indexing join when the request does not say.
const DefaultIndexWait = 90 * time.Second

// SlotStatus describes how far an image slot got through the pipeline.
type SlotStatus string

const (
	// SlotPending means the slot was parsed but produced no final image.
	SlotPending SlotStatus = "pending"
	// SlotFulfilled means the slot carries a final image URL.
	SlotFulfilled SlotStatus = "fulfilled"
)

// ImageSlot is the structured placement record for one directive in the
// final document.
type ImageSlot struct {
	// ID is the directive id.
	ID string

	// Tag is the full parsed directive.
	Tag tag.ImageTag

	// SequenceIndex is the directive's position in parse order.
	SequenceIndex int

	// MinTimeSeconds is the earliest presentation time from the directive.
	MinTimeSeconds float64

	// DurationSeconds is the on-screen duration from the directive.
	DurationSeconds float64

	// Placement carries the directive's placement axes.
	Placement map[string]float64

	// Notes carries the directive's operator notes.
	Notes string

	// Status reports whether the slot ended up with an image.
	Status SlotStatus
}

// LessonDocument is the final artifact of one request.
type LessonDocument struct {
	// ID uniquely identifies this document.
	ID string

	// PromptID identifies the originating request.
	PromptID string

	// Content is the final script with media references injected.
	Content string

	// Images are the per-directive resolution results, in directive order.
	Images []transform.ResolvedImage

	// TopicID is the index partition this document's images came from.
	TopicID string

	// IndexedImageCount is how many candidates the background job indexed.
	IndexedImageCount int

	// ImageSlots are the structured placement records, in directive order.
	ImageSlots []ImageSlot
}

// Pipeline wires the stages together for the lifetime of the process.
type Pipeline struct {
	writer   scriptwriter.Writer
	indexer  *indexjob.Indexer
	pool     *indexjob.Pool
	resolver *resolver.Resolver
	stage    *transform.Stage
}

// New constructs a Pipeline from the provided stages.
func New(writer scriptwriter.Writer, indexer *indexjob.Indexer, pool *indexjob.Pool, res *resolver.Resolver, stage *transform.Stage) (*Pipeline, error) {
	if writer == nil {
		return nil, fmt.Errorf("pipeline: writer must not be nil")
	}
	if indexer == nil {
		return nil, fmt.Errorf("pipeline: indexer must not be nil")
	}
	if pool == nil {
		return nil, fmt.Errorf("pipeline: pool must not be nil")
	}
	if res == nil {
		return nil, fmt.Errorf("pipeline: resolver must not be nil")
	}
	if stage == nil {
		return nil, fmt.Errorf("pipeline: transform stage must not be nil")
	}
	return &Pipeline{
		writer:   writer,
		indexer:  indexer,
		pool:     pool,
		resolver: res,
		stage:    stage,
	}, nil
}

// TopicID derives the deterministic topic id for a prompt. Prompt text is
// normalized (case and whitespace) first so trivially reworded repeats of
// the same prompt share an index partition.
func TopicID(prompt string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
	return uuid.NewSHA1(topicNamespace, []byte(normalized)).String()
}

// Generate runs one request through the full pipeline.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*LessonDocument, error) {
	log := logging.FromContext(ctx)

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("pipeline: prompt must not be empty")
	}
	indexWait := req.IndexWait
	if indexWait == 0 {
		indexWait = DefaultIndexWait
	}

	promptID := uuid.NewString()
	topicID := TopicID(req.Prompt)
	doc := &LessonDocument{
		ID:       uuid.NewString(),
		PromptID: promptID,
		TopicID:  topicID,
	}

	// Fork: indexing runs on the shared pool while the script is written.
	job := p.indexer.NewJob(topicID, req.Prompt, req.Subject)
	if err := p.pool.Submit(job); err != nil {
		log.Warn("pipeline: could not schedule indexing job, continuing without index",
			slog.String("topic_id", topicID),
			slog.Any("error", err),
		)
		job.Cancel()
	}

	script, scriptErr := p.writer.GenerateScript(ctx, req.Prompt, req.DurationSeconds)

	// Join: the indexing result is useful even when the script failed, for
	// the stats attached to the minimal document.
	jobResult, jobErr := job.Wait(ctx, indexWait)
	if jobErr != nil {
		log.Warn("pipeline: indexing job did not complete, resolving against an empty partition",
			slog.String("topic_id", topicID),
			slog.Any("error", jobErr),
		)
	}
	doc.IndexedImageCount = jobResult.IndexedCount
	if jobResult.TopicID != "" {
		// Resolution must read the partition the job actually indexed.
		doc.TopicID = jobResult.TopicID
	}

	if scriptErr != nil {
		log.Error("pipeline: script generation failed",
			slog.String("prompt_id", promptID),
			slog.Any("error", scriptErr),
		)
		doc.Content = fmt.Sprintf("Lesson generation failed: %v", scriptErr)
		return doc, nil
	}

	cleaned, tags, parseErrs := tag.Parse(script)
	for _, perr := range parseErrs {
		log.Warn("pipeline: directive rejected", slog.Any("error", perr))
	}
	// Invariant violations on surviving tags are logged, not fatal: a tag
	// with a bad aspect or strength still resolves on its prompt.
	for _, verr := range tag.ValidateAll(tags) {
		log.Warn("pipeline: directive violates invariants", slog.Any("error", verr))
	}
	if len(tags) == 0 {
		// Images are optional, not required, for a valid document.
		doc.Content = script
		return doc, nil
	}

	bases := p.resolver.ResolveTagsForTopic(ctx, doc.TopicID, tags, 0)
	images := p.stage.Transform(ctx, bases)

	doc.Content = tag.Inject(cleaned, transform.RenderedImages(images))
	doc.Images = images
	doc.ImageSlots = buildSlots(tags, images)

	log.Info("pipeline: lesson assembled",
		slog.String("prompt_id", promptID),
		slog.String("topic_id", doc.TopicID),
		slog.Int("directives", len(tags)),
		slog.Int("indexed", doc.IndexedImageCount),
		slog.Int("fulfilled", countFulfilled(doc.ImageSlots)),
	)
	return doc, nil
}

// buildSlots zips directives with their stage output into placement records.
func buildSlots(tags []tag.ImageTag, images []transform.ResolvedImage) []ImageSlot {
	slots := make([]ImageSlot, len(tags))
	for i, t := range tags {
		status := SlotPending
		if i < len(images) && images[i].FinalImageURL != "" {
			status = SlotFulfilled
		}
		slots[i] = ImageSlot{
			ID:              t.ID,
			Tag:             t,
			SequenceIndex:   i,
			MinTimeSeconds:  t.TimeOffset,
			DurationSeconds: t.Duration,
			Placement:       t.Placement,
			Notes:           t.Notes,
			Status:          status,
		}
	}
	return slots
}

// countFulfilled reports how many slots ended up with an image.
func countFulfilled(slots []ImageSlot) int {
	n := 0
	for _, s := range slots {
		if s.Status == SlotFulfilled {
			n++
		}
	}
	return n
}
