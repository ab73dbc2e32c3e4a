// Package store provides a SQLite-backed lesson history store. Every
// generated lesson document is persisted with its prompt, topic, and image
// statistics so operators can list past lessons and re-open their content
// across server restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNotFound is returned when a lesson id does not exist in the store.
var ErrNotFound = errors.New("store: lesson not found")

// LessonRecord is one persisted lesson document.
type LessonRecord struct {
	// ID is the lesson document id.
	ID string
	// PromptID identifies the originating request.
	PromptID string
	// Prompt is the user prompt the lesson was generated from.
	Prompt string
	// Subject is the optional subject narrowing image research.
	Subject string
	// TopicID is the vector-index partition the lesson's images came from.
	TopicID string
	// Content is the final script with media references injected.
	Content string
	// IndexedImageCount is how many candidates the indexing job stored.
	IndexedImageCount int
	// SlotCount is how many image directives the script carried.
	SlotCount int
	// FulfilledCount is how many directives ended up with an image.
	FulfilledCount int
	// CreatedAt is when the lesson was persisted.
	CreatedAt time.Time
}

// LessonStore persists and retrieves generated lessons. Implementations must
// be safe for concurrent use.
type LessonStore interface {
	// Save persists a lesson record.
	Save(ctx context.Context, rec LessonRecord) error
	// Recent returns the most recent n lessons, newest-first. If fewer than
	// n exist, all are returned. Content is included.
	Recent(ctx context.Context, n int) ([]LessonRecord, error)
	// Get returns the lesson with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (LessonRecord, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a LessonStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the lesson history database.
// It resolves to ~/.lvai/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".lvai")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS lessons (
    id              TEXT    PRIMARY KEY,
    prompt_id       TEXT    NOT NULL,
    prompt          TEXT    NOT NULL,
    subject         TEXT    NOT NULL DEFAULT '',
    topic_id        TEXT    NOT NULL,
    content         TEXT    NOT NULL,
    indexed_images  INTEGER NOT NULL DEFAULT 0,
    slot_count      INTEGER NOT NULL DEFAULT 0,
    fulfilled_count INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_lessons_created
    ON lessons (created_at);
CREATE INDEX IF NOT EXISTS idx_lessons_topic
    ON lessons (topic_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save persists a lesson record. Saving an existing id replaces the row.
func (s *SQLiteStore) Save(ctx context.Context, rec LessonRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("store: lesson id must not be empty")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	const q = `
INSERT OR REPLACE INTO lessons
    (id, prompt_id, prompt, subject, topic_id, content,
     indexed_images, slot_count, fulfilled_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.PromptID, rec.Prompt, rec.Subject, rec.TopicID, rec.Content,
		rec.IndexedImageCount, rec.SlotCount, rec.FulfilledCount, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	return nil
}

// Recent returns the most recent n lessons, newest-first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]LessonRecord, error) {
	const q = `
SELECT id, prompt_id, prompt, subject, topic_id, content,
       indexed_images, slot_count, fulfilled_count, created_at
FROM   lessons
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var recs []LessonRecord
	for rows.Next() {
		rec, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return recs, nil
}

// Get returns the lesson with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (LessonRecord, error) {
	const q = `
SELECT id, prompt_id, prompt, subject, topic_id, content,
       indexed_images, slot_count, fulfilled_count, created_at
FROM   lessons
WHERE  id = ?`

	rec, err := scanLesson(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return LessonRecord{}, ErrNotFound
	}
	if err != nil {
		return LessonRecord{}, fmt.Errorf("store: get: %w", err)
	}
	return rec, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLesson(row scanner) (LessonRecord, error) {
	var rec LessonRecord
	var ts int64
	err := row.Scan(
		&rec.ID, &rec.PromptID, &rec.Prompt, &rec.Subject, &rec.TopicID, &rec.Content,
		&rec.IndexedImageCount, &rec.SlotCount, &rec.FulfilledCount, &ts,
	)
	if err != nil {
		return LessonRecord{}, err
	}
	rec.CreatedAt = time.Unix(ts, 0)
	return rec, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
