// Package indexjob runs background image-indexing jobs: each job researches
// candidate images for a lesson topic, embeds them, and upserts the results
// into the vector index. Jobs are scheduled on a bounded worker pool and
// exposed to callers as cancelable, pollable futures.
package indexjob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lektor-ai/lvai-go/internal/research"
)

// State is the lifecycle phase of a job.
type State string

const (
	// StatePending means the job is queued but no worker has picked it up.
	StatePending State = "pending"
	// StateRunning means a worker is executing the job body.
	StateRunning State = "running"
	// StateCompleted means the job finished and its Result is final.
	StateCompleted State = "completed"
	// StateFailed means the job body returned an error.
	StateFailed State = "failed"
	// StateCancelled means the job was cancelled before or during execution.
	StateCancelled State = "cancelled"
)

// Sentinel errors returned by Wait and Peek.
var (
	// ErrNotReady is returned by a non-blocking Wait when the job has not
	// finished yet.
	ErrNotReady = errors.New("indexjob: job not ready")
	// ErrCancelled is returned once a job has been cancelled.
	ErrCancelled = errors.New("indexjob: job cancelled")
)

// Result is the final outcome of an indexing job. Callers that time out,
// poll early, or observe a failed or cancelled job receive the zero Result
// as a fallback alongside the error.
type Result struct {
	// TopicID is the topic the job indexed under.
	TopicID string

	// IndexedCount is the number of candidates actually upserted.
	IndexedCount int

	// Candidates is the researched candidate pool, including ones that were
	// skipped during embedding.
	Candidates []research.ImageCandidate
}

// Job is a single-use future for one indexing run. All methods are safe to
// call from multiple goroutines.
type Job struct {
	mu     sync.Mutex
	state  State
	result Result
	err    error

	// done is closed exactly once, when the job reaches a terminal state.
	done chan struct{}

	// run is the job body executed by a pool worker.
	run func(ctx context.Context) (Result, error)
}

// NewJob wraps a job body in a pending future. The body's Result is surfaced
// through Wait and Peek once a pool worker has executed it.
func NewJob(topicID string, run func(ctx context.Context) (Result, error)) *Job {
	return &Job{
		state:  StatePending,
		result: Result{TopicID: topicID},
		done:   make(chan struct{}),
		run:    run,
	}
}

// execute runs the job body. Called by exactly one pool worker. A job that
// was cancelled while queued is skipped. The body runs under the worker's
// context: pool shutdown cancels it, Cancel never does.
func (j *Job) execute(ctx context.Context) {
	j.mu.Lock()
	if j.state != StatePending {
		j.mu.Unlock()
		return
	}
	j.state = StateRunning
	j.mu.Unlock()

	result, err := j.run(ctx)

	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		j.state = StateCancelled
		j.err = ErrCancelled
	case err != nil:
		j.state = StateFailed
		j.err = err
	default:
		j.state = StateCompleted
		j.result = result
	}
	close(j.done)
}

// Cancel aborts the job if, and only if, no worker has started it: a pending
// job transitions to cancelled and returns true. Once the body is running an
// in-flight provider call is never interrupted — Cancel returns false and the
// job finishes on its own. Cancelling a finished job is also a no-op.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatePending {
		return false
	}
	j.state = StateCancelled
	j.err = ErrCancelled
	close(j.done)
	return true
}

// IsReady reports whether the job has reached a terminal state.
func (j *Job) IsReady() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Peek returns the job's current state and its result so far without
// blocking. The result is only final once the state is terminal.
func (j *Job) Peek() (Result, State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.state
}

// Wait blocks until the job reaches a terminal state, the timeout elapses,
// or ctx is done. A negative timeout waits indefinitely; a zero timeout is a
// non-blocking poll that returns ErrNotReady when the job is still in
// flight. Whenever err is non-nil — not ready, timed out, failed, or
// cancelled — the returned Result is the zero fallback, never a partial one.
func (j *Job) Wait(ctx context.Context, timeout time.Duration) (Result, error) {
	if timeout == 0 {
		select {
		case <-j.done:
			return j.outcome()
		default:
			return Result{}, ErrNotReady
		}
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-j.done:
		return j.outcome()
	case <-timer:
		return Result{}, fmt.Errorf("indexjob: wait timed out after %s: %w", timeout, ErrNotReady)
	case <-ctx.Done():
		return Result{}, fmt.Errorf("indexjob: wait: %w", ctx.Err())
	}
}

// outcome returns the terminal result. Only valid after done is closed.
// Failed and cancelled jobs fall back to the zero Result.
func (j *Job) outcome() (Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return Result{}, j.err
	}
	return j.result, nil
}
