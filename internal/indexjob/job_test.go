package indexjob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestJobCompletes(t *testing.T) {
	t.Parallel()

	job := NewJob("topic-1", func(ctx context.Context) (Result, error) {
		return Result{TopicID: "topic-1", IndexedCount: 7}, nil
	})

	if job.IsReady() {
		t.Error("new job should not be ready")
	}
	job.execute(context.Background())

	res, err := job.Wait(context.Background(), -1)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res.IndexedCount != 7 || res.TopicID != "topic-1" {
		t.Errorf("result = %+v", res)
	}
	if _, state := job.Peek(); state != StateCompleted {
		t.Errorf("state = %q, want completed", state)
	}
}

func TestJobFails(t *testing.T) {
	t.Parallel()

	boom := errors.New("qdrant down")
	job := NewJob("topic-1", func(ctx context.Context) (Result, error) {
		return Result{TopicID: "topic-1"}, boom
	})
	job.execute(context.Background())

	res, err := job.Wait(context.Background(), -1)
	if !errors.Is(err, boom) {
		t.Fatalf("Wait() error = %v, want %v", err, boom)
	}
	if res.TopicID != "" || res.IndexedCount != 0 || len(res.Candidates) != 0 {
		t.Errorf("failed job should yield the zero fallback, got %+v", res)
	}
	if _, state := job.Peek(); state != StateFailed {
		t.Errorf("state = %q, want failed", state)
	}
}

func TestJobNonBlockingPoll(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	job := NewJob("topic-1", func(ctx context.Context) (Result, error) {
		<-release
		return Result{TopicID: "topic-1", IndexedCount: 1}, nil
	})

	// Poll before any worker has picked the job up.
	res, err := job.Wait(context.Background(), 0)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("Wait(0) error = %v, want ErrNotReady", err)
	}
	if res.TopicID != "" || res.IndexedCount != 0 || len(res.Candidates) != 0 {
		t.Errorf("poll before completion should yield the zero fallback, got %+v", res)
	}

	go job.execute(context.Background())
	close(release)
	if res, err := job.Wait(context.Background(), -1); err != nil || res.IndexedCount != 1 {
		t.Errorf("Wait() = %+v, %v after completion", res, err)
	}
}

func TestJobWaitTimeout(t *testing.T) {
	t.Parallel()

	// The body only finishes when the worker context is torn down.
	workerCtx, stop := context.WithCancel(context.Background())
	defer stop()

	job := NewJob("topic-1", func(ctx context.Context) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	})
	go job.execute(workerCtx)

	start := time.Now()
	res, err := job.Wait(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("Wait() error = %v, want ErrNotReady", err)
	}
	if res.TopicID != "" || res.IndexedCount != 0 {
		t.Errorf("timed-out wait should yield the zero fallback, got %+v", res)
	}
	if time.Since(start) > time.Second {
		t.Error("bounded wait did not return promptly")
	}
}

func TestJobCancelPending(t *testing.T) {
	t.Parallel()

	executed := false
	job := NewJob("topic-1", func(ctx context.Context) (Result, error) {
		executed = true
		return Result{}, nil
	})

	if !job.Cancel() {
		t.Fatal("Cancel() on a pending job should succeed")
	}
	if job.Cancel() {
		t.Error("second Cancel() should be a no-op")
	}

	// A worker picking up a cancelled job must skip the body.
	job.execute(context.Background())
	if executed {
		t.Error("cancelled job body was executed")
	}

	res, err := job.Wait(context.Background(), -1)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Wait() error = %v, want ErrCancelled", err)
	}
	if res.TopicID != "" || res.IndexedCount != 0 {
		t.Errorf("cancelled job should yield the zero fallback, got %+v", res)
	}
}

func TestJobCancelRunningIsNoOp(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	job := NewJob("topic-1", func(ctx context.Context) (Result, error) {
		close(started)
		<-release
		return Result{TopicID: "topic-1", IndexedCount: 3}, nil
	})

	go job.execute(context.Background())
	<-started

	// An in-flight provider call is never interrupted.
	if job.Cancel() {
		t.Fatal("Cancel() on a running job should return false")
	}
	if _, state := job.Peek(); state != StateRunning {
		t.Fatalf("state = %q, want running after rejected cancel", state)
	}

	close(release)
	res, err := job.Wait(context.Background(), -1)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res.IndexedCount != 3 {
		t.Errorf("result = %+v, want the body's own outcome", res)
	}
	if _, state := job.Peek(); state != StateCompleted {
		t.Errorf("state = %q, want completed", state)
	}
}

func TestJobExecuteIsIdempotent(t *testing.T) {
	t.Parallel()

	var runs int
	job := NewJob("topic-1", func(ctx context.Context) (Result, error) {
		runs++
		return Result{IndexedCount: runs}, nil
	})
	job.execute(context.Background())
	job.execute(context.Background())

	if runs != 1 {
		t.Errorf("body ran %d times, want 1", runs)
	}
}

func TestPoolRunsSubmittedJobs(t *testing.T) {
	t.Parallel()

	pool := NewPool(context.Background(), &PoolConfig{Workers: 2, QueueSize: 8})
	defer pool.Close()

	var mu sync.Mutex
	ran := map[string]bool{}

	jobs := make([]*Job, 0, 6)
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("topic-%d", i)
		job := NewJob(id, func(ctx context.Context) (Result, error) {
			mu.Lock()
			ran[id] = true
			mu.Unlock()
			return Result{TopicID: id}, nil
		})
		if err := pool.Submit(job); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		jobs = append(jobs, job)
	}

	for _, job := range jobs {
		if _, err := job.Wait(context.Background(), 5*time.Second); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if len(ran) != 6 {
		t.Errorf("ran %d jobs, want 6", len(ran))
	}
}

func TestPoolSubmitAfterClose(t *testing.T) {
	t.Parallel()

	pool := NewPool(context.Background(), nil)
	pool.Close()

	job := NewJob("topic-1", func(ctx context.Context) (Result, error) { return Result{}, nil })
	if err := pool.Submit(job); err == nil {
		t.Fatal("Submit() after Close() should fail")
	}
}

func TestPoolQueueFull(t *testing.T) {
	t.Parallel()

	// One worker blocked forever, queue of one: the third submit must fail.
	block := make(chan struct{})
	defer close(block)

	pool := NewPool(context.Background(), &PoolConfig{Workers: 1, QueueSize: 1})
	defer pool.Close()

	blocker := NewJob("blocker", func(ctx context.Context) (Result, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return Result{}, nil
	})
	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Wait until the worker has picked the blocker off the queue.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, state := blocker.Peek(); state == StateRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("blocker never started")
		}
		time.Sleep(time.Millisecond)
	}

	queued := NewJob("queued", func(ctx context.Context) (Result, error) { return Result{}, nil })
	if err := pool.Submit(queued); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	overflow := NewJob("overflow", func(ctx context.Context) (Result, error) { return Result{}, nil })
	if err := pool.Submit(overflow); err == nil {
		t.Fatal("Submit() with a full queue should fail")
	}
}
