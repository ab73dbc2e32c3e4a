package indexjob

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lektor-ai/lvai-go/internal/logging"
)

const (
	// defaultWorkers is the number of concurrent indexing jobs.
	defaultWorkers = 4
	// defaultQueueSize is the submission buffer before Submit rejects.
	defaultQueueSize = 64
)

// PoolConfig holds the settings for constructing a Pool.
type PoolConfig struct {
	// Workers is the number of concurrent job executors (default: 4).
	Workers int
	// QueueSize is the pending-job buffer size (default: 64).
	QueueSize int
}

// Pool executes submitted jobs on a fixed set of workers. Jobs queue in
// submission order; the pool never drops an accepted job.
type Pool struct {
	queue chan *Job

	// cancel stops the worker context; workers drain in-flight jobs.
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool constructs and starts a Pool. ctx is the root context for all job
// executions — it carries the pool's logger and is the parent of every job's
// run context.
func NewPool(ctx context.Context, cfg *PoolConfig) *Pool {
	if cfg == nil {
		cfg = &PoolConfig{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	workerCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		queue:  make(chan *Job, cfg.QueueSize),
		cancel: cancel,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker(workerCtx, i)
	}
	return p
}

// worker pulls jobs off the queue until the queue is closed.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := logging.FromContext(ctx).With(slog.Int("worker", id))

	for job := range p.queue {
		if ctx.Err() != nil {
			job.Cancel()
			continue
		}
		job.execute(ctx)
		if _, state := job.Peek(); state == StateFailed {
			log.Warn("indexjob: job failed", slog.String("state", string(state)))
		}
	}
}

// Submit enqueues a job for execution. It returns an error when the queue is
// full or the pool has been closed; the job stays pending and the caller may
// retry or cancel it.
func (p *Pool) Submit(job *Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("indexjob: pool is closed")
	}
	select {
	case p.queue <- job:
		return nil
	default:
		return fmt.Errorf("indexjob: queue full (%d pending)", cap(p.queue))
	}
}

// Close stops accepting jobs, cancels queued and in-flight jobs, and waits
// for the workers to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
