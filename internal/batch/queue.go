// Package batch runs many documents through the extraction pipeline
// concurrently. Workers share the read-only template repository without
// synchronization; all bookkeeping goes through a single serialized writer.
package batch

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/invoicetools/template-engine/internal/engine"
	"github.com/invoicetools/template-engine/internal/template"
)

// Job is one document queued for extraction.
type Job struct {
	ID       uuid.UUID
	Doc      engine.Document
	Hint     string
	Callback func(Job, *engine.Result, error)
}

// Queue is a fixed worker pool over the extraction engine. Each worker gets
// a per-document context with a timeout, so one pathological document
// cannot stall the batch.
type Queue struct {
	eng     *engine.Engine
	repo    *template.Repository
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithDocumentTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(eng *engine.Engine, repo *template.Repository, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		eng:     eng,
		repo:    repo,
		logger:  logger,
		workers: 4,
		timeout: 30 * time.Second,
		ch:      make(chan Job, 256),
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					res, err := q.eng.Process(ctx, job.Doc, q.repo, job.Hint)
					cancel()

					if err != nil {
						q.logger.Error("extraction failed", "worker_id", workerID, "doc_id", job.ID, "error", err)
					}
					if job.Callback != nil {
						job.Callback(job, res, err)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "doc_id", job.ID)
		return nil
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue full, applying backpressure", "doc_id", job.ID)
		q.ch <- job
	}
	return nil
}

// Shutdown closes intake and waits for in-flight documents, bounded by ctx.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
