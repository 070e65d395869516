package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/receipt-analyzer/internal/pipeline"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document waiting to be processed.
type Job struct {
	Ref         string
	SubmittedAt time.Time
}

// Processor runs a single document to completion.
type Processor interface {
	Process(ctx context.Context, ref string) pipeline.PipelineResult
}

type ProcessorQueue struct {
	proc     Processor
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	onResult func(pipeline.PipelineResult)

	ch       chan Job
	wg       sync.WaitGroup
	once     sync.Once
	stopping chan struct{} // closed first by Shutdown to release blocked senders
	stopOnce sync.Once

	// mu guards closed; senders hold the read lock so close(ch) never races a send.
	mu     sync.RWMutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

// WithProcessTimeout bounds each Process call in addition to the pipeline's
// own document deadline.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithResultHandler is called from the worker goroutine after every job.
func WithResultHandler(f func(pipeline.PipelineResult)) Option {
	return func(q *ProcessorQueue) { q.onResult = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(q *ProcessorQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

func NewProcessorQueue(proc Processor, opts ...Option) *ProcessorQueue {
	q := &ProcessorQueue{
		proc:     proc,
		logger:   slog.Default(),
		workers:  4,
		timeout:  6 * time.Minute,
		ch:       make(chan Job, 256),
		stopping: make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work(i + 1)
		}
	})
}

func (q *ProcessorQueue) work(workerID int) {
	defer q.wg.Done()
	q.logger.Debug("queue.worker.start", "worker_id", workerID)

	for job := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		res := q.proc.Process(ctx, job.Ref)
		cancel()

		if res.Succeeded() {
			q.logger.Info("queue.job.done",
				"worker_id", workerID,
				"ref", job.Ref,
				"receipt_id", res.ReceiptID,
				"elapsed_ms", res.Duration.Milliseconds(),
			)
		} else {
			q.logger.Error("queue.job.failed",
				"worker_id", workerID,
				"ref", job.Ref,
				"reason", res.FailureReason,
				"error", res.Err,
			)
		}
		if q.onResult != nil {
			q.onResult(res)
		}
	}

	q.logger.Debug("queue.worker.stop", "worker_id", workerID)
}

// Enqueue blocks while the queue is full, until ctx is done or Shutdown starts.
func (q *ProcessorQueue) Enqueue(ctx context.Context, ref string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.rejected", "ref", ref)
		return ErrQueueClosed
	}
	job := Job{Ref: ref, SubmittedAt: time.Now()}
	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueue", "ref", ref, "depth", len(q.ch))
		return nil
	default:
	}
	q.logger.Warn("queue.full", "ref", ref, "capacity", cap(q.ch))
	select {
	case q.ch <- job:
		return nil
	case <-q.stopping:
		q.logger.Warn("queue.enqueue.rejected", "ref", ref)
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth is the number of jobs waiting for a worker.
func (q *ProcessorQueue) Depth() int { return len(q.ch) }

// Shutdown stops accepting jobs and waits for queued ones to finish. It
// returns ctx.Err() if ctx ends first; workers keep draining in that case.
func (q *ProcessorQueue) Shutdown(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.stopping) })
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted", "pending", len(q.ch))
		return ctx.Err()
	case <-done:
		q.logger.Info("queue.shutdown.drained")
		return nil
	}
}
