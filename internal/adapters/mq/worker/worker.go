// Package worker drains the refresh queue and applies cohort percentile
// refreshes.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/bodiman/elocheck/internal/adapters/mq/queue"
	"github.com/bodiman/elocheck/pkg/logger"
	"github.com/bodiman/elocheck/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 2
	workerShutdownTimeout = 5 * time.Second
)

// Refresher recomputes percentiles and confidence for one cohort.
// The app service implements this against the rating store.
type Refresher interface {
	RefreshCohort(ctx context.Context, cohort queue.Job) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes refresh jobs until stopped.
type Worker struct {
	queue     Queue
	refresher Refresher
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName names the worker for logs.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// NewWorker creates a refresh worker.
func NewWorker(q Queue, refresher Refresher, opts ...Option) *Worker {
	w := &Worker{
		queue:     q,
		refresher: refresher,
		name:      "refresh-worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logger.Get().Named(w.name)
	return w
}

// Run starts the worker loop until ctx is canceled or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("worker shutdown timed out: %w", ctx.Err())
	}
}

func (w *Worker) process(ctx context.Context, job queue.Job) {
	start := time.Now()
	err := w.refresher.RefreshCohort(ctx, job)
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))

	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "refresh_error")
		w.logger.Error(ctx, "cohort refresh failed",
			logger.String("cohort", string(job.Cohort)),
			logger.Error(err),
		)
	}
}

// Pool manages multiple refresh workers.
type Pool struct {
	workers []*Worker
}

// NewPool creates and wires workerCount workers over the same queue.
func NewPool(workerCount int, q Queue, refresher Refresher) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{workers: make([]*Worker, workerCount)}
	for i := range p.workers {
		p.workers[i] = NewWorker(q, refresher, WithName(fmt.Sprintf("refresh-worker-%d", i)))
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	return p
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
		_ = w.Shutdown(shutdownCtx)
		cancel()
	}
	metrics.UpdateWorkerActiveCount(0)
}
