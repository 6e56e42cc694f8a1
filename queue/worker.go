package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zero-day-ai/thinggraph/ingest"
	"github.com/zero-day-ai/thinggraph/logging"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

// Ingester stores one record. *ingest.Pipeline implements it.
type Ingester interface {
	Put(ctx context.Context, t thing.Thing) (ingest.Result, error)
}

// Submit pushes records as one job and returns the job ID.
func Submit(ctx context.Context, c Client, queue string, records []thing.Thing) (string, error) {
	jobID := uuid.NewString()
	for i, rec := range records {
		item, err := NewItem(jobID, i, len(records), rec)
		if err != nil {
			return jobID, err
		}
		injectTrace(ctx, &item)
		if err := c.Push(ctx, queue, item); err != nil {
			return jobID, err
		}
	}
	return jobID, nil
}

// Worker drains a queue into an Ingester.
type Worker struct {
	client      Client
	ingester    Ingester
	queue       string
	id          string
	pollTimeout time.Duration
	retryDelay  time.Duration
	logger      *logging.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithQueue sets the queue to consume. Default: DefaultQueue.
func WithQueue(name string) WorkerOption {
	return func(w *Worker) {
		w.queue = name
	}
}

// WithWorkerID names the worker in results. Default: a random UUID.
func WithWorkerID(id string) WorkerOption {
	return func(w *Worker) {
		w.id = id
	}
}

// WithPollTimeout bounds each blocking pop. Default: 5s.
func WithPollTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.pollTimeout = d
	}
}

// WithRetryDelay sets the pause after a broker error. Default: 1s.
func WithRetryDelay(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.retryDelay = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = l
	}
}

// NewWorker creates a worker.
func NewWorker(c Client, in Ingester, opts ...WorkerOption) *Worker {
	w := &Worker{
		client:      c,
		ingester:    in,
		queue:       DefaultQueue,
		pollTimeout: 5 * time.Second,
		retryDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.id == "" {
		w.id = uuid.NewString()
	}
	w.logger = logging.OrNop(w.logger).With("component", "queue_worker", "worker_id", w.id, "queue", w.queue)
	return w
}

// ID returns the worker ID.
func (w *Worker) ID() string {
	return w.id
}

// Run consumes items until ctx is done, then returns nil. Broker errors are
// logged and retried after the retry delay.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := w.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("queue error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.retryDelay):
			}
		}
	}
}

// Step pops at most one item, ingests it and publishes its result. It
// reports whether an item was handled.
func (w *Worker) Step(ctx context.Context) (bool, error) {
	item, err := w.client.Pop(ctx, w.queue, w.pollTimeout)
	if err != nil || item == nil {
		return false, err
	}

	result := w.Process(ctx, *item)
	if err := w.client.Publish(ctx, ResultChannel(item.JobID), result); err != nil {
		return true, err
	}
	return true, nil
}

// Process ingests one item. Failures land in the result, never in a
// returned error.
func (w *Worker) Process(ctx context.Context, item Item) Result {
	result := Result{
		JobID:     item.JobID,
		Index:     item.Index,
		WorkerID:  w.id,
		StartedAt: time.Now().UnixMilli(),
	}
	fail := func(err error) Result {
		result.Outcome = ingest.OutcomeFailed
		result.Error = err.Error()
		result.Code = thingerr.Code(err)
		result.CompletedAt = time.Now().UnixMilli()
		w.logger.Warn("item failed", "job_id", item.JobID, "index", item.Index, "code", result.Code, "error", err)
		return result
	}

	if err := item.Validate(); err != nil {
		return fail(thingerr.New(component, "process", thingerr.CodeInvalidRecord, err.Error()))
	}
	t, err := item.Thing()
	if err != nil {
		return fail(err)
	}

	res, err := w.ingester.Put(parentContext(ctx, item.TraceID, item.SpanID), t)
	result.ID = res.ID
	result.Collection = res.Collection
	if err != nil {
		return fail(err)
	}

	result.Outcome = res.Outcome()
	result.CompletedAt = time.Now().UnixMilli()
	return result
}
