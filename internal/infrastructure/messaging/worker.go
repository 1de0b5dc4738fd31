package messaging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
	"github.com/people-hub/peoplehub/internal/metrics"
	"github.com/people-hub/peoplehub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB HANDLERS AND MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// JobHandler processes one job. A returned error schedules a redelivery.
type JobHandler func(ctx context.Context, job Job) error

// Middleware wraps handler execution.
type Middleware func(JobHandler) JobHandler

// Chain applies middlewares so the first one is outermost.
func Chain(handler JobHandler, middlewares ...Middleware) JobHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// EnrichHandler adapts an enricher into a JobHandler.
func EnrichHandler(enricher interface {
	Enrich(ctx context.Context, id person.ID) error
}) JobHandler {
	return func(ctx context.Context, job Job) error {
		return enricher.Enrich(ctx, person.ID(job.PersonID))
	}
}

// RecoveryMiddleware converts a handler panic into ErrHandlerPanic.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next JobHandler) JobHandler {
		return func(ctx context.Context, job Job) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("job handler panic recovered",
						logger.JobID(job.ID),
						logger.Any("panic", r),
						logger.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(ctx, job)
		}
	}
}

// LoggingMiddleware puts a job-scoped logger into the context and logs the outcome.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next JobHandler) JobHandler {
		return func(ctx context.Context, job Job) error {
			jobLog := log.With(
				logger.JobID(job.ID),
				logger.PersonID(job.PersonID),
				logger.Attempt(job.Attempt),
			)
			ctx = logger.WithContext(shared.WithCorrelationID(ctx, job.ID), jobLog)

			start := time.Now()
			err := next(ctx, job)
			if err != nil {
				jobLog.Warn("job failed", logger.Latency(time.Since(start)), logger.Err(err))
			} else {
				jobLog.Debug("job completed", logger.Latency(time.Since(start)))
			}
			return err
		}
	}
}

// TimeoutMiddleware bounds one handler run.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next JobHandler) JobHandler {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, job Job) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, job)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WORKER
// ══════════════════════════════════════════════════════════════════════════════

// WorkerConfig contains configuration for Worker.
type WorkerConfig struct {
	// ID names the worker's processing list. Defaults to hostname plus a random suffix.
	ID string

	// Concurrency is the number of jobs processed at once.
	Concurrency int

	// JobTimeout bounds one job run.
	JobTimeout time.Duration

	// HeartbeatInterval must be well below the queue's HeartbeatTTL.
	HeartbeatInterval time.Duration

	// ErrorBackoff is the pause after a failed dequeue.
	ErrorBackoff time.Duration

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// DefaultWorkerConfig returns sensible defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:       4,
		JobTimeout:        2 * time.Minute,
		HeartbeatInterval: 10 * time.Second,
		ErrorBackoff:      time.Second,
	}
}

// Worker consumes enrichment jobs from a RedisQueue.
type Worker struct {
	queue   *RedisQueue
	handler JobHandler
	config  WorkerConfig
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	running bool
}

// NewWorker creates a Worker running handler behind the recovery, logging and
// timeout middlewares.
func NewWorker(queue *RedisQueue, handler JobHandler, config WorkerConfig) *Worker {
	defaults := DefaultWorkerConfig()
	if config.ID == "" {
		config.ID = defaultWorkerID()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = defaults.ErrorBackoff
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	log := config.Logger.With(logger.Component("worker"), logger.String("worker", config.ID))
	return &Worker{
		queue: queue,
		handler: Chain(handler,
			RecoveryMiddleware(log),
			LoggingMiddleware(log),
			TimeoutMiddleware(config.JobTimeout),
		),
		config:  config,
		logger:  log,
		metrics: config.Metrics,
	}
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// ID returns the worker ID.
func (w *Worker) ID() string {
	return w.config.ID
}

// Run consumes jobs until ctx is cancelled. Jobs already taken finish with a
// context detached from ctx; the worker then returns leftovers to the pending
// list and deregisters.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("worker already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.queue.Heartbeat(ctx, w.config.ID); err != nil {
		return err
	}

	w.logger.Info("worker started", logger.Int("concurrency", w.config.Concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.heartbeatLoop(gctx)
		return nil
	})
	for i := 0; i < w.config.Concurrency; i++ {
		g.Go(func() error {
			w.consume(gctx)
			return nil
		})
	}
	_ = g.Wait()

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.queue.Deregister(cleanupCtx, w.config.ID); err != nil {
		w.logger.Error("deregister failed", logger.Err(err))
		return err
	}

	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.Heartbeat(ctx, w.config.ID); err != nil && ctx.Err() == nil {
				w.logger.Warn("heartbeat failed", logger.Err(err))
			}
		}
	}
}

func (w *Worker) consume(ctx context.Context) {
	for ctx.Err() == nil {
		d, err := w.queue.Dequeue(ctx, w.config.ID)
		switch {
		case ctx.Err() != nil && d == nil:
			return
		case errors.Is(err, ErrMalformedJob):
			w.deadLetterMalformed(ctx, d, err)
		case err != nil:
			w.logger.Warn("dequeue failed", logger.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.config.ErrorBackoff):
			}
		case d != nil:
			w.Process(context.WithoutCancel(ctx), d)
		}
	}
}

// Process runs one delivery and acknowledges or redelivers it.
func (w *Worker) Process(ctx context.Context, d *Delivery) {
	err := w.handler(ctx, d.Job)
	if err == nil {
		if err := w.queue.Ack(ctx, d); err != nil {
			w.logger.Error("ack failed", logger.JobID(d.Job.ID), logger.Err(err))
			return
		}
		w.metrics.IncJobs("acked", 1)
		return
	}

	dead, retryErr := w.queue.Retry(ctx, d, err)
	if retryErr != nil {
		w.logger.Error("redelivery failed, job stays in processing list",
			logger.JobID(d.Job.ID),
			logger.Err(retryErr),
		)
		return
	}
	if dead {
		w.logger.Error("job dead-lettered",
			logger.JobID(d.Job.ID),
			logger.PersonID(d.Job.PersonID),
			logger.Attempt(d.Job.Attempt),
			logger.Err(err),
		)
		w.metrics.IncJobs("dead_lettered", 1)
		return
	}
	w.metrics.IncJobs("requeued", 1)
}

func (w *Worker) deadLetterMalformed(ctx context.Context, d *Delivery, cause error) {
	w.logger.Error("malformed job", logger.String("raw", d.Raw), logger.Err(cause))
	if err := w.queue.DeadLetterRaw(context.WithoutCancel(ctx), d); err != nil {
		w.logger.Error("dead-letter failed", logger.Err(err))
		return
	}
	w.metrics.IncJobs("dead_lettered", 1)
}
