package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/metrics"
	"github.com/people-hub/peoplehub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// Job is one queued enrichment request.
type Job struct {
	ID         string    `json:"id"`
	PersonID   int64     `json:"person_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// LastError is set on jobs moved to the dead-letter list.
	LastError string `json:"last_error,omitempty"`
}

// NewJob creates the first delivery of a job for id.
func NewJob(id person.ID) Job {
	return Job{
		ID:         uuid.NewString(),
		PersonID:   id.Int64(),
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// ErrMalformedJob is returned for list entries that do not decode as a Job.
var ErrMalformedJob = errors.New("queue: malformed job")

// QueueConfig contains configuration for RedisQueue.
type QueueConfig struct {
	// Prefix namespaces every key the queue touches.
	Prefix string

	// MaxDeliveries is how many times a job runs before it is dead-lettered.
	MaxDeliveries int

	// HeartbeatTTL is how long a worker stays alive without refreshing its heartbeat.
	HeartbeatTTL time.Duration

	// BlockTimeout bounds one BLMOVE wait.
	BlockTimeout time.Duration

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// DefaultQueueConfig returns sensible defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Prefix:        "peoplehub:enrich",
		MaxDeliveries: 5,
		HeartbeatTTL:  30 * time.Second,
		BlockTimeout:  2 * time.Second,
	}
}

// RedisQueue is an at-least-once enrichment queue on Redis lists.
//
// Keys:
//
//	<prefix>:pending               LPUSH by producers, BLMOVE by workers
//	<prefix>:processing:<worker>   jobs a worker has taken but not finished
//	<prefix>:dead                  jobs that used up their deliveries
//	<prefix>:heartbeat:<worker>    expires when the worker stops refreshing it
//	<prefix>:workers               set of worker IDs that own a processing list
type RedisQueue struct {
	client *redis.Client
	config QueueConfig
	logger *logger.Logger
}

// NewRedisQueue creates a RedisQueue.
func NewRedisQueue(client *redis.Client, config QueueConfig) *RedisQueue {
	defaults := DefaultQueueConfig()
	if config.Prefix == "" {
		config.Prefix = defaults.Prefix
	}
	if config.MaxDeliveries <= 0 {
		config.MaxDeliveries = defaults.MaxDeliveries
	}
	if config.HeartbeatTTL <= 0 {
		config.HeartbeatTTL = defaults.HeartbeatTTL
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = defaults.BlockTimeout
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	return &RedisQueue{
		client: client,
		config: config,
		logger: config.Logger.With(logger.Component("queue")),
	}
}

// Config returns the effective configuration.
func (q *RedisQueue) Config() QueueConfig {
	return q.config
}

func (q *RedisQueue) pendingKey() string { return q.config.Prefix + ":pending" }
func (q *RedisQueue) deadKey() string    { return q.config.Prefix + ":dead" }
func (q *RedisQueue) workersKey() string { return q.config.Prefix + ":workers" }

func (q *RedisQueue) processingKey(worker string) string {
	return q.config.Prefix + ":processing:" + worker
}

func (q *RedisQueue) heartbeatKey(worker string) string {
	return q.config.Prefix + ":heartbeat:" + worker
}

// ─────────────────────────────────────────────────────────────────────────────
// Producer
// ─────────────────────────────────────────────────────────────────────────────

// ScheduleEnrichment enqueues a first delivery for id.
// It implements person.EnrichmentScheduler.
func (q *RedisQueue) ScheduleEnrichment(ctx context.Context, id person.ID) error {
	job := NewJob(id)
	if err := q.Enqueue(ctx, job); err != nil {
		return err
	}
	q.logger.Debug("enrichment job enqueued", logger.JobID(job.ID), logger.PersonID(job.PersonID))
	return nil
}

// Enqueue pushes job onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), raw).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Consumer
// ─────────────────────────────────────────────────────────────────────────────

// Delivery is a job taken by a worker. Raw is the exact list entry and is
// what Ack and Retry remove from the processing list.
type Delivery struct {
	Job    Job
	Raw    string
	Worker string
}

// Dequeue moves the oldest pending job into the worker's processing list.
// It returns nil, nil when nothing arrived within BlockTimeout.
//
// An entry that does not decode is returned together with ErrMalformedJob so
// the caller can dead-letter it.
func (q *RedisQueue) Dequeue(ctx context.Context, worker string) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.pendingKey(), q.processingKey(worker), "RIGHT", "LEFT", q.config.BlockTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	d := &Delivery{Raw: raw, Worker: worker}
	if err := json.Unmarshal([]byte(raw), &d.Job); err != nil {
		return d, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	return d, nil
}

// Ack removes a finished delivery from its processing list.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processingKey(d.Worker), 1, d.Raw).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", d.Job.ID, err)
	}
	return nil
}

// Retry removes a failed delivery from its processing list and either
// requeues it with the next attempt number or, once MaxDeliveries is used up,
// moves it to the dead-letter list. dead reports which one happened.
func (q *RedisQueue) Retry(ctx context.Context, d *Delivery, cause error) (dead bool, err error) {
	next := d.Job
	target := q.pendingKey()
	if next.Attempt >= q.config.MaxDeliveries {
		dead = true
		target = q.deadKey()
		if cause != nil {
			next.LastError = cause.Error()
		}
	} else {
		next.Attempt++
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("encode job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(d.Worker), 1, d.Raw)
		pipe.LPush(ctx, target, raw)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("retry job %s: %w", d.Job.ID, err)
	}
	return dead, nil
}

// DeadLetterRaw moves an undecodable entry straight to the dead-letter list.
func (q *RedisQueue) DeadLetterRaw(ctx context.Context, d *Delivery) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(d.Worker), 1, d.Raw)
		pipe.LPush(ctx, q.deadKey(), d.Raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter malformed entry: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Liveness and recovery
// ─────────────────────────────────────────────────────────────────────────────

// Heartbeat registers worker and refreshes its heartbeat key.
func (q *RedisQueue) Heartbeat(ctx context.Context, worker string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, q.workersKey(), worker)
		pipe.Set(ctx, q.heartbeatKey(worker), time.Now().UTC().Format(time.RFC3339), q.config.HeartbeatTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", worker, err)
	}
	return nil
}

// Deregister returns anything left in the worker's processing list to the
// pending list and removes the worker. Called on graceful shutdown.
func (q *RedisQueue) Deregister(ctx context.Context, worker string) error {
	if _, err := q.drain(ctx, worker); err != nil {
		return err
	}
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, q.heartbeatKey(worker))
		pipe.SRem(ctx, q.workersKey(), worker)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deregister %s: %w", worker, err)
	}
	return nil
}

// RecoverOrphans returns jobs held by workers whose heartbeat expired to the
// pending list. It returns the number of jobs recovered.
func (q *RedisQueue) RecoverOrphans(ctx context.Context) (int, error) {
	workers, err := q.client.SMembers(ctx, q.workersKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("list workers: %w", err)
	}

	total := 0
	for _, worker := range workers {
		alive, err := q.client.Exists(ctx, q.heartbeatKey(worker)).Result()
		if err != nil {
			return total, fmt.Errorf("check heartbeat %s: %w", worker, err)
		}
		if alive > 0 {
			continue
		}

		n, err := q.drain(ctx, worker)
		total += n
		if err != nil {
			return total, err
		}
		if err := q.client.SRem(ctx, q.workersKey(), worker).Err(); err != nil {
			return total, fmt.Errorf("forget worker %s: %w", worker, err)
		}
		q.logger.Warn("recovered jobs from dead worker",
			logger.String("worker", worker),
			logger.Int("jobs", n),
		)
	}

	q.config.Metrics.IncJobs("recovered", total)
	return total, nil
}

// drain moves every entry of a processing list back onto the pending list,
// oldest first, so recovered jobs are picked up before newer ones.
func (q *RedisQueue) drain(ctx context.Context, worker string) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processingKey(worker), q.pendingKey(), "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("drain %s: %w", worker, err)
		}
		n++
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Inspection
// ─────────────────────────────────────────────────────────────────────────────

// Depth reports the pending and dead-letter list lengths and updates the gauges.
func (q *RedisQueue) Depth(ctx context.Context) (pending, dead int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.LLen(ctx, q.pendingKey())
	d := pipe.LLen(ctx, q.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}

	q.config.Metrics.SetQueueDepth("pending", p.Val())
	q.config.Metrics.SetQueueDepth("dead", d.Val())
	return p.Val(), d.Val(), nil
}

// DeadLetters returns up to limit dead-lettered jobs, newest first.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := q.client.LRange(ctx, q.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}

	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

var _ person.EnrichmentScheduler = (*RedisQueue)(nil)
