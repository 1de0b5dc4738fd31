// Package jobs contains the maintenance jobs run by the worker's scheduler.
package jobs

import (
	"context"
	"fmt"

	"github.com/people-hub/peoplehub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVER ORPHANS JOB
// ══════════════════════════════════════════════════════════════════════════════

// OrphanRecoverer returns jobs held by workers whose heartbeat expired.
type OrphanRecoverer interface {
	RecoverOrphans(ctx context.Context) (int, error)
}

// RecoverOrphansJob puts jobs of crashed workers back on the pending list.
type RecoverOrphansJob struct {
	queue  OrphanRecoverer
	logger *logger.Logger
}

// NewRecoverOrphansJob creates the job.
func NewRecoverOrphansJob(queue OrphanRecoverer, log *logger.Logger) *RecoverOrphansJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RecoverOrphansJob{queue: queue, logger: log}
}

// Name implements scheduler.Job.
func (j *RecoverOrphansJob) Name() string { return "recover_orphans" }

// Description implements scheduler.Job.
func (j *RecoverOrphansJob) Description() string {
	return "Re-queue enrichment jobs held by workers without a live heartbeat"
}

// Run implements scheduler.Job.
func (j *RecoverOrphansJob) Run(ctx context.Context) error {
	n, err := j.queue.RecoverOrphans(ctx)
	if err != nil {
		return fmt.Errorf("recover orphans: %w", err)
	}
	if n > 0 {
		j.logger.Warn("recovered orphaned enrichment jobs", logger.Int("count", n))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE DEPTH JOB
// ══════════════════════════════════════════════════════════════════════════════

// DepthReader reports the queue list lengths. Implementations publish the gauges.
type DepthReader interface {
	Depth(ctx context.Context) (pending, dead int64, err error)
}

// QueueDepthJob samples the queue so the depth gauges stay current between deliveries.
type QueueDepthJob struct {
	queue DepthReader
	// DeadLetterWarn logs a warning once the dead-letter list reaches this size. 0 disables it.
	DeadLetterWarn int64
	logger         *logger.Logger
}

// NewQueueDepthJob creates the job.
func NewQueueDepthJob(queue DepthReader, deadLetterWarn int64, log *logger.Logger) *QueueDepthJob {
	if log == nil {
		log = logger.Nop()
	}
	return &QueueDepthJob{queue: queue, DeadLetterWarn: deadLetterWarn, logger: log}
}

// Name implements scheduler.Job.
func (j *QueueDepthJob) Name() string { return "queue_depth" }

// Description implements scheduler.Job.
func (j *QueueDepthJob) Description() string {
	return "Sample pending and dead-letter list lengths"
}

// Run implements scheduler.Job.
func (j *QueueDepthJob) Run(ctx context.Context) error {
	pending, dead, err := j.queue.Depth(ctx)
	if err != nil {
		return fmt.Errorf("queue depth: %w", err)
	}
	if j.DeadLetterWarn > 0 && dead >= j.DeadLetterWarn {
		j.logger.Warn("dead-letter list is growing",
			logger.Int64("dead", dead),
			logger.Int64("pending", pending),
		)
	}
	return nil
}
