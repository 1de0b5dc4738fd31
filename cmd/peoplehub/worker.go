package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/people-hub/peoplehub/config"
	"github.com/people-hub/peoplehub/internal/infrastructure/messaging"
	"github.com/people-hub/peoplehub/internal/infrastructure/scheduler"
	"github.com/people-hub/peoplehub/internal/infrastructure/scheduler/jobs"
	"github.com/people-hub/peoplehub/pkg/logger"
)

func runWorker(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Queue.Mode != config.QueueModeRedis {
		return fmt.Errorf("worker requires queue.mode=%s, got %q", config.QueueModeRedis, a.cfg.Queue.Mode)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if err := a.connectDatabase(ctx, false); err != nil {
		return err
	}
	if err := a.connectRedis(ctx); err != nil {
		return err
	}

	coordinator, err := a.newCoordinator(ctx)
	if err != nil {
		return err
	}
	queue := a.newQueue()

	q := a.cfg.Queue
	maintenance := scheduler.New(scheduler.Config{Logger: a.log, Metrics: a.metrics})
	if err := maintenance.Register(jobs.NewRecoverOrphansJob(queue, a.log), scheduler.Every(q.RecoverInterval)); err != nil {
		return err
	}
	if err := maintenance.Register(jobs.NewQueueDepthJob(queue, q.DeadLetterWarn, a.log), scheduler.Every(q.DepthInterval)); err != nil {
		return err
	}

	// Jobs of workers that died before this one started are picked up first.
	if _, err := maintenance.RunNow(ctx, "recover_orphans"); err != nil {
		a.log.Warn("initial orphan recovery failed", logger.Err(err))
	}

	if err := maintenance.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = maintenance.Stop() }()

	worker := messaging.NewWorker(queue, messaging.EnrichHandler(coordinator), messaging.WorkerConfig{
		Concurrency:       q.WorkerConcurrency,
		JobTimeout:        q.JobTimeout,
		HeartbeatInterval: q.HeartbeatInterval,
		Logger:            a.log,
		Metrics:           a.metrics,
	})
	a.log.Info("enrichment worker started", logger.String("worker_id", worker.ID()))

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("enrichment worker stopped")
	return nil
}
