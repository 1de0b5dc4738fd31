package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/people-hub/peoplehub/config"
	"github.com/people-hub/peoplehub/internal/application/command"
	"github.com/people-hub/peoplehub/internal/application/enrichment"
	"github.com/people-hub/peoplehub/internal/application/query"
	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/infrastructure/messaging"
	"github.com/people-hub/peoplehub/internal/infrastructure/persistence/redis"
	httpapi "github.com/people-hub/peoplehub/internal/interface/http"
	"github.com/people-hub/peoplehub/internal/interface/http/handlers"
	"github.com/people-hub/peoplehub/pkg/logger"
)

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if err := a.connectDatabase(ctx, a.cfg.App.MigrateOnStart); err != nil {
		return err
	}
	if err := a.connectRedis(ctx); err != nil {
		return err
	}

	scheduler, err := a.enrichmentScheduler(ctx)
	if err != nil {
		return err
	}

	health := handlers.NewCompositeHealthChecker(version)
	health.AddCheck("postgres", handlers.NewPingCheck(a.db))
	if a.redis != nil {
		health.AddCheck("redis", redis.HealthCheck(a.redis))
	}

	h := a.cfg.HTTP
	server := httpapi.NewServer(httpapi.Config{
		Host:           h.Host,
		Port:           h.Port,
		ReadTimeout:    h.ReadTimeout,
		WriteTimeout:   h.WriteTimeout,
		IdleTimeout:    h.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   h.MaxBodyBytes,
		EnableCORS:     h.EnableCORS,
		AllowedOrigins: h.AllowedOrigins,
		EnableMetrics:  h.EnableMetrics,
	}, httpapi.Dependencies{
		Create:        command.NewCreatePersonHandler(a.repo, scheduler, a.log),
		Update:        command.NewUpdatePersonHandler(a.repo),
		Friends:       command.NewFriendGraphHandler(a.repo, a.log),
		People:        query.NewPeopleHandler(a.repo),
		HealthChecker: health,
		Logger:        a.log,
		Metrics:       a.metrics,
		Gatherer:      a.registry,
	})

	errCh := server.StartAsync()
	a.log.Info("people hub started", logger.String("queue_mode", a.cfg.Queue.Mode))

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		a.log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.log.Info("shutdown completed")
	return nil
}

// enrichmentScheduler returns the post-commit hook of CreatePerson: the
// in-process event bus in inline mode, the Redis queue otherwise.
func (a *app) enrichmentScheduler(ctx context.Context) (person.EnrichmentScheduler, error) {
	if a.cfg.Queue.Mode == config.QueueModeRedis {
		return a.newQueue(), nil
	}

	coordinator, err := a.newCoordinator(ctx)
	if err != nil {
		return nil, err
	}

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: a.cfg.Queue.InlineWorkers,
		HandlerTimeout: a.cfg.Queue.JobTimeout,
		Logger:         a.log,
	})
	a.onCloseCloser(bus)

	if err := enrichment.Subscribe(bus, coordinator); err != nil {
		return nil, fmt.Errorf("subscribe enrichment: %w", err)
	}
	return enrichment.NewEventScheduler(bus), nil
}
