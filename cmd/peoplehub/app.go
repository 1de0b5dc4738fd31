package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/people-hub/peoplehub/config"
	"github.com/people-hub/peoplehub/internal/application/enrichment"
	"github.com/people-hub/peoplehub/internal/infrastructure/cache"
	"github.com/people-hub/peoplehub/internal/infrastructure/external/inference"
	"github.com/people-hub/peoplehub/internal/infrastructure/messaging"
	"github.com/people-hub/peoplehub/internal/infrastructure/persistence/postgres"
	"github.com/people-hub/peoplehub/internal/infrastructure/persistence/redis"
	"github.com/people-hub/peoplehub/internal/metrics"
	"github.com/people-hub/peoplehub/pkg/circuitbreaker"
	"github.com/people-hub/peoplehub/pkg/logger"
	"github.com/people-hub/peoplehub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ══════════════════════════════════════════════════════════════════════════════

// app holds the infrastructure shared by every command.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	db    *postgres.Connection
	repo  *postgres.PersonRepository
	redis *goredis.Client

	closers []func()
}

// loadApp reads configuration and builds the logger and metrics.
func loadApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Log.Level),
		Format:    cfg.Log.Format,
		AddCaller: true,
	}).With(
		logger.String("service", cfg.App.Name),
		logger.String("version", version),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &app{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  metrics.New(reg),
	}, nil
}

// connectDatabase opens the Postgres pool and, when asked, applies migrations.
func (a *app) connectDatabase(ctx context.Context, migrate bool) error {
	db := a.cfg.Database
	conn, err := postgres.NewConnection(ctx, postgres.Config{
		URL:             db.URL,
		Host:            db.Host,
		Port:            db.Port,
		Database:        db.Name,
		User:            db.User,
		Password:        db.Password,
		SSLMode:         db.SSLMode,
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: db.MaxConnLifetime,
		MaxConnIdleTime: db.MaxConnIdleTime,
		ConnectTimeout:  db.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.db = conn
	a.repo = postgres.NewPersonRepository(conn)
	a.onClose(conn.Close)

	if migrate {
		n, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.log.Info("migrations applied", logger.Int("count", n))
	}
	return nil
}

// needsRedis reports whether the cache or the queue is backed by Redis.
func (a *app) needsRedis() bool {
	return a.cfg.Cache.Backend == cache.BackendRedis || a.cfg.Queue.Mode == config.QueueModeRedis
}

func (a *app) connectRedis(ctx context.Context) error {
	if !a.needsRedis() {
		return nil
	}
	r := a.cfg.Redis
	client, err := redis.NewClient(ctx, redis.Config{
		URL:          r.URL,
		Host:         r.Host,
		Port:         r.Port,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		MinIdleConns: r.MinIdleConns,
		MaxRetries:   3,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	})
	if err != nil {
		return err
	}
	a.redis = client
	a.onClose(func() { _ = client.Close() })
	return nil
}

// newCoordinator builds the cache, the three inference clients and the coordinator.
func (a *app) newCoordinator(ctx context.Context) (*enrichment.Coordinator, error) {
	c := a.cfg.Cache
	responseCache, closer, err := cache.New(ctx, cache.Config{
		Backend:     c.Backend,
		TTL:         c.TTL,
		RedisPrefix: c.RedisPrefix,
		BadgerDir:   c.BadgerDir,
	}, a.redis)
	if err != nil {
		return nil, err
	}
	a.onCloseCloser(closer)

	inf := a.cfg.Inference
	limiter := inference.NewRateLimiter(inference.RateLimiterConfig{
		RequestsPerSecond: inf.RequestsPerSecond,
		BurstSize:         inf.Burst,
		WaitTimeout:       inf.Timeout * 2,
	})
	onStateChange := func(name string, from, to circuitbreaker.State) {
		a.log.Warn("inference circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
	clientConfig := func(baseURL, breaker string) inference.Config {
		return inference.Config{
			BaseURL: baseURL,
			APIKey:  inf.APIKey,
			Timeout: inf.Timeout,
			Retrier: retry.New(
				retry.WithMaxAttempts(inf.MaxAttempts),
				retry.WithInitialDelay(inf.InitialBackoff),
				retry.WithMaxDelay(inf.MaxBackoff),
				retry.WithMultiplier(inf.Multiplier),
				retry.WithJitter(0),
			),
			Breaker: circuitbreaker.InferenceBreaker(breaker, inf.BreakerThreshold, inf.BreakerCooldown,
				onStateChange, circuitbreaker.WithIsFailure(inference.CountsAsOutage)),
			Limiter: limiter,
			Logger:  a.log,
			Metrics: a.metrics,
		}
	}

	resolvers := enrichment.Resolvers{
		Gender:      inference.NewGenderClient(clientConfig(inf.GenderURL, "genderize"), responseCache),
		Age:         inference.NewAgeClient(clientConfig(inf.AgeURL, "agify"), responseCache),
		Nationality: inference.NewNationalityClient(clientConfig(inf.NationalityURL, "nationalize"), responseCache),
	}
	return enrichment.NewCoordinator(a.repo, resolvers, a.log, a.metrics), nil
}

// newQueue builds the Redis job queue from configuration.
func (a *app) newQueue() *messaging.RedisQueue {
	q := a.cfg.Queue
	return messaging.NewRedisQueue(a.redis, messaging.QueueConfig{
		Prefix:        q.Prefix,
		MaxDeliveries: q.MaxDeliveries,
		HeartbeatTTL:  q.HeartbeatTTL,
		BlockTimeout:  q.BlockTimeout,
		Logger:        a.log,
		Metrics:       a.metrics,
	})
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) onCloseCloser(c io.Closer) {
	a.onClose(func() {
		if err := c.Close(); err != nil {
			a.log.Warn("close failed", logger.Err(err))
		}
	})
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
