// Package cache provides ResponseCache backends for the inference clients:
// process memory, Redis shared across workers, and an embedded Badger store.
package cache

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/people-hub/peoplehub/internal/domain/enrichment"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// Config selects and tunes a backend.
type Config struct {
	Backend string

	// TTL of zero keeps entries until evicted externally.
	TTL time.Duration

	// RedisPrefix namespaces keys in a shared Redis.
	RedisPrefix string

	// BadgerDir is the data directory. Empty runs Badger in memory.
	BadgerDir string
}

// DefaultConfig returns the in-memory backend without expiry.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendMemory,
		RedisPrefix: "peoplehub:inference:",
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the configured backend. The returned closer releases backend resources;
// it never closes the shared Redis client.
func New(ctx context.Context, cfg Config, rdb *redis.Client) (enrichment.ResponseCache, io.Closer, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemoryCache(cfg.TTL), nopCloser{}, nil
	case BackendRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("cache: redis backend requires a redis client")
		}
		return NewRedisCache(rdb, cfg.RedisPrefix, cfg.TTL), nopCloser{}, nil
	case BackendBadger:
		c, err := OpenBadgerCache(cfg.BadgerDir, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}
