package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Zero(t, cfg.Cache.TTL)
	assert.Equal(t, QueueModeInline, cfg.Queue.Mode)
	assert.Equal(t, 3, cfg.Inference.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Inference.InitialBackoff)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, `
http:
  port: 9000
cache:
  backend: badger
  ttl: 24h
queue:
  mode: redis
  max_deliveries: 7
inference:
  timeout: 2s
`)
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTP.Port, "env overrides file")
	assert.Equal(t, "badger", cfg.Cache.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, QueueModeRedis, cfg.Queue.Mode)
	assert.Equal(t, 7, cfg.Queue.MaxDeliveries)
	assert.Equal(t, 2*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "https://api.agify.io", cfg.Inference.AgeURL, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "not found")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeFile(t, "http: [unterminated"))
	assert.ErrorContains(t, err, "parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"bad queue mode", func(c *Config) { c.Queue.Mode = "kafka" }, "queue.mode"},
		{"zero attempts", func(c *Config) { c.Inference.MaxAttempts = 0 }, "max_attempts"},
		{"missing url", func(c *Config) { c.Inference.AgeURL = "" }, "inference.age_url"},
		{"heartbeat slower than ttl", func(c *Config) {
			c.Queue.Mode = QueueModeRedis
			c.Queue.HeartbeatInterval = time.Minute
		}, "heartbeat_interval"},
		{"production without credentials", func(c *Config) { c.App.Environment = EnvProduction }, "required in production"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestGetEnvSlice(t *testing.T) {
	t.Setenv("TEST_ORIGINS", " https://a.example , ,https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, getEnvSlice("TEST_ORIGINS", nil))
	assert.Equal(t, []string{"x"}, getEnvSlice("TEST_UNSET_ORIGINS", []string{"x"}))
}
