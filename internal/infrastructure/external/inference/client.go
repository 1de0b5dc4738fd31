// Package inference implements the clients of the public name-inference APIs
// (genderize.io, agify.io, nationalize.io).
//
// All three services share one request shape and differ only in the field
// they answer with, so a single generic Client is parameterized by endpoint
// and an Extractor. Every Fetch goes through the shared ResponseCache first,
// then through rate limiting, circuit breaking and retries. Exhausted retries
// are a soft miss: Fetch reports "no data" and never returns an error.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/people-hub/peoplehub/internal/domain/enrichment"
	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/metrics"
	"github.com/people-hub/peoplehub/pkg/circuitbreaker"
	"github.com/people-hub/peoplehub/pkg/logger"
	"github.com/people-hub/peoplehub/pkg/retry"
)

const (
	DefaultGenderURL      = "https://api.genderize.io"
	DefaultAgeURL         = "https://api.agify.io"
	DefaultNationalityURL = "https://api.nationalize.io"

	// maxBodySize caps a response body. Real answers are a few hundred bytes.
	maxBodySize = 1 << 20

	defaultRetryAfter = 30 * time.Second
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for one inference client.
type Config struct {
	// Kind names the inferred attribute and namespaces cache keys.
	Kind enrichment.Kind

	// BaseURL is the endpoint; the name is sent as ?name=.
	BaseURL string

	// APIKey is sent as ?apikey= when set.
	APIKey string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// Retrier defaults to retry.InferenceRetrier().
	Retrier *retry.Retrier

	// Breaker is optional.
	Breaker *circuitbreaker.CircuitBreaker

	// Limiter is optional and may be shared between clients.
	Limiter *RateLimiter

	HTTPClient *http.Client
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
}

// DefaultConfig returns the defaults for kind and baseURL.
func DefaultConfig(kind enrichment.Kind, baseURL string) Config {
	return Config{
		Kind:    kind,
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client fetches one inferred attribute of type T.
type Client[T any] struct {
	config     Config
	cache      enrichment.ResponseCache
	extract    Extractor[T]
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     *logger.Logger
	tracer     trace.Tracer
}

// NewClient creates a client. cache is required.
func NewClient[T any](config Config, cache enrichment.ResponseCache, extract Extractor[T]) *Client[T] {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Retrier == nil {
		config.Retrier = retry.InferenceRetrier()
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client[T]{
		config:     config,
		cache:      cache,
		extract:    extract,
		httpClient: httpClient,
		retrier:    config.Retrier,
		logger:     config.Logger.With(logger.Component("inference"), logger.Kind(config.Kind.String())),
		tracer:     otel.Tracer("github.com/people-hub/peoplehub/inference"),
	}
}

// NewGenderClient creates the genderize client.
func NewGenderClient(config Config, cache enrichment.ResponseCache) *Client[person.Gender] {
	config.Kind = enrichment.KindGender
	return NewClient(config, cache, ExtractGender)
}

// NewAgeClient creates the agify client.
func NewAgeClient(config Config, cache enrichment.ResponseCache) *Client[int] {
	config.Kind = enrichment.KindAge
	return NewClient(config, cache, ExtractAge)
}

// NewNationalityClient creates the nationalize client.
func NewNationalityClient(config Config, cache enrichment.ResponseCache) *Client[person.CountryCode] {
	config.Kind = enrichment.KindNationality
	return NewClient(config, cache, ExtractNationality)
}

// Kind returns the attribute this client infers.
func (c *Client[T]) Kind() enrichment.Kind {
	return c.config.Kind
}

// Fetch resolves displayName. ok = false means no data: the service did not
// know the name, answered with an error, or every attempt failed.
func (c *Client[T]) Fetch(ctx context.Context, displayName string) (T, bool) {
	kind := c.config.Kind.String()
	key := enrichment.CacheKey(c.config.Kind, displayName)

	ctx, span := c.tracer.Start(ctx, "inference.Fetch", trace.WithAttributes(
		attribute.String("inference.kind", kind),
		attribute.String("inference.cache_key", key),
	))
	defer span.End()

	log := c.logger.With(logger.CacheKey(key))

	if value, ok, hit := c.fromCache(ctx, key, log); hit {
		span.SetAttributes(attribute.Bool("inference.cache_hit", true))
		c.config.Metrics.ObserveFetch(kind, outcomeOf(ok))
		return value, ok
	}
	span.SetAttributes(attribute.Bool("inference.cache_hit", false))

	attempt := 0
	res, err := retry.DoWithData(ctx, c.retrier, func(ctx context.Context) (extracted[T], error) {
		attempt++
		return c.attempt(ctx, key, displayName, attempt, log)
	})
	if err != nil {
		var svcErr *ServiceError
		if errors.As(err, &svcErr) {
			log.Info("inference service rejected name", logger.F("status", svcErr.Status), logger.String("reason", svcErr.Message))
			c.config.Metrics.ObserveFetch(kind, "no_data")
		} else {
			log.Warn("inference lookup gave up", logger.Attempt(attempt), logger.Err(err))
			c.config.Metrics.ObserveFetch(kind, "soft_miss")
			span.RecordError(err)
			span.SetStatus(codes.Error, "soft miss")
		}
		var zero T
		return zero, false
	}

	c.config.Metrics.ObserveFetch(kind, outcomeOf(res.ok))
	return res.value, res.ok
}

type extracted[T any] struct {
	value T
	ok    bool
}

func outcomeOf(ok bool) string {
	if ok {
		return "resolved"
	}
	return "no_data"
}

// fromCache returns hit = false on a miss, on a cache error, and on an entry
// that no longer decodes.
func (c *Client[T]) fromCache(ctx context.Context, key string, log *logger.Logger) (value T, ok bool, hit bool) {
	kind := c.config.Kind.String()

	payload, found, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Warn("response cache read failed", logger.Err(err))
		c.config.Metrics.ObserveCache(kind, "error")
		return value, false, false
	}
	if !found {
		c.config.Metrics.ObserveCache(kind, "miss")
		return value, false, false
	}

	res, err := c.parse(payload, http.StatusOK)
	if err != nil {
		log.Warn("ignoring undecodable cache entry", logger.Err(err))
		c.config.Metrics.ObserveCache(kind, "error")
		return value, false, false
	}

	c.config.Metrics.ObserveCache(kind, "hit")
	return res.value, res.ok, true
}

// attempt performs one network round trip. Only successful payloads are cached.
func (c *Client[T]) attempt(ctx context.Context, key, displayName string, n int, log *logger.Logger) (extracted[T], error) {
	start := time.Now()

	var res extracted[T]
	err := c.guard(ctx, func(ctx context.Context) error {
		if err := c.config.Limiter.Wait(ctx); err != nil {
			return err
		}
		body, status, err := c.request(ctx, displayName)
		if err != nil {
			return err
		}
		res, err = c.parse(body, status)
		if err != nil {
			return err
		}
		if err := c.cache.Set(ctx, key, body); err != nil {
			log.Warn("response cache write failed", logger.Err(err))
		}
		return nil
	})

	c.config.Metrics.ObserveAttempt(c.config.Kind.String(), attemptResult(err), start)
	if err == nil {
		return res, nil
	}

	log.Debug("inference attempt failed", logger.Attempt(n), logger.Latency(time.Since(start)), logger.Err(err))
	if errors.Is(err, ErrRejected) || retry.IsPermanent(err) {
		return res, retry.Permanent(err)
	}
	return res, retry.Retryable(err)
}

// guard runs fn through the circuit breaker when one is configured.
func (c *Client[T]) guard(ctx context.Context, fn func(context.Context) error) error {
	if c.config.Breaker == nil {
		return fn(ctx)
	}
	err := c.config.Breaker.Execute(ctx, fn)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return err
}

// request issues GET <base>?name=<displayName> bounded by the attempt timeout.
// It returns the body for 2xx answers and for 4xx answers that carry a body.
func (c *Client[T]) request(ctx context.Context, displayName string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, 0, retry.Permanent(fmt.Errorf("inference: bad base url %q: %w", c.config.BaseURL, err))
	}
	q := u.Query()
	q.Set("name", displayName)
	if c.config.APIKey != "" {
		q.Set("apikey", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, transportError("create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, transportError("http request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, transportError("read response: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.config.Limiter.RecordRateLimitHit(retryAfter(resp.Header.Get("Retry-After")))
		return nil, resp.StatusCode, transportError("rate limited (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return nil, resp.StatusCode, transportError("status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		if svcErr := serviceError(body, resp.StatusCode); svcErr != nil {
			return nil, resp.StatusCode, svcErr
		}
		return nil, resp.StatusCode, transportError("status %d without error body", resp.StatusCode)
	}

	return body, resp.StatusCode, nil
}

// parse decodes a 2xx body. A body carrying an "error" key is a ServiceError.
func (c *Client[T]) parse(body []byte, status int) (extracted[T], error) {
	var res extracted[T]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return res, payloadError("decode body: %v", err)
	}
	if fields == nil {
		return res, payloadError("body is not a JSON object")
	}
	if svcErr := serviceError(body, status); svcErr != nil {
		return res, svcErr
	}

	value, ok, err := c.extract(fields)
	if err != nil {
		return res, err
	}
	res.value, res.ok = value, ok
	return res, nil
}

func serviceError(body []byte, status int) *ServiceError {
	var payload struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == nil {
		return nil
	}
	return &ServiceError{Status: status, Message: *payload.Error}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultRetryAfter
}

// CountsAsOutage reports whether err should trip a circuit breaker.
// Rejections mean the service is up and answering.
func CountsAsOutage(err error) bool {
	return err != nil && !errors.Is(err, ErrRejected)
}
