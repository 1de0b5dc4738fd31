// Package enrichment orchestrates the inference clients for one person and
// commits their results under a row lock.
package enrichment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/people-hub/peoplehub/internal/domain/enrichment"
	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
	"github.com/people-hub/peoplehub/internal/metrics"
	"github.com/people-hub/peoplehub/pkg/logger"
)

// Resolvers are the three inference clients. They share no state and may run concurrently.
type Resolvers struct {
	Gender      domain.Resolver[person.Gender]
	Age         domain.Resolver[int]
	Nationality domain.Resolver[person.CountryCode]
}

// Enricher runs enrichment for one person.
type Enricher interface {
	Enrich(ctx context.Context, id person.ID) error
}

// Coordinator resolves the enrichment fields of a person and commits them.
type Coordinator struct {
	repo      person.Repository
	resolvers Resolvers
	logger    *logger.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// NewCoordinator creates a Coordinator. log and m may be nil.
func NewCoordinator(repo person.Repository, resolvers Resolvers, log *logger.Logger, m *metrics.Metrics) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		repo:      repo,
		resolvers: resolvers,
		logger:    log.With(logger.Component("enrichment")),
		metrics:   m,
		tracer:    otel.Tracer("github.com/people-hub/peoplehub/enrichment"),
	}
}

// Enrich loads the person, resolves gender, age and nationality from the
// display name and commits them under a row lock.
//
// A person that no longer exists ends the run without error. Inference
// failures are soft misses and leave the field unknown. Only a failure of the
// locked write is returned.
func (c *Coordinator) Enrich(ctx context.Context, id person.ID) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "enrichment.Enrich",
		trace.WithAttributes(attribute.Int64("person.id", id.Int64())))
	defer span.End()

	log := logger.FromContextOr(ctx, c.logger).With(logger.PersonID(id.Int64()))

	p, err := c.repo.GetByID(ctx, id)
	if shared.IsNotFound(err) {
		log.Info("person gone before enrichment, skipping")
		c.metrics.ObserveEnrichment("missing", start)
		return nil
	}
	if err != nil {
		c.fail(span, start, err)
		return fmt.Errorf("enrich person %d: load: %w", id, err)
	}

	result := c.Resolve(ctx, p.DisplayName())
	span.SetAttributes(
		attribute.String("enrichment.gender", string(result.Gender)),
		attribute.Bool("enrichment.age_known", result.Age != nil),
		attribute.String("enrichment.nationality", string(result.Nationality)),
	)

	committed, err := Commit(ctx, c.repo, id, result)
	if err != nil {
		c.fail(span, start, err)
		log.Error("enrichment commit failed", logger.Err(err))
		return fmt.Errorf("enrich person %d: commit: %w", id, err)
	}
	if !committed {
		log.Info("person deleted during enrichment, nothing written")
		c.metrics.ObserveEnrichment("missing", start)
		return nil
	}

	log.Info("person enriched",
		logger.String("gender", string(result.Gender)),
		logger.Any("age", result.Age),
		logger.String("nationality", string(result.Nationality)),
		logger.Latency(time.Since(start)),
	)
	c.metrics.ObserveEnrichment("enriched", start)
	return nil
}

func (c *Coordinator) fail(span trace.Span, start time.Time, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.metrics.ObserveEnrichment("failed", start)
}

// Resolve queries the three clients concurrently. A client without an
// answer leaves its field unknown.
func (c *Coordinator) Resolve(ctx context.Context, displayName string) person.Enrichment {
	var e person.Enrichment

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if v, ok := c.resolvers.Gender.Fetch(ctx, displayName); ok {
			e.Gender = v
		}
	}()
	go func() {
		defer wg.Done()
		if v, ok := c.resolvers.Age.Fetch(ctx, displayName); ok {
			e.Age = person.AgeOf(v)
		}
	}()
	go func() {
		defer wg.Done()
		if v, ok := c.resolvers.Nationality.Fetch(ctx, displayName); ok {
			e.Nationality = v
		}
	}()
	wg.Wait()

	return e
}

// Commit is the locked read-merge-write of an enrichment result. Inside one
// transaction it locks the person row, re-reads the person, overwrites exactly
// gender, age and nationality, and saves. committed is false when the person
// no longer exists.
func Commit(ctx context.Context, repo person.Repository, id person.ID, result person.Enrichment) (committed bool, err error) {
	err = repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		current.ApplyEnrichment(result)
		return tx.SaveEnrichment(ctx, id, current.Enrichment())
	})
	if shared.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var _ Enricher = (*Coordinator)(nil)
