package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
	"github.com/people-hub/peoplehub/pkg/logger"
)

func TestChain_FirstMiddlewareIsOutermost(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next JobHandler) JobHandler {
			return func(ctx context.Context, job Job) error {
				order = append(order, name)
				return next(ctx, job)
			}
		}
	}

	h := Chain(func(context.Context, Job) error {
		order = append(order, "handler")
		return nil
	}, mark("a"), mark("b"))

	require.NoError(t, h(context.Background(), Job{}))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logger.Nop())(func(context.Context, Job) error {
		panic("boom")
	})
	assert.ErrorIs(t, h(context.Background(), Job{ID: "j"}), ErrHandlerPanic)
}

func TestTimeoutMiddleware(t *testing.T) {
	h := TimeoutMiddleware(10 * time.Millisecond)(func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, h(context.Background(), Job{}), context.DeadlineExceeded)

	passthrough := TimeoutMiddleware(0)(func(ctx context.Context, _ Job) error {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return nil
	})
	assert.NoError(t, passthrough(context.Background(), Job{}))
}

func TestLoggingMiddleware_SetsJobContext(t *testing.T) {
	h := LoggingMiddleware(logger.Nop())(func(ctx context.Context, job Job) error {
		assert.Equal(t, job.ID, shared.CorrelationID(ctx))
		assert.NotNil(t, logger.FromContext(ctx))
		return errors.New("fail")
	})
	assert.Error(t, h(context.Background(), Job{ID: "job-1", PersonID: 3, Attempt: 2}))
}

type enricherFunc func(ctx context.Context, id person.ID) error

func (f enricherFunc) Enrich(ctx context.Context, id person.ID) error { return f(ctx, id) }

func TestEnrichHandler(t *testing.T) {
	var got person.ID
	h := EnrichHandler(enricherFunc(func(_ context.Context, id person.ID) error {
		got = id
		return nil
	}))
	require.NoError(t, h(context.Background(), Job{PersonID: 42}))
	assert.Equal(t, person.ID(42), got)
}

func TestNewJob(t *testing.T) {
	job := NewJob(9)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, int64(9), job.PersonID)
	assert.Equal(t, 1, job.Attempt)
	assert.False(t, job.EnqueuedAt.IsZero())
}
