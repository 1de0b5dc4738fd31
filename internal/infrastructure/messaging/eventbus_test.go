package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/people-hub/peoplehub/internal/domain/shared"
)

func TestInMemoryEventBus_SyncDeliversToAllHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var calls int32
	handler := func(ctx context.Context, event shared.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	require.NoError(t, bus.Subscribe(shared.EventPersonCreated, handler))
	require.NoError(t, bus.Subscribe(shared.EventPersonCreated, handler))

	require.NoError(t, bus.Publish(context.Background(), shared.NewPersonCreatedEvent(1, "")))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestInMemoryEventBus_SyncReturnsFirstError(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	boom := errors.New("boom")
	require.NoError(t, bus.Subscribe(shared.EventPersonCreated, func(context.Context, shared.Event) error { return boom }))

	err := bus.Publish(context.Background(), shared.NewPersonCreatedEvent(1, ""))
	assert.ErrorIs(t, err, boom)
}

func TestInMemoryEventBus_RecoversPanics(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventPersonCreated, func(context.Context, shared.Event) error {
		panic("kaboom")
	}))

	err := bus.Publish(context.Background(), shared.NewPersonCreatedEvent(1, ""))
	assert.ErrorIs(t, err, ErrHandlerPanic)
}

func TestInMemoryEventBus_AsyncOutlivesPublisherContext(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	release := make(chan struct{})
	var handlerErr error
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, bus.Subscribe(shared.EventPersonCreated, func(ctx context.Context, event shared.Event) error {
		defer wg.Done()
		<-release
		handlerErr = ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, shared.NewPersonCreatedEvent(7, "")))
	cancel()
	close(release)
	wg.Wait()

	assert.NoError(t, handlerErr)
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_CloseWaitsForHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var done int32
	require.NoError(t, bus.Subscribe(shared.EventPersonCreated, func(context.Context, shared.Event) error {
		time.Sleep(30 * time.Millisecond)
		atomic.StoreInt32(&done, 1)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), shared.NewPersonCreatedEvent(1, "")))
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&done))

	assert.ErrorIs(t, bus.Publish(context.Background(), shared.NewPersonCreatedEvent(2, "")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventPersonCreated, func(context.Context, shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_HandlerTimeout(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 1,
		HandlerTimeout: 20 * time.Millisecond,
	})

	got := make(chan error, 1)
	require.NoError(t, bus.Subscribe(shared.EventPersonCreated, func(ctx context.Context, event shared.Event) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	}))

	require.NoError(t, bus.Publish(context.Background(), shared.NewPersonCreatedEvent(1, "")))
	select {
	case err := <-got:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("handler was not cancelled")
	}
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_NoHandlersIsNoop(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	assert.NoError(t, bus.Publish(context.Background(), shared.NewPersonCreatedEvent(1, "")))
	assert.Error(t, bus.Publish(context.Background(), nil))
	assert.Error(t, bus.Subscribe(shared.EventPersonCreated, nil))
}
