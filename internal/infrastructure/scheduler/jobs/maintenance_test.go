package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	recovered   int
	pending     int64
	dead        int64
	err         error
	recoverRuns int
}

func (f *fakeQueue) RecoverOrphans(context.Context) (int, error) {
	f.recoverRuns++
	return f.recovered, f.err
}

func (f *fakeQueue) Depth(context.Context) (int64, int64, error) {
	return f.pending, f.dead, f.err
}

func TestRecoverOrphansJob(t *testing.T) {
	q := &fakeQueue{recovered: 2}
	job := NewRecoverOrphansJob(q, nil)

	assert.Equal(t, "recover_orphans", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, q.recoverRuns)

	q.err = errors.New("redis down")
	err := job.Run(context.Background())
	assert.ErrorIs(t, err, q.err)
}

func TestQueueDepthJob(t *testing.T) {
	q := &fakeQueue{pending: 3, dead: 10}
	job := NewQueueDepthJob(q, 5, nil)

	assert.Equal(t, "queue_depth", job.Name())
	require.NoError(t, job.Run(context.Background()))

	q.err = errors.New("redis down")
	assert.ErrorIs(t, job.Run(context.Background()), q.err)
}
