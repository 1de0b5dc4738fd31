package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/people-hub/peoplehub/internal/metrics"
	"github.com/people-hub/peoplehub/pkg/logger"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	delay time.Duration
	err   error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.delay > 0 {
		select {
		case <-time.After(j.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func newTestScheduler(m *metrics.Metrics) *Scheduler {
	return New(Config{Logger: logger.Nop(), Metrics: m, TickInterval: 5 * time.Millisecond})
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, "@every 10ms", infos[0].Schedule)
	assert.GreaterOrEqual(t, infos[0].RunCount, int64(3))
}

func TestScheduler_DoesNotOverlapSameJob(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "slow", delay: 100 * time.Millisecond}
	require.NoError(t, s.Register(job, Every(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduler_SkipsDueJobsOnCancelledContext(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "late"}
	require.NoError(t, s.Register(job, Every(time.Minute)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.running = true
	s.runDue(ctx, time.Now().Add(time.Hour))
	s.wg.Wait()
	assert.Equal(t, int32(0), job.runs.Load())
}

func TestScheduler_SkipsDueJobsAfterStop(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "late"}
	require.NoError(t, s.Register(job, Every(time.Minute)))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())

	s.runDue(context.Background(), time.Now().Add(time.Hour))
	s.wg.Wait()
	assert.Equal(t, int32(0), job.runs.Load())
}

func TestScheduler_RunNowRecordsFailure(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := newTestScheduler(m)
	boom := errors.New("boom")
	require.NoError(t, s.Register(&countingJob{name: "failing", err: boom}, Every(time.Hour)))

	result, err := s.RunNow(context.Background(), "failing")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.True(t, result.Manual)
	assert.Equal(t, int64(1), s.ListJobs()[0].FailCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScheduledRuns.WithLabelValues("failing", "failure")))

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RegistrationErrors(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "dup"}

	assert.ErrorIs(t, s.Register(nil, Every(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, Every(time.Second)))
	assert.ErrorIs(t, s.Register(job, Every(time.Second)), ErrJobAlreadyExists)
}

func TestScheduler_Lifecycle(t *testing.T) {
	s := newTestScheduler(nil)
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestEvery(t *testing.T) {
	now := time.Now()
	assert.Equal(t, now.Add(time.Minute), Every(0).Next(now))
	assert.Equal(t, now.Add(time.Second), Every(time.Second).Next(now))
}
