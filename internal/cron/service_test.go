package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	ok := &testJob{name: "late-orders"}
	failing := &testJob{name: "outbox-maintenance", err: errors.New("boom")}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(failing, ok),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)

	expected := `
# HELP comanda_cron_job_failure_total Failed cron job executions.
# TYPE comanda_cron_job_failure_total counter
comanda_cron_job_failure_total{job="outbox-maintenance"} 1
# HELP comanda_cron_job_success_total Successful cron job executions.
# TYPE comanda_cron_job_success_total counter
comanda_cron_job_success_total{job="late-orders"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"comanda_cron_job_failure_total", "comanda_cron_job_success_total"))
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "late-orders"}
	lock := &fakeLock{held: true}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: lock})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestRunOnceSurfacesLockErrors(t *testing.T) {
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{err: errors.New("redis down")}})
	require.NoError(t, err)
	assert.ErrorContains(t, service.RunOnce(context.Background()), "redis down")
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "late-orders"}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: &fakeLock{}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, service.Run(ctx), context.Canceled)
}

type renewingLock struct {
	fakeLock
	extends int
	lost    bool
}

func (r *renewingLock) Extend(context.Context) error {
	r.extends++
	if r.lost {
		return ErrLeaseLost
	}
	return nil
}

func TestRunOnceExtendsLeaseBetweenJobs(t *testing.T) {
	first := &testJob{name: "late-orders"}
	second := &testJob{name: "outbox-maintenance"}
	lock := &renewingLock{}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(first, second), Lock: lock})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 1, lock.extends)
	assert.Equal(t, 1, second.runs)
}

func TestRunOnceStopsWhenLeaseLost(t *testing.T) {
	first := &testJob{name: "late-orders"}
	second := &testJob{name: "outbox-maintenance"}
	lock := &renewingLock{lost: true}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(first, second), Lock: lock})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 1, first.runs)
	assert.Zero(t, second.runs)
}

func TestRunOnceSkipsCadencedJobUntilDue(t *testing.T) {
	hourly := &testJob{name: "outbox-maintenance"}
	registry := NewRegistry()
	registry.RegisterEvery(hourly, time.Hour)
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: registry, Lock: &fakeLock{}})
	require.NoError(t, err)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	require.NoError(t, service.RunOnce(context.Background()))
	now = now.Add(10 * time.Minute)
	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 1, hourly.runs)

	now = now.Add(time.Hour)
	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 2, hourly.runs)
}
