package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry := NewRegistry(jobA, nil)
	registry.Register(nil)
	registry.Register(jobB)

	jobs := registry.Jobs()
	assert.Equal(t, []Job{jobA, jobB}, jobs)

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "Jobs returns a copy")
}

func TestRegistryDueHonoursCadence(t *testing.T) {
	everyCycle := &stubJob{name: "late-orders"}
	hourly := &stubJob{name: "outbox-maintenance"}
	registry := NewRegistry(everyCycle)
	registry.RegisterEvery(hourly, time.Hour)
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, []Job{everyCycle, hourly}, registry.Due(start), "never-run jobs are due")

	registry.markRun(hourly, start)
	assert.Equal(t, []Job{everyCycle}, registry.Due(start.Add(59*time.Minute)))
	assert.Equal(t, []Job{everyCycle, hourly}, registry.Due(start.Add(time.Hour)))
}
