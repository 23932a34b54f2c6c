package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
)

func preparing(start time.Time, budget time.Duration) models.Order {
	eta := start.Add(budget)
	return models.Order{
		Status:               enums.OrderStatusPreparing,
		PreparationStartedAt: &start,
		EstimatedReadyAt:     &eta,
	}
}

func TestComputeTimingBuckets(t *testing.T) {
	start := time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)
	order := preparing(start, 30*time.Minute)

	cases := []struct {
		elapsed time.Duration
		status  enums.TimeStatus
		late    bool
	}{
		{0, enums.TimeStatusOnTime, false},
		{23*time.Minute + 59*time.Second, enums.TimeStatusOnTime, false},
		{24 * time.Minute, enums.TimeStatusWarning, false},
		{29 * time.Minute, enums.TimeStatusWarning, false},
		{30 * time.Minute, enums.TimeStatusLate, false},
		{31 * time.Minute, enums.TimeStatusLate, true},
	}
	for _, tc := range cases {
		timing := ComputeTiming(order, start.Add(tc.elapsed))
		assert.Equal(t, tc.status, timing.Status, tc.elapsed.String())
		assert.Equal(t, tc.late, timing.IsLate, tc.elapsed.String())
		assert.Equal(t, int(tc.elapsed/time.Minute), timing.ElapsedMinutes)
		assert.Equal(t, 30, timing.BudgetMinutes)
	}
}

func TestComputeTimingPendingBeforePreparation(t *testing.T) {
	timing := ComputeTiming(models.Order{Status: enums.OrderStatusConfirmed}, time.Now())
	assert.Equal(t, enums.TimeStatusPending, timing.Status)
	assert.False(t, timing.IsLate)
	assert.Zero(t, timing.ElapsedMinutes)
}

func TestComputeTimingStopsAtReady(t *testing.T) {
	start := time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)
	order := preparing(start, 20*time.Minute)
	ready := start.Add(10 * time.Minute)
	order.ReadyAt = &ready
	order.Status = enums.OrderStatusReady

	timing := ComputeTiming(order, start.Add(2*time.Hour))
	assert.Equal(t, 10, timing.ElapsedMinutes)
	assert.Equal(t, enums.TimeStatusOnTime, timing.Status)
	assert.True(t, timing.IsLate, "ready orders still waiting past the estimate are late")
}

func TestComputeTimingTerminalOrdersAreNeverLate(t *testing.T) {
	start := time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)
	order := preparing(start, 20*time.Minute)
	cancelled := start.Add(25 * time.Minute)
	order.CancelledAt = &cancelled
	order.Status = enums.OrderStatusCancelled

	timing := ComputeTiming(order, start.Add(time.Hour))
	assert.False(t, timing.IsLate)
	assert.Equal(t, 25, timing.ElapsedMinutes)
	assert.Equal(t, enums.TimeStatusLate, timing.Status)
}
