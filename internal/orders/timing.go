package orders

import (
	"time"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
)

const warnRatio = 0.8

// ComputeTiming derives the preparation clock at now. The clock runs from
// preparation_started_at and stops when the order becomes ready or is
// cancelled. Orders that never started preparing are pending.
func ComputeTiming(order models.Order, now time.Time) Timing {
	timing := Timing{Status: enums.TimeStatusPending, EvaluatedAt: now}
	if order.PreparationStartedAt == nil || order.EstimatedReadyAt == nil {
		return timing
	}
	start := *order.PreparationStartedAt
	end := now
	switch {
	case order.ReadyAt != nil && !order.ReadyAt.Before(start):
		end = *order.ReadyAt
	case order.CancelledAt != nil:
		end = *order.CancelledAt
	}
	elapsed := end.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	budget := order.EstimatedReadyAt.Sub(start)

	timing.ElapsedMinutes = int(elapsed / time.Minute)
	timing.BudgetMinutes = int(budget / time.Minute)
	timing.Status = timeStatus(elapsed, budget)
	timing.IsLate = isActivePrep(order.Status) && now.After(*order.EstimatedReadyAt)
	return timing
}

func timeStatus(elapsed, budget time.Duration) enums.TimeStatus {
	if budget <= 0 {
		return enums.TimeStatusLate
	}
	ratio := float64(elapsed) / float64(budget)
	switch {
	case ratio >= 1:
		return enums.TimeStatusLate
	case ratio >= warnRatio:
		return enums.TimeStatusWarning
	default:
		return enums.TimeStatusOnTime
	}
}

func isActivePrep(status enums.OrderStatus) bool {
	return status == enums.OrderStatusPreparing || status == enums.OrderStatusReady
}
