package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/outbox/payloads"
)

const (
	defaultLateLookback  = 24 * time.Hour
	defaultLateBatchSize = 200
)

// LateOrderJobParams configure the late-order notifier.
type LateOrderJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    overdueOrderReader
	Outbox    onceEmitter
	Lookback  time.Duration
	BatchSize int
}

type overdueOrderReader interface {
	ListOverdue(ctx context.Context, since, now time.Time, limit int) ([]models.Order, error)
}

type onceEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewLateOrderJob builds the job that raises one order_late notification per
// order whose estimated ready time has passed while still in the kitchen.
func NewLateOrderJob(params LateOrderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultLateLookback
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultLateBatchSize
	}
	return &lateOrderJob{
		logg:     params.Logger,
		db:       params.DB,
		orders:   params.Orders,
		outbox:   params.Outbox,
		lookback: lookback,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type lateOrderJob struct {
	logg     *logger.Logger
	db       txRunner
	orders   overdueOrderReader
	outbox   onceEmitter
	lookback time.Duration
	batch    int
	now      func() time.Time
}

func (j *lateOrderJob) Name() string { return "late-orders" }

func (j *lateOrderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	overdue, err := j.orders.ListOverdue(ctx, now.Add(-j.lookback), now, j.batch)
	if err != nil {
		return fmt.Errorf("query overdue orders: %w", err)
	}
	var errs error
	for _, order := range overdue {
		if err := j.notify(ctx, order, now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"overdue": len(overdue)})
	j.logg.Info(logCtx, "late order scan complete")
	return errs
}

func (j *lateOrderJob) notify(ctx context.Context, order models.Order, now time.Time) error {
	eta := order.EstimatedReadyAt.UTC()
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			TenantID:      order.TenantID,
			EventType:     enums.EventOrderLate,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderLateEvent{
				OrderID:          order.ID,
				Number:           order.Number,
				Status:           order.Status,
				EstimatedReadyAt: eta,
				MinutesLate:      int(now.Sub(eta).Minutes()),
			},
			OccurredAt: now,
		})
	})
}
