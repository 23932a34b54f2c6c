package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/metrics"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type OutboxMaintenanceJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxMaintenanceRepo
	// DeadLetters is optional; when set the dead-letter gauge is refreshed too.
	DeadLetters deadLetterCounter
	Metrics     *metrics.DomainMetrics
	Retention   time.Duration
}

type outboxMaintenanceRepo interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
	CountPending(tx *gorm.DB) (int64, error)
}

type deadLetterCounter interface {
	CountTx(tx *gorm.DB) (int64, error)
}

// NewOutboxMaintenanceJob purges delivered outbox rows past the retention
// window and refreshes the pending-rows gauge.
func NewOutboxMaintenanceJob(params OutboxMaintenanceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return &outboxMaintenanceJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		dead:      params.DeadLetters,
		metrics:   params.Metrics,
		retention: retention,
		now:       time.Now,
	}, nil
}

type outboxMaintenanceJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      outboxMaintenanceRepo
	dead      deadLetterCounter
	metrics   *metrics.DomainMetrics
	retention time.Duration
	now       func() time.Time
}

func (j *outboxMaintenanceJob) Name() string { return "outbox-maintenance" }

func (j *outboxMaintenanceJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted, pending, dead int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if deleted, err = j.repo.DeletePublishedBefore(tx, cutoff); err != nil {
			return fmt.Errorf("purge published rows: %w", err)
		}
		if pending, err = j.repo.CountPending(tx); err != nil {
			return fmt.Errorf("count pending rows: %w", err)
		}
		if j.dead == nil {
			return nil
		}
		if dead, err = j.dead.CountTx(tx); err != nil {
			return fmt.Errorf("count dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox maintenance: %w", err)
	}
	j.metrics.AddOutboxPurged(deleted)
	j.metrics.SetOutboxPending(pending)
	if j.dead != nil {
		j.metrics.SetOutboxDeadLetters(dead)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
		"pending":      pending,
		"dead_letters": dead,
	})
	j.logg.Info(logCtx, "outbox maintenance complete")
	return nil
}
