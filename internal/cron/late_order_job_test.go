package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/orders"
	"github.com/angelmondragon/comanda-backend/pkg/db"
	"github.com/angelmondragon/comanda-backend/pkg/db/dbtest"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/outbox/payloads"
)

type lateFixture struct {
	conn   *gorm.DB
	job    *lateOrderJob
	tenant uuid.UUID
	now    time.Time
	number int64
}

func newLateFixture(t *testing.T) *lateFixture {
	t.Helper()
	conn := dbtest.Open(t)
	built, err := NewLateOrderJob(LateOrderJobParams{
		Logger: logger.Nop(),
		DB:     db.NewFromConn(conn),
		Orders: orders.NewRepository(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	f := &lateFixture{conn: conn, job: built.(*lateOrderJob), now: time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC)}
	f.job.now = func() time.Time { return f.now }

	tenant := models.Tenant{Name: "Bistrô", Slug: "bistro"}
	require.NoError(t, conn.Create(&tenant).Error)
	f.tenant = tenant.ID
	return f
}

func (f *lateFixture) order(t *testing.T, status enums.OrderStatus, eta *time.Time) models.Order {
	t.Helper()
	f.number++
	order := models.Order{
		TenantID:         f.tenant,
		Number:           f.number,
		Mode:             enums.OrderModeDelivery,
		Status:           status,
		EstimatedReadyAt: eta,
	}
	require.NoError(t, f.conn.Create(&order).Error)
	return order
}

func at(t time.Time) *time.Time { return &t }

func TestLateOrderJobNotifiesOncePerOrder(t *testing.T) {
	f := newLateFixture(t)
	late := f.order(t, enums.OrderStatusPreparing, at(f.now.Add(-12*time.Minute)))
	f.order(t, enums.OrderStatusPreparing, at(f.now.Add(5*time.Minute)))
	f.order(t, enums.OrderStatusOutForDelivery, at(f.now.Add(-30*time.Minute)))
	f.order(t, enums.OrderStatusReady, at(f.now.Add(-48*time.Hour)))

	require.NoError(t, f.job.Run(context.Background()))
	require.NoError(t, f.job.Run(context.Background()))

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventOrderLate).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, late.ID, events[0].AggregateID)
	assert.Equal(t, enums.AggregateOrder, events[0].AggregateType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload payloads.OrderLateEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, 12, payload.MinutesLate)
	assert.Equal(t, enums.OrderStatusPreparing, payload.Status)
	assert.Equal(t, late.Number, payload.Number)
}

func TestLateOrderJobCoversReadyOrders(t *testing.T) {
	f := newLateFixture(t)
	f.order(t, enums.OrderStatusReady, at(f.now.Add(-time.Minute)))

	require.NoError(t, f.job.Run(context.Background()))

	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderLate).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

type failingOverdueReader struct{}

func (failingOverdueReader) ListOverdue(context.Context, time.Time, time.Time, int) ([]models.Order, error) {
	return nil, errors.New("db down")
}

func TestLateOrderJobPropagatesQueryError(t *testing.T) {
	conn := dbtest.Open(t)
	job, err := NewLateOrderJob(LateOrderJobParams{
		Logger: logger.Nop(),
		DB:     db.NewFromConn(conn),
		Orders: failingOverdueReader{},
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	assert.ErrorContains(t, job.Run(context.Background()), "db down")
}

func TestNewLateOrderJobRequiresCollaborators(t *testing.T) {
	_, err := NewLateOrderJob(LateOrderJobParams{Logger: logger.Nop()})
	assert.Error(t, err)
}
