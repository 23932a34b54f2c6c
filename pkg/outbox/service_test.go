package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/types"
)

func openOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:outbox_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := openOutboxDB(t)
	svc := NewService(NewRepository(conn), logger.Nop())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	tenantID := uuid.New()
	actor := types.Actor{UserID: uuid.New(), Role: enums.MemberRoleManager}
	aggregateID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			TenantID:      tenantID,
			EventType:     enums.EventOrderLate,
			AggregateType: enums.AggregateOrder,
			AggregateID:   aggregateID,
			Actor:         ActorFrom(actor),
			Data:          map[string]int{"minutes_late": 4},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, tenantID, row.TenantID)
	assert.Equal(t, aggregateID, row.AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, tenantID, envelope.TenantID)
	assert.True(t, envelope.OccurredAt.Equal(fixed))
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor.UserID, envelope.Actor.UserID)
	assert.JSONEq(t, `{"minutes_late":4}`, string(envelope.Data))
}

func TestEmitRequiresTransactionAndTenant(t *testing.T) {
	conn := openOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)

	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{TenantID: uuid.New(), EventType: enums.EventOrderLate}))
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: enums.EventOrderLate, AggregateID: uuid.New()})
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestEmitRejectsUnknownAggregate(t *testing.T) {
	conn := openOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			TenantID:      uuid.New(),
			EventType:     enums.EventOrderLate,
			AggregateType: "basket",
			AggregateID:   uuid.New(),
		})
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitIfNotExistsSkipsDuplicates(t *testing.T) {
	conn := openOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)
	event := DomainEvent{
		TenantID:      uuid.New(),
		EventType:     enums.EventOrderLate,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          struct{}{},
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	tenantID := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(conn, models.OutboxEvent{
			TenantID:      tenantID,
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, fmt.Errorf("boom")))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[2].ID, fmt.Errorf("bad payload"), 3))

	pending, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rows[1].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].AttemptCount)

	count, err := repo.CountPending(conn)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	removed, err := repo.DeletePublishedBefore(conn, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewDLQRepository(conn)
	eventID := uuid.New()
	msg := strings.Repeat("x", 2000)
	require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		TenantID:      uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQErrorReasonNonRetryable,
		ErrorMessage:  &msg,
	}))
	stored, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.ErrorMessage)
	assert.Len(t, *stored.ErrorMessage, maxLastErrorLen)

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDLQRepositoryInsertIsIdempotent(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewDLQRepository(conn)
	entry := models.OutboxDLQ{
		EventID:       uuid.New(),
		TenantID:      uuid.New(),
		EventType:     enums.EventStockLow,
		AggregateType: enums.AggregateProduct,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQErrorReasonMaxAttempts,
	}
	require.NoError(t, repo.InsertTx(conn, entry))
	require.NoError(t, repo.InsertTx(conn, entry))

	count, err := repo.CountTx(conn)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
