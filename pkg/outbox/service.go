package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
)

// DomainEvent is what domain services hand to Emit. Data is marshalled into
// the envelope as is.
type DomainEvent struct {
	TenantID      uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case e.TenantID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "outbox event requires a tenant")
	case !e.EventType.IsValid():
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown outbox event type %q", e.EventType)
	case !e.AggregateType.IsValid():
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown outbox aggregate type %q", e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "outbox event requires an aggregate id")
	}
	return nil
}

// Service writes domain events into the outbox table inside the caller's
// transaction, so an event exists if and only if its state change committed.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit stores event wrapped in a PayloadEnvelope using tx.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox emit requires a transaction")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := event.validate(); err != nil {
		return err
	}

	row, eventID, err := s.buildRow(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert outbox event")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		logger.FieldTenantID: event.TenantID.String(),
		"event_id":           eventID,
		"event_type":         event.EventType,
		"aggregate_type":     event.AggregateType,
		"aggregate_id":       event.AggregateID.String(),
	})
	s.logg.Debug(logCtx, "outbox event queued")
	return nil
}

// EmitIfNotExists skips the insert when the aggregate already has an event of the same type.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox emit requires a transaction")
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check outbox event")
	}
	if exists {
		return nil
	}
	return s.Emit(ctx, tx, event)
}

func (s *Service) buildRow(event DomainEvent) (models.OutboxEvent, string, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode event data")
	}
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		TenantID:   event.TenantID,
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.Version == 0 {
		envelope.Version = EnvelopeVersion
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = s.now().UTC()
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode envelope")
	}
	return models.OutboxEvent{
		TenantID:      event.TenantID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, envelope.EventID, nil
}
