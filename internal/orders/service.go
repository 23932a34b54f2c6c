package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/coupons"
	"github.com/angelmondragon/comanda-backend/internal/inventory"
	"github.com/angelmondragon/comanda-backend/internal/loyalty"
	"github.com/angelmondragon/comanda-backend/internal/quota"
	"github.com/angelmondragon/comanda-backend/internal/tenants"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/metrics"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/comanda-backend/pkg/pagination"
	"github.com/angelmondragon/comanda-backend/pkg/validate"
)

type database interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the order state machine. Every mutation commits the status change,
// its side effects, a history row and the outbox events in one transaction.
type Service interface {
	Create(ctx context.Context, draft Draft) (*models.Order, error)
	Confirm(ctx context.Context, input TransitionInput) (*models.Order, error)
	StartPreparation(ctx context.Context, input TransitionInput) (*models.Order, error)
	MarkReady(ctx context.Context, input TransitionInput) (*models.Order, error)
	RequestMotoboy(ctx context.Context, input TransitionInput) (*models.Order, error)
	AssignMotoboy(ctx context.Context, input AssignInput) (*models.Order, error)
	Dispatch(ctx context.Context, input TransitionInput) (*models.Order, error)
	Deliver(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	ReverseInventory(ctx context.Context, input TransitionInput) (*inventory.ReverseResult, error)
	UpdatePayment(ctx context.Context, input PaymentInput) (*models.Order, error)
	Get(ctx context.Context, tenantID, orderID uuid.UUID) (*Detail, error)
	History(ctx context.Context, tenantID, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	List(ctx context.Context, params ListParams) (*pagination.Page[models.Order], error)
}

// ServiceParams groups the collaborators of the state machine.
type ServiceParams struct {
	DB        database
	Quota     *quota.Guard
	Tenants   *tenants.Reader
	Inventory inventory.Ledger
	Coupons   coupons.Validator
	Loyalty   loyalty.Account
	Outbox    outboxPublisher
	Metrics   *metrics.DomainMetrics
	Logger    *logger.Logger
}

type service struct {
	db        database
	repo      *Repository
	quota     *quota.Guard
	tenants   *tenants.Reader
	inventory inventory.Ledger
	coupons   coupons.Validator
	loyalty   loyalty.Account
	outbox    outboxPublisher
	metrics   *metrics.DomainMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the order state machine.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("database required")
	case params.Quota == nil:
		return nil, fmt.Errorf("quota guard required")
	case params.Tenants == nil:
		return nil, fmt.Errorf("tenant settings reader required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon validator required")
	case params.Loyalty == nil:
		return nil, fmt.Errorf("loyalty account required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:        params.DB,
		repo:      NewRepository(params.DB.DB()),
		quota:     params.Quota,
		tenants:   params.Tenants,
		inventory: params.Inventory,
		coupons:   params.Coupons,
		loyalty:   params.Loyalty,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// step is the transition-specific part of a move: side effects inside tx and the
// extra columns to write alongside the new status.
type step func(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) (map[string]any, error)

type transition struct {
	op     string
	to     enums.OrderStatus
	reason *string
	apply  step
	// event replaces the default status-changed event when set.
	event func(order models.Order, from enums.OrderStatus, now time.Time) outbox.DomainEvent
	// committed runs once the transaction has committed.
	committed func()
}

func (s *service) move(ctx context.Context, input TransitionInput, t transition) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	var (
		from   enums.OrderStatus
		result *models.Order
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repository := s.repo.WithTx(tx)
		order, err := repository.Lock(ctx, input.TenantID, input.OrderID)
		if err != nil {
			return err
		}
		from = order.Status
		if !CanTransition(order.Mode, order.Status, t.to) {
			return invalidTransition(*order, t.to)
		}

		now := s.now().UTC()
		updates := map[string]any{}
		if t.apply != nil {
			extra, err := t.apply(ctx, tx, order, now)
			if err != nil {
				return err
			}
			for k, v := range extra {
				updates[k] = v
			}
		}

		moved, err := repository.Advance(ctx, *order, t.to, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return invalidTransition(*order, t.to)
		}
		if err := repository.AppendHistory(ctx, &models.OrderStatusHistory{
			TenantID:   order.TenantID,
			OrderID:    order.ID,
			FromStatus: &from,
			ToStatus:   t.to,
			ActorID:    input.Actor.UserRef(),
			Reason:     t.reason,
			CreatedAt:  now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}

		reloaded, err := repository.Find(ctx, order.TenantID, order.ID)
		if err != nil {
			return err
		}
		event := s.statusChanged(*reloaded, from, now)
		if t.event != nil {
			event = t.event(*reloaded, from, now)
		}
		event.Actor = outbox.ActorFrom(input.Actor)
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
		}
		result = reloaded
		return nil
	})
	if err != nil {
		return nil, s.rejected(ctx, input, t.op, err)
	}

	if t.committed != nil {
		t.committed()
	}
	s.metrics.ObserveTransition(string(from), string(t.to))
	logCtx := s.logg.WithOrderID(s.logg.WithTenantID(ctx, input.TenantID.String()), input.OrderID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": from, "to": t.to})
	s.logg.Info(logCtx, "order transitioned")
	return result, nil
}

func (s *service) statusChanged(order models.Order, from enums.OrderStatus, now time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		TenantID:      order.TenantID,
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:   order.ID,
			Number:    order.Number,
			From:      from,
			To:        order.Status,
			MotoboyID: order.MotoboyID,
			ChangedAt: now,
		},
	}
}

// rejected counts business-rule failures and logs consistency failures with
// their context before returning err unchanged.
func (s *service) rejected(ctx context.Context, input TransitionInput, op string, err error) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	s.metrics.IncRejection("order_"+op, string(typed.Code()))
	if !pkgerrors.IsBusinessRule(err) {
		logCtx := s.logg.WithOrderID(s.logg.WithTenantID(ctx, input.TenantID.String()), input.OrderID.String())
		s.logg.Error(logCtx, "order "+op+" failed", err)
	}
	return err
}

func (s *service) Get(ctx context.Context, tenantID, orderID uuid.UUID) (*Detail, error) {
	order, err := s.repo.Find(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	return &Detail{Order: *order, Timing: ComputeTiming(*order, s.now().UTC())}, nil
}

func (s *service) History(ctx context.Context, tenantID, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	if _, err := s.repo.Find(ctx, tenantID, orderID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, tenantID, orderID)
}

func (s *service) List(ctx context.Context, params ListParams) (*pagination.Page[models.Order], error) {
	return s.repo.List(ctx, params)
}
