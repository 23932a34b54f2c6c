package orders

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/coupons"
	"github.com/angelmondragon/comanda-backend/internal/inventory"
	"github.com/angelmondragon/comanda-backend/internal/loyalty"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/comanda-backend/pkg/types"
	"github.com/angelmondragon/comanda-backend/pkg/validate"
)

// Confirm deducts inventory, redeems the points of redemption items and records
// the coupon usage. Any failure leaves the order new.
func (s *service) Confirm(ctx context.Context, input TransitionInput) (*models.Order, error) {
	var consumed *inventory.ConsumeResult
	return s.move(ctx, input, transition{
		op: "confirm",
		to: enums.OrderStatusConfirmed,
		apply: func(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) (map[string]any, error) {
			if len(order.Items) > 0 {
				items := make([]inventory.Item, 0, len(order.Items))
				for _, item := range order.Items {
					items = append(items, inventory.Item{ProductID: item.ProductID, Quantity: item.Quantity})
				}
				result, err := s.inventory.ConsumeTx(ctx, tx, inventory.ConsumeInput{
					TenantID:    order.TenantID,
					OrderID:     &order.ID,
					Items:       items,
					Actor:       input.Actor,
					Description: orderDescription(*order),
				})
				if err != nil {
					return nil, err
				}
				consumed = result
			}
			if order.LoyaltyPointsUsed > 0 && order.CustomerID != nil {
				if _, err := s.loyalty.RedeemTx(ctx, tx, loyalty.PointsInput{
					TenantID:    order.TenantID,
					CustomerID:  *order.CustomerID,
					Points:      order.LoyaltyPointsUsed,
					OrderID:     &order.ID,
					Description: orderDescription(*order),
					Actor:       input.Actor,
				}); err != nil {
					return nil, err
				}
			}
			if err := s.recordCoupon(ctx, tx, *order, input.Actor); err != nil {
				return nil, err
			}
			return map[string]any{"confirmed_at": now}, nil
		},
		committed: func() { s.inventory.RecordConsumed(consumed) },
	})
}

// StartPreparation starts or restarts the preparation clock using the tenant's
// preparation time.
func (s *service) StartPreparation(ctx context.Context, input TransitionInput) (*models.Order, error) {
	return s.move(ctx, input, transition{
		op: "start_preparation",
		to: enums.OrderStatusPreparing,
		apply: func(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) (map[string]any, error) {
			settings, err := s.tenants.WithTx(tx).Settings(ctx, order.TenantID)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"preparation_started_at": now,
				"estimated_ready_at":     now.Add(settings.PreparationTime),
				"ready_at":               nil,
			}, nil
		},
	})
}

func (s *service) MarkReady(ctx context.Context, input TransitionInput) (*models.Order, error) {
	return s.move(ctx, input, transition{
		op:    "mark_ready",
		to:    enums.OrderStatusReady,
		apply: stamp("ready_at"),
	})
}

// RequestMotoboy puts a ready delivery order in the courier queue.
func (s *service) RequestMotoboy(ctx context.Context, input TransitionInput) (*models.Order, error) {
	return s.move(ctx, input, transition{
		op:    "request_motoboy",
		to:    enums.OrderStatusWaitingMotoboy,
		apply: stamp("motoboy_requested_at"),
	})
}

// AssignMotoboy records the courier that accepted the delivery. The courier must
// be an active motoboy of the tenant.
func (s *service) AssignMotoboy(ctx context.Context, input AssignInput) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	return s.move(ctx, input.TransitionInput, transition{
		op: "assign_motoboy",
		to: enums.OrderStatusMotoboyAccepted,
		apply: func(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) (map[string]any, error) {
			active, err := s.tenants.WithTx(tx).MotoboyActive(ctx, order.TenantID, input.MotoboyID)
			if err != nil {
				return nil, err
			}
			if !active {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "motoboy is not an active courier of this tenant").
					WithDetails(map[string]any{"motoboy_id": input.MotoboyID.String()})
			}
			return map[string]any{
				"motoboy_id":          input.MotoboyID,
				"motoboy_accepted_at": now,
			}, nil
		},
	})
}

func (s *service) Dispatch(ctx context.Context, input TransitionInput) (*models.Order, error) {
	return s.move(ctx, input, transition{
		op:    "dispatch",
		to:    enums.OrderStatusOutForDelivery,
		apply: stamp("dispatched_at"),
	})
}

// Deliver completes the order, makes sure the coupon usage exists and credits
// loyalty points when the order qualifies.
func (s *service) Deliver(ctx context.Context, input TransitionInput) (*models.Order, error) {
	return s.move(ctx, input, transition{
		op: "deliver",
		to: enums.OrderStatusDelivered,
		apply: func(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) (map[string]any, error) {
			if err := s.recordCoupon(ctx, tx, *order, input.Actor); err != nil {
				return nil, err
			}
			updates := map[string]any{"delivered_at": now}
			earned, err := s.earnPoints(ctx, tx, *order, input.Actor)
			if err != nil {
				return nil, err
			}
			if earned > 0 {
				updates["loyalty_points_earned"] = earned
			}
			return updates, nil
		},
	})
}

// Cancel stops the order. Inventory already consumed stays consumed until
// ReverseInventory is called.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}
	return s.move(ctx, input.TransitionInput, transition{
		op:     "cancel",
		to:     enums.OrderStatusCancelled,
		reason: &reason,
		apply: func(_ context.Context, _ *gorm.DB, _ *models.Order, now time.Time) (map[string]any, error) {
			return map[string]any{
				"cancelled_at":        now,
				"cancellation_reason": reason,
			}, nil
		},
		event: func(order models.Order, from enums.OrderStatus, now time.Time) outbox.DomainEvent {
			return outbox.DomainEvent{
				TenantID:      order.TenantID,
				EventType:     enums.EventOrderCancelled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Data: payloads.OrderCancelledEvent{
					OrderID:           order.ID,
					Number:            order.Number,
					From:              from,
					Reason:            reason,
					InventoryConsumed: order.ConfirmedAt != nil && order.InventoryReversedAt == nil,
					CancelledAt:       now,
				},
			}
		},
	})
}

// ReverseInventory restores the stock a cancelled order consumed. It is the
// only compensation for a cancel and is safe to call more than once.
func (s *service) ReverseInventory(ctx context.Context, input TransitionInput) (*inventory.ReverseResult, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	var result *inventory.ReverseResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repository := s.repo.WithTx(tx)
		order, err := repository.Lock(ctx, input.TenantID, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only cancelled orders can have inventory reversed").
				WithDetails(map[string]any{"order_id": order.ID.String(), "status": order.Status})
		}
		result, err = s.inventory.ReverseTx(ctx, tx, inventory.ReverseInput{
			TenantID: order.TenantID,
			OrderID:  order.ID,
			Reason:   "order cancelled",
			Actor:    input.Actor,
		})
		if err != nil {
			return err
		}
		if order.InventoryReversedAt == nil {
			return repository.Update(ctx, *order, map[string]any{"inventory_reversed_at": s.now().UTC()})
		}
		return nil
	})
	if err != nil {
		return nil, s.rejected(ctx, input, "reverse_inventory", err)
	}
	s.inventory.RecordReversed(result)
	return result, nil
}

// UpdatePayment records the payment status without moving the order.
func (s *service) UpdatePayment(ctx context.Context, input PaymentInput) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	var result *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repository := s.repo.WithTx(tx)
		order, err := repository.Lock(ctx, input.TenantID, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCancelled && input.Status == enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled orders cannot be marked paid")
		}
		if err := repository.Update(ctx, *order, map[string]any{"payment_status": input.Status}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		result, err = repository.Find(ctx, order.TenantID, order.ID)
		return err
	})
	if err != nil {
		return nil, s.rejected(ctx, input.TransitionInput, "update_payment", err)
	}
	return result, nil
}

func (s *service) recordCoupon(ctx context.Context, tx *gorm.DB, order models.Order, actor types.Actor) error {
	if order.CouponID == nil {
		return nil
	}
	_, err := s.coupons.RecordUsageTx(ctx, tx, coupons.UsageInput{
		TenantID:   order.TenantID,
		CouponID:   *order.CouponID,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Discount:   order.Discount,
		Actor:      actor,
	})
	return err
}

// earnPoints credits the customer when loyalty is on, the order has a customer,
// a positive earning base and a payment that did not fail or get refunded.
func (s *service) earnPoints(ctx context.Context, tx *gorm.DB, order models.Order, actor types.Actor) (int, error) {
	base := earningBase(order)
	if order.CustomerID == nil || !base.IsPositive() {
		return 0, nil
	}
	if order.PaymentStatus == enums.PaymentStatusFailed || order.PaymentStatus == enums.PaymentStatusRefunded {
		return 0, nil
	}
	points, err := s.loyalty.PointsForOrderTx(ctx, tx, order.TenantID, *order.CustomerID, base)
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		logCtx := s.logg.WithOrderID(s.logg.WithTenantID(ctx, order.TenantID.String()), order.ID.String())
		s.logg.Warn(logCtx, "order customer no longer exists, skipping loyalty points")
		return 0, nil
	}
	if err != nil || points <= 0 {
		return 0, err
	}
	if _, err := s.loyalty.EarnTx(ctx, tx, loyalty.PointsInput{
		TenantID:    order.TenantID,
		CustomerID:  *order.CustomerID,
		Points:      points,
		OrderID:     &order.ID,
		Description: orderDescription(order),
		Actor:       actor,
	}); err != nil {
		return 0, err
	}
	return points, nil
}

// earningBase is what the customer paid for goods: subtotal less discount.
// Delivery and service fees and the tip earn nothing.
func earningBase(order models.Order) decimal.Decimal {
	return order.Subtotal.Sub(order.Discount)
}

func stamp(column string) step {
	return func(_ context.Context, _ *gorm.DB, _ *models.Order, now time.Time) (map[string]any, error) {
		return map[string]any{column: now}, nil
	}
}

func orderDescription(order models.Order) string {
	return "order #" + strconv.FormatInt(order.Number, 10)
}
