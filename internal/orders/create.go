package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/coupons"
	"github.com/angelmondragon/comanda-backend/internal/repo"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/comanda-backend/pkg/validate"
)

// Create prices the draft, applies the coupon and persists the order as new.
// The monthly order quota is re-checked inside the creating transaction.
func (s *service) Create(ctx context.Context, draft Draft) (*models.Order, error) {
	if err := validate.Struct(draft); err != nil {
		return nil, err
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	var created *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.quota.EnsureTx(ctx, tx, draft.TenantID, enums.QuotaOrdersPerMonth); err != nil {
			return err
		}

		var customer *models.Customer
		if draft.CustomerID != nil {
			found, err := loadCustomer(ctx, tx, draft.TenantID, *draft.CustomerID)
			if err != nil {
				return err
			}
			customer = found
		}

		items, pointsUsed, err := s.priceItems(ctx, tx, draft)
		if err != nil {
			return err
		}
		if pointsUsed > 0 {
			if customer == nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "loyalty redemption requires a customer")
			}
			if customer.LoyaltyPoints < pointsUsed {
				return pkgerrors.New(pkgerrors.CodeInsufficientPoints, "not enough loyalty points").
					WithDetails(map[string]any{"balance": customer.LoyaltyPoints, "requested": pointsUsed})
			}
		}

		subtotal := decimal.Zero
		for _, item := range items {
			subtotal = subtotal.Add(item.LineTotal)
		}

		discount := decimal.Zero
		var couponID *uuid.UUID
		if code := strings.TrimSpace(draft.CouponCode); code != "" {
			quote, err := s.coupons.ApplyTx(ctx, tx, coupons.ApplyInput{
				TenantID:   draft.TenantID,
				Code:       code,
				OrderTotal: subtotal,
				CustomerID: draft.CustomerID,
			})
			if err != nil {
				return err
			}
			// a below-minimum coupon gives no discount and is not attached, so
			// confirm never consumes a use for it
			if !quote.BelowMinimum {
				discount = quote.Discount
				id := quote.Coupon.ID
				couponID = &id
			}
		}

		number, err := s.tenants.WithTx(tx).NextOrderNumber(ctx, draft.TenantID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		order := &models.Order{
			TenantID:          draft.TenantID,
			Number:            number,
			Mode:              draft.Mode,
			Status:            enums.OrderStatusNew,
			PaymentStatus:     enums.PaymentStatusPending,
			CustomerID:        draft.CustomerID,
			CouponID:          couponID,
			TableLabel:        draft.TableLabel,
			Subtotal:          subtotal,
			Discount:          discount,
			DeliveryFee:       draft.DeliveryFee,
			ServiceFee:        draft.ServiceFee,
			Tip:               draft.Tip,
			Total:             orderTotal(subtotal, discount, draft),
			LoyaltyPointsUsed: pointsUsed,
			Notes:             draft.Notes,
			Items:             items,
			CreatedAt:         now,
		}
		repository := s.repo.WithTx(tx)
		if err := repository.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repository.AppendHistory(ctx, &models.OrderStatusHistory{
			TenantID:  order.TenantID,
			OrderID:   order.ID,
			ToStatus:  enums.OrderStatusNew,
			ActorID:   draft.Actor.UserRef(),
			CreatedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}

		event := outbox.DomainEvent{
			TenantID:      order.TenantID,
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.ActorFrom(draft.Actor),
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				Number:     order.Number,
				Mode:       order.Mode,
				Total:      order.Total,
				CustomerID: order.CustomerID,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}

		created, err = repository.Find(ctx, order.TenantID, order.ID)
		return err
	})
	if err != nil {
		return nil, s.rejected(ctx, TransitionInput{TenantID: draft.TenantID}, "create", err)
	}
	s.metrics.ObserveTransition("none", string(enums.OrderStatusNew))
	return created, nil
}

// priceItems snapshots product names and prices. Redemption lines cost
// loyalty_points_cost points per unit instead of the price; their complements
// are still charged.
func (s *service) priceItems(ctx context.Context, tx *gorm.DB, draft Draft) ([]models.OrderItem, int, error) {
	ids := make([]uuid.UUID, 0, len(draft.Items))
	for _, item := range draft.Items {
		ids = append(ids, item.ProductID)
	}
	var products []models.Product
	err := tx.WithContext(ctx).
		Scopes(repo.TenantScope(draft.TenantID)).
		Where("id IN ?", ids).
		Find(&products).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]models.OrderItem, 0, len(draft.Items))
	points := 0
	for i, line := range draft.Items {
		product, ok := byID[line.ProductID]
		if !ok || !product.IsActive {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "product unavailable").
				WithDetails(map[string]any{"item": i, "product_id": line.ProductID.String()})
		}

		complements := make([]models.OrderItemComplement, 0, len(line.Complements))
		perUnit := decimal.Zero
		for _, c := range line.Complements {
			qty := c.Quantity
			if qty == 0 {
				qty = 1
			}
			complements = append(complements, models.OrderItemComplement{
				Name:     strings.TrimSpace(c.Name),
				Price:    c.Price,
				Quantity: qty,
			})
			perUnit = perUnit.Add(c.Price.Mul(decimal.NewFromInt(int64(qty))))
		}

		unitPrice := product.Price
		cost := 0
		if line.LoyaltyRedemption {
			if !product.LoyaltyRedeemable || product.LoyaltyPointsCost <= 0 {
				return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "product cannot be redeemed with points").
					WithDetails(map[string]any{"item": i, "product_id": product.ID.String()})
			}
			unitPrice = decimal.Zero
			cost = product.LoyaltyPointsCost * line.Quantity
			points += cost
		}

		qty := decimal.NewFromInt(int64(line.Quantity))
		items = append(items, models.OrderItem{
			ProductID:           product.ID,
			ProductName:         product.Name,
			UnitPrice:           unitPrice,
			Quantity:            line.Quantity,
			ComplementsSubtotal: perUnit.Mul(qty),
			LineTotal:           unitPrice.Add(perUnit).Mul(qty),
			IsLoyaltyRedemption: line.LoyaltyRedemption,
			LoyaltyPointsCost:   cost,
			Notes:               line.Notes,
			Complements:         complements,
		})
	}
	return items, points, nil
}

// validateDraft covers the cross-field rules struct tags cannot express.
func validateDraft(draft Draft) error {
	if draft.Mode == enums.OrderModeTable && (draft.TableLabel == nil || strings.TrimSpace(*draft.TableLabel) == "") {
		return pkgerrors.New(pkgerrors.CodeValidation, "table orders require a table label")
	}
	if draft.Mode != enums.OrderModeDelivery && draft.DeliveryFee.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery fee only applies to delivery orders")
	}
	return nil
}

// orderTotal is subtotal - discount + fees + tip, never below zero.
func orderTotal(subtotal, discount decimal.Decimal, draft Draft) decimal.Decimal {
	total := subtotal.Sub(discount).Add(draft.DeliveryFee).Add(draft.ServiceFee).Add(draft.Tip)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(2)
}

func loadCustomer(ctx context.Context, tx *gorm.DB, tenantID, customerID uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := tx.WithContext(ctx).
		Scopes(repo.TenantScope(tenantID)).
		Where("id = ?", customerID).
		First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return &customer, nil
}
