package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	"github.com/angelmondragon/comanda-backend/pkg/pagination"
	"github.com/angelmondragon/comanda-backend/pkg/types"
)

// DraftComplement is a selected complement option, priced per unit of its item.
type DraftComplement struct {
	Name     string          `json:"name" validate:"required,max=120"`
	Price    decimal.Decimal `json:"price" validate:"dnonneg"`
	Quantity int             `json:"quantity" validate:"gte=0"`
}

// DraftItem is one requested line. LoyaltyRedemption pays the product price in points.
type DraftItem struct {
	ProductID         uuid.UUID         `json:"product_id" validate:"required"`
	Quantity          int               `json:"quantity" validate:"gt=0"`
	Notes             *string           `json:"notes" validate:"omitempty,max=255"`
	LoyaltyRedemption bool              `json:"loyalty_redemption"`
	Complements       []DraftComplement `json:"complements" validate:"dive"`
}

// Draft is the intake payload for Create.
type Draft struct {
	TenantID    uuid.UUID       `json:"tenant_id" validate:"required"`
	Mode        enums.OrderMode `json:"mode" validate:"required,oneof=delivery pickup table"`
	CustomerID  *uuid.UUID      `json:"customer_id"`
	CouponCode  string          `json:"coupon_code" validate:"max=64"`
	TableLabel  *string         `json:"table_label" validate:"omitempty,max=32"`
	DeliveryFee decimal.Decimal `json:"delivery_fee" validate:"dnonneg"`
	ServiceFee  decimal.Decimal `json:"service_fee" validate:"dnonneg"`
	Tip         decimal.Decimal `json:"tip" validate:"dnonneg"`
	Notes       *string         `json:"notes" validate:"omitempty,max=500"`
	Items       []DraftItem     `json:"items" validate:"required,min=1,dive"`
	Actor       types.Actor     `json:"-"`
}

// TransitionInput addresses one order for a lifecycle move.
type TransitionInput struct {
	TenantID uuid.UUID   `json:"tenant_id" validate:"required"`
	OrderID  uuid.UUID   `json:"order_id" validate:"required"`
	Actor    types.Actor `json:"-"`
}

// AssignInput hands a waiting delivery to a courier.
type AssignInput struct {
	TransitionInput
	MotoboyID uuid.UUID `json:"motoboy_id" validate:"required"`
}

// CancelInput cancels an order.
type CancelInput struct {
	TransitionInput
	Reason string `json:"reason" validate:"required,max=255"`
}

// PaymentInput records the payment outcome reported by the gateway surface.
type PaymentInput struct {
	TransitionInput
	Status enums.PaymentStatus `json:"status" validate:"required,oneof=pending paid failed refunded"`
}

// ListParams filters a tenant's orders.
type ListParams struct {
	TenantID uuid.UUID
	Statuses []enums.OrderStatus
	pagination.Params
}

// Detail is an order with its derived timing.
type Detail struct {
	Order  models.Order `json:"order"`
	Timing Timing       `json:"timing"`
}

// Timing is the derived preparation clock of an order.
type Timing struct {
	ElapsedMinutes int              `json:"elapsed_minutes"`
	BudgetMinutes  int              `json:"budget_minutes"`
	Status         enums.TimeStatus `json:"time_status"`
	IsLate         bool             `json:"is_late"`
	EvaluatedAt    time.Time        `json:"evaluated_at"`
}
