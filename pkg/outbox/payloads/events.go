package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/comanda-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when intake persists a new order.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	Number     int64           `json:"number"`
	Mode       enums.OrderMode `json:"mode"`
	Total      decimal.Decimal `json:"total"`
	CustomerID *uuid.UUID      `json:"customer_id,omitempty"`
}

// OrderStatusChangedEvent is emitted for every forward transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	Number    int64             `json:"number"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	MotoboyID *uuid.UUID        `json:"motoboy_id,omitempty"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderCancelledEvent tells downstream systems an order was cancelled. InventoryConsumed
// is true when stock had already been deducted, so an operator can decide on a reversal.
type OrderCancelledEvent struct {
	OrderID           uuid.UUID         `json:"order_id"`
	Number            int64             `json:"number"`
	From              enums.OrderStatus `json:"from"`
	Reason            string            `json:"reason"`
	InventoryConsumed bool              `json:"inventory_consumed"`
	CancelledAt       time.Time         `json:"cancelled_at"`
}

// OrderLateEvent is emitted once per order that overruns its estimated ready time.
type OrderLateEvent struct {
	OrderID          uuid.UUID         `json:"order_id"`
	Number           int64             `json:"number"`
	Status           enums.OrderStatus `json:"status"`
	EstimatedReadyAt time.Time         `json:"estimated_ready_at"`
	MinutesLate      int               `json:"minutes_late"`
}

// StockLowEvent asks the notifier to alert tenant staff about a subject at or below its threshold.
type StockLowEvent struct {
	SubjectKind   enums.StockSubjectKind `json:"subject_kind"`
	SubjectID     uuid.UUID              `json:"subject_id"`
	Name          string                 `json:"name"`
	Stock         decimal.Decimal        `json:"stock"`
	MinStock      decimal.Decimal        `json:"min_stock"`
	OrderID       *uuid.UUID             `json:"order_id,omitempty"`
	NotifyUserIDs []uuid.UUID            `json:"notify_user_ids"`
}

// InventoryReversedEvent records a compensating reversal of an order's consumption.
type InventoryReversedEvent struct {
	OrderID             uuid.UUID `json:"order_id"`
	ProductMovements    int       `json:"product_movements"`
	IngredientMovements int       `json:"ingredient_movements"`
}

// LoyaltyPointsEvent is shared by earn and redeem notifications.
type LoyaltyPointsEvent struct {
	CustomerID uuid.UUID  `json:"customer_id"`
	Points     int        `json:"points"`
	Balance    int        `json:"balance"`
	OrderID    *uuid.UUID `json:"order_id,omitempty"`
}

// LoyaltyTierChangedEvent is emitted when a recompute persists a different tier.
type LoyaltyTierChangedEvent struct {
	CustomerID uuid.UUID `json:"customer_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Balance    int       `json:"balance"`
}

// CouponRedeemedEvent is emitted the first time a coupon usage is recorded for an order.
type CouponRedeemedEvent struct {
	CouponID    uuid.UUID       `json:"coupon_id"`
	Code        string          `json:"code"`
	OrderID     uuid.UUID       `json:"order_id"`
	CustomerID  *uuid.UUID      `json:"customer_id,omitempty"`
	Discount    decimal.Decimal `json:"discount"`
	CurrentUses int             `json:"current_uses"`
}
