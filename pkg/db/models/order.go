package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/enums"
)

// Order is mutated only through the order state machine once created.
type Order struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TenantID             uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index;uniqueIndex:idx_orders_tenant_number"`
	Number               int64               `gorm:"column:number;not null;uniqueIndex:idx_orders_tenant_number"`
	Mode                 enums.OrderMode     `gorm:"column:mode;type:order_mode;not null"`
	Status               enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'new'"`
	PaymentStatus        enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	CustomerID           *uuid.UUID          `gorm:"column:customer_id;type:uuid;index"`
	CouponID             *uuid.UUID          `gorm:"column:coupon_id;type:uuid"`
	MotoboyID            *uuid.UUID          `gorm:"column:motoboy_id;type:uuid"`
	TableLabel           *string             `gorm:"column:table_label"`
	Subtotal             decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null;default:0"`
	Discount             decimal.Decimal     `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	DeliveryFee          decimal.Decimal     `gorm:"column:delivery_fee;type:numeric(12,2);not null;default:0"`
	ServiceFee           decimal.Decimal     `gorm:"column:service_fee;type:numeric(12,2);not null;default:0"`
	Tip                  decimal.Decimal     `gorm:"column:tip;type:numeric(12,2);not null;default:0"`
	Total                decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null;default:0"`
	LoyaltyPointsEarned  int                 `gorm:"column:loyalty_points_earned;not null;default:0"`
	LoyaltyPointsUsed    int                 `gorm:"column:loyalty_points_used;not null;default:0"`
	Notes                *string             `gorm:"column:notes"`
	CancellationReason   *string             `gorm:"column:cancellation_reason"`
	ConfirmedAt          *time.Time          `gorm:"column:confirmed_at"`
	PreparationStartedAt *time.Time          `gorm:"column:preparation_started_at"`
	EstimatedReadyAt     *time.Time          `gorm:"column:estimated_ready_at"`
	ReadyAt              *time.Time          `gorm:"column:ready_at"`
	MotoboyRequestedAt   *time.Time          `gorm:"column:motoboy_requested_at"`
	MotoboyAcceptedAt    *time.Time          `gorm:"column:motoboy_accepted_at"`
	DispatchedAt         *time.Time          `gorm:"column:dispatched_at"`
	DeliveredAt          *time.Time          `gorm:"column:delivered_at"`
	CancelledAt          *time.Time          `gorm:"column:cancelled_at"`
	InventoryReversedAt  *time.Time          `gorm:"column:inventory_reversed_at"`
	Items                []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt            gorm.DeletedAt      `gorm:"column:deleted_at;index"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem snapshots the product name and price at order time.
type OrderItem struct {
	ID                  uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID           uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	ProductName         string                `gorm:"column:product_name;not null"`
	UnitPrice           decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity            int                   `gorm:"column:quantity;not null"`
	ComplementsSubtotal decimal.Decimal       `gorm:"column:complements_subtotal;type:numeric(12,2);not null;default:0"`
	LineTotal           decimal.Decimal       `gorm:"column:line_total;type:numeric(12,2);not null"`
	IsLoyaltyRedemption bool                  `gorm:"column:is_loyalty_redemption;not null;default:false"`
	LoyaltyPointsCost   int                   `gorm:"column:loyalty_points_cost;not null;default:0"`
	Notes               *string               `gorm:"column:notes"`
	Complements         []OrderItemComplement `gorm:"foreignKey:OrderItemID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

type OrderItemComplement struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderItemID uuid.UUID       `gorm:"column:order_item_id;type:uuid;not null;index"`
	Name        string          `gorm:"column:name;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	Quantity    int             `gorm:"column:quantity;not null;default:1"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (c *OrderItemComplement) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// OrderStatusHistory records every committed transition.
type OrderStatusHistory struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TenantID   uuid.UUID          `gorm:"column:tenant_id;type:uuid;not null"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus *enums.OrderStatus `gorm:"column:from_status;type:order_status"`
	ToStatus   enums.OrderStatus  `gorm:"column:to_status;type:order_status;not null"`
	ActorID    *uuid.UUID         `gorm:"column:actor_id;type:uuid"`
	Reason     *string            `gorm:"column:reason"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}
