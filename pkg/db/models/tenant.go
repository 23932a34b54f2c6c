package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/enums"
)

// Tenant is an independent business account. Nil Max* fields fall back to the plan defaults.
type Tenant struct {
	ID                       uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Name                     string              `gorm:"column:name;not null"`
	Slug                     string              `gorm:"column:slug;not null;uniqueIndex:idx_tenants_slug"`
	Plan                     enums.TenantPlan    `gorm:"column:plan;type:tenant_plan;not null;default:'free'"`
	MaxProducts              *int                `gorm:"column:max_products"`
	MaxUsers                 *int                `gorm:"column:max_users"`
	MaxCategories            *int                `gorm:"column:max_categories"`
	MaxCoupons               *int                `gorm:"column:max_coupons"`
	MaxOrdersPerMonth        *int                `gorm:"column:max_orders_per_month"`
	PreparationTimeMinutes   *int                `gorm:"column:preparation_time_minutes"`
	LoyaltyEnabled           bool                `gorm:"column:loyalty_enabled;not null;default:false"`
	LoyaltyPointsPerCurrency decimal.NullDecimal `gorm:"column:loyalty_points_per_currency;type:numeric(10,4)"`
	LastOrderNumber          int64               `gorm:"column:last_order_number;not null;default:0"`
	SubscriptionEndsAt       *time.Time          `gorm:"column:subscription_ends_at"`
	CreatedAt                time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt                gorm.DeletedAt      `gorm:"column:deleted_at;index"`
}

func (t *Tenant) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// LoyaltyTier is one row of a tenant's configured tier table.
type LoyaltyTier struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID   uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null;index"`
	Name       string          `gorm:"column:name;not null"`
	MinPoints  int             `gorm:"column:min_points;not null;default:0"`
	Multiplier decimal.Decimal `gorm:"column:multiplier;type:numeric(6,3);not null;default:1"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (t *LoyaltyTier) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
