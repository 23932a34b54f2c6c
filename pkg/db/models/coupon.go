package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/enums"
)

// Coupon is a tenant-scoped discount code. A nil MaxUses means unlimited.
type Coupon struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TenantID             uuid.UUID          `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:idx_coupons_tenant_code"`
	Code                 string             `gorm:"column:code;not null;uniqueIndex:idx_coupons_tenant_code"`
	DiscountType         enums.DiscountType `gorm:"column:discount_type;type:discount_type;not null"`
	DiscountValue        decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MinOrderValue        decimal.Decimal    `gorm:"column:min_order_value;type:numeric(12,2);not null;default:0"`
	MaxUses              *int               `gorm:"column:max_uses"`
	CurrentUses          int                `gorm:"column:current_uses;not null;default:0"`
	SingleUsePerCustomer bool               `gorm:"column:single_use_per_customer;not null;default:false"`
	ValidFrom            *time.Time         `gorm:"column:valid_from"`
	ValidUntil           *time.Time         `gorm:"column:valid_until"`
	IsActive             bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt            gorm.DeletedAt     `gorm:"column:deleted_at;index"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CouponUsage records one redemption. SingleUseCustomerID is only populated for
// single-use-per-customer coupons so the (coupon, customer) unique index applies to them alone.
type CouponUsage struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID            uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null;index"`
	CouponID            uuid.UUID       `gorm:"column:coupon_id;type:uuid;not null;uniqueIndex:idx_coupon_usages_order;uniqueIndex:idx_coupon_usages_single_use"`
	OrderID             uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_coupon_usages_order"`
	CustomerID          *uuid.UUID      `gorm:"column:customer_id;type:uuid"`
	SingleUseCustomerID *uuid.UUID      `gorm:"column:single_use_customer_id;type:uuid;uniqueIndex:idx_coupon_usages_single_use"`
	DiscountAmount      decimal.Decimal `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	ActorID             *uuid.UUID      `gorm:"column:actor_id;type:uuid"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (u *CouponUsage) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
