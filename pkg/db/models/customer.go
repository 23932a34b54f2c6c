package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/enums"
)

// Customer holds loyalty state. Phone and Email are stored encrypted.
type Customer struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	TenantID      uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null;index;uniqueIndex:idx_customers_referral_code"`
	Name          string         `gorm:"column:name;not null"`
	Phone         string         `gorm:"column:phone;not null;default:''"`
	Email         string         `gorm:"column:email;not null;default:''"`
	LoyaltyPoints int            `gorm:"column:loyalty_points;not null;default:0"`
	LoyaltyTier   string         `gorm:"column:loyalty_tier;not null;default:''"`
	ReferralCode  string         `gorm:"column:referral_code;not null;uniqueIndex:idx_customers_referral_code"`
	ReferredBy    *uuid.UUID     `gorm:"column:referred_by;type:uuid"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt     gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (c *Customer) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// LoyaltyPointsHistory is the append-only points ledger.
type LoyaltyPointsHistory struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	TenantID    uuid.UUID              `gorm:"column:tenant_id;type:uuid;not null;index"`
	CustomerID  uuid.UUID              `gorm:"column:customer_id;type:uuid;not null;index"`
	Points      int                    `gorm:"column:points;not null"`
	Type        enums.LoyaltyEntryType `gorm:"column:type;type:loyalty_entry_type;not null"`
	OrderID     *uuid.UUID             `gorm:"column:order_id;type:uuid"`
	ActorID     *uuid.UUID             `gorm:"column:actor_id;type:uuid"`
	Description string                 `gorm:"column:description;not null;default:''"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (LoyaltyPointsHistory) TableName() string { return "loyalty_points_history" }

func (h *LoyaltyPointsHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}
