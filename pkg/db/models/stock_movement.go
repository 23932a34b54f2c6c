package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/enums"
)

// StockMovement is an append-only ledger row for product stock.
type StockMovement struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TenantID     uuid.UUID               `gorm:"column:tenant_id;type:uuid;not null;index"`
	ProductID    uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	Type         enums.StockMovementType `gorm:"column:type;type:stock_movement_type;not null"`
	Quantity     int                     `gorm:"column:quantity;not null"`
	BalanceAfter int                     `gorm:"column:balance_after;not null"`
	OrderID      *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	ActorID      *uuid.UUID              `gorm:"column:actor_id;type:uuid"`
	Description  string                  `gorm:"column:description;not null;default:''"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// IngredientMovement is the ingredient-side counterpart of StockMovement.
type IngredientMovement struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TenantID     uuid.UUID               `gorm:"column:tenant_id;type:uuid;not null;index"`
	IngredientID uuid.UUID               `gorm:"column:ingredient_id;type:uuid;not null;index"`
	Type         enums.StockMovementType `gorm:"column:type;type:stock_movement_type;not null"`
	Quantity     decimal.Decimal         `gorm:"column:quantity;type:numeric(14,3);not null"`
	BalanceAfter decimal.Decimal         `gorm:"column:balance_after;type:numeric(14,3);not null"`
	OrderID      *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	ActorID      *uuid.UUID              `gorm:"column:actor_id;type:uuid"`
	Description  string                  `gorm:"column:description;not null;default:''"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (m *IngredientMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
