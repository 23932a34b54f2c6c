package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a sellable catalog item. StockQuantity is only meaningful when TrackStock is set.
type Product struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TenantID          uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	CategoryID        *uuid.UUID          `gorm:"column:category_id;type:uuid"`
	Name              string              `gorm:"column:name;not null"`
	Price             decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	IsActive          bool                `gorm:"column:is_active;not null;default:true"`
	TrackStock        bool                `gorm:"column:track_stock;not null;default:false"`
	StockQuantity     *int                `gorm:"column:stock_quantity"`
	OpeningStock      int                 `gorm:"column:opening_stock;not null;default:0"`
	LoyaltyRedeemable bool                `gorm:"column:loyalty_redeemable;not null;default:false"`
	LoyaltyPointsCost int                 `gorm:"column:loyalty_points_cost;not null;default:0"`
	Recipe            []ProductIngredient `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt         gorm.DeletedAt      `gorm:"column:deleted_at;index"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Ingredient is a raw material consumed through product recipes.
type Ingredient struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID     uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null;index"`
	Name         string          `gorm:"column:name;not null"`
	Unit         string          `gorm:"column:unit;not null;default:'un'"`
	Stock        decimal.Decimal `gorm:"column:stock;type:numeric(14,3);not null;default:0"`
	MinStock     decimal.Decimal `gorm:"column:min_stock;type:numeric(14,3);not null;default:0"`
	OpeningStock decimal.Decimal `gorm:"column:opening_stock;type:numeric(14,3);not null;default:0"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

func (i *Ingredient) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// ProductIngredient is the recipe pivot: Quantity of the ingredient per unit sold.
type ProductIngredient struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductID    uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_product_ingredients_pair"`
	IngredientID uuid.UUID       `gorm:"column:ingredient_id;type:uuid;not null;uniqueIndex:idx_product_ingredients_pair"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:numeric(14,3);not null"`
	Ingredient   *Ingredient     `gorm:"foreignKey:IngredientID"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (pi *ProductIngredient) BeforeCreate(*gorm.DB) error {
	ensureID(&pi.ID)
	return nil
}
