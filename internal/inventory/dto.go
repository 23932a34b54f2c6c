package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	"github.com/angelmondragon/comanda-backend/pkg/pagination"
	"github.com/angelmondragon/comanda-backend/pkg/types"
)

// Item is one sold line to be deducted.
type Item struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

// ConsumeInput deducts stock for a sale. OrderID links the movements to an order.
type ConsumeInput struct {
	TenantID    uuid.UUID   `json:"tenant_id" validate:"required"`
	OrderID     *uuid.UUID  `json:"order_id"`
	Items       []Item      `json:"items" validate:"required,min=1,dive"`
	Actor       types.Actor `json:"-"`
	Description string      `json:"description" validate:"max=255"`
}

// RestockInput is a manual or purchase adjustment of one subject.
type RestockInput struct {
	TenantID    uuid.UUID               `json:"tenant_id" validate:"required"`
	Subject     enums.StockSubjectKind  `json:"subject" validate:"required,oneof=product ingredient"`
	SubjectID   uuid.UUID               `json:"subject_id" validate:"required"`
	Type        enums.StockMovementType `json:"type" validate:"required,oneof=purchase manual adjustment"`
	Quantity    decimal.Decimal         `json:"quantity"`
	Description string                  `json:"description" validate:"max=255"`
	Actor       types.Actor             `json:"-"`
}

// ReverseInput restores the stock an order consumed.
type ReverseInput struct {
	TenantID uuid.UUID   `json:"tenant_id" validate:"required"`
	OrderID  uuid.UUID   `json:"order_id" validate:"required"`
	Reason   string      `json:"reason" validate:"max=255"`
	Actor    types.Actor `json:"-"`
}

// ListParams selects the movement history of one subject.
type ListParams struct {
	TenantID  uuid.UUID
	Subject   enums.StockSubjectKind
	SubjectID uuid.UUID
	pagination.Params
}

// Movement is a ledger row of either subject kind.
type Movement struct {
	ID           uuid.UUID               `json:"id"`
	Subject      enums.StockSubjectKind  `json:"subject"`
	SubjectID    uuid.UUID               `json:"subject_id"`
	Type         enums.StockMovementType `json:"type"`
	Quantity     decimal.Decimal         `json:"quantity"`
	BalanceAfter decimal.Decimal         `json:"balance_after"`
	OrderID      *uuid.UUID              `json:"order_id,omitempty"`
	ActorID      *uuid.UUID              `json:"actor_id,omitempty"`
	Description  string                  `json:"description"`
	CreatedAt    time.Time               `json:"created_at"`
}

// LowStockAlert describes an ingredient that reached its threshold.
type LowStockAlert struct {
	IngredientID uuid.UUID       `json:"ingredient_id"`
	Name         string          `json:"name"`
	Stock        decimal.Decimal `json:"stock"`
	MinStock     decimal.Decimal `json:"min_stock"`
}

// ConsumeResult lists the movements written by a consumption.
type ConsumeResult struct {
	Movements []Movement      `json:"movements"`
	LowStock  []LowStockAlert `json:"low_stock"`
}

// ReverseResult lists the compensating movements. AlreadyReversed is set when a
// previous call did the work.
type ReverseResult struct {
	OrderID         uuid.UUID  `json:"order_id"`
	Movements       []Movement `json:"movements"`
	AlreadyReversed bool       `json:"already_reversed"`
}

// BalanceCheck compares a subject's stored stock with its ledger.
type BalanceCheck struct {
	Subject     enums.StockSubjectKind `json:"subject"`
	SubjectID   uuid.UUID              `json:"subject_id"`
	Opening     decimal.Decimal        `json:"opening"`
	MovementSum decimal.Decimal        `json:"movement_sum"`
	Current     decimal.Decimal        `json:"current"`
	Consistent  bool                   `json:"consistent"`
}

func fromProductMovement(m models.StockMovement) Movement {
	return Movement{
		ID:           m.ID,
		Subject:      enums.StockSubjectProduct,
		SubjectID:    m.ProductID,
		Type:         m.Type,
		Quantity:     decimal.NewFromInt(int64(m.Quantity)),
		BalanceAfter: decimal.NewFromInt(int64(m.BalanceAfter)),
		OrderID:      m.OrderID,
		ActorID:      m.ActorID,
		Description:  m.Description,
		CreatedAt:    m.CreatedAt,
	}
}

func fromIngredientMovement(m models.IngredientMovement) Movement {
	return Movement{
		ID:           m.ID,
		Subject:      enums.StockSubjectIngredient,
		SubjectID:    m.IngredientID,
		Type:         m.Type,
		Quantity:     m.Quantity,
		BalanceAfter: m.BalanceAfter,
		OrderID:      m.OrderID,
		ActorID:      m.ActorID,
		Description:  m.Description,
		CreatedAt:    m.CreatedAt,
	}
}
