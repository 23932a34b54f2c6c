package enums

import "fmt"

// StockMovementType classifies a ledger row on stock_movements / ingredient_movements.
type StockMovementType string

const (
	StockMovementSale       StockMovementType = "sale"
	StockMovementPurchase   StockMovementType = "purchase"
	StockMovementManual     StockMovementType = "manual"
	StockMovementAdjustment StockMovementType = "adjustment"
	StockMovementReversal   StockMovementType = "reversal"
)

var validStockMovementTypes = []StockMovementType{
	StockMovementSale,
	StockMovementPurchase,
	StockMovementManual,
	StockMovementAdjustment,
	StockMovementReversal,
}

// IsValid reports whether the value is a known StockMovementType.
func (t StockMovementType) IsValid() bool {
	for _, candidate := range validStockMovementTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsRestock reports whether the type may be written through Restock.
func (t StockMovementType) IsRestock() bool {
	switch t {
	case StockMovementPurchase, StockMovementManual, StockMovementAdjustment:
		return true
	default:
		return false
	}
}

// ParseStockMovementType converts raw input into StockMovementType.
func ParseStockMovementType(value string) (StockMovementType, error) {
	for _, candidate := range validStockMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement type %q", value)
}

// StockSubjectKind identifies which balance a movement touches.
type StockSubjectKind string

const (
	StockSubjectProduct    StockSubjectKind = "product"
	StockSubjectIngredient StockSubjectKind = "ingredient"
)

// IsValid reports whether the value is a known StockSubjectKind.
func (k StockSubjectKind) IsValid() bool {
	return k == StockSubjectProduct || k == StockSubjectIngredient
}
