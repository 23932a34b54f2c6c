package inventory

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/validate"
)

// maxProductDelta bounds a single product adjustment so the integer stock
// column cannot overflow.
var maxProductDelta = decimal.NewFromInt(math.MaxInt32)

func validateRestock(input RestockInput) error {
	if err := validate.Struct(input); err != nil {
		return err
	}
	if !input.Type.IsRestock() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("movement type %s cannot be used to restock", input.Type))
	}
	if input.Quantity.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be zero")
	}
	if input.Type == enums.StockMovementPurchase && input.Quantity.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "purchase quantity must be positive")
	}
	if input.Subject == enums.StockSubjectProduct {
		if !input.Quantity.IsInteger() {
			return pkgerrors.New(pkgerrors.CodeValidation, "product quantity must be a whole number")
		}
		if input.Quantity.Abs().GreaterThan(maxProductDelta) {
			return pkgerrors.New(pkgerrors.CodeValidation, "product quantity out of range").
				WithDetails(map[string]any{"max": maxProductDelta.String()})
		}
	}
	return nil
}

// restockTx returns the movement written and any low-stock alert it raised.
func (l *ledger) restockTx(ctx context.Context, tx *gorm.DB, input RestockInput) (*Movement, []LowStockAlert, error) {
	if err := validateRestock(input); err != nil {
		return nil, nil, err
	}
	description := strings.TrimSpace(input.Description)
	now := l.now().UTC()
	floor := !l.allowNegative

	switch input.Subject {
	case enums.StockSubjectProduct:
		products, err := l.lockProducts(ctx, tx, input.TenantID, []uuid.UUID{input.SubjectID})
		if err != nil {
			return nil, nil, err
		}
		if !products[input.SubjectID].TrackStock {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "product does not track stock")
		}
		delta := int(input.Quantity.IntPart())
		balance, err := l.shiftProduct(ctx, tx, input.TenantID, input.SubjectID, delta, floor)
		if err != nil {
			return nil, nil, err
		}
		movement := models.StockMovement{
			TenantID:     input.TenantID,
			ProductID:    input.SubjectID,
			Type:         input.Type,
			Quantity:     delta,
			BalanceAfter: balance,
			ActorID:      input.Actor.UserRef(),
			Description:  description,
			CreatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return nil, nil, l.writeFailed(ctx, err, "append product movement")
		}
		out := fromProductMovement(movement)
		return &out, nil, nil

	default:
		if _, err := l.lockIngredients(ctx, tx, input.TenantID, []uuid.UUID{input.SubjectID}); err != nil {
			return nil, nil, err
		}
		state, err := l.shiftIngredient(ctx, tx, input.TenantID, input.SubjectID, input.Quantity, floor)
		if err != nil {
			return nil, nil, err
		}
		movement := models.IngredientMovement{
			TenantID:     input.TenantID,
			IngredientID: input.SubjectID,
			Type:         input.Type,
			Quantity:     input.Quantity,
			BalanceAfter: state.Stock,
			ActorID:      input.Actor.UserRef(),
			Description:  description,
			CreatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return nil, nil, l.writeFailed(ctx, err, "append ingredient movement")
		}
		var alerts []LowStockAlert
		if input.Quantity.IsNegative() && state.Stock.LessThanOrEqual(state.MinStock) {
			alerts = append(alerts, LowStockAlert{IngredientID: input.SubjectID, Name: state.Name, Stock: state.Stock, MinStock: state.MinStock})
			if err := l.notifyLowStock(ctx, tx, input.TenantID, nil, input.Actor, alerts); err != nil {
				return nil, nil, err
			}
		}
		out := fromIngredientMovement(movement)
		return &out, alerts, nil
	}
}
