package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/comanda-backend/pkg/validate"
)

// ReverseTx restores everything an order's sale movements deducted by writing
// reversal movements. A second call for the same order is a no-op.
func (l *ledger) ReverseTx(ctx context.Context, tx *gorm.DB, input ReverseInput) (*ReverseResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	result := &ReverseResult{OrderID: input.OrderID, Movements: []Movement{}}

	reversed, err := l.orderHasMovements(ctx, tx, input.TenantID, input.OrderID, enums.StockMovementReversal)
	if err != nil {
		return nil, err
	}
	if reversed {
		result.AlreadyReversed = true
		return result, nil
	}

	var productSales []models.StockMovement
	err = tx.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ? AND type = ?", input.TenantID, input.OrderID, enums.StockMovementSale).
		Find(&productSales).Error
	if err != nil {
		return nil, l.writeFailed(ctx, err, "load product sales")
	}
	var ingredientSales []models.IngredientMovement
	err = tx.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ? AND type = ?", input.TenantID, input.OrderID, enums.StockMovementSale).
		Find(&ingredientSales).Error
	if err != nil {
		return nil, l.writeFailed(ctx, err, "load ingredient sales")
	}
	if len(productSales) == 0 && len(ingredientSales) == 0 {
		return result, nil
	}

	restoreProducts := map[uuid.UUID]int{}
	for _, m := range productSales {
		restoreProducts[m.ProductID] -= m.Quantity
	}
	restoreIngredients := map[uuid.UUID]decimal.Decimal{}
	for _, m := range ingredientSales {
		restoreIngredients[m.IngredientID] = restoreIngredients[m.IngredientID].Sub(m.Quantity)
	}

	description := strings.TrimSpace(input.Reason)
	if description == "" {
		description = "order inventory reversal"
	}
	now := l.now().UTC()
	orderID := input.OrderID

	productIDs := sortedIDs(restoreProducts)
	if _, err := l.lockProducts(ctx, tx, input.TenantID, productIDs); err != nil {
		return nil, err
	}
	productCount := 0
	for _, id := range productIDs {
		balance, err := l.shiftProduct(ctx, tx, input.TenantID, id, restoreProducts[id], false)
		if err != nil {
			return nil, err
		}
		movement := models.StockMovement{
			TenantID:     input.TenantID,
			ProductID:    id,
			Type:         enums.StockMovementReversal,
			Quantity:     restoreProducts[id],
			BalanceAfter: balance,
			OrderID:      &orderID,
			ActorID:      input.Actor.UserRef(),
			Description:  description,
			CreatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return nil, l.writeFailed(ctx, err, "append product reversal")
		}
		result.Movements = append(result.Movements, fromProductMovement(movement))
		productCount++
	}

	// Soft-deleted ingredients are still restored so the ledger stays balanced.
	ingredientIDs := sortedIDs(restoreIngredients)
	ingredientCount := 0
	for _, id := range ingredientIDs {
		state, err := l.shiftIngredient(ctx, tx, input.TenantID, id, restoreIngredients[id], false)
		if err != nil {
			return nil, err
		}
		movement := models.IngredientMovement{
			TenantID:     input.TenantID,
			IngredientID: id,
			Type:         enums.StockMovementReversal,
			Quantity:     restoreIngredients[id],
			BalanceAfter: state.Stock,
			OrderID:      &orderID,
			ActorID:      input.Actor.UserRef(),
			Description:  description,
			CreatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return nil, l.writeFailed(ctx, err, "append ingredient reversal")
		}
		result.Movements = append(result.Movements, fromIngredientMovement(movement))
		ingredientCount++
	}

	event := outbox.DomainEvent{
		TenantID:      input.TenantID,
		EventType:     enums.EventInventoryReversed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   input.OrderID,
		Actor:         outbox.ActorFrom(input.Actor),
		Data: payloads.InventoryReversedEvent{
			OrderID:             input.OrderID,
			ProductMovements:    productCount,
			IngredientMovements: ingredientCount,
		},
	}
	if err := l.outbox.Emit(ctx, tx, event); err != nil {
		return nil, l.writeFailed(ctx, err, "emit inventory reversed")
	}
	return result, nil
}
