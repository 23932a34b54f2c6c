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
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/comanda-backend/pkg/types"
	"github.com/angelmondragon/comanda-backend/pkg/validate"
)

// ConsumeTx deducts direct product stock and recipe-derived ingredient stock for
// the sold items inside tx. Subjects are locked in id order, products first.
// Metrics are left to the caller: pass the result to RecordConsumed once tx
// has committed.
func (l *ledger) ConsumeTx(ctx context.Context, tx *gorm.DB, input ConsumeInput) (*ConsumeResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if input.OrderID != nil {
		consumed, err := l.orderHasMovements(ctx, tx, input.TenantID, *input.OrderID, enums.StockMovementSale)
		if err != nil {
			return nil, err
		}
		if consumed {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "inventory already consumed for order")
		}
	}

	demand := make(map[uuid.UUID]int, len(input.Items))
	for _, item := range input.Items {
		demand[item.ProductID] += item.Quantity
	}
	productIDs := sortedIDs(demand)

	products, err := l.lockProducts(ctx, tx, input.TenantID, productIDs)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	description := strings.TrimSpace(input.Description)
	result := &ConsumeResult{Movements: []Movement{}, LowStock: []LowStockAlert{}}

	for _, id := range productIDs {
		if !products[id].TrackStock {
			continue
		}
		qty := demand[id]
		balance, err := l.shiftProduct(ctx, tx, input.TenantID, id, -qty, !l.allowNegative)
		if err != nil {
			return nil, err
		}
		movement := models.StockMovement{
			TenantID:     input.TenantID,
			ProductID:    id,
			Type:         enums.StockMovementSale,
			Quantity:     -qty,
			BalanceAfter: balance,
			OrderID:      input.OrderID,
			ActorID:      input.Actor.UserRef(),
			Description:  description,
			CreatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return nil, l.writeFailed(ctx, err, "append product movement")
		}
		result.Movements = append(result.Movements, fromProductMovement(movement))
	}

	lines, err := l.recipes.WithTx(tx).ResolveMany(ctx, input.TenantID, productIDs)
	if err != nil {
		return nil, l.writeFailed(ctx, err, "resolve recipes")
	}
	need := map[uuid.UUID]decimal.Decimal{}
	for _, productID := range productIDs {
		sold := decimal.NewFromInt(int64(demand[productID]))
		for _, line := range lines[productID] {
			need[line.IngredientID] = need[line.IngredientID].Add(line.PerUnit.Mul(sold))
		}
	}
	ingredientIDs := sortedIDs(need)
	if _, err := l.lockIngredients(ctx, tx, input.TenantID, ingredientIDs); err != nil {
		return nil, err
	}

	for _, id := range ingredientIDs {
		state, err := l.shiftIngredient(ctx, tx, input.TenantID, id, need[id].Neg(), !l.allowNegative)
		if err != nil {
			return nil, err
		}
		movement := models.IngredientMovement{
			TenantID:     input.TenantID,
			IngredientID: id,
			Type:         enums.StockMovementSale,
			Quantity:     need[id].Neg(),
			BalanceAfter: state.Stock,
			OrderID:      input.OrderID,
			ActorID:      input.Actor.UserRef(),
			Description:  description,
			CreatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return nil, l.writeFailed(ctx, err, "append ingredient movement")
		}
		result.Movements = append(result.Movements, fromIngredientMovement(movement))
		if state.Stock.LessThanOrEqual(state.MinStock) {
			result.LowStock = append(result.LowStock, LowStockAlert{
				IngredientID: id,
				Name:         state.Name,
				Stock:        state.Stock,
				MinStock:     state.MinStock,
			})
		}
	}

	if err := l.notifyLowStock(ctx, tx, input.TenantID, input.OrderID, input.Actor, result.LowStock); err != nil {
		return nil, err
	}
	return result, nil
}

// notifyLowStock queues one stock_low event per alert addressed to the tenant's
// owners and managers.
func (l *ledger) notifyLowStock(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, orderID *uuid.UUID, actor types.Actor, alerts []LowStockAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	staff, err := l.tenants.WithTx(tx).StaffToNotify(ctx, tenantID)
	if err != nil {
		return l.writeFailed(ctx, err, "load staff to notify")
	}
	for _, alert := range alerts {
		event := outbox.DomainEvent{
			TenantID:      tenantID,
			EventType:     enums.EventStockLow,
			AggregateType: enums.AggregateIngredient,
			AggregateID:   alert.IngredientID,
			Actor:         outbox.ActorFrom(actor),
			Data: payloads.StockLowEvent{
				SubjectKind:   enums.StockSubjectIngredient,
				SubjectID:     alert.IngredientID,
				Name:          alert.Name,
				Stock:         alert.Stock,
				MinStock:      alert.MinStock,
				OrderID:       orderID,
				NotifyUserIDs: staff,
			},
		}
		if err := l.outbox.Emit(ctx, tx, event); err != nil {
			return l.writeFailed(ctx, err, "emit stock low")
		}
	}
	l.logg.Warn(l.logg.WithFields(ctx, map[string]any{
		"tenant_id":   tenantID.String(),
		"alert_count": len(alerts),
	}), "ingredients at or below minimum stock")
	return nil
}

func (l *ledger) orderHasMovements(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, movementType enums.StockMovementType) (bool, error) {
	var products, ingredients int64
	err := tx.WithContext(ctx).Model(&models.StockMovement{}).
		Where("tenant_id = ? AND order_id = ? AND type = ?", tenantID, orderID, movementType).
		Count(&products).Error
	if err != nil {
		return false, l.writeFailed(ctx, err, "count product movements")
	}
	err = tx.WithContext(ctx).Model(&models.IngredientMovement{}).
		Where("tenant_id = ? AND order_id = ? AND type = ?", tenantID, orderID, movementType).
		Count(&ingredients).Error
	if err != nil {
		return false, l.writeFailed(ctx, err, "count ingredient movements")
	}
	return products+ingredients > 0, nil
}
