package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/recipes"
	"github.com/angelmondragon/comanda-backend/internal/repo"
	"github.com/angelmondragon/comanda-backend/internal/tenants"
	"github.com/angelmondragon/comanda-backend/pkg/db"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/metrics"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/pagination"
)

type database interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Ledger is the single writer of product and ingredient stock. Every balance
// change is paired with a movement row in the same transaction.
type Ledger interface {
	Consume(ctx context.Context, input ConsumeInput) (*ConsumeResult, error)
	ConsumeTx(ctx context.Context, tx *gorm.DB, input ConsumeInput) (*ConsumeResult, error)
	Restock(ctx context.Context, input RestockInput) (*Movement, error)
	Reverse(ctx context.Context, input ReverseInput) (*ReverseResult, error)
	ReverseTx(ctx context.Context, tx *gorm.DB, input ReverseInput) (*ReverseResult, error)
	// RecordConsumed and RecordReversed count committed ledger writes. Callers
	// that own the transaction invoke them after commit.
	RecordConsumed(result *ConsumeResult)
	RecordReversed(result *ReverseResult)
	VerifyBalance(ctx context.Context, tenantID uuid.UUID, subject enums.StockSubjectKind, subjectID uuid.UUID) (*BalanceCheck, error)
	ListMovements(ctx context.Context, params ListParams) (*pagination.Page[Movement], error)
}

// LedgerParams wires the ledger collaborators.
type LedgerParams struct {
	DB                 database
	Recipes            *recipes.Resolver
	Tenants            *tenants.Reader
	Outbox             outboxPublisher
	Metrics            *metrics.DomainMetrics
	Logger             *logger.Logger
	AllowNegativeStock bool
}

type ledger struct {
	db            database
	base          repo.Base
	recipes       *recipes.Resolver
	tenants       *tenants.Reader
	outbox        outboxPublisher
	metrics       *metrics.DomainMetrics
	logg          *logger.Logger
	allowNegative bool
	now           func() time.Time
}

// NewLedger builds the inventory ledger.
func NewLedger(params LedgerParams) (Ledger, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database required")
	}
	if params.Recipes == nil {
		return nil, fmt.Errorf("recipe resolver required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenant settings reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &ledger{
		db:            params.DB,
		base:          repo.NewBase(params.DB.DB()),
		recipes:       params.Recipes,
		tenants:       params.Tenants,
		outbox:        params.Outbox,
		metrics:       params.Metrics,
		logg:          logg,
		allowNegative: params.AllowNegativeStock,
		now:           time.Now,
	}, nil
}

func (l *ledger) Consume(ctx context.Context, input ConsumeInput) (*ConsumeResult, error) {
	var result *ConsumeResult
	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = l.ConsumeTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.RecordConsumed(result)
	return result, nil
}

func (l *ledger) Restock(ctx context.Context, input RestockInput) (*Movement, error) {
	var (
		movement *Movement
		alerts   []LowStockAlert
	)
	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		movement, alerts, err = l.restockTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.metrics.AddStockMovements(string(movement.Subject), string(movement.Type), 1)
	l.recordLowStock(alerts)
	return movement, nil
}

func (l *ledger) Reverse(ctx context.Context, input ReverseInput) (*ReverseResult, error) {
	var result *ReverseResult
	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = l.ReverseTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.RecordReversed(result)
	return result, nil
}

// ingredientState is the ingredient row read back after an update.
type ingredientState struct {
	Name     string
	Stock    decimal.Decimal
	MinStock decimal.Decimal
}

func (l *ledger) lockProducts(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	var rows []models.Product
	err := db.ForUpdate(tx.WithContext(ctx)).
		Unscoped().
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, l.writeFailed(ctx, err, "lock products")
	}
	out := make(map[uuid.UUID]models.Product, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": id})
		}
	}
	return out, nil
}

func (l *ledger) lockIngredients(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Ingredient, error) {
	out := make(map[uuid.UUID]models.Ingredient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Ingredient
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, l.writeFailed(ctx, err, "lock ingredients")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ingredient not found").
				WithDetails(map[string]any{"ingredient_id": id})
		}
	}
	return out, nil
}

// shiftProduct applies delta to a product balance and returns the new balance.
// With floor set, a decrement that would go below zero is refused.
func (l *ledger) shiftProduct(ctx context.Context, tx *gorm.DB, tenantID, productID uuid.UUID, delta int, floor bool) (int, error) {
	query := tx.WithContext(ctx).Unscoped().Model(&models.Product{}).
		Where("id = ? AND tenant_id = ?", productID, tenantID)
	if floor && delta < 0 {
		query = query.Where("COALESCE(stock_quantity, 0) + ? >= 0", delta)
	}
	res := query.UpdateColumn("stock_quantity", gorm.Expr("COALESCE(stock_quantity, 0) + ?", delta))
	if res.Error != nil {
		return 0, l.writeFailed(ctx, res.Error, "update product stock")
	}
	if res.RowsAffected == 0 {
		if floor && delta < 0 {
			return 0, pkgerrors.New(pkgerrors.CodeStockUnavailable, "insufficient product stock").
				WithDetails(map[string]any{"product_id": productID, "requested": -delta})
		}
		return 0, l.writeFailed(ctx, fmt.Errorf("product %s not updated", productID), "update product stock")
	}

	var row struct{ StockQuantity *int }
	err := tx.WithContext(ctx).Unscoped().Model(&models.Product{}).
		Select("stock_quantity").
		Where("id = ?", productID).
		Scan(&row).Error
	if err != nil {
		return 0, l.writeFailed(ctx, err, "read product stock")
	}
	if row.StockQuantity == nil {
		return 0, nil
	}
	return *row.StockQuantity, nil
}

func (l *ledger) shiftIngredient(ctx context.Context, tx *gorm.DB, tenantID, ingredientID uuid.UUID, delta decimal.Decimal, floor bool) (*ingredientState, error) {
	query := tx.WithContext(ctx).Unscoped().Model(&models.Ingredient{}).
		Where("id = ? AND tenant_id = ?", ingredientID, tenantID)
	if floor && delta.IsNegative() {
		query = query.Where("stock + ? >= 0", delta)
	}
	res := query.UpdateColumn("stock", gorm.Expr("stock + ?", delta))
	if res.Error != nil {
		return nil, l.writeFailed(ctx, res.Error, "update ingredient stock")
	}
	if res.RowsAffected == 0 {
		if floor && delta.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeStockUnavailable, "insufficient ingredient stock").
				WithDetails(map[string]any{"ingredient_id": ingredientID, "requested": delta.Neg().String()})
		}
		return nil, l.writeFailed(ctx, fmt.Errorf("ingredient %s not updated", ingredientID), "update ingredient stock")
	}

	var state ingredientState
	err := tx.WithContext(ctx).Unscoped().Model(&models.Ingredient{}).
		Select("name, stock, min_stock").
		Where("id = ?", ingredientID).
		Scan(&state).Error
	if err != nil {
		return nil, l.writeFailed(ctx, err, "read ingredient stock")
	}
	return &state, nil
}

// writeFailed converts persistence errors into InventoryWriteFailed after logging
// them. Business-rule errors pass through untouched.
func (l *ledger) writeFailed(ctx context.Context, err error, operation string) error {
	if pkgerrors.IsBusinessRule(err) || pkgerrors.HasCode(err, pkgerrors.CodeInventoryWriteFailed) {
		return err
	}
	l.logg.Error(l.logg.WithField(ctx, "operation", operation), "inventory write failed", err)
	l.metrics.IncRejection("inventory", string(pkgerrors.CodeInventoryWriteFailed))
	return pkgerrors.Wrap(pkgerrors.CodeInventoryWriteFailed, err, "inventory write failed")
}

func (l *ledger) RecordConsumed(result *ConsumeResult) {
	if result == nil {
		return
	}
	l.recordMovements(result.Movements, enums.StockMovementSale)
	l.recordLowStock(result.LowStock)
}

func (l *ledger) RecordReversed(result *ReverseResult) {
	if result == nil {
		return
	}
	l.recordMovements(result.Movements, enums.StockMovementReversal)
}

func (l *ledger) recordMovements(movements []Movement, movementType enums.StockMovementType) {
	products, ingredients := 0, 0
	for _, m := range movements {
		if m.Subject == enums.StockSubjectProduct {
			products++
		} else {
			ingredients++
		}
	}
	l.metrics.AddStockMovements(string(enums.StockSubjectProduct), string(movementType), products)
	l.metrics.AddStockMovements(string(enums.StockSubjectIngredient), string(movementType), ingredients)
}

func (l *ledger) recordLowStock(alerts []LowStockAlert) {
	for range alerts {
		l.metrics.IncLowStock(string(enums.StockSubjectIngredient))
	}
}

func sortedIDs[V any](m map[uuid.UUID]V) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
