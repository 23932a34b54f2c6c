package recipes

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/repo"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
)

// Line is one ingredient of a recipe with its quantity per unit sold.
type Line struct {
	IngredientID uuid.UUID
	Name         string
	Unit         string
	PerUnit      decimal.Decimal
}

// Resolver reads recipes. It never writes.
type Resolver struct {
	base repo.Base
}

func NewResolver(conn *gorm.DB) (*Resolver, error) {
	if conn == nil {
		return nil, fmt.Errorf("database required")
	}
	return &Resolver{base: repo.NewBase(conn)}, nil
}

// WithTx returns a resolver bound to tx.
func (r *Resolver) WithTx(tx *gorm.DB) *Resolver {
	return &Resolver{base: r.base.WithTx(tx)}
}

// Resolve returns the recipe of a single product. Products without a recipe yield an empty slice.
func (r *Resolver) Resolve(ctx context.Context, tenantID, productID uuid.UUID) ([]Line, error) {
	recipes, err := r.ResolveMany(ctx, tenantID, []uuid.UUID{productID})
	if err != nil {
		return nil, err
	}
	return recipes[productID], nil
}

// ResolveMany returns recipes keyed by product. Lines are ordered by ingredient id
// and soft-deleted ingredients or products of another tenant are skipped. Recipes
// of soft-deleted products still resolve.
func (r *Resolver) ResolveMany(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID][]Line, error) {
	if tenantID == uuid.Nil {
		return nil, repo.ErrTenantRequired()
	}
	out := make(map[uuid.UUID][]Line, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	var rows []models.ProductIngredient
	err := r.base.DB(ctx).
		Joins("JOIN products ON products.id = product_ingredients.product_id AND products.tenant_id = ?", tenantID).
		Where("product_ingredients.product_id IN ?", productIDs).
		Preload("Ingredient", "tenant_id = ?", tenantID).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recipes")
	}

	for _, row := range rows {
		if row.Ingredient == nil || row.Quantity.LessThanOrEqual(decimal.Zero) {
			continue
		}
		out[row.ProductID] = append(out[row.ProductID], Line{
			IngredientID: row.IngredientID,
			Name:         row.Ingredient.Name,
			Unit:         row.Ingredient.Unit,
			PerUnit:      row.Quantity,
		})
	}
	for id := range out {
		lines := out[id]
		sort.Slice(lines, func(i, j int) bool {
			return lines[i].IngredientID.String() < lines[j].IngredientID.String()
		})
	}
	return out, nil
}

// ImpactCount is the number of live products whose recipe uses ingredientID.
func (r *Resolver) ImpactCount(ctx context.Context, tenantID, ingredientID uuid.UUID) (int64, error) {
	scoped, err := r.base.Tenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	var count int64
	err = scoped.Model(&models.Product{}).
		Where("id IN (?)", r.base.DB(ctx).Model(&models.ProductIngredient{}).
			Select("product_id").
			Where("ingredient_id = ?", ingredientID)).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count recipe impact")
	}
	return count, nil
}
