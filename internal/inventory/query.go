package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/pagination"
)

// VerifyBalance checks current == opening + Σ movements for one subject.
func (l *ledger) VerifyBalance(ctx context.Context, tenantID uuid.UUID, subject enums.StockSubjectKind, subjectID uuid.UUID) (*BalanceCheck, error) {
	scoped, err := l.base.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	check := &BalanceCheck{Subject: subject, SubjectID: subjectID}

	switch subject {
	case enums.StockSubjectProduct:
		var product models.Product
		if err := scoped.Unscoped().Where("id = ?", subjectID).First(&product).Error; err != nil {
			return nil, notFoundOr(err, "product not found", "load product")
		}
		var sum int64
		err := l.base.DB(ctx).Model(&models.StockMovement{}).
			Where("tenant_id = ? AND product_id = ?", tenantID, subjectID).
			Select("COALESCE(SUM(quantity), 0)").
			Scan(&sum).Error
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum product movements")
		}
		check.Opening = decimal.NewFromInt(int64(product.OpeningStock))
		check.MovementSum = decimal.NewFromInt(sum)
		if product.StockQuantity != nil {
			check.Current = decimal.NewFromInt(int64(*product.StockQuantity))
		}

	case enums.StockSubjectIngredient:
		var ingredient models.Ingredient
		if err := scoped.Unscoped().Where("id = ?", subjectID).First(&ingredient).Error; err != nil {
			return nil, notFoundOr(err, "ingredient not found", "load ingredient")
		}
		var quantities []decimal.Decimal
		err := l.base.DB(ctx).Model(&models.IngredientMovement{}).
			Where("tenant_id = ? AND ingredient_id = ?", tenantID, subjectID).
			Pluck("quantity", &quantities).Error
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ingredient movements")
		}
		for _, q := range quantities {
			check.MovementSum = check.MovementSum.Add(q)
		}
		check.Opening = ingredient.OpeningStock
		check.Current = ingredient.Stock

	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown stock subject")
	}

	check.Consistent = check.Current.Equal(check.Opening.Add(check.MovementSum))
	if !check.Consistent {
		l.logg.Warn(l.logg.WithFields(ctx, map[string]any{
			"tenant_id":    tenantID.String(),
			"subject":      subject,
			"subject_id":   subjectID.String(),
			"opening":      check.Opening.String(),
			"movement_sum": check.MovementSum.String(),
			"current":      check.Current.String(),
		}), "stock ledger out of balance")
	}
	return check, nil
}

// ListMovements returns a subject's movements newest first.
func (l *ledger) ListMovements(ctx context.Context, params ListParams) (*pagination.Page[Movement], error) {
	scoped, err := l.base.Tenant(ctx, params.TenantID)
	if err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.LimitWithBuffer(params.Limit)
	key := func(m Movement) pagination.Cursor { return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID} }

	var items []Movement
	switch params.Subject {
	case enums.StockSubjectProduct:
		var rows []models.StockMovement
		err = pagination.After(scoped.Where("product_id = ?", params.SubjectID), cursor).
			Order("created_at DESC, id DESC").
			Limit(limit).
			Find(&rows).Error
		for _, row := range rows {
			items = append(items, fromProductMovement(row))
		}
	case enums.StockSubjectIngredient:
		var rows []models.IngredientMovement
		err = pagination.After(scoped.Where("ingredient_id = ?", params.SubjectID), cursor).
			Order("created_at DESC, id DESC").
			Limit(limit).
			Find(&rows).Error
		for _, row := range rows {
			items = append(items, fromIngredientMovement(row))
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown stock subject")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list movements")
	}
	page := pagination.Build(items, params.Limit, key)
	return &page, nil
}

func notFoundOr(err error, notFound, operation string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, operation)
}
