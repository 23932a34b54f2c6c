package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/repo"
	"github.com/angelmondragon/comanda-backend/pkg/db"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/pagination"
)

// Repository reads orders and writes the rows owned by the state machine.
type Repository struct {
	base repo.Base
}

// NewRepository binds the repository to conn.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(conn)}
}

// WithTx returns a copy bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

// Find loads a live order with its items and complements.
func (r *Repository) Find(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	scoped, err := r.base.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var order models.Order
	err = scoped.Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC, id ASC") }).
		Preload("Items.Complements").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, orderNotFoundOr(err, "load order")
	}
	return &order, nil
}

// Lock loads and row-locks an order with its items for a transition.
func (r *Repository) Lock(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	scoped, err := r.base.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var order models.Order
	err = db.ForUpdate(scoped).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, orderNotFoundOr(err, "lock order")
	}
	return &order, nil
}

// Create inserts the order, its items and their complements.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	return r.base.DB(ctx).Create(order).Error
}

// Advance moves the order from -> to and applies updates. It reports false when
// the stored status no longer matches from.
func (r *Repository) Advance(ctx context.Context, order models.Order, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.base.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND tenant_id = ? AND status = ?", order.ID, order.TenantID, order.Status).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Update writes columns that do not change the status.
func (r *Repository) Update(ctx context.Context, order models.Order, updates map[string]any) error {
	return r.base.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND tenant_id = ?", order.ID, order.TenantID).
		Updates(updates).Error
}

// AppendHistory records a committed transition.
func (r *Repository) AppendHistory(ctx context.Context, row *models.OrderStatusHistory) error {
	return r.base.DB(ctx).Create(row).Error
}

// History returns the status trail of an order, oldest first.
func (r *Repository) History(ctx context.Context, tenantID, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	scoped, err := r.base.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var rows []models.OrderStatusHistory
	err = scoped.Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order history")
	}
	return rows, nil
}

// List pages a tenant's orders newest first.
func (r *Repository) List(ctx context.Context, params ListParams) (*pagination.Page[models.Order], error) {
	scoped, err := r.base.Tenant(ctx, params.TenantID)
	if err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if len(params.Statuses) > 0 {
		scoped = scoped.Where("status IN ?", params.Statuses)
	}
	var rows []models.Order
	err = pagination.After(scoped, cursor).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := pagination.Build(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &page, nil
}

// ListOverdue returns orders of every tenant still preparing or ready whose
// estimated ready time fell between since and now. Only the late-order job
// reads across tenants.
func (r *Repository) ListOverdue(ctx context.Context, since, now time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	var rows []models.Order
	err := r.base.DB(ctx).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusPreparing, enums.OrderStatusReady}).
		Where("estimated_ready_at IS NOT NULL AND estimated_ready_at < ? AND estimated_ready_at >= ?", now.UTC(), since.UTC()).
		Order("estimated_ready_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue orders")
	}
	return rows, nil
}

func orderNotFoundOr(err error, operation string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, operation)
}
