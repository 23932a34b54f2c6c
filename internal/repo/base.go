package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any). Callers
// that touch tenant data should use Tenant instead.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// WithTx returns a Base that runs every query on tx.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// Tenant returns a fresh query restricted to tenantID. Every call starts a new
// statement, so conditions never leak between queries.
func (b Base) Tenant(ctx context.Context, tenantID uuid.UUID) (*gorm.DB, error) {
	if tenantID == uuid.Nil {
		return nil, ErrTenantRequired()
	}
	return b.DB(ctx).Scopes(TenantScope(tenantID)), nil
}

// TenantScope restricts a query on a tenant-owned table.
func TenantScope(tenantID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// ErrTenantRequired is returned whenever a tenant-scoped operation is attempted without a tenant.
func ErrTenantRequired() *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
}
