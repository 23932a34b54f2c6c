package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/repo"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/metrics"
	"github.com/angelmondragon/comanda-backend/pkg/security"
)

// Repository persists customers and seals phone and email with the field codec.
type Repository struct {
	base    repo.Base
	codec   security.FieldCodec
	metrics *metrics.DomainMetrics
	logg    *logger.Logger
}

// NewRepository binds the repository to a connection and codec.
func NewRepository(conn *gorm.DB, codec security.FieldCodec, m *metrics.DomainMetrics, logg *logger.Logger) (*Repository, error) {
	if conn == nil {
		return nil, fmt.Errorf("db required")
	}
	if codec == nil {
		return nil, fmt.Errorf("field codec required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Repository{base: repo.NewBase(conn), codec: codec, metrics: m, logg: logg}, nil
}

// WithTx returns a copy bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	clone := *r
	clone.base = r.base.WithTx(tx)
	return &clone
}

// Create encrypts the contact fields and inserts the row.
func (r *Repository) Create(ctx context.Context, customer *models.Customer) error {
	phone, err := r.codec.Encrypt(strings.TrimSpace(customer.Phone))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encrypt phone")
	}
	email, err := r.codec.Encrypt(strings.ToLower(strings.TrimSpace(customer.Email)))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encrypt email")
	}
	row := *customer
	row.Phone = phone
	row.Email = email
	if err := r.base.DB(ctx).Create(&row).Error; err != nil {
		return err
	}
	customer.ID = row.ID
	customer.CreatedAt = row.CreatedAt
	return nil
}

// Find loads a live customer.
func (r *Repository) Find(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error) {
	return r.first(ctx, tenantID, "id = ?", id)
}

// FindByReferralCode loads the live customer owning code.
func (r *Repository) FindByReferralCode(ctx context.Context, tenantID uuid.UUID, code string) (*models.Customer, error) {
	return r.first(ctx, tenantID, "referral_code = ?", normalizeCode(code))
}

func (r *Repository) first(ctx context.Context, tenantID uuid.UUID, query string, arg any) (*models.Customer, error) {
	scoped, err := r.base.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var customer models.Customer
	if err := scoped.Where(query, arg).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return &customer, nil
}

// Profile decrypts the contact fields of customer.
func (r *Repository) Profile(ctx context.Context, customer models.Customer) Profile {
	return Profile{
		ID:            customer.ID,
		TenantID:      customer.TenantID,
		Name:          customer.Name,
		Phone:         r.decode(ctx, customer.ID, "phone", customer.Phone),
		Email:         r.decode(ctx, customer.ID, "email", customer.Email),
		LoyaltyPoints: customer.LoyaltyPoints,
		LoyaltyTier:   customer.LoyaltyTier,
		ReferralCode:  customer.ReferralCode,
		ReferredBy:    customer.ReferredBy,
		CreatedAt:     customer.CreatedAt,
	}
}

// decode returns the stored value unchanged when it cannot be opened, so rows
// written before encryption or under a rotated key stay readable.
func (r *Repository) decode(ctx context.Context, customerID uuid.UUID, field, stored string) string {
	plain, err := r.codec.Decrypt(stored)
	if err == nil {
		return plain
	}
	r.metrics.IncDecodeFallback(field)
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"customer_id": customerID.String(),
		"field":       field,
		"error":       err.Error(),
	})
	r.logg.Warn(logCtx, "customer field decode fallback")
	return stored
}
