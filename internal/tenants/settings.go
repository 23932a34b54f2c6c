package tenants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/repo"
	"github.com/angelmondragon/comanda-backend/pkg/db"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
)

// Tier is one bracket of a loyalty tier table.
type Tier struct {
	Name       string
	MinPoints  int
	Multiplier decimal.Decimal
}

// DefaultTiers is used when a tenant has not configured its own table.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "Bronze", MinPoints: 0, Multiplier: decimal.NewFromInt(1)},
		{Name: "Prata", MinPoints: 100, Multiplier: decimal.RequireFromString("1.05")},
		{Name: "Ouro", MinPoints: 500, Multiplier: decimal.RequireFromString("1.10")},
		{Name: "Diamante", MinPoints: 1000, Multiplier: decimal.RequireFromString("1.15")},
	}
}

// Settings is the read model of a tenant's operational configuration.
type Settings struct {
	TenantID          uuid.UUID
	Plan              enums.TenantPlan
	Overrides         map[enums.QuotaResource]*int
	PreparationTime   time.Duration
	LoyaltyEnabled    bool
	PointsPerCurrency decimal.Decimal
}

// Defaults carries deployment-wide fallbacks for unset tenant fields.
type Defaults struct {
	PreparationTime   time.Duration
	PointsPerCurrency decimal.Decimal
}

// Reader loads tenant settings. Bind it to a transaction with WithTx.
type Reader struct {
	base     repo.Base
	defaults Defaults
}

// NewReader builds a settings reader.
func NewReader(conn *gorm.DB, defaults Defaults) (*Reader, error) {
	if conn == nil {
		return nil, fmt.Errorf("database required")
	}
	if defaults.PreparationTime <= 0 {
		defaults.PreparationTime = 30 * time.Minute
	}
	if defaults.PointsPerCurrency.IsZero() {
		defaults.PointsPerCurrency = decimal.NewFromInt(1)
	}
	return &Reader{base: repo.NewBase(conn), defaults: defaults}, nil
}

// WithTx returns a reader that runs on tx.
func (r *Reader) WithTx(tx *gorm.DB) *Reader {
	return &Reader{base: r.base.WithTx(tx), defaults: r.defaults}
}

// Settings returns the tenant settings with deployment defaults applied.
func (r *Reader) Settings(ctx context.Context, tenantID uuid.UUID) (*Settings, error) {
	tenant, err := r.load(ctx, tenantID, false)
	if err != nil {
		return nil, err
	}
	return r.toSettings(tenant), nil
}

// Tiers returns the tenant tier table, or DefaultTiers when none is configured.
func (r *Reader) Tiers(ctx context.Context, tenantID uuid.UUID) ([]Tier, error) {
	scoped, err := r.base.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var rows []models.LoyaltyTier
	if err := scoped.Order("min_points ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loyalty tiers")
	}
	if len(rows) == 0 {
		return DefaultTiers(), nil
	}
	tiers := make([]Tier, 0, len(rows))
	for _, row := range rows {
		multiplier := row.Multiplier
		if multiplier.LessThanOrEqual(decimal.Zero) {
			multiplier = decimal.NewFromInt(1)
		}
		tiers = append(tiers, Tier{Name: strings.TrimSpace(row.Name), MinPoints: row.MinPoints, Multiplier: multiplier})
	}
	return tiers, nil
}

// StaffToNotify lists active owners and managers of the tenant.
func (r *Reader) StaffToNotify(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	scoped, err := r.base.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	err = scoped.Model(&models.User{}).
		Where("is_active = ?", true).
		Where("role IN ?", []enums.MemberRole{enums.MemberRoleOwner, enums.MemberRoleManager}).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant staff")
	}
	return ids, nil
}

// Lock takes a row lock on the tenant for the rest of the transaction. Used to
// serialise quota re-checks and order numbering.
func (r *Reader) Lock(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	return r.load(ctx, tenantID, true)
}

// NextOrderNumber increments and returns the tenant's order sequence. The update
// itself holds the row until the transaction ends.
func (r *Reader) NextOrderNumber(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	if tenantID == uuid.Nil {
		return 0, repo.ErrTenantRequired()
	}
	conn := r.base.DB(ctx)
	res := conn.Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		UpdateColumn("last_order_number", gorm.Expr("last_order_number + 1"))
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "advance order number")
	}
	if res.RowsAffected == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	var number int64
	if err := r.base.DB(ctx).Model(&models.Tenant{}).Where("id = ?", tenantID).Pluck("last_order_number", &number).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read order number")
	}
	return number, nil
}

// MotoboyActive reports whether userID is an active courier of the tenant.
func (r *Reader) MotoboyActive(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	scoped, err := r.base.Tenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	var count int64
	err = scoped.Model(&models.User{}).
		Where("id = ? AND role = ? AND is_active = ?", userID, enums.MemberRoleMotoboy, true).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load courier")
	}
	return count > 0, nil
}

func (r *Reader) load(ctx context.Context, tenantID uuid.UUID, lock bool) (*models.Tenant, error) {
	if tenantID == uuid.Nil {
		return nil, repo.ErrTenantRequired()
	}
	query := r.base.DB(ctx)
	if lock {
		query = db.ForUpdate(query)
	}
	var tenant models.Tenant
	if err := query.Where("id = ?", tenantID).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant")
	}
	return &tenant, nil
}

func (r *Reader) toSettings(tenant *models.Tenant) *Settings {
	settings := &Settings{
		TenantID:          tenant.ID,
		Plan:              tenant.Plan,
		LoyaltyEnabled:    tenant.LoyaltyEnabled,
		PreparationTime:   r.defaults.PreparationTime,
		PointsPerCurrency: r.defaults.PointsPerCurrency,
		Overrides: map[enums.QuotaResource]*int{
			enums.QuotaProducts:       tenant.MaxProducts,
			enums.QuotaUsers:          tenant.MaxUsers,
			enums.QuotaCategories:     tenant.MaxCategories,
			enums.QuotaCoupons:        tenant.MaxCoupons,
			enums.QuotaOrdersPerMonth: tenant.MaxOrdersPerMonth,
		},
	}
	if !settings.Plan.IsValid() {
		settings.Plan = enums.TenantPlanFree
	}
	if tenant.PreparationTimeMinutes != nil && *tenant.PreparationTimeMinutes > 0 {
		settings.PreparationTime = time.Duration(*tenant.PreparationTimeMinutes) * time.Minute
	}
	if tenant.LoyaltyPointsPerCurrency.Valid && tenant.LoyaltyPointsPerCurrency.Decimal.GreaterThan(decimal.Zero) {
		settings.PointsPerCurrency = tenant.LoyaltyPointsPerCurrency.Decimal
	}
	return settings
}
