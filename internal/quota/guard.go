package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/repo"
	"github.com/angelmondragon/comanda-backend/internal/tenants"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/metrics"
)

// WarnThreshold is the usage percentage at which ShouldWarn starts returning true.
const WarnThreshold = 80.0

// Status summarises one resource for a tenant.
type Status struct {
	Resource   enums.QuotaResource `json:"resource"`
	Current    int64               `json:"current"`
	Limit      *int                `json:"limit"`
	Percentage float64             `json:"percentage"`
	Warn       bool                `json:"warn"`
}

// Guard enforces per-tenant resource ceilings before mutation.
type Guard struct {
	base     repo.Base
	settings *tenants.Reader
	metrics  *metrics.DomainMetrics
	strict   bool
	now      func() time.Time
}

// NewGuard builds a quota guard. When strict is set, EnsureTx re-checks the
// limit while holding the tenant row lock.
func NewGuard(conn *gorm.DB, settings *tenants.Reader, m *metrics.DomainMetrics, strict bool) (*Guard, error) {
	if conn == nil {
		return nil, fmt.Errorf("database required")
	}
	if settings == nil {
		return nil, fmt.Errorf("tenant settings reader required")
	}
	return &Guard{base: repo.NewBase(conn), settings: settings, metrics: m, strict: strict, now: time.Now}, nil
}

// WithTx returns a guard whose reads run on tx.
func (g *Guard) WithTx(tx *gorm.DB) *Guard {
	clone := *g
	clone.base = g.base.WithTx(tx)
	clone.settings = g.settings.WithTx(tx)
	return &clone
}

// Limit resolves the effective ceiling: tenant override first, then plan default.
func (g *Guard) Limit(ctx context.Context, tenantID uuid.UUID, resource enums.QuotaResource) (*int, error) {
	if !resource.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown quota resource %q", resource))
	}
	settings, err := g.settings.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if override := settings.Overrides[resource]; override != nil {
		v := *override
		return &v, nil
	}
	return PlanDefault(settings.Plan, resource), nil
}

// Usage counts the live rows that count against resource.
func (g *Guard) Usage(ctx context.Context, tenantID uuid.UUID, resource enums.QuotaResource) (int64, error) {
	scoped, err := g.base.Tenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	var count int64
	switch resource {
	case enums.QuotaProducts:
		err = scoped.Model(&models.Product{}).Where("is_active = ?", true).Count(&count).Error
	case enums.QuotaUsers:
		err = scoped.Model(&models.User{}).Where("is_active = ?", true).Count(&count).Error
	case enums.QuotaCategories:
		err = scoped.Model(&models.Category{}).Count(&count).Error
	case enums.QuotaCoupons:
		err = scoped.Model(&models.Coupon{}).Where("is_active = ?", true).Count(&count).Error
	case enums.QuotaOrdersPerMonth:
		err = scoped.Model(&models.Order{}).Where("created_at >= ?", monthStart(g.now())).Count(&count).Error
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown quota resource %q", resource))
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count quota usage")
	}
	return count, nil
}

// CanCreate reports whether one more resource fits under the tenant's ceiling.
func (g *Guard) CanCreate(ctx context.Context, tenantID uuid.UUID, resource enums.QuotaResource) (bool, error) {
	_, _, ok, err := g.check(ctx, tenantID, resource)
	return ok, err
}

// Ensure is CanCreate returning QuotaExceeded instead of false.
func (g *Guard) Ensure(ctx context.Context, tenantID uuid.UUID, resource enums.QuotaResource) error {
	current, max, ok, err := g.check(ctx, tenantID, resource)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	g.metrics.IncQuotaRejection(string(resource))
	return pkgerrors.New(pkgerrors.CodeQuotaExceeded, fmt.Sprintf("%s limit reached", resource)).
		WithDetails(map[string]any{"resource": resource, "current": current, "limit": *max})
}

// EnsureTx runs Ensure inside tx. In strict mode it first locks the tenant row so
// concurrent creators serialise on the re-check.
func (g *Guard) EnsureTx(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, resource enums.QuotaResource) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	scoped := g.WithTx(tx)
	if g.strict {
		if _, err := scoped.settings.Lock(ctx, tenantID); err != nil {
			return err
		}
	}
	return scoped.Ensure(ctx, tenantID, resource)
}

// UsagePercentage is current/limit as a percentage. Unlimited resources report 0
// and a zero limit reports 100.
func (g *Guard) UsagePercentage(ctx context.Context, tenantID uuid.UUID, resource enums.QuotaResource) (float64, error) {
	current, max, _, err := g.check(ctx, tenantID, resource)
	if err != nil {
		return 0, err
	}
	return percentage(current, max), nil
}

// ShouldWarn reports whether usage is at or above WarnThreshold.
func (g *Guard) ShouldWarn(ctx context.Context, tenantID uuid.UUID, resource enums.QuotaResource) (bool, error) {
	pct, err := g.UsagePercentage(ctx, tenantID, resource)
	if err != nil {
		return false, err
	}
	return pct >= WarnThreshold, nil
}

// Overview returns the status of every quota resource for the tenant.
func (g *Guard) Overview(ctx context.Context, tenantID uuid.UUID) ([]Status, error) {
	resources := []enums.QuotaResource{
		enums.QuotaProducts,
		enums.QuotaUsers,
		enums.QuotaCategories,
		enums.QuotaCoupons,
		enums.QuotaOrdersPerMonth,
	}
	out := make([]Status, 0, len(resources))
	for _, resource := range resources {
		current, max, _, err := g.check(ctx, tenantID, resource)
		if err != nil {
			return nil, err
		}
		pct := percentage(current, max)
		out = append(out, Status{
			Resource:   resource,
			Current:    current,
			Limit:      max,
			Percentage: pct,
			Warn:       pct >= WarnThreshold,
		})
	}
	return out, nil
}

func (g *Guard) check(ctx context.Context, tenantID uuid.UUID, resource enums.QuotaResource) (int64, *int, bool, error) {
	max, err := g.Limit(ctx, tenantID, resource)
	if err != nil {
		return 0, nil, false, err
	}
	current, err := g.Usage(ctx, tenantID, resource)
	if err != nil {
		return 0, nil, false, err
	}
	if max == nil {
		return current, nil, true, nil
	}
	return current, max, current < int64(*max), nil
}

func percentage(current int64, max *int) float64 {
	if max == nil {
		return 0
	}
	if *max <= 0 {
		return 100
	}
	return float64(current) / float64(*max) * 100
}

func monthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
