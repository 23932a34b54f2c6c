package quota

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/tenants"
	"github.com/angelmondragon/comanda-backend/pkg/db/dbtest"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
)

func newGuard(t *testing.T, conn *gorm.DB) *Guard {
	t.Helper()
	reader, err := tenants.NewReader(conn, tenants.Defaults{})
	require.NoError(t, err)
	guard, err := NewGuard(conn, reader, nil, true)
	require.NoError(t, err)
	return guard
}

func createTenant(t *testing.T, conn *gorm.DB, plan enums.TenantPlan, mutate func(*models.Tenant)) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: "Lanchonete", Slug: uuid.NewString(), Plan: plan}
	if mutate != nil {
		mutate(tenant)
	}
	require.NoError(t, conn.Create(tenant).Error)
	return tenant
}

func createCoupons(t *testing.T, conn *gorm.DB, tenantID uuid.UUID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, conn.Create(&models.Coupon{
			TenantID:     tenantID,
			Code:         fmt.Sprintf("C%d", i),
			DiscountType: enums.DiscountTypeFixed,
			IsActive:     true,
		}).Error)
	}
}

func TestPlanDefault(t *testing.T) {
	cases := []struct {
		plan     enums.TenantPlan
		resource enums.QuotaResource
		want     *int
	}{
		{enums.TenantPlanFree, enums.QuotaCoupons, limit(3)},
		{enums.TenantPlanBasic, enums.QuotaProducts, limit(150)},
		{enums.TenantPlanPro, enums.QuotaOrdersPerMonth, nil},
		{enums.TenantPlanEnterprise, enums.QuotaUsers, nil},
		{enums.TenantPlan("legacy"), enums.QuotaUsers, limit(2)},
	}
	for _, tc := range cases {
		t.Run(string(tc.plan)+"/"+string(tc.resource), func(t *testing.T) {
			assert.Equal(t, tc.want, PlanDefault(tc.plan, tc.resource))
		})
	}
}

func TestCanCreateUsesPlanDefault(t *testing.T) {
	conn := dbtest.Open(t)
	tenant := createTenant(t, conn, enums.TenantPlanFree, nil)
	guard := newGuard(t, conn)
	ctx := context.Background()

	createCoupons(t, conn, tenant.ID, 2)
	ok, err := guard.CanCreate(ctx, tenant.ID, enums.QuotaCoupons)
	require.NoError(t, err)
	assert.True(t, ok)

	createCoupons(t, conn, tenant.ID, 1)
	ok, err = guard.CanCreate(ctx, tenant.ID, enums.QuotaCoupons)
	require.NoError(t, err)
	assert.False(t, ok)

	err = guard.Ensure(ctx, tenant.ID, enums.QuotaCoupons)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeQuotaExceeded))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(3), details["current"])
	assert.Equal(t, 3, details["limit"])
}

func TestTenantOverrideWinsOverPlan(t *testing.T) {
	conn := dbtest.Open(t)
	tenant := createTenant(t, conn, enums.TenantPlanFree, func(t *models.Tenant) {
		t.MaxCoupons = limit(10)
	})
	guard := newGuard(t, conn)
	createCoupons(t, conn, tenant.ID, 5)

	max, err := guard.Limit(context.Background(), tenant.ID, enums.QuotaCoupons)
	require.NoError(t, err)
	require.NotNil(t, max)
	assert.Equal(t, 10, *max)

	ok, err := guard.CanCreate(context.Background(), tenant.ID, enums.QuotaCoupons)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlimitedAlwaysAllows(t *testing.T) {
	conn := dbtest.Open(t)
	tenant := createTenant(t, conn, enums.TenantPlanEnterprise, nil)
	guard := newGuard(t, conn)
	createCoupons(t, conn, tenant.ID, 4)

	ok, err := guard.CanCreate(context.Background(), tenant.ID, enums.QuotaCoupons)
	require.NoError(t, err)
	assert.True(t, ok)

	pct, err := guard.UsagePercentage(context.Background(), tenant.ID, enums.QuotaCoupons)
	require.NoError(t, err)
	assert.Zero(t, pct)
}

func TestUsageIgnoresInactiveAndForeignRows(t *testing.T) {
	conn := dbtest.Open(t)
	tenant := createTenant(t, conn, enums.TenantPlanFree, nil)
	other := createTenant(t, conn, enums.TenantPlanFree, nil)
	guard := newGuard(t, conn)

	createCoupons(t, conn, tenant.ID, 2)
	createCoupons(t, conn, other.ID, 3)
	require.NoError(t, conn.Model(&models.Coupon{}).
		Where("tenant_id = ? AND code = ?", tenant.ID, "C0").
		Update("is_active", false).Error)

	current, err := guard.Usage(context.Background(), tenant.ID, enums.QuotaCoupons)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)
}

func TestOrdersPerMonthCountsCurrentMonthOnly(t *testing.T) {
	conn := dbtest.Open(t)
	tenant := createTenant(t, conn, enums.TenantPlanFree, func(t *models.Tenant) {
		t.MaxOrdersPerMonth = limit(2)
	})
	guard := newGuard(t, conn)
	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }

	for i, created := range []time.Time{now.AddDate(-1, 0, 0), now.Add(-time.Hour)} {
		require.NoError(t, conn.Create(&models.Order{
			TenantID:  tenant.ID,
			Number:    int64(i + 1),
			Mode:      enums.OrderModePickup,
			CreatedAt: created,
		}).Error)
	}

	current, err := guard.Usage(context.Background(), tenant.ID, enums.QuotaOrdersPerMonth)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)

	warn, err := guard.ShouldWarn(context.Background(), tenant.ID, enums.QuotaOrdersPerMonth)
	require.NoError(t, err)
	assert.False(t, warn)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, percentage(5, nil))
	assert.Equal(t, 100.0, percentage(0, limit(0)))
	assert.Equal(t, 80.0, percentage(8, limit(10)))
}

func TestEnsureTxLocksAndChecks(t *testing.T) {
	conn := dbtest.Open(t)
	tenant := createTenant(t, conn, enums.TenantPlanFree, func(t *models.Tenant) {
		t.MaxCategories = limit(1)
	})
	guard := newGuard(t, conn)
	require.NoError(t, conn.Create(&models.Category{TenantID: tenant.ID, Name: "Lanches", IsActive: true}).Error)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return guard.EnsureTx(context.Background(), tx, tenant.ID, enums.QuotaCategories)
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeQuotaExceeded))
}

func TestOverviewFlagsWarnings(t *testing.T) {
	conn := dbtest.Open(t)
	tenant := createTenant(t, conn, enums.TenantPlanFree, nil)
	guard := newGuard(t, conn)
	createCoupons(t, conn, tenant.ID, 3)

	statuses, err := guard.Overview(context.Background(), tenant.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 5)
	for _, st := range statuses {
		if st.Resource == enums.QuotaCoupons {
			assert.True(t, st.Warn)
			assert.Equal(t, 100.0, st.Percentage)
		}
	}
}
