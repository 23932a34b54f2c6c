package loyalty

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/tenants"
	"github.com/angelmondragon/comanda-backend/pkg/db"
	"github.com/angelmondragon/comanda-backend/pkg/db/dbtest"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/pagination"
)

type fixture struct {
	conn    *gorm.DB
	account *account
	tenant  models.Tenant
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	reader, err := tenants.NewReader(conn, tenants.Defaults{})
	require.NoError(t, err)
	built, err := NewAccount(db.NewFromConn(conn), reader, outbox.NewService(outbox.NewRepository(conn), nil), nil, nil)
	require.NoError(t, err)
	f := &fixture{conn: conn, account: built.(*account)}
	f.tenant = models.Tenant{Name: "Café", Slug: uuid.NewString(), Plan: enums.TenantPlanBasic, LoyaltyEnabled: true}
	require.NoError(t, conn.Create(&f.tenant).Error)
	return f
}

func (f *fixture) customer(t *testing.T, points int) models.Customer {
	t.Helper()
	c := models.Customer{TenantID: f.tenant.ID, Name: "Joana", ReferralCode: uuid.NewString()[:8]}
	require.NoError(t, f.conn.Create(&c).Error)
	if points > 0 {
		_, err := f.account.Earn(context.Background(), PointsInput{TenantID: f.tenant.ID, CustomerID: c.ID, Points: points, Description: "seed"})
		require.NoError(t, err)
	}
	return f.reload(t, c.ID)
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Customer {
	t.Helper()
	var c models.Customer
	require.NoError(t, f.conn.First(&c, "id = ?", id).Error)
	return c
}

func (f *fixture) historyCount(t *testing.T, customerID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.LoyaltyPointsHistory{}).Where("customer_id = ?", customerID).Count(&n).Error)
	return n
}

func TestEarnCreditsAndAppends(t *testing.T) {
	f := setup(t)
	c := f.customer(t, 0)
	orderID := uuid.New()

	entry, err := f.account.Earn(context.Background(), PointsInput{
		TenantID:   f.tenant.ID,
		CustomerID: c.ID,
		Points:     40,
		OrderID:    &orderID,
	})
	require.NoError(t, err)
	assert.Equal(t, 40, entry.Balance)
	assert.Equal(t, enums.LoyaltyEntryEarn, entry.Type)
	assert.Equal(t, "Bronze", entry.Tier)
	assert.Equal(t, 40, f.reload(t, c.ID).LoyaltyPoints)
	assert.Equal(t, int64(1), f.historyCount(t, c.ID))
}

func TestEarnUnknownCustomer(t *testing.T) {
	f := setup(t)
	_, err := f.account.Earn(context.Background(), PointsInput{TenantID: f.tenant.ID, CustomerID: uuid.New(), Points: 5})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestRedeemInsufficientPointsLeavesNoTrace(t *testing.T) {
	f := setup(t)
	c := f.customer(t, 80)
	before := f.historyCount(t, c.ID)

	_, err := f.account.Redeem(context.Background(), PointsInput{TenantID: f.tenant.ID, CustomerID: c.ID, Points: 100})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientPoints))
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, 80, details["balance"])

	assert.Equal(t, 80, f.reload(t, c.ID).LoyaltyPoints)
	assert.Equal(t, before, f.historyCount(t, c.ID))
}

func TestRedeemDebits(t *testing.T) {
	f := setup(t)
	c := f.customer(t, 150)
	assert.Equal(t, "Prata", c.LoyaltyTier)

	entry, err := f.account.Redeem(context.Background(), PointsInput{TenantID: f.tenant.ID, CustomerID: c.ID, Points: 60})
	require.NoError(t, err)
	assert.Equal(t, -60, entry.Points)
	assert.Equal(t, 90, entry.Balance)
	assert.Equal(t, "Bronze", f.reload(t, c.ID).LoyaltyTier)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventLoyaltyPointsRedeemed).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestRecomputeTierUsesDefaultsAndPersistsOnlyOnChange(t *testing.T) {
	f := setup(t)
	c := f.customer(t, 0)
	ctx := context.Background()
	for _, pts := range []int{50, 70} {
		_, err := f.account.Earn(ctx, PointsInput{TenantID: f.tenant.ID, CustomerID: c.ID, Points: pts})
		require.NoError(t, err)
	}

	tier, err := f.account.RecomputeTier(ctx, f.tenant.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Prata", tier)

	var changes int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventLoyaltyTierChanged).Count(&changes).Error)
	// Bronze on first earn, Prata once the balance reached 120.
	assert.Equal(t, int64(2), changes)
}

func TestRecomputeTierUsesTenantTable(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.conn.Create(&[]models.LoyaltyTier{
		{TenantID: f.tenant.ID, Name: "Regular", MinPoints: 0, Multiplier: decimal.NewFromInt(1)},
		{TenantID: f.tenant.ID, Name: "VIP", MinPoints: 200, Multiplier: decimal.NewFromInt(2)},
	}).Error)
	c := f.customer(t, 250)
	assert.Equal(t, "VIP", c.LoyaltyTier)

	multiplier, err := f.account.TierMultiplier(context.Background(), f.tenant.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, multiplier.Equal(decimal.NewFromInt(2)))
}

func TestPointsForOrder(t *testing.T) {
	f := setup(t)
	c := f.customer(t, 120)
	ctx := context.Background()

	err := f.conn.Transaction(func(tx *gorm.DB) error {
		points, err := f.account.PointsForOrderTx(ctx, tx, f.tenant.ID, c.ID, decimal.RequireFromString("100.00"))
		require.NoError(t, err)
		assert.Equal(t, 105, points)

		zero, err := f.account.PointsForOrderTx(ctx, tx, f.tenant.ID, c.ID, decimal.Zero)
		require.NoError(t, err)
		assert.Zero(t, zero)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.conn.Model(&models.Tenant{}).Where("id = ?", f.tenant.ID).Update("loyalty_enabled", false).Error)
	err = f.conn.Transaction(func(tx *gorm.DB) error {
		points, err := f.account.PointsForOrderTx(ctx, tx, f.tenant.ID, c.ID, decimal.NewFromInt(100))
		require.NoError(t, err)
		assert.Zero(t, points)
		return nil
	})
	require.NoError(t, err)
}

func TestBalanceMatchesHistory(t *testing.T) {
	f := setup(t)
	c := f.customer(t, 0)
	ctx := context.Background()
	ops := []struct {
		earn   bool
		points int
	}{
		{true, 30}, {true, 200}, {false, 45}, {false, 500}, {true, 5}, {false, 190},
	}
	for _, op := range ops {
		input := PointsInput{TenantID: f.tenant.ID, CustomerID: c.ID, Points: op.points}
		if op.earn {
			_, err := f.account.Earn(ctx, input)
			require.NoError(t, err)
			continue
		}
		_, _ = f.account.Redeem(ctx, input)
	}

	check, err := f.account.VerifyBalance(ctx, f.tenant.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, 0, check.Balance)
}

func TestHistoryPaginates(t *testing.T) {
	f := setup(t)
	c := f.customer(t, 0)
	clock := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	f.account.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	for i := 1; i <= 3; i++ {
		_, err := f.account.Earn(context.Background(), PointsInput{TenantID: f.tenant.ID, CustomerID: c.ID, Points: i})
		require.NoError(t, err)
	}

	page, err := f.account.History(context.Background(), f.tenant.ID, c.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Items[0].Points)

	next, err := f.account.History(context.Background(), f.tenant.ID, c.ID, pagination.Params{Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, 1, next.Items[0].Points)
}

func TestRedeemValidation(t *testing.T) {
	f := setup(t)
	_, err := f.account.Redeem(context.Background(), PointsInput{TenantID: f.tenant.ID, CustomerID: uuid.New(), Points: 0})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestConcurrentRedeemsCannotOverdraw(t *testing.T) {
	f := setup(t)
	dbtest.SingleConnection(t, f.conn)
	c := f.customer(t, 50)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.account.Redeem(ctx, PointsInput{TenantID: f.tenant.ID, CustomerID: c.ID, Points: 30})
		}(i)
	}
	wg.Wait()

	succeeded, refused := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientPoints):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, refused)
	assert.Equal(t, 20, f.reload(t, c.ID).LoyaltyPoints)

	var redeems int64
	require.NoError(t, f.conn.Model(&models.LoyaltyPointsHistory{}).
		Where("customer_id = ? AND type = ?", c.ID, enums.LoyaltyEntryRedeem).
		Count(&redeems).Error)
	assert.Equal(t, int64(1), redeems)

	check, err := f.account.VerifyBalance(ctx, f.tenant.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
}
