package recipes

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/db/dbtest"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
)

type fixture struct {
	tenant  models.Tenant
	burger  models.Product
	fries   models.Product
	soda    models.Product
	bun     models.Ingredient
	patty   models.Ingredient
	potato  models.Ingredient
	foreign models.Product
}

func seed(t *testing.T, conn *gorm.DB) fixture {
	t.Helper()
	var f fixture
	f.tenant = models.Tenant{Name: "Burger", Slug: uuid.NewString(), Plan: enums.TenantPlanPro}
	require.NoError(t, conn.Create(&f.tenant).Error)
	other := models.Tenant{Name: "Other", Slug: uuid.NewString(), Plan: enums.TenantPlanPro}
	require.NoError(t, conn.Create(&other).Error)

	f.bun = models.Ingredient{TenantID: f.tenant.ID, Name: "Pão", Unit: "un", Stock: decimal.NewFromInt(100)}
	f.patty = models.Ingredient{TenantID: f.tenant.ID, Name: "Carne", Unit: "un", Stock: decimal.NewFromInt(100)}
	f.potato = models.Ingredient{TenantID: f.tenant.ID, Name: "Batata", Unit: "kg", Stock: decimal.NewFromInt(20)}
	for _, ing := range []*models.Ingredient{&f.bun, &f.patty, &f.potato} {
		require.NoError(t, conn.Create(ing).Error)
	}

	f.burger = models.Product{TenantID: f.tenant.ID, Name: "X-Burger", Price: decimal.NewFromInt(25), IsActive: true}
	f.fries = models.Product{TenantID: f.tenant.ID, Name: "Fritas", Price: decimal.NewFromInt(12), IsActive: true}
	f.soda = models.Product{TenantID: f.tenant.ID, Name: "Refri", Price: decimal.NewFromInt(6), IsActive: true}
	f.foreign = models.Product{TenantID: other.ID, Name: "Alien", Price: decimal.NewFromInt(1), IsActive: true}
	for _, p := range []*models.Product{&f.burger, &f.fries, &f.soda, &f.foreign} {
		require.NoError(t, conn.Create(p).Error)
	}

	pivots := []models.ProductIngredient{
		{ProductID: f.burger.ID, IngredientID: f.bun.ID, Quantity: decimal.NewFromInt(1)},
		{ProductID: f.burger.ID, IngredientID: f.patty.ID, Quantity: decimal.NewFromInt(2)},
		{ProductID: f.fries.ID, IngredientID: f.potato.ID, Quantity: decimal.RequireFromString("0.25")},
		{ProductID: f.foreign.ID, IngredientID: f.bun.ID, Quantity: decimal.NewFromInt(1)},
	}
	require.NoError(t, conn.Create(&pivots).Error)
	return f
}

func TestResolveReturnsRecipeLines(t *testing.T) {
	conn := dbtest.Open(t)
	f := seed(t, conn)
	resolver, err := NewResolver(conn)
	require.NoError(t, err)

	lines, err := resolver.Resolve(context.Background(), f.tenant.ID, f.burger.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	perUnit := map[uuid.UUID]decimal.Decimal{}
	for _, line := range lines {
		perUnit[line.IngredientID] = line.PerUnit
	}
	assert.True(t, perUnit[f.bun.ID].Equal(decimal.NewFromInt(1)))
	assert.True(t, perUnit[f.patty.ID].Equal(decimal.NewFromInt(2)))
	assert.LessOrEqual(t, lines[0].IngredientID.String(), lines[1].IngredientID.String())
}

func TestResolveProductWithoutRecipe(t *testing.T) {
	conn := dbtest.Open(t)
	f := seed(t, conn)
	resolver, err := NewResolver(conn)
	require.NoError(t, err)

	lines, err := resolver.Resolve(context.Background(), f.tenant.ID, f.soda.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestResolveManyIsTenantScoped(t *testing.T) {
	conn := dbtest.Open(t)
	f := seed(t, conn)
	resolver, err := NewResolver(conn)
	require.NoError(t, err)

	recipes, err := resolver.ResolveMany(context.Background(), f.tenant.ID, []uuid.UUID{f.burger.ID, f.fries.ID, f.foreign.ID})
	require.NoError(t, err)
	assert.Len(t, recipes[f.burger.ID], 2)
	require.Len(t, recipes[f.fries.ID], 1)
	assert.Equal(t, "kg", recipes[f.fries.ID][0].Unit)
	assert.Empty(t, recipes[f.foreign.ID])
}

func TestResolveSkipsDeletedIngredients(t *testing.T) {
	conn := dbtest.Open(t)
	f := seed(t, conn)
	require.NoError(t, conn.Delete(&f.patty).Error)
	resolver, err := NewResolver(conn)
	require.NoError(t, err)

	lines, err := resolver.Resolve(context.Background(), f.tenant.ID, f.burger.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, f.bun.ID, lines[0].IngredientID)
}

func TestImpactCount(t *testing.T) {
	conn := dbtest.Open(t)
	f := seed(t, conn)
	resolver, err := NewResolver(conn)
	require.NoError(t, err)

	count, err := resolver.ImpactCount(context.Background(), f.tenant.ID, f.bun.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, conn.Delete(&f.burger).Error)
	count, err = resolver.ImpactCount(context.Background(), f.tenant.ID, f.bun.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestResolveRequiresTenant(t *testing.T) {
	resolver, err := NewResolver(dbtest.Open(t))
	require.NoError(t, err)
	_, err = resolver.ResolveMany(context.Background(), uuid.Nil, []uuid.UUID{uuid.New()})
	assert.Error(t, err)
}
