package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "migration %s", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
	require.NoError(t, Validate(Embedded()))
}

func TestEmbeddedMatchesDisk(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	embeddedFiles, err := fs.Glob(Embedded(), "*.sql")
	require.NoError(t, err)
	require.Len(t, embeddedFiles, len(onDisk))
	for i, path := range onDisk {
		assert.Equal(t, filepath.Base(path), embeddedFiles[i])
	}
}

func TestValidateRejectsSwappedSections(t *testing.T) {
	migrations := fstest.MapFS{
		"20260301090000_init.sql": {Data: []byte("-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x();\n")},
	}
	assert.ErrorContains(t, Validate(migrations), "must follow")
}

func TestSchemaCarriesInvariants(t *testing.T) {
	cases := map[string][]string{
		"create_tenants": {
			"CREATE TYPE member_role AS ENUM ('owner', 'manager', 'staff', 'motoboy')",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_slug",
			"last_order_number bigint NOT NULL DEFAULT 0",
		},
		"create_catalog_and_stock": {
			"CREATE TABLE IF NOT EXISTS stock_movements",
			"CREATE TABLE IF NOT EXISTS ingredient_movements",
			"FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_product_ingredients_pair",
		},
		"create_customers_and_coupons": {
			"loyalty_points integer NOT NULL DEFAULT 0 CHECK (loyalty_points >= 0)",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_referral_code ON customers (tenant_id, referral_code)",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_coupons_tenant_code ON coupons (tenant_id, code)",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_coupon_usages_order ON coupon_usages (coupon_id, order_id)",
			"CHECK (max_uses IS NULL OR current_uses <= max_uses)",
		},
		"create_orders": {
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_tenant_number ON orders (tenant_id, number)",
			"'waiting_motoboy'",
			"CHECK (status <> 'cancelled' OR cancellation_reason IS NOT NULL)",
			"CREATE TABLE IF NOT EXISTS order_status_history",
		},
		"create_outbox": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
			"'order_late'",
		},
	}
	for suffix, checks := range cases {
		t.Run(suffix, func(t *testing.T) {
			content := readMigration(t, suffix)
			for _, sub := range checks {
				assert.Contains(t, content, sub)
			}
			assert.True(t, strings.Index(content, "-- +goose Up") < strings.Index(content, "-- +goose Down"))
		})
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Tables v2!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_tables_v2.sql"), path)
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.ErrorContains(t, ValidateDir(dir), "invalid migration filename")

	empty := t.TempDir()
	assert.ErrorContains(t, ValidateDir(empty), "no migrations")
}
