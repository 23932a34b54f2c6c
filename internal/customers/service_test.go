package customers

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/tenants"
	"github.com/angelmondragon/comanda-backend/pkg/config"
	"github.com/angelmondragon/comanda-backend/pkg/db"
	"github.com/angelmondragon/comanda-backend/pkg/db/dbtest"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/metrics"
	"github.com/angelmondragon/comanda-backend/pkg/security"
)

type fixture struct {
	conn     *gorm.DB
	svc      *service
	registry *prometheus.Registry
	tenant   uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	codec, err := security.NewFieldCodec(config.CryptoConfig{
		FieldKey: base64.StdEncoding.EncodeToString([]byte(strings.Repeat("c", 32))),
	})
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m := metrics.NewDomainMetrics(reg)
	repository, err := NewRepository(conn, codec, m, nil)
	require.NoError(t, err)
	reader, err := tenants.NewReader(conn, tenants.Defaults{})
	require.NoError(t, err)
	built, err := NewService(db.NewFromConn(conn), repository, reader)
	require.NoError(t, err)

	tenant := models.Tenant{Name: "Padaria", Slug: uuid.NewString(), Plan: enums.TenantPlanFree}
	require.NoError(t, conn.Create(&tenant).Error)
	return &fixture{conn: conn, svc: built.(*service), registry: reg, tenant: tenant.ID}
}

func TestRegisterEncryptsContactFields(t *testing.T) {
	f := setup(t)

	profile, err := f.svc.Register(context.Background(), RegisterInput{
		TenantID: f.tenant,
		Name:     " Ana ",
		Phone:    "11999990000",
		Email:    "Ana@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", profile.Name)
	assert.Equal(t, "11999990000", profile.Phone)
	assert.Equal(t, "ana@example.com", profile.Email)
	assert.Equal(t, "Bronze", profile.LoyaltyTier)
	assert.Zero(t, profile.LoyaltyPoints)
	assert.Len(t, profile.ReferralCode, referralCodeLength)

	var raw models.Customer
	require.NoError(t, f.conn.First(&raw, "id = ?", profile.ID).Error)
	assert.NotContains(t, raw.Phone, "99999")
	assert.NotContains(t, raw.Email, "example")
}

func TestRegisterResolvesReferrer(t *testing.T) {
	f := setup(t)
	referrer, err := f.svc.Register(context.Background(), RegisterInput{TenantID: f.tenant, Name: "Bia"})
	require.NoError(t, err)

	referred, err := f.svc.Register(context.Background(), RegisterInput{
		TenantID:     f.tenant,
		Name:         "Caio",
		ReferralCode: strings.ToLower(referrer.ReferralCode),
	})
	require.NoError(t, err)
	require.NotNil(t, referred.ReferredBy)
	assert.Equal(t, referrer.ID, *referred.ReferredBy)

	_, err = f.svc.Register(context.Background(), RegisterInput{TenantID: f.tenant, Name: "Duda", ReferralCode: "NOPE0000"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestRegisterRetriesReferralCodeCollision(t *testing.T) {
	f := setup(t)
	codes := []string{"TAKEN001", "TAKEN001", "FRESH001"}
	f.svc.newCode = func() string {
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code
	}

	first, err := f.svc.Register(context.Background(), RegisterInput{TenantID: f.tenant, Name: "Eva"})
	require.NoError(t, err)
	assert.Equal(t, "TAKEN001", first.ReferralCode)

	second, err := f.svc.Register(context.Background(), RegisterInput{TenantID: f.tenant, Name: "Fabio"})
	require.NoError(t, err)
	assert.Equal(t, "FRESH001", second.ReferralCode)
}

func TestRegisterGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := setup(t)
	f.svc.newCode = func() string { return "SAMECODE" }

	_, err := f.svc.Register(context.Background(), RegisterInput{TenantID: f.tenant, Name: "Gil"})
	require.NoError(t, err)
	_, err = f.svc.Register(context.Background(), RegisterInput{TenantID: f.tenant, Name: "Hugo"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestGetFallsBackToStoredValueOnDecodeFailure(t *testing.T) {
	f := setup(t)
	legacy := models.Customer{
		TenantID:     f.tenant,
		Name:         "Iara",
		Phone:        "11988887777",
		ReferralCode: "LEGACY01",
	}
	require.NoError(t, f.conn.Create(&legacy).Error)

	profile, err := f.svc.Get(context.Background(), f.tenant, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, "11988887777", profile.Phone)
	assert.Equal(t, "", profile.Email)
	expected := `
# HELP comanda_security_decode_fallbacks_total Encrypted fields returned raw because decryption failed.
# TYPE comanda_security_decode_fallbacks_total counter
comanda_security_decode_fallbacks_total{field="phone"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "comanda_security_decode_fallbacks_total"))
}

func TestGetIsTenantScoped(t *testing.T) {
	f := setup(t)
	profile, err := f.svc.Register(context.Background(), RegisterInput{TenantID: f.tenant, Name: "Jo"})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), uuid.New(), profile.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	found, err := f.svc.FindByReferralCode(context.Background(), f.tenant, profile.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, found.ID)
}

func TestRegisterValidation(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Register(context.Background(), RegisterInput{TenantID: f.tenant, Email: "not-an-email"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
