package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalorders "github.com/angelmondragon/comanda-backend/internal/orders"
	"github.com/angelmondragon/comanda-backend/pkg/config"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/metrics"
	"github.com/angelmondragon/comanda-backend/pkg/pagination"
	"github.com/angelmondragon/comanda-backend/pkg/types"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubOrders struct {
	detail     *internalorders.Detail
	getErr     error
	lastList   internalorders.ListParams
	listResult *pagination.Page[models.Order]
}

func (s *stubOrders) Get(_ context.Context, tenantID, orderID uuid.UUID) (*internalorders.Detail, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.detail == nil || s.detail.Order.TenantID != tenantID || s.detail.Order.ID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.detail, nil
}

func (s *stubOrders) List(_ context.Context, params internalorders.ListParams) (*pagination.Page[models.Order], error) {
	s.lastList = params
	if s.listResult == nil {
		return &pagination.Page[models.Order]{}, nil
	}
	return s.listResult, nil
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func newTestRouter(deps Deps) http.Handler {
	if deps.DB == nil {
		deps.DB = stubPinger{}
	}
	if deps.Redis == nil {
		deps.Redis = stubPinger{}
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}
	return NewRouter(testConfig(), logger.Nop(), deps)
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReportsLive(t *testing.T) {
	rec := serve(t, newTestRouter(Deps{}), http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Comanda-Env"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestReadyzChecksDependencies(t *testing.T) {
	rec := serve(t, newTestRouter(Deps{}), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, newTestRouter(Deps{Redis: stubPinger{err: errors.New("connection refused")}}), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeDependency), body.Error.Code)
	details, ok := body.Error.Details.(map[string]any)
	require.True(t, ok)
	checks := details["checks"].(map[string]any)
	assert.Equal(t, "up", checks["db"])
	assert.Equal(t, "down", checks["redis"])
}

func TestMetricsExposesDomainCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDomainMetrics(reg)
	m.ObserveTransition("new", "confirmed")

	rec := serve(t, newTestRouter(Deps{Gatherer: reg}), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `comanda_orders_transitions_total{from="new",to="confirmed"} 1`))
}

func TestOrderDetailReturnsTiming(t *testing.T) {
	tenantID := uuid.New()
	orderID := uuid.New()
	orders := &stubOrders{detail: &internalorders.Detail{
		Order: models.Order{ID: orderID, TenantID: tenantID, Number: 7, Status: enums.OrderStatusPreparing},
		Timing: internalorders.Timing{
			ElapsedMinutes: 22,
			BudgetMinutes:  25,
			Status:         enums.TimeStatusWarning,
			EvaluatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}}
	h := newTestRouter(Deps{Orders: orders})

	rec := serve(t, h, http.MethodGet, "/api/v1/tenants/"+tenantID.String()+"/orders/"+orderID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Timing struct {
				ElapsedMinutes int    `json:"elapsed_minutes"`
				TimeStatus     string `json:"time_status"`
			} `json:"timing"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 22, body.Data.Timing.ElapsedMinutes)
	assert.Equal(t, string(enums.TimeStatusWarning), body.Data.Timing.TimeStatus)

	rec = serve(t, h, http.MethodGet, "/api/v1/tenants/"+uuid.NewString()+"/orders/"+orderID.String())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, h, http.MethodGet, "/api/v1/tenants/not-a-uuid/orders/"+orderID.String())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderBoardParsesFilters(t *testing.T) {
	tenantID := uuid.New()
	orders := &stubOrders{}
	h := newTestRouter(Deps{Orders: orders})

	rec := serve(t, h, http.MethodGet, "/api/v1/tenants/"+tenantID.String()+"/orders?status=preparing,ready&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenantID, orders.lastList.TenantID)
	assert.Equal(t, []enums.OrderStatus{enums.OrderStatusPreparing, enums.OrderStatusReady}, orders.lastList.Statuses)
	assert.Equal(t, 10, orders.lastList.Limit)

	rec = serve(t, h, http.MethodGet, "/api/v1/tenants/"+tenantID.String()+"/orders?status=lost")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodGet, "/api/v1/tenants/"+tenantID.String()+"/orders?limit=500")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecovererTurnsPanicsIntoInternalErrors(t *testing.T) {
	tenantID := uuid.New()
	orderID := uuid.New()
	h := newTestRouter(Deps{Orders: panickingOrders{}})

	rec := serve(t, h, http.MethodGet, "/api/v1/tenants/"+tenantID.String()+"/orders/"+orderID.String())
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCustomerDetailWithoutServiceIsInternal(t *testing.T) {
	rec := serve(t, newTestRouter(Deps{}), http.MethodGet, "/api/v1/tenants/"+uuid.NewString()+"/customers/"+uuid.NewString())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panickingOrders struct{}

func (panickingOrders) Get(context.Context, uuid.UUID, uuid.UUID) (*internalorders.Detail, error) {
	panic("boom")
}

func (panickingOrders) List(context.Context, internalorders.ListParams) (*pagination.Page[models.Order], error) {
	panic("boom")
}
