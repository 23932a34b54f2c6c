package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/comanda-backend/api/controllers"
	customercontrollers "github.com/angelmondragon/comanda-backend/api/controllers/customers"
	ordercontrollers "github.com/angelmondragon/comanda-backend/api/controllers/orders"
	"github.com/angelmondragon/comanda-backend/api/middleware"
	"github.com/angelmondragon/comanda-backend/pkg/config"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
)

// Deps are the collaborators the router exposes.
type Deps struct {
	DB        controllers.Pinger
	Redis     controllers.Pinger
	Orders    ordercontrollers.Reader
	Customers customercontrollers.Reader
	Gatherer  prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Get("/readyz", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
		"db":    deps.DB,
		"redis": deps.Redis,
	}))

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Tenant routes carry no auth of their own; the gateway in front must
	// authenticate the caller and check tenant membership. Customer and order
	// reads return decrypted phone and email.
	r.Route("/api/v1/tenants/{tenantId}/orders", func(r chi.Router) {
		r.Get("/", ordercontrollers.Board(deps.Orders, logg))
		r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
	})

	r.Get("/api/v1/tenants/{tenantId}/customers/{customerId}", customercontrollers.Detail(deps.Customers, logg))

	return r
}
