package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/comanda-backend/api/routes"
	"github.com/angelmondragon/comanda-backend/internal/coupons"
	"github.com/angelmondragon/comanda-backend/internal/customers"
	"github.com/angelmondragon/comanda-backend/internal/inventory"
	"github.com/angelmondragon/comanda-backend/internal/loyalty"
	"github.com/angelmondragon/comanda-backend/internal/orders"
	"github.com/angelmondragon/comanda-backend/internal/quota"
	"github.com/angelmondragon/comanda-backend/internal/recipes"
	"github.com/angelmondragon/comanda-backend/internal/tenants"
	"github.com/angelmondragon/comanda-backend/pkg/bootstrap"
	"github.com/angelmondragon/comanda-backend/pkg/config"
	"github.com/angelmondragon/comanda-backend/pkg/db"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/metrics"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/redis"
	"github.com/angelmondragon/comanda-backend/pkg/security"
)

const shutdownTimeout = 15 * time.Second

type core struct {
	orders    orders.Service
	customers customers.Service
}

const serviceName = "api"

func main() {
	cfg, logg, err := bootstrap.Load(serviceName)
	if err != nil {
		logg.Error(context.Background(), "startup failed", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = bootstrap.BaseContext(ctx, cfg, logg)
	err = run(ctx, cfg, logg)
	stop()
	if err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := bootstrap.OpenDB(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer bootstrap.CloseWith(ctx, logg, "database", dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer bootstrap.CloseWith(ctx, logg, "redis", redisClient.Close)

	services, err := buildCore(cfg, logg, dbClient, metrics.NewDomainMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return fmt.Errorf("wire core services: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			DB:        dbClient,
			Redis:     redisClient,
			Orders:    services.orders,
			Customers: services.customers,
			Gatherer:  prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	logg.Info(logg.WithField(ctx, "addr", server.Addr), "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}

func buildCore(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, m *metrics.DomainMetrics) (*core, error) {
	conn := dbClient.DB()

	pointsPerCurrency, err := decimal.NewFromString(cfg.Loyalty.DefaultPointsPerCurrency)
	if err != nil {
		return nil, err
	}
	settings, err := tenants.NewReader(conn, tenants.Defaults{
		PreparationTime:   cfg.Orders.DefaultPreparationTime(),
		PointsPerCurrency: pointsPerCurrency,
	})
	if err != nil {
		return nil, err
	}

	codec, err := security.NewFieldCodec(cfg.Crypto)
	if err != nil {
		return nil, err
	}
	customerRepo, err := customers.NewRepository(conn, codec, m, logg)
	if err != nil {
		return nil, err
	}
	customerSvc, err := customers.NewService(dbClient, customerRepo, settings)
	if err != nil {
		return nil, err
	}

	publisher := outbox.NewService(outbox.NewRepository(conn), logg)

	guard, err := quota.NewGuard(conn, settings, m, cfg.FeatureFlags.StrictQuota)
	if err != nil {
		return nil, err
	}
	resolver, err := recipes.NewResolver(conn)
	if err != nil {
		return nil, err
	}
	ledger, err := inventory.NewLedger(inventory.LedgerParams{
		DB:                 dbClient,
		Recipes:            resolver,
		Tenants:            settings,
		Outbox:             publisher,
		Metrics:            m,
		Logger:             logg,
		AllowNegativeStock: cfg.FeatureFlags.AllowNegativeStock,
	})
	if err != nil {
		return nil, err
	}
	validator, err := coupons.NewValidator(dbClient, publisher, m, logg)
	if err != nil {
		return nil, err
	}
	account, err := loyalty.NewAccount(dbClient, settings, publisher, m, logg)
	if err != nil {
		return nil, err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		DB:        dbClient,
		Quota:     guard,
		Tenants:   settings,
		Inventory: ledger,
		Coupons:   validator,
		Loyalty:   account,
		Outbox:    publisher,
		Metrics:   m,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	return &core{orders: orderSvc, customers: customerSvc}, nil
}
