package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-go/internal/api"
	"github.com/irfndi/celebrum-arb-go/internal/api/handlers"
	"github.com/irfndi/celebrum-arb-go/internal/cache"
	"github.com/irfndi/celebrum-arb-go/internal/chain"
	"github.com/irfndi/celebrum-arb-go/internal/config"
	"github.com/irfndi/celebrum-arb-go/internal/database"
	"github.com/irfndi/celebrum-arb-go/internal/logging"
	"github.com/irfndi/celebrum-arb-go/internal/metrics"
	"github.com/irfndi/celebrum-arb-go/internal/services"
	"github.com/irfndi/celebrum-arb-go/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

func run() error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment, os.Stdout)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	tracing, err := telemetry.InitTracing(cfg.Telemetry, os.Stdout)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.Shutdown(ctx); err != nil {
				logger.WithError(err).Warn("Failed to flush traces")
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	ctx := context.Background()
	checks := map[string]handlers.HealthChecker{}

	routeCache, closeCache, err := buildRouteCache(cfg, logger, checks)
	if err != nil {
		return err
	}
	defer closeCache()

	venues, closeVenues, err := buildVenueRegistry(ctx, cfg, logger, checks)
	if err != nil {
		return err
	}
	defer closeVenues()

	client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	tokens, err := chainTokens(cfg.Chain.Tokens)
	if err != nil {
		return err
	}
	routers, err := routerAddresses(cfg.Chain.Routers)
	if err != nil {
		return err
	}
	quoter, err := chain.NewRouterQuoter(client, routers, tokens, logger)
	if err != nil {
		return err
	}

	engine, err := services.NewArbitrageEngine(cfg.EngineConfig(), services.EngineDeps{
		Quotes:    quoter,
		Venues:    venues,
		FeeData:   chain.NewFeeSource(client, logger),
		Pricer:    services.NewStaticTokenPricer(cfg.TokenPrices()),
		Cache:     routeCache,
		Collector: collector,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to build arbitrage engine: %w", err)
	}
	engine.Start()
	defer engine.Stop()

	checks["engine"] = handlers.HealthCheckFunc(func(context.Context) error {
		if !engine.GetStats().Running {
			return errors.New("engine not running")
		}
		return nil
	})

	router := api.NewRouter(api.RouterDeps{
		Engine:         engine,
		Collector:      collector,
		HealthChecks:   checks,
		Version:        telemetry.ServiceVersion,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.LogStartup(logger, telemetry.ServiceName, telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	reason := ""
	select {
	case sig := <-quit:
		reason = sig.String()
	case err := <-serverErr:
		logger.WithError(err).Error("HTTP server failed")
		reason = "server error"
	}
	logging.LogShutdown(logger, telemetry.ServiceName, reason)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// buildRouteCache selects the route cache backend. The returned func
// releases any connection it opened.
func buildRouteCache(cfg *config.Config, logger *logrus.Logger, checks map[string]handlers.HealthChecker) (cache.Store, func(), error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemoryStore(cfg.Cache.MaxEntries, nil, logger), func() {}, nil
	}

	redisClient, err := database.NewRedisConnection(cfg.Redis, logger)
	if err != nil {
		return nil, nil, err
	}
	checks["redis"] = redisClient
	return cache.NewRedisStore(redisClient.Client, cfg.Cache.KeyPrefix, logger), redisClient.Close, nil
}

// buildVenueRegistry serves venues from Postgres when the database is
// enabled and from the static venues section otherwise.
func buildVenueRegistry(ctx context.Context, cfg *config.Config, logger *logrus.Logger, checks map[string]handlers.HealthChecker) (services.VenueRegistry, func(), error) {
	if !cfg.Database.Enabled {
		return services.NewStaticVenueRegistry(cfg.VenueList()), func() {}, nil
	}

	db, err := database.NewPostgresConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	checks["database"] = db
	return database.NewVenueRepository(database.NewTracedPool(db.Pool), logger), db.Close, nil
}

func chainTokens(in map[string]config.TokenConfig) (map[string]chain.Token, error) {
	out := make(map[string]chain.Token, len(in))
	for symbol, t := range in {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("token %s has invalid address %q", symbol, t.Address)
		}
		out[strings.ToUpper(symbol)] = chain.Token{Address: common.HexToAddress(t.Address), Decimals: t.Decimals}
	}
	return out, nil
}

func routerAddresses(in map[string]string) (map[string]common.Address, error) {
	out := make(map[string]common.Address, len(in))
	for venue, addr := range in {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("router for %s has invalid address %q", venue, addr)
		}
		out[strings.ToLower(venue)] = common.HexToAddress(addr)
	}
	return out, nil
}
