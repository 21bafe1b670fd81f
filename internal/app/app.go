// Package app wires configuration, infrastructure, and domain handlers into
// a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/vantagecrm/courier/internal/config"
	"github.com/vantagecrm/courier/internal/events"
	"github.com/vantagecrm/courier/internal/httpserver"
	"github.com/vantagecrm/courier/internal/platform"
	"github.com/vantagecrm/courier/internal/telemetry"
	"github.com/vantagecrm/courier/internal/vault"
	"github.com/vantagecrm/courier/pkg/connection"
	"github.com/vantagecrm/courier/pkg/gateway"
	"github.com/vantagecrm/courier/pkg/messaging"
	"github.com/vantagecrm/courier/pkg/tenant"
	"github.com/vantagecrm/courier/pkg/user"
	"github.com/vantagecrm/courier/pkg/webhook"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the requested mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if !validMode(cfg.Mode) {
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}

	logger.Info("starting courier",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	// Database
	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	// Redis
	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	// Metrics
	metricsReg := telemetry.NewMetricsRegistry()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "migrate":
		// Schema was already applied above; this mode exits without
		// starting the API.
		logger.Info("migrate complete, exiting")
		return nil
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// validMode reports whether mode names a runnable mode.
func validMode(mode string) bool {
	switch mode {
	case "api", "migrate":
		return true
	}
	return false
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	v, err := vault.New(cfg.CredentialSecret)
	if err != nil {
		return fmt.Errorf("initializing credential vault: %w", err)
	}

	// Lead event writer (async, buffered).
	eventWriter := events.NewWriter(events.NewStore(db), logger)
	eventWriter.Start(ctx)
	defer eventWriter.Close()

	users := user.NewStore(db)
	tenants := tenant.NewStore(db)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, users,
		tenant.Middleware(tenants, logger))

	// Connection lifecycle.
	clientFactory := func(baseURL, credential string) connection.GatewayClient {
		return gateway.NewClient(baseURL, credential, cfg.GatewayTimeout, logger)
	}
	connService := connection.NewService(db, v, eventWriter, clientFactory, logger)
	srv.APIRouter.Mount("/connection", connection.NewHandler(connService, logger).Routes())

	// Outbound messaging.
	dispatcher := webhook.NewDispatcher(tenants, cfg.WebhookTimeout, logger)
	limiter := messaging.NewRedisRateLimiter(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
	senderFactory := func(baseURL, credential string) messaging.Sender {
		return gateway.NewClient(baseURL, credential, cfg.GatewayTimeout, logger)
	}
	pipeline := messaging.NewPipeline(db, limiter, v, senderFactory, dispatcher, eventWriter, logger)
	srv.APIRouter.Mount("/messages", messaging.NewHandler(pipeline, logger).Routes())

	// Tenant webhook administration.
	srv.APIRouter.Mount("/tenant", tenant.NewHandler(tenants, logger).Routes())

	// Lead event log (read side).
	srv.APIRouter.Mount("/events", events.NewHandler(events.NewStore(db), logger).Routes())

	// Operational status for the authenticated tenant.
	srv.APIRouter.Get("/system/status", srv.HandleStatus)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
