package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/mandi-backend/api/routes"
	"github.com/angelmondragon/mandi-backend/internal/app"
	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db"
	"github.com/angelmondragon/mandi-backend/pkg/locks"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/metrics"
	"github.com/angelmondragon/mandi-backend/pkg/migrate"
	"github.com/angelmondragon/mandi-backend/pkg/outbox"
	"github.com/angelmondragon/mandi-backend/pkg/redis"
)

const serviceName = "api"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		bootLog.Error(context.Background(), "api exited", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	locker, err := locks.FromConfig(cfg.Locks, redisClient)
	if err != nil {
		return fmt.Errorf("entity locks: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	services, err := app.NewServices(app.Params{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Locker:  locker,
		Metrics: metrics.NewDomainMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("domain services: %w", err)
	}

	handler := routes.NewRouter(
		cfg,
		logg,
		dbClient,
		redisClient,
		metrics.NewHTTPMetrics(reg),
		reg,
		services.Catalog,
		services.Orders,
		services.GroupOrders,
		outbox.NewDeadLetterRepository(dbClient.DB()),
	)

	server := &http.Server{
		Addr:         listenAddr(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         server.Addr,
		"lock_backend": cfg.Locks.Backend,
	})
	return serve(ctx, logg, server, cfg.HTTP)
}

// listenAddr honours PORT for platforms that inject it.
func listenAddr(fallback string) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + fallback
}

// serve blocks until the server fails or ctx is cancelled, then drains
// in-flight requests within the configured shutdown timeout.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server, cfg config.HTTPConfig) error {
	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logg.Info(shutdownCtx, "api server shut down gracefully")
	return nil
}
