package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/mandi-backend/internal/app"
	"github.com/angelmondragon/mandi-backend/internal/cron"
	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db"
	"github.com/angelmondragon/mandi-backend/pkg/locks"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/metrics"
	"github.com/angelmondragon/mandi-backend/pkg/migrate"
	"github.com/angelmondragon/mandi-backend/pkg/outbox"
	"github.com/angelmondragon/mandi-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		bootLog.Error(context.Background(), "cron worker exited", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceName

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
	services, err := app.NewServices(app.Params{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Locker:  locker,
		Metrics: metrics.NewDomainMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("domain services: %w", err)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, services)
	if err != nil {
		return fmt.Errorf("cron jobs: %w", err)
	}
	lease, err := cron.NewRedisLease(redisClient, redisClient.LockKey(serviceName, envOrLocal(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lease: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lease:    lease,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"jobs":        len(registry.Jobs()),
	})
	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker stopped")
	return nil
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *app.Services) (*cron.Registry, error) {
	expiry, err := cron.NewGroupOrderExpiryJob(cron.GroupOrderExpiryJobParams{
		Logger:  logg,
		Expirer: services.GroupOrders,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:              logg,
		Events:              outbox.NewRepository(dbClient.DB()),
		DeadLetters:         outbox.NewDeadLetterRepository(dbClient.DB()),
		RetentionDays:       cfg.Cron.OutboxRetentionDays,
		DeadLetterRetention: cfg.Cron.DeadLetterRetention,
		MinAttempts:         cfg.Outbox.MaxAttempts,
		Batch:               cfg.Cron.OutboxRetentionBatch,
	})
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(expiry, retention)
	if err != nil {
		return nil, err
	}
	if !cfg.Cron.SettlementScanEnabled {
		return registry, nil
	}
	scan, err := cron.NewSettlementScanJob(cron.SettlementScanJobParams{
		Logger:  logg,
		Settler: services.GroupOrders,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(scan); err != nil {
		return nil, err
	}
	return registry, nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
