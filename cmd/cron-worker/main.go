package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockledger-backend/internal/bootstrap"
	"github.com/angelmondragon/stockledger-backend/internal/cron"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/instance"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/migrate"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run every job once and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.GetID(),
	})

	if err := run(ctx, cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeLogged(ctx, logg, "database", dbClient.Close)
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeLogged(ctx, logg, "redis", redisClient.Close)

	services, err := bootstrap.NewServices(bootstrap.Params{
		DB:      dbClient,
		Logger:  logg,
		Metrics: metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("ledger services: %w", err)
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:                  logg,
		DB:                      dbClient,
		Outbox:                  outbox.NewRepository(dbClient.DB()),
		DeadLetters:             outbox.NewDeadLetters(dbClient.DB()),
		RetentionDays:           cfg.Outbox.RetentionDays,
		DeadLetterRetentionDays: cfg.Outbox.DeadLetterRetentionDays,
		BatchSize:               cfg.Outbox.PurgeBatchSize,
	})
	if err != nil {
		return err
	}
	sweep, err := cron.NewReconciliationSweepJob(cron.ReconciliationSweepJobParams{
		Logger:     logg,
		Balances:   services.Balances,
		Reconciler: services.Movements,
		PageSize:   cfg.Cron.ReconcilePageSize,
	})
	if err != nil {
		return err
	}
	registry, err := cron.NewRegistry(retention, sweep)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind, cfg.App.Env), 2*cfg.Cron.Interval)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	if once {
		report, err := service.RunOnce(ctx)
		if err != nil {
			return err
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("jobs failed: %v", report.Failed)
		}
		return nil
	}

	go metrics.Serve(ctx, ":"+cfg.App.Port, logg)
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func closeLogged(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
