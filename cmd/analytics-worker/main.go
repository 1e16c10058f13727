package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/stockledger-backend/internal/analytics"
	"github.com/angelmondragon/stockledger-backend/internal/analytics/types"
	"github.com/angelmondragon/stockledger-backend/internal/analytics/writer"
	"github.com/angelmondragon/stockledger-backend/internal/eventing"
	"github.com/angelmondragon/stockledger-backend/pkg/bigquery"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/instance"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/stockledger-backend/pkg/pubsub"
	"github.com/angelmondragon/stockledger-backend/pkg/redis"
)

const (
	serviceKind  = "analytics-worker"
	consumerName = "analytics-stock-levels"

	flushTimeout = 15 * time.Second
)

func main() {
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

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker shut down")
}

// run consumes stock events into BigQuery until ctx ends, then flushes
// whatever rows are still buffered.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeLogged(ctx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RoleSubscriber, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeLogged(ctx, logg, "pubsub", pubsubClient.Close)
	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}

	bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer closeLogged(ctx, logg, "bigquery", bq.Close)

	schema, err := types.StockLevelSchema()
	if err != nil {
		return err
	}
	if err := bq.EnsureTable(ctx, bigquery.TableSpec{
		Name:           cfg.BigQuery.StockLevelsTable,
		Schema:         schema,
		PartitionField: types.StockLevelPartitionField,
	}); err != nil {
		return fmt.Errorf("stock levels table: %w", err)
	}

	stockWriter, err := writer.New(bq, writer.Options{Table: cfg.BigQuery.StockLevelsTable})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		if err := stockWriter.Flush(flushCtx); err != nil {
			logg.Error(ctx, "flush buffered stock levels", err)
		}
	}()

	sink, err := analytics.NewSink(stockWriter, logg)
	if err != nil {
		return err
	}
	router := eventing.NewRouter()
	sink.Register(router)

	claims, err := idempotency.NewTracker(redisClient, cfg.Eventing.InFlightTTL, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		return err
	}
	subscriber, err := eventing.NewSubscriber(eventing.SubscriberParams{
		Consumer:    consumerName,
		Receiver:    subscription,
		Handler:     router,
		Idempotency: claims,
		Logger:      logg,
	})
	if err != nil {
		return err
	}

	go metrics.Serve(ctx, ":"+cfg.App.Port, logg)
	logg.Info(ctx, "analytics worker ready")
	return subscriber.Run(ctx)
}

func closeLogged(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
