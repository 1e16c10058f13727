package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockledger-backend/internal/bootstrap"
	"github.com/angelmondragon/stockledger-backend/internal/eventing"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/instance"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/stockledger-backend/pkg/pubsub"
	"github.com/angelmondragon/stockledger-backend/pkg/redis"
)

const (
	serviceKind      = "worker"
	ordersConsumer   = "stock-orders"
	receiptsConsumer = "stock-receipts"
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
		logg.Error(ctx, "worker stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeLogged(ctx, logg, "database", dbClient.Close)

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

	services, err := bootstrap.NewServices(bootstrap.Params{
		DB:      dbClient,
		Logger:  logg,
		Metrics: metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("ledger services: %w", err)
	}
	claims, err := idempotency.NewTracker(redisClient, cfg.Eventing.InFlightTTL, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency tracker: %w", err)
	}

	ordersRouter := eventing.NewRouter()
	services.ReservationEvents.Register(ordersRouter)
	receiptsRouter := eventing.NewRouter()
	services.DocumentEvents.Register(receiptsRouter)

	var consumers []consumer
	for _, spec := range []struct {
		name         string
		subscription *gcppubsub.Subscriber
		router       *eventing.Router
	}{
		{ordersConsumer, pubsubClient.OrdersSubscription(), ordersRouter},
		{receiptsConsumer, pubsubClient.ReceiptsSubscription(), receiptsRouter},
	} {
		if spec.subscription == nil {
			return fmt.Errorf("%s: subscription not configured", spec.name)
		}
		sub, err := eventing.NewSubscriber(eventing.SubscriberParams{
			Consumer:    spec.name,
			Receiver:    spec.subscription,
			Handler:     spec.router,
			Idempotency: claims,
			Logger:      logg,
		})
		if err != nil {
			return fmt.Errorf("%s subscriber: %w", spec.name, err)
		}
		consumers = append(consumers, consumer{name: spec.name, run: sub})
	}

	service, err := NewService(logg, []check{
		{name: "database", ping: dbClient.Ping},
		{name: "redis", ping: redisClient.Ping},
		{name: "pubsub", ping: pubsubClient.Ping},
	}, consumers)
	if err != nil {
		return err
	}

	go metrics.Serve(ctx, ":"+cfg.App.Port, logg)
	logg.Info(ctx, "worker ready")
	return service.Run(ctx)
}

func closeLogged(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
