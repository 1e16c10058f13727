package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/instance"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/migrate"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/registry"
	"github.com/angelmondragon/stockledger-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

type options struct {
	listDeadLetters bool
	requeue         string
}

func main() {
	var opts options
	flag.BoolVar(&opts.listDeadLetters, "dead-letters", false, "print the most recent dead-lettered events and exit")
	flag.StringVar(&opts.requeue, "requeue", "", "move a dead-lettered event id back to the outbox and exit")
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

	if err := run(ctx, cfg, logg, opts); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	deadLetters := outbox.NewDeadLetters(dbClient.DB())
	switch {
	case opts.requeue != "":
		return requeue(ctx, logg, deadLetters, opts.requeue)
	case opts.listDeadLetters:
		return listDeadLetters(ctx, deadLetters)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RolePublisher, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	relay, err := NewRelay(RelayParams{
		Outbox:        cfg.Outbox,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		DLQRepository: deadLetters,
		Registry:      eventRegistry,
		Metrics:       metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	go metrics.Serve(ctx, ":"+cfg.App.Port, logg)
	logg.Info(ctx, "starting outbox publisher")
	return relay.Run(ctx)
}

func requeue(ctx context.Context, logg *logger.Logger, letters *outbox.DeadLetters, raw string) error {
	eventID, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("-requeue: %w", err)
	}
	row, err := letters.Requeue(ctx, eventID)
	if err != nil {
		return fmt.Errorf("requeue %s: %w", eventID, err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"event_id":   row.ID.String(),
		"event_type": row.EventType,
	}), "dead letter requeued")
	return nil
}

func listDeadLetters(ctx context.Context, letters *outbox.DeadLetters) error {
	rows, err := letters.List(ctx, outbox.DeadLetterFilter{})
	if err != nil {
		return err
	}
	for _, row := range rows {
		msg := ""
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
		}
		fmt.Printf("%s\t%s\t%s\t%s\tattempts=%d\t%s\n",
			row.FailedAt.Format("2006-01-02T15:04:05Z07:00"), row.EventID, row.EventType, row.ErrorReason, row.AttemptCount, msg)
	}
	return nil
}
