package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type RelayParams struct {
	Outbox        config.OutboxConfig
	Logger        *logger.Logger
	DB            dbClient
	PubSub        pubSubClient
	Repository    outboxRepository
	DLQRepository dlqRepository
	Registry      registryResolver
	Topics        topicPublisher
	Metrics       *metrics.LedgerMetrics
	Now           func() time.Time
}

// Relay drains committed outbox rows to Pub/Sub. Each poll claims a batch
// inside one transaction, publishes every row to all of its topics and
// settles the row as published, retried or dead-lettered.
type Relay struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pubSubClient
	repo        outboxRepository
	dlq         dlqRepository
	registry    registryResolver
	topics      topicPublisher
	metrics     *metrics.LedgerMetrics
	now         func() time.Time
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	topics := params.Topics
	if topics == nil {
		topics = newClientTopics(params.PubSub)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	relay := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		repo:        params.Repository,
		dlq:         params.DLQRepository,
		registry:    params.Registry,
		topics:      topics,
		metrics:     params.Metrics,
		now:         now,
		batchSize:   params.Outbox.BatchSize,
		maxAttempts: params.Outbox.MaxAttempts,
		poll:        time.Duration(params.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if relay.batchSize <= 0 {
		relay.batchSize = defaultBatchSize
	}
	if relay.maxAttempts <= 0 {
		relay.maxAttempts = defaultMaxAttempts
	}
	if relay.poll <= 0 {
		relay.poll = defaultPollInterval
	}
	return relay, nil
}

// Run polls until the context ends. An idle poll waits one interval; a failed
// batch backs off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.checkDependencies(ctx); err != nil {
		return err
	}

	wait := newPollBackoff(r.poll, maxBackoff)
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		claimed, err := r.drainOnce(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			if err := sleepCtx(ctx, wait.Fail()); err != nil {
				return err
			}
		case claimed > 0:
			wait.Reset()
		default:
			wait.Reset()
			if err := sleepCtx(ctx, wait.Idle()); err != nil {
				return err
			}
		}
	}
}

func (r *Relay) checkDependencies(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		r.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.pubsub.Ping(ctx); err != nil {
		r.logg.Error(ctx, "pubsub ping failed", err)
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// drainOnce claims and settles one batch. It returns how many rows were
// claimed.
func (r *Relay) drainOnce(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(rows)
		for _, row := range rows {
			if err := r.settle(ctx, tx, row, r.deliver(ctx, row)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}
