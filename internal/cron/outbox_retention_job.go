package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays     = 30
	defaultDeadLetterRetentionDays = 90
	defaultPurgeBatchSize          = 1000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPurger interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type deadLetterPurger interface {
	PurgeBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Outbox      publishedPurger
	DeadLetters deadLetterPurger // optional

	RetentionDays           int
	DeadLetterRetentionDays int
	BatchSize               int
}

// NewOutboxRetentionJob builds the job that purges delivered outbox rows
// and old dead letters. Pending rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Outbox == nil:
		return nil, errors.New("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:          params.Logger,
		db:            params.DB,
		outbox:        params.Outbox,
		deadLetters:   params.DeadLetters,
		keepPublished: days(params.RetentionDays, defaultOutboxRetentionDays),
		keepDead:      days(params.DeadLetterRetentionDays, defaultDeadLetterRetentionDays),
		batch:         positive(params.BatchSize, defaultPurgeBatchSize),
		now:           time.Now,
	}, nil
}

func days(n, fallback int) time.Duration {
	return time.Duration(positive(n, fallback)) * 24 * time.Hour
}

func positive(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}

type outboxRetentionJob struct {
	logg          *logger.Logger
	db            txRunner
	outbox        publishedPurger
	deadLetters   deadLetterPurger
	keepPublished time.Duration
	keepDead      time.Duration
	batch         int
	now           func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes in batches, one transaction each, so a large backlog never
// holds a long lock on the outbox table.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	publishedCutoff := now.Add(-j.keepPublished)

	var published int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.outbox.DeletePublishedBefore(tx, publishedCutoff, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("purge published events: %w", err)
		}
		published += n
		if n < int64(j.batch) {
			break
		}
	}

	var dead int64
	if j.deadLetters != nil {
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			dead, err = j.deadLetters.PurgeBefore(tx, now.Add(-j.keepDead))
			return err
		})
		if err != nil {
			return fmt.Errorf("purge dead letters: %w", err)
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"published_cutoff":    publishedCutoff,
		"published_deleted":   published,
		"dead_letters_purged": dead,
	}), "outbox retention complete")
	return nil
}
