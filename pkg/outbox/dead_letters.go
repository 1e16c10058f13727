package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

const (
	maxDLQErrorLen      = 1024
	defaultDLQListLimit = 50
)

// ErrDeadLetterNotFound is returned by Requeue for an unknown event id.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// DeadLetters stores events the relay gave up on and puts them back into
// the outbox on request.
type DeadLetters struct {
	db *gorm.DB
}

func NewDeadLetters(db *gorm.DB) *DeadLetters {
	return &DeadLetters{db: db}
}

// InsertTx records entry. A second insert for the same event id is ignored,
// so a batch replayed after a partial failure does not error.
func (d *DeadLetters) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncate(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&entry).Error
}

// DeadLetterFilter narrows List.
type DeadLetterFilter struct {
	EventType *enums.OutboxEventType
	Reason    *enums.OutboxDLQErrorReason
	Limit     int
}

// List returns the most recent dead letters first.
func (d *DeadLetters) List(ctx context.Context, f DeadLetterFilter) ([]models.OutboxDLQ, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultDLQListLimit
	}
	query := d.db.WithContext(ctx)
	if f.EventType != nil {
		query = query.Where("event_type = ?", *f.EventType)
	}
	if f.Reason != nil {
		query = query.Where("error_reason = ?", *f.Reason)
	}
	var rows []models.OutboxDLQ
	err := query.Order("failed_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// PurgeBefore drops dead letters that failed before cutoff.
func (d *DeadLetters) PurgeBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	result := tx.Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return result.RowsAffected, result.Error
}

// Requeue hands a dead-lettered event back to the relay under its original
// id, so consumers that already saw it can still de-duplicate. The outbox row
// is reset, or recreated when retention has already removed it.
func (d *DeadLetters) Requeue(ctx context.Context, eventID uuid.UUID) (*models.OutboxEvent, error) {
	var requeued models.OutboxEvent
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.OutboxDLQ
		if err := tx.Where("event_id = ?", eventID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDeadLetterNotFound
			}
			return err
		}

		reset := tx.Model(&models.OutboxEvent{}).
			Where("id = ?", eventID).
			Updates(map[string]any{"published_at": nil, "attempt_count": 0, "last_error": nil})
		if reset.Error != nil {
			return fmt.Errorf("reset outbox row: %w", reset.Error)
		}
		if reset.RowsAffected == 0 {
			row := models.OutboxEvent{
				ID:            entry.EventID,
				EventType:     entry.EventType,
				AggregateType: entry.AggregateType,
				AggregateID:   entry.AggregateID,
				Payload:       entry.Payload,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("recreate outbox row: %w", err)
			}
		}

		if err := tx.Delete(&entry).Error; err != nil {
			return fmt.Errorf("delete dead letter: %w", err)
		}
		return tx.Where("id = ?", eventID).First(&requeued).Error
	})
	if err != nil {
		return nil, err
	}
	return &requeued, nil
}
