package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/registry"
)

type deliveryOutcome int

const (
	deliveryPublished deliveryOutcome = iota
	deliveryRetry
	deliveryDeadLetter
)

// delivery is what happened to one outbox row on this attempt.
type delivery struct {
	outcome deliveryOutcome
	reason  enums.OutboxDLQErrorReason
	err     error
	eventID string
	topics  []string
}

// deliver resolves a row and publishes it to every topic of its descriptor.
// A failure on any topic fails the whole row; consumers de-duplicate the
// repeat deliveries a retry produces.
func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) delivery {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return delivery{outcome: deliveryDeadLetter, reason: enums.OutboxDLQReasonUndecodable, err: err}
	}

	d := delivery{eventID: resolved.Envelope.EventID, topics: resolved.Descriptor.Topics()}
	for _, topic := range d.topics {
		if err := r.publish(ctx, topic, row, d.eventID); err != nil {
			d.err = err
			var nonRetryable registry.NonRetryableError
			switch {
			case errors.As(err, &nonRetryable):
				d.outcome = deliveryDeadLetter
				d.reason = enums.OutboxDLQReasonNonRetryable
			case row.AttemptCount+1 >= r.maxAttempts:
				d.outcome = deliveryDeadLetter
				d.reason = enums.OutboxDLQReasonMaxAttempts
				d.err = fmt.Errorf("max publish attempts reached: %w", err)
			default:
				d.outcome = deliveryRetry
			}
			return d
		}
	}
	d.outcome = deliveryPublished
	return d
}

func (r *Relay) publish(ctx context.Context, topic string, row models.OutboxEvent, eventID string) error {
	pub := r.topics.Topic(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: messageAttributes(row, eventID),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func messageAttributes(row models.OutboxEvent, eventID string) map[string]string {
	if eventID == "" {
		eventID = row.ID.String()
	}
	return map[string]string{
		"event_id":       eventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
	}
}

// settle persists the outcome of a delivery inside the batch transaction.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, d delivery) error {
	logCtx := r.logg.WithFields(ctx, r.rowFields(row, d))
	eventType := string(row.EventType)

	switch d.outcome {
	case deliveryPublished:
		if err := r.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.metrics.IncOutbox(eventType, metrics.OutboxPublished)
		r.logg.Info(logCtx, "outbox event published")

	case deliveryRetry:
		r.logg.Warn(r.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed")
		if err := r.repo.MarkFailedTx(tx, row.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", row.ID, err)
		}
		r.metrics.IncOutbox(eventType, metrics.OutboxRetried)

	case deliveryDeadLetter:
		r.logg.Warn(r.logg.WithField(logCtx, "error", d.err.Error()), "outbox event moved to dead letter")
		message := d.err.Error()
		entry := models.OutboxDLQ{
			EventID:       row.ID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			Payload:       row.Payload,
			ErrorReason:   d.reason,
			ErrorMessage:  &message,
			AttemptCount:  row.AttemptCount,
			FailedAt:      r.now().UTC(),
		}
		if err := r.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", row.ID, err)
		}
		if err := r.repo.MarkTerminalTx(tx, row.ID, d.err); err != nil {
			return fmt.Errorf("mark terminal %s: %w", row.ID, err)
		}
		r.metrics.IncOutbox(eventType, metrics.OutboxDeadLettered)
	}
	return nil
}

func (r *Relay) rowFields(row models.OutboxEvent, d delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if d.eventID != "" {
		fields["event_id"] = d.eventID
	}
	if len(d.topics) > 0 {
		fields["topics"] = strings.Join(d.topics, ",")
	}
	if d.outcome == deliveryDeadLetter {
		fields["error_reason"] = d.reason
	}
	return fields
}
