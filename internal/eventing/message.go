package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
)

// Message is a decoded event envelope received from a subscription.
type Message struct {
	MessageID     string
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	Actor         *outbox.ActorRef
	Data          json.RawMessage
}

// Decode unmarshals the event data into dst.
func (m Message) Decode(dst any) error {
	if len(m.Data) == 0 {
		return errors.New("event data is empty")
	}
	if err := json.Unmarshal(m.Data, dst); err != nil {
		return fmt.Errorf("decode %s data: %w", m.EventType, err)
	}
	return nil
}

// ActorID returns the acting principal carried by the envelope, if any.
func (m Message) ActorID() *uuid.UUID {
	if m.Actor == nil || m.Actor.ActorID == uuid.Nil {
		return nil
	}
	id := m.Actor.ActorID
	return &id
}

// FromPubSub builds a Message from the envelope body and attributes of msg.
// The event id falls back to the event_id attribute and then to the
// message id, which is stable across redeliveries.
func FromPubSub(msg *gcppubsub.Message) (Message, error) {
	if msg == nil {
		return Message{}, errors.New("message is nil")
	}
	stored, err := outbox.Open(msg.Data)
	if err != nil {
		return Message{}, err
	}

	eventType, err := enums.ParseOutboxEventType(attribute(msg, "event_type"))
	if err != nil {
		return Message{}, fmt.Errorf("event_type: %w", err)
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created := attribute(msg, "created_at"); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = attribute(msg, "event_id")
	}
	if eventID == "" {
		eventID = strings.TrimSpace(msg.ID)
	}
	if eventID == "" {
		return Message{}, errors.New("event_id missing")
	}

	return Message{
		MessageID:     msg.ID,
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: attribute(msg, "aggregate_type"),
		AggregateID:   attribute(msg, "aggregate_id"),
		OccurredAt:    occurredAt.UTC(),
		Actor:         stored.Actor,
		Data:          stored.Data,
	}, nil
}

func attribute(msg *gcppubsub.Message, key string) string {
	if msg.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(msg.Attributes[key])
}
