package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topics and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	FanOutTopics   []string
	PayloadFactory func() interface{}
}

// Topics returns the primary topic followed by any fan-out topics.
func (d EventDescriptor) Topics() []string {
	topics := []string{d.Topic}
	for _, topic := range d.FanOutTopics {
		if topic != "" && topic != d.Topic {
			topics = append(topics, topic)
		}
	}
	return topics
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each publishable event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
// Stock level changes are also fanned out to the analytics topic when set.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.StockTopic == "" {
		return nil, fmt.Errorf("stock topic is required")
	}
	if cfg.OrdersTopic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}
	if cfg.DocumentsTopic == "" {
		return nil, fmt.Errorf("documents topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}

	var analytics []string
	if cfg.AnalyticsTopic != "" {
		analytics = []string{cfg.AnalyticsTopic}
	}

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventStockLevelChanged,
			AggregateType:  enums.AggregateStockBalance,
			Topic:          cfg.StockTopic,
			FanOutTopics:   analytics,
			PayloadFactory: func() interface{} { return &payloads.StockLevelChangedEvent{} },
		},
		{
			EventType:      enums.EventDocumentCommitted,
			AggregateType:  enums.AggregateDocument,
			Topic:          cfg.DocumentsTopic,
			PayloadFactory: func() interface{} { return &payloads.DocumentCommittedEvent{} },
		},
		{
			EventType:      enums.EventOrderCreationFailed,
			AggregateType:  enums.AggregateOrder,
			Topic:          cfg.OrdersTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderCreationFailedEvent{} },
		},
		{
			EventType:      enums.EventReservationReleased,
			AggregateType:  enums.AggregateOrder,
			Topic:          cfg.OrdersTopic,
			PayloadFactory: func() interface{} { return &payloads.ReservationReleasedEvent{} },
		},
	} {
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	envelope, err := outbox.Open(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
