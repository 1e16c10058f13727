package enums

import "fmt"

// OutboxAggregateType identifies the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateStockBalance OutboxAggregateType = "stock_balance"
	AggregateDocument     OutboxAggregateType = "document"
	AggregateOrder        OutboxAggregateType = "order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateStockBalance,
	AggregateDocument,
	AggregateOrder,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names events written to the outbox or consumed from
// upstream services.
type OutboxEventType string

const (
	// Emitted by this service.
	EventStockLevelChanged   OutboxEventType = "stock_level_changed"
	EventDocumentCommitted   OutboxEventType = "document_committed"
	EventOrderCreationFailed OutboxEventType = "order_creation_failed"
	EventReservationReleased OutboxEventType = "reservation_released"

	// Consumed from upstream.
	EventOrderCreated  OutboxEventType = "order_created"
	EventOrderCanceled OutboxEventType = "order_canceled"
	EventGoodsReceived OutboxEventType = "goods_received"
)

var validOutboxEventTypes = []OutboxEventType{
	EventStockLevelChanged,
	EventDocumentCommitted,
	EventOrderCreationFailed,
	EventReservationReleased,
	EventOrderCreated,
	EventOrderCanceled,
	EventGoodsReceived,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
