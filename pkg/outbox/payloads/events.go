package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// StockLevelChangedEvent carries the absolute state of one balance after a
// committed change. Consumers may apply it last-write-wins by Version.
type StockLevelChangedEvent struct {
	BalanceID         uuid.UUID           `json:"balance_id"`
	ProductID         uuid.UUID           `json:"product_id"`
	WarehouseID       uuid.UUID           `json:"warehouse_id"`
	QuantityOnHand    decimal.Decimal     `json:"quantity_on_hand"`
	QuantityAvailable decimal.Decimal     `json:"quantity_available"`
	QuantityReserved  decimal.Decimal     `json:"quantity_reserved"`
	UnitCost          decimal.Decimal     `json:"unit_cost"`
	Status            enums.BalanceStatus `json:"status"`
	Version           int64               `json:"version"`
	Timestamp         time.Time           `json:"timestamp"`
}

// DocumentCommittedEvent announces that a document's effect reached the ledger.
type DocumentCommittedEvent struct {
	DocumentID             uuid.UUID          `json:"document_id"`
	Kind                   enums.DocumentKind `json:"kind"`
	Number                 string             `json:"number"`
	WarehouseID            uuid.UUID          `json:"warehouse_id"`
	DestinationWarehouseID *uuid.UUID         `json:"destination_warehouse_id,omitempty"`
	LineCount              int                `json:"line_count"`
	CommittedAt            time.Time          `json:"committed_at"`
}

// StockShortfall describes one order item that could not be reserved.
type StockShortfall struct {
	ProductID uuid.UUID       `json:"product_id"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
}

// OrderCreationFailedEvent is the compensating signal for a rejected order.
type OrderCreationFailedEvent struct {
	OrderID     uuid.UUID        `json:"order_id"`
	WarehouseID uuid.UUID        `json:"warehouse_id"`
	Code        string           `json:"code"`
	Message     string           `json:"message"`
	Shortfalls  []StockShortfall `json:"shortfalls,omitempty"`
	FailedAt    time.Time        `json:"failed_at"`
}

// ReservationReleasedEvent reports stock handed back after an order cancel.
type ReservationReleasedEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	WarehouseID uuid.UUID   `json:"warehouse_id"`
	Items       []OrderItem `json:"items"`
	ReleasedAt  time.Time   `json:"released_at"`
}

// OrderItem is a product and quantity pair on an order.
type OrderItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// OrderCreatedEvent is published upstream when an order is placed.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	WarehouseID uuid.UUID   `json:"warehouse_id"`
	Items       []OrderItem `json:"items"`
}

// OrderCanceledEvent is published upstream when an order is abandoned.
type OrderCanceledEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason,omitempty"`
}

// GoodsReceivedItem is one received product line.
type GoodsReceivedItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// GoodsReceivedEvent is published by purchasing when a delivery arrives.
type GoodsReceivedEvent struct {
	ReceiptID   string              `json:"receipt_id"`
	WarehouseID uuid.UUID           `json:"warehouse_id"`
	Items       []GoodsReceivedItem `json:"items"`
}
