package models

// All lists every persisted model, in dependency order, for schema
// bootstrapping on sqlite where SQL migrations do not apply.
func All() []any {
	return []any{
		&StockBalance{},
		&StockMovement{},
		&StockReservation{},
		&Document{},
		&DocumentLine{},
		&DocumentSequence{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
