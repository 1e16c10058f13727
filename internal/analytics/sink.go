package analytics

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/angelmondragon/stockledger-backend/internal/analytics/types"
	"github.com/angelmondragon/stockledger-backend/internal/analytics/writer"
	"github.com/angelmondragon/stockledger-backend/internal/eventing"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

// Writer delivers stock-level rows to the history table.
type Writer interface {
	InsertStockLevel(ctx context.Context, row types.StockLevelRow) error
}

// Sink turns stock_level_changed events into history rows.
type Sink struct {
	writer Writer
	logg   *logger.Logger
	now    func() time.Time
}

func NewSink(w Writer, logg *logger.Logger) (*Sink, error) {
	if w == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Sink{writer: w, logg: logg, now: time.Now}, nil
}

// Register binds the sink to the router.
func (s *Sink) Register(router *eventing.Router) {
	router.Register(enums.EventStockLevelChanged, eventing.HandlerFunc(s.StockLevelChanged))
}

// StockLevelChanged writes one row per event. Undecodable payloads are
// rejected as validation errors so the subscriber acks them; writer failures
// are returned as dependency errors and the message is redelivered.
func (s *Sink) StockLevelChanged(ctx context.Context, msg eventing.Message) error {
	var event payloads.StockLevelChangedEvent
	if err := msg.Decode(&event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stock level payload")
	}

	row, err := s.buildRow(msg, event)
	if err != nil {
		return err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"product_id":   event.ProductID.String(),
		"warehouse_id": event.WarehouseID.String(),
		"version":      event.Version,
	})
	if err := s.writer.InsertStockLevel(ctx, row); err != nil {
		s.logg.Error(ctx, "analytics.stock_level.insert_failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert stock level row")
	}

	s.logg.Debug(ctx, "analytics.stock_level.inserted")
	return nil
}

func (s *Sink) buildRow(msg eventing.Message, event payloads.StockLevelChangedEvent) (types.StockLevelRow, error) {
	payload, err := writer.JSONColumn(msg.Data)
	if err != nil {
		return types.StockLevelRow{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode stock level payload")
	}

	changedAt := event.Timestamp
	if changedAt.IsZero() {
		changedAt = msg.OccurredAt
	}

	row := types.StockLevelRow{
		EventID:           msg.EventID,
		BalanceID:         event.BalanceID.String(),
		ProductID:         event.ProductID.String(),
		WarehouseID:       event.WarehouseID.String(),
		QuantityOnHand:    event.QuantityOnHand.Rat(),
		QuantityAvailable: event.QuantityAvailable.Rat(),
		QuantityReserved:  event.QuantityReserved.Rat(),
		UnitCost:          event.UnitCost.Rat(),
		StockValue:        event.QuantityOnHand.Mul(event.UnitCost).Rat(),
		Status:            event.Status.String(),
		Version:           event.Version,
		OccurredAt:        msg.OccurredAt.UTC(),
		ChangedAt:         changedAt.UTC(),
		IngestedAt:        s.now().UTC(),
		Payload:           payload,
	}
	if actorID := msg.ActorID(); actorID != nil {
		row.ActorID = bigquery.NullString{StringVal: actorID.String(), Valid: true}
	}
	return row, nil
}
