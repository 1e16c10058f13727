package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/internal/eventing"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

type failureEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// EventHandler consumes order events. Business rejections of a new order
// become an order_creation_failed event and the message is acked;
// infrastructure failures are returned so the message is redelivered.
type EventHandler struct {
	svc    Service
	tx     txRunner
	outbox failureEmitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewEventHandler(svc Service, tx txRunner, emitter failureEmitter, logg *logger.Logger) (*EventHandler, error) {
	if svc == nil {
		return nil, errors.New("reservation service required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if emitter == nil {
		return nil, errors.New("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &EventHandler{svc: svc, tx: tx, outbox: emitter, logg: logg, now: time.Now}, nil
}

// Register binds the order events to router.
func (h *EventHandler) Register(router *eventing.Router) {
	router.
		Register(enums.EventOrderCreated, eventing.HandlerFunc(h.OrderCreated)).
		Register(enums.EventOrderCanceled, eventing.HandlerFunc(h.OrderCanceled))
}

func (h *EventHandler) OrderCreated(ctx context.Context, msg eventing.Message) error {
	var event payloads.OrderCreatedEvent
	if err := msg.Decode(&event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_created payload")
	}

	_, err := h.svc.ReserveOrder(ctx, event)
	if err == nil || pkgerrors.IsRetryable(err) {
		return err
	}
	if event.OrderID == uuid.Nil {
		return err
	}

	if emitErr := h.emitFailure(ctx, event, err); emitErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, emitErr, "emit order creation failure")
	}
	h.logg.Warn(h.logg.WithField(ctx, "order_id", event.OrderID.String()), "order rejected: "+err.Error())
	return nil
}

func (h *EventHandler) OrderCanceled(ctx context.Context, msg eventing.Message) error {
	var event payloads.OrderCanceledEvent
	if err := msg.Decode(&event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_canceled payload")
	}
	_, err := h.svc.ReleaseOrder(ctx, event)
	return err
}

func (h *EventHandler) emitFailure(ctx context.Context, event payloads.OrderCreatedEvent, cause error) error {
	failure := payloads.OrderCreationFailedEvent{
		OrderID:     event.OrderID,
		WarehouseID: event.WarehouseID,
		Code:        string(pkgerrors.CodeInternal),
		Message:     cause.Error(),
		FailedAt:    h.now().UTC(),
	}
	if typed := pkgerrors.As(cause); typed != nil {
		failure.Code = string(typed.Code())
		failure.Message = typed.Message()
		failure.Shortfalls = shortfallsFrom(typed)
	}

	return h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return h.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreationFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   event.OrderID,
			Data:          failure,
		})
	})
}

func shortfallsFrom(err *pkgerrors.Error) []payloads.StockShortfall {
	details, ok := err.Details().(map[string]any)
	if !ok {
		return nil
	}
	shortfalls, ok := details["shortfalls"].([]balances.Shortfall)
	if !ok {
		return nil
	}
	out := make([]payloads.StockShortfall, 0, len(shortfalls))
	for _, s := range shortfalls {
		out = append(out, payloads.StockShortfall{
			ProductID: s.ProductID,
			Requested: s.Requested,
			Available: s.Available,
		})
	}
	return out
}
