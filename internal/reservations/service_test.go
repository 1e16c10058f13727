package reservations

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/internal/eventing"
	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

type recordingNotifier struct {
	calls [][]models.StockBalance
}

func (r *recordingNotifier) BalancesChanged(ctx context.Context, changed []models.StockBalance) {
	r.calls = append(r.calls, changed)
}

type fixture struct {
	conn     *gorm.DB
	client   *db.Client
	store    *balances.Store
	ledger   *movements.Ledger
	svc      Service
	outbox   *outbox.Service
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	store, err := balances.NewStore(balances.NewRepository(conn), 0)
	require.NoError(t, err)
	ledger, err := movements.NewLedger(movements.NewRepository(conn))
	require.NoError(t, err)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	notifier := &recordingNotifier{}

	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       client,
		Store:    store,
		Ledger:   ledger,
		Outbox:   outboxSvc,
		Notifier: notifier,
		Metrics:  metrics.NewLedgerMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return &fixture{conn: conn, client: client, store: store, ledger: ledger, svc: svc, outbox: outboxSvc, notifier: notifier}
}

// seed receives onHand units through the ledger so every seeded balance
// can be replayed from its movements.
func (f *fixture) seed(t *testing.T, key balances.Key, onHand string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.conn.Transaction(func(tx *gorm.DB) error {
		change, err := f.store.ApplyDelta(ctx, tx, key, balances.Delta{
			OnHand:           dec(onHand),
			IncomingUnitCost: decPtr("5"),
		})
		if err != nil {
			return err
		}
		_, err = f.ledger.Record(ctx, tx, movements.Entry{
			Change:        change,
			MovementType:  enums.MovementIn,
			ReferenceType: enums.ReferencePurchase,
			ReferenceID:   "seed-" + key.ProductID.String(),
			Quantity:      dec(onHand),
			UnitCost:      dec("5"),
		})
		return err
	}))
}

func (f *fixture) balance(t *testing.T, key balances.Key) models.StockBalance {
	t.Helper()
	var b models.StockBalance
	require.NoError(t, f.conn.Where("product_id = ? AND warehouse_id = ?", key.ProductID, key.WarehouseID).First(&b).Error)
	return b
}

func (f *fixture) movementCount(t *testing.T, key balances.Key) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.StockMovement{}).
		Where("product_id = ? AND warehouse_id = ?", key.ProductID, key.WarehouseID).Count(&n).Error)
	return n
}

func (f *fixture) outboxEvents(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", eventType).Find(&rows).Error)
	return rows
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func order(warehouseID uuid.UUID, items ...payloads.OrderItem) payloads.OrderCreatedEvent {
	return payloads.OrderCreatedEvent{OrderID: uuid.New(), WarehouseID: warehouseID, Items: items}
}

func item(productID uuid.UUID, qty string) payloads.OrderItem {
	return payloads.OrderItem{ProductID: productID, Quantity: dec(qty)}
}

func TestReserveOrderHoldsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := balances.Key{ProductID: uuid.New(), WarehouseID: uuid.New()}
	f.seed(t, key, "70")

	ev := order(key.WarehouseID, item(key.ProductID, "20"), item(key.ProductID, "10"))
	res, err := f.svc.ReserveOrder(ctx, ev)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	require.Len(t, res.Balances, 1)

	b := f.balance(t, key)
	assert.True(t, b.QuantityOnHand.Equal(dec("70")))
	assert.True(t, b.QuantityReserved.Equal(dec("30")), "reserved %s", b.QuantityReserved)
	assert.True(t, b.QuantityAvailable.Equal(dec("40")), "available %s", b.QuantityAvailable)
	assert.Equal(t, int64(2), b.Version)

	var mv models.StockMovement
	require.NoError(t, f.conn.Where("reference_id = ?", ev.OrderID.String()).First(&mv).Error)
	assert.Equal(t, enums.MovementOut, mv.MovementType)
	assert.Equal(t, enums.ReferenceSales, mv.ReferenceType)
	assert.True(t, mv.Quantity.Equal(dec("30")))
	assert.True(t, mv.QuantityBefore.Equal(mv.QuantityAfter))

	var res1 models.StockReservation
	require.NoError(t, f.conn.Where("order_id = ?", ev.OrderID).First(&res1).Error)
	assert.Equal(t, enums.ReservationActive, res1.Status)
	assert.True(t, res1.Quantity.Equal(dec("30")))

	require.Len(t, f.notifier.calls, 1)
}

func TestReserveOrderRejectsWhenShortAndChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := balances.Key{ProductID: uuid.New(), WarehouseID: uuid.New()}
	f.seed(t, key, "70")

	_, err := f.svc.ReserveOrder(ctx, order(key.WarehouseID, item(key.ProductID, "80")))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	details := pkgerrors.As(err).Details().(map[string]any)
	shortfalls := details["shortfalls"].([]balances.Shortfall)
	require.Len(t, shortfalls, 1)
	assert.True(t, shortfalls[0].Available.Equal(dec("70")))
	assert.True(t, shortfalls[0].Requested.Equal(dec("80")))

	b := f.balance(t, key)
	assert.True(t, b.QuantityReserved.IsZero())
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, int64(1), f.movementCount(t, key))
	assert.Empty(t, f.notifier.calls)
}

func TestReserveOrderIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	warehouse := uuid.New()
	plenty := balances.Key{ProductID: uuid.New(), WarehouseID: warehouse}
	scarce := balances.Key{ProductID: uuid.New(), WarehouseID: warehouse}
	f.seed(t, plenty, "100")
	f.seed(t, scarce, "2")

	_, err := f.svc.ReserveOrder(ctx, order(warehouse, item(plenty.ProductID, "10"), item(scarce.ProductID, "5")))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)

	assert.True(t, f.balance(t, plenty).QuantityReserved.IsZero())
	assert.True(t, f.balance(t, scarce).QuantityReserved.IsZero())

	var n int64
	require.NoError(t, f.conn.Model(&models.StockReservation{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestReserveOrderRedeliveryIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := balances.Key{ProductID: uuid.New(), WarehouseID: uuid.New()}
	f.seed(t, key, "10")

	ev := order(key.WarehouseID, item(key.ProductID, "4"))
	_, err := f.svc.ReserveOrder(ctx, ev)
	require.NoError(t, err)

	res, err := f.svc.ReserveOrder(ctx, ev)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.True(t, f.balance(t, key).QuantityReserved.Equal(dec("4")))
}

func TestReserveOrderValidatesPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReserveOrder(ctx, payloads.OrderCreatedEvent{OrderID: uuid.New(), WarehouseID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.ReserveOrder(ctx, order(uuid.New(), item(uuid.New(), "0")))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReleaseOrderReturnsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := balances.Key{ProductID: uuid.New(), WarehouseID: uuid.New()}
	f.seed(t, key, "50")

	ev := order(key.WarehouseID, item(key.ProductID, "15"))
	_, err := f.svc.ReserveOrder(ctx, ev)
	require.NoError(t, err)

	res, err := f.svc.ReleaseOrder(ctx, payloads.OrderCanceledEvent{OrderID: ev.OrderID})
	require.NoError(t, err)
	require.Len(t, res.Balances, 1)

	b := f.balance(t, key)
	assert.True(t, b.QuantityReserved.IsZero())
	assert.True(t, b.QuantityAvailable.Equal(dec("50")))
	assert.Equal(t, int64(3), f.movementCount(t, key))

	var r models.StockReservation
	require.NoError(t, f.conn.Where("order_id = ?", ev.OrderID).First(&r).Error)
	assert.Equal(t, enums.ReservationReleased, r.Status)
	assert.True(t, r.Quantity.IsZero())

	events := f.outboxEvents(t, enums.EventReservationReleased)
	require.Len(t, events, 1)
	var env outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &env))
	var released payloads.ReservationReleasedEvent
	require.NoError(t, json.Unmarshal(env.Data, &released))
	require.Len(t, released.Items, 1)
	assert.True(t, released.Items[0].Quantity.Equal(dec("15")))

	again, err := f.svc.ReleaseOrder(ctx, payloads.OrderCanceledEvent{OrderID: ev.OrderID})
	require.NoError(t, err)
	assert.Empty(t, again.Balances)
	assert.Len(t, f.outboxEvents(t, enums.EventReservationReleased), 1)
}

func TestEventHandlerEmitsFailureForShortOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := balances.Key{ProductID: uuid.New(), WarehouseID: uuid.New()}
	f.seed(t, key, "3")

	h, err := NewEventHandler(f.svc, f.client, f.outbox, logger.Nop())
	require.NoError(t, err)

	ev := order(key.WarehouseID, item(key.ProductID, "5"))
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	msg := eventing.Message{EventID: "evt-1", EventType: enums.EventOrderCreated, Data: data}

	require.NoError(t, h.OrderCreated(ctx, msg))
	require.NoError(t, h.OrderCreated(ctx, msg))

	events := f.outboxEvents(t, enums.EventOrderCreationFailed)
	require.Len(t, events, 1)
	assert.Equal(t, ev.OrderID, events[0].AggregateID)

	var env outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &env))
	var failed payloads.OrderCreationFailedEvent
	require.NoError(t, json.Unmarshal(env.Data, &failed))
	assert.Equal(t, string(pkgerrors.CodeInsufficientStock), failed.Code)
	require.Len(t, failed.Shortfalls, 1)
	assert.True(t, failed.Shortfalls[0].Available.Equal(dec("3")))
}

func TestEventHandlerRejectsMalformedPayload(t *testing.T) {
	f := newFixture(t)
	h, err := NewEventHandler(f.svc, f.client, f.outbox, logger.Nop())
	require.NoError(t, err)

	err = h.OrderCreated(context.Background(), eventing.Message{EventType: enums.EventOrderCreated, Data: json.RawMessage(`{"items":"nope"}`)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.False(t, pkgerrors.IsRetryable(err))
}

func TestEventHandlerRegistersOrderEvents(t *testing.T) {
	f := newFixture(t)
	h, err := NewEventHandler(f.svc, f.client, f.outbox, logger.Nop())
	require.NoError(t, err)

	router := eventing.NewRouter()
	h.Register(router)

	data, _ := json.Marshal(payloads.OrderCanceledEvent{OrderID: uuid.New()})
	require.NoError(t, router.Handle(context.Background(), eventing.Message{EventType: enums.EventOrderCanceled, Data: data}))
}
