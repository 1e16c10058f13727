package bootstrap

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger-backend/internal/eventing"
	"github.com/angelmondragon/stockledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

func message(t *testing.T, eventType enums.OutboxEventType, eventID string, data any) eventing.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return eventing.Message{EventID: eventID, EventType: eventType, Data: raw}
}

func TestServicesWireEventFlow(t *testing.T) {
	client, conn := dbtest.Client(t)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	svcs, err := NewServices(Params{
		DB:      client,
		Logger:  logger.Nop(),
		Metrics: metrics.NewLedgerMetrics(nil),
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)

	router := eventing.NewRouter()
	svcs.DocumentEvents.Register(router)
	svcs.ReservationEvents.Register(router)

	ctx := context.Background()
	productID, warehouseID := uuid.New(), uuid.New()

	require.NoError(t, router.Handle(ctx, message(t, enums.EventGoodsReceived, "gr-1", payloads.GoodsReceivedEvent{
		ReceiptID:   "PO-1",
		WarehouseID: warehouseID,
		Items: []payloads.GoodsReceivedItem{
			{ProductID: productID, Quantity: decimal.NewFromInt(50), UnitCost: decimal.NewFromInt(4)},
		},
	})))

	orderID := uuid.New()
	require.NoError(t, router.Handle(ctx, message(t, enums.EventOrderCreated, "oc-1", payloads.OrderCreatedEvent{
		OrderID:     orderID,
		WarehouseID: warehouseID,
		Items:       []payloads.OrderItem{{ProductID: productID, Quantity: decimal.NewFromInt(20)}},
	})))

	view, err := svcs.Balances.Get(ctx, productID, warehouseID)
	require.NoError(t, err)
	assert.True(t, view.QuantityOnHand.Equal(decimal.NewFromInt(50)))
	assert.True(t, view.QuantityReserved.Equal(decimal.NewFromInt(20)))
	assert.True(t, view.QuantityAvailable.Equal(decimal.NewFromInt(30)))

	rec, err := svcs.Movements.Reconcile(ctx, productID, warehouseID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)

	var changed int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventStockLevelChanged).
		Count(&changed).Error)
	assert.Equal(t, int64(2), changed)

	require.NoError(t, router.Handle(ctx, message(t, enums.EventOrderCanceled, "cx-1", payloads.OrderCanceledEvent{OrderID: orderID})))
	view, err = svcs.Balances.Get(ctx, productID, warehouseID)
	require.NoError(t, err)
	assert.True(t, view.QuantityReserved.IsZero())
}

func TestNewServicesRequiresDependencies(t *testing.T) {
	_, err := NewServices(Params{Logger: logger.Nop()})
	assert.Error(t, err)

	client, _ := dbtest.Client(t)
	_, err = NewServices(Params{DB: client})
	assert.Error(t, err)
}
