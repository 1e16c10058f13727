package documents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/internal/numbering"
	"github.com/angelmondragon/stockledger-backend/internal/reservations"
	"github.com/angelmondragon/stockledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

var (
	clerk      = Actor{ID: uuid.New(), Role: enums.ActorRoleClerk}
	supervisor = Actor{ID: uuid.New(), Role: enums.ActorRoleSupervisor}
)

type recordingNotifier struct {
	balances  [][]models.StockBalance
	documents []models.Document
}

func (r *recordingNotifier) BalancesChanged(ctx context.Context, changed []models.StockBalance) {
	r.balances = append(r.balances, changed)
}

func (r *recordingNotifier) DocumentCommitted(ctx context.Context, doc models.Document) {
	r.documents = append(r.documents, doc)
}

type fixture struct {
	t         *testing.T
	conn      *gorm.DB
	store     *balances.Store
	svc       Service
	movements movements.Service
	notifier  *recordingNotifier
	warehouse uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	balanceRepo := balances.NewRepository(conn)
	store, err := balances.NewStore(balanceRepo, 0)
	require.NoError(t, err)
	movementRepo := movements.NewRepository(conn)
	ledger, err := movements.NewLedger(movementRepo)
	require.NoError(t, err)
	movementSvc, err := movements.NewService(movementRepo, balanceRepo, client)
	require.NoError(t, err)
	notifier := &recordingNotifier{}

	now := func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }
	svc, err := NewService(ServiceParams{
		Repo:         NewRepository(conn),
		Tx:           client,
		Store:        store,
		Balances:     balanceRepo,
		Ledger:       ledger,
		Reservations: reservations.NewRepository(conn),
		Numbers:      numbering.NewSequencer(now),
		Notifier:     notifier,
		Now:          now,
	})
	require.NoError(t, err)
	return &fixture{
		t:         t,
		conn:      conn,
		store:     store,
		svc:       svc,
		movements: movementSvc,
		notifier:  notifier,
		warehouse: uuid.New(),
	}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func (f *fixture) key(productID uuid.UUID) balances.Key {
	return balances.Key{ProductID: productID, WarehouseID: f.warehouse}
}

func (f *fixture) keyAt(productID, warehouseID uuid.UUID) balances.Key {
	return balances.Key{ProductID: productID, WarehouseID: warehouseID}
}

func (f *fixture) balance(key balances.Key) models.StockBalance {
	f.t.Helper()
	var b models.StockBalance
	require.NoError(f.t, f.conn.Where("product_id = ? AND warehouse_id = ?", key.ProductID, key.WarehouseID).First(&b).Error)
	return b
}

func (f *fixture) movementsFor(key balances.Key) []models.StockMovement {
	f.t.Helper()
	var rows []models.StockMovement
	require.NoError(f.t, f.conn.Where("product_id = ? AND warehouse_id = ?", key.ProductID, key.WarehouseID).
		Order("balance_version ASC").Find(&rows).Error)
	return rows
}

func (f *fixture) create(payload UpdatePayload) *DocumentView {
	f.t.Helper()
	view, err := f.svc.Create(context.Background(), CreateInput{WarehouseID: f.warehouse, Payload: payload}, clerk)
	require.NoError(f.t, err)
	return view
}

func (f *fixture) transition(id uuid.UUID, action enums.DocumentAction) *DocumentView {
	f.t.Helper()
	view, err := f.svc.Transition(context.Background(), id, action, supervisor)
	require.NoError(f.t, err)
	return view
}

// commitDocument creates, prepares and commits payload.
func (f *fixture) commitDocument(payload UpdatePayload) *DocumentView {
	f.t.Helper()
	doc := f.create(payload)
	pol, _ := policyFor(payload.Kind())
	f.transition(doc.ID, pol.prepare)
	return f.transition(doc.ID, enums.DocumentActionCommit)
}

func (f *fixture) receive(productID uuid.UUID, qty, cost string) *DocumentView {
	f.t.Helper()
	return f.commitDocument(&ReceiptUpdate{Lines: []ReceiptLine{{ProductID: productID, Quantity: dec(qty), UnitCost: dec(cost)}}})
}

// assertBalancesConsistent checks available = on hand - reserved everywhere
// and that every movement history replays to the booked on-hand quantity.
func (f *fixture) assertBalancesConsistent() {
	f.t.Helper()
	var rows []models.StockBalance
	require.NoError(f.t, f.conn.Find(&rows).Error)
	for _, b := range rows {
		require.True(f.t, b.QuantityAvailable.Equal(b.QuantityOnHand.Sub(b.QuantityReserved)),
			"available %s != on hand %s - reserved %s", b.QuantityAvailable, b.QuantityOnHand, b.QuantityReserved)
		report, err := f.movements.Reconcile(context.Background(), b.ProductID, b.WarehouseID)
		require.NoError(f.t, err)
		require.True(f.t, report.Consistent, "replay %s vs book %s, breaks %v", report.ReplayedOnHand, report.BookOnHand, report.Breaks)
	}
}
