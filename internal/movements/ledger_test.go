package movements

import (
	"context"
	"testing"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	conn   *gorm.DB
	client *db.Client
	store  *balances.Store
	ledger *Ledger
	svc    Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	balanceRepo := balances.NewRepository(conn)
	store, err := balances.NewStore(balanceRepo, 0)
	require.NoError(t, err)
	ledger, err := NewLedger(NewRepository(conn))
	require.NoError(t, err)
	client := db.Wrap(conn, 0)
	svc, err := NewService(NewRepository(conn), balanceRepo, client)
	require.NoError(t, err)
	return &fixture{conn: conn, client: client, store: store, ledger: ledger, svc: svc}
}

// move applies a delta and records its movement in one transaction.
func (f *fixture) move(t *testing.T, key balances.Key, delta balances.Delta, typ enums.MovementType, ref enums.ReferenceType, qty string) *models.StockMovement {
	t.Helper()
	var recorded *models.StockMovement
	require.NoError(t, f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		change, err := f.store.ApplyDelta(context.Background(), tx, key, delta)
		if err != nil {
			return err
		}
		recorded, err = f.ledger.Record(context.Background(), tx, Entry{
			Change:        change,
			MovementType:  typ,
			ReferenceType: ref,
			ReferenceID:   "GR2026100001",
			Quantity:      decimal.RequireFromString(qty),
			UnitCost:      change.After.UnitCost,
		})
		return err
	}))
	return recorded
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func TestRecordCapturesBeforeAfterAndVersion(t *testing.T) {
	f := newFixture(t)
	key := balances.Key{ProductID: uuid.New(), WarehouseID: uuid.New()}

	first := f.move(t, key, balances.Delta{OnHand: d("100"), IncomingUnitCost: dp("10")}, enums.MovementIn, enums.ReferencePurchase, "100")
	assert.True(t, first.QuantityBefore.IsZero())
	assert.True(t, first.QuantityAfter.Equal(d("100")))
	assert.True(t, first.TotalCost.Equal(d("1000")))
	assert.Equal(t, int64(1), first.BalanceVersion)

	second := f.move(t, key, balances.Delta{Reserved: d("30")}, enums.MovementOut, enums.ReferenceSales, "30")
	assert.True(t, second.QuantityBefore.Equal(d("100")))
	assert.True(t, second.QuantityAfter.Equal(d("100")))
	assert.Equal(t, int64(2), second.BalanceVersion)
}

func TestAppendValidatesAndRejectsDuplicateVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := balances.Key{ProductID: uuid.New(), WarehouseID: uuid.New()}
	recorded := f.move(t, key, balances.Delta{OnHand: d("5"), IncomingUnitCost: dp("1")}, enums.MovementIn, enums.ReferencePurchase, "5")

	err := f.ledger.Append(ctx, f.conn, &models.StockMovement{ProductID: key.ProductID, WarehouseID: key.WarehouseID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	err = f.ledger.Append(ctx, nil, &models.StockMovement{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))

	dup := *recorded
	dup.ID = uuid.Nil
	err = f.ledger.Append(ctx, f.conn, &dup)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestRecordRequiresChange(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Record(context.Background(), f.conn, Entry{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}
