package movements

import (
	"context"
	"testing"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	pkgpagination "github.com/angelmondragon/stockledger-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileReplaysHistoryToBookQuantity(t *testing.T) {
	f := newFixture(t)
	key := balances.Key{ProductID: uuid.New(), WarehouseID: uuid.New()}

	f.move(t, key, balances.Delta{OnHand: d("100"), IncomingUnitCost: dp("10")}, enums.MovementIn, enums.ReferencePurchase, "100")
	f.move(t, key, balances.Delta{Reserved: d("30")}, enums.MovementOut, enums.ReferenceSales, "30")
	f.move(t, key, balances.Delta{OnHand: d("-30"), Reserved: d("-30")}, enums.MovementOut, enums.ReferenceSales, "30")
	f.move(t, key, balances.Delta{OnHand: d("-5")}, enums.MovementAdjustment, enums.ReferenceAdjustment, "5")

	report, err := f.svc.Reconcile(context.Background(), key.ProductID, key.WarehouseID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Empty(t, report.Breaks)
	assert.Equal(t, 4, report.MovementCount)
	assert.True(t, report.ReplayedOnHand.Equal(d("65")), "replayed %s", report.ReplayedOnHand)
	assert.True(t, report.BookOnHand.Equal(d("65")))

	var balance models.StockBalance
	require.NoError(t, f.conn.Where("product_id = ?", key.ProductID).First(&balance).Error)
	assert.True(t, balance.QuantityAvailable.Equal(balance.QuantityOnHand.Sub(balance.QuantityReserved)))
}

func TestReconcileUnknownBalance(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reconcile(context.Background(), uuid.New(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReplayReportsChainBreaks(t *testing.T) {
	history := []models.StockMovement{
		{ID: uuid.New(), BalanceVersion: 1, QuantityBefore: d("0"), QuantityAfter: d("10")},
		{ID: uuid.New(), BalanceVersion: 2, QuantityBefore: d("12"), QuantityAfter: d("15")},
	}
	report := Replay(history)
	require.Len(t, report.Breaks, 1)
	assert.Equal(t, int64(2), report.Breaks[0].BalanceVersion)
	assert.True(t, report.Breaks[0].Expected.Equal(d("10")))
	assert.True(t, report.ReplayedOnHand.Equal(d("13")))
}

func TestListFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	key := balances.Key{ProductID: uuid.New(), WarehouseID: uuid.New()}
	other := balances.Key{ProductID: uuid.New(), WarehouseID: key.WarehouseID}

	f.move(t, key, balances.Delta{OnHand: d("10"), IncomingUnitCost: dp("1")}, enums.MovementIn, enums.ReferencePurchase, "10")
	f.move(t, key, balances.Delta{OnHand: d("5"), IncomingUnitCost: dp("1")}, enums.MovementIn, enums.ReferencePurchase, "5")
	f.move(t, key, balances.Delta{OnHand: d("-2")}, enums.MovementOut, enums.ReferenceSales, "2")
	f.move(t, other, balances.Delta{OnHand: d("1"), IncomingUnitCost: dp("1")}, enums.MovementIn, enums.ReferencePurchase, "1")

	in := enums.MovementIn
	page, err := f.svc.List(context.Background(), ListParams{
		ProductID:    &key.ProductID,
		WarehouseID:  &key.WarehouseID,
		MovementType: &in,
		Params:       pkgpagination.Params{Limit: 1},
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.NotEmpty(t, page.Cursor)

	next, err := f.svc.List(context.Background(), ListParams{
		ProductID:    &key.ProductID,
		WarehouseID:  &key.WarehouseID,
		MovementType: &in,
		Params:       pkgpagination.Params{Limit: 1, Cursor: page.Cursor},
	})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Empty(t, next.Cursor)
	assert.NotEqual(t, page.Items[0].ID, next.Items[0].ID)

	all, err := f.svc.List(context.Background(), ListParams{WarehouseID: &key.WarehouseID})
	require.NoError(t, err)
	assert.Len(t, all.Items, 4)

	bad := enums.MovementType("SIDEWAYS")
	_, err = f.svc.List(context.Background(), ListParams{MovementType: &bad})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
