package balances

import (
	"context"
	"sync"
	"testing"

	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	store, err := NewStore(NewRepository(conn), 0)
	require.NoError(t, err)
	return store, conn
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func loadBalance(t *testing.T, conn *gorm.DB, key Key) models.StockBalance {
	t.Helper()
	var b models.StockBalance
	require.NoError(t, conn.Where("product_id = ? AND warehouse_id = ?", key.ProductID, key.WarehouseID).First(&b).Error)
	return b
}

func TestApplyDeltaReceiptCreatesBalanceAndAveragesCost(t *testing.T) {
	store, conn := newTestStore(t)
	ctx := context.Background()
	key := Key{ProductID: uuid.New(), WarehouseID: uuid.New()}

	err := conn.Transaction(func(tx *gorm.DB) error {
		change, err := store.ApplyDelta(ctx, tx, key, Delta{OnHand: dec("100"), IncomingUnitCost: decPtr("10")})
		require.NoError(t, err)
		assert.True(t, change.Before.QuantityOnHand.IsZero())
		assert.Equal(t, int64(1), change.After.Version)

		change, err = store.ApplyDelta(ctx, tx, key, Delta{OnHand: dec("50"), IncomingUnitCost: decPtr("16")})
		require.NoError(t, err)
		assert.True(t, change.Before.QuantityOnHand.Equal(dec("100")))
		assert.True(t, change.After.UnitCost.Equal(dec("12")), "got %s", change.After.UnitCost)
		return nil
	})
	require.NoError(t, err)

	got := loadBalance(t, conn, key)
	assert.True(t, got.QuantityOnHand.Equal(dec("150")))
	assert.True(t, got.QuantityAvailable.Equal(dec("150")))
	assert.True(t, got.UnitCost.Equal(dec("12")))
	assert.Equal(t, enums.BalanceInStock, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestApplyDeltaRejectsReservationBeyondAvailable(t *testing.T) {
	store, conn := newTestStore(t)
	ctx := context.Background()
	key := Key{ProductID: uuid.New(), WarehouseID: uuid.New()}

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		_, err := store.ApplyDelta(ctx, tx, key, Delta{OnHand: dec("100"), IncomingUnitCost: decPtr("10")})
		if err != nil {
			return err
		}
		_, err = store.ApplyDelta(ctx, tx, key, Delta{Reserved: dec("30")})
		return err
	}))

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := store.ApplyDelta(ctx, tx, key, Delta{Reserved: dec("80")})
		return err
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	shortfalls := details["shortfalls"].([]Shortfall)
	require.Len(t, shortfalls, 1)
	assert.True(t, shortfalls[0].Available.Equal(dec("70")))
	assert.True(t, shortfalls[0].Requested.Equal(dec("80")))

	got := loadBalance(t, conn, key)
	assert.True(t, got.QuantityReserved.Equal(dec("30")))
	assert.True(t, got.QuantityAvailable.Equal(dec("70")))
	assert.Equal(t, int64(2), got.Version)
}

func TestApplyDeltaShortfallReportsGrossIssue(t *testing.T) {
	store, conn := newTestStore(t)
	ctx := context.Background()
	key := Key{ProductID: uuid.New(), WarehouseID: uuid.New()}

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if _, err := store.ApplyDelta(ctx, tx, key, Delta{OnHand: dec("50"), IncomingUnitCost: decPtr("2")}); err != nil {
			return err
		}
		_, err := store.ApplyDelta(ctx, tx, key, Delta{Reserved: dec("30")})
		return err
	}))

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := store.ApplyDelta(ctx, tx, key, Delta{OnHand: dec("-100"), Reserved: dec("-30")})
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)

	shortfalls := pkgerrors.As(err).Details().(map[string]any)["shortfalls"].([]Shortfall)
	require.Len(t, shortfalls, 1)
	assert.True(t, shortfalls[0].Requested.Equal(dec("100")), "requested %s", shortfalls[0].Requested)
	assert.True(t, shortfalls[0].Available.Equal(dec("50")), "available %s", shortfalls[0].Available)
}

func TestApplyDeltaRejectsNegativeReserved(t *testing.T) {
	store, conn := newTestStore(t)
	key := Key{ProductID: uuid.New(), WarehouseID: uuid.New()}

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := store.ApplyDelta(context.Background(), tx, key, Delta{Reserved: dec("-1")})
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestApplyDeltaCostOverrideKeepsQuantity(t *testing.T) {
	store, conn := newTestStore(t)
	ctx := context.Background()
	key := Key{ProductID: uuid.New(), WarehouseID: uuid.New()}

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if _, err := store.ApplyDelta(ctx, tx, key, Delta{OnHand: dec("95"), IncomingUnitCost: decPtr("10")}); err != nil {
			return err
		}
		change, err := store.ApplyDelta(ctx, tx, key, Delta{UnitCostOverride: decPtr("12")})
		if err != nil {
			return err
		}
		assert.True(t, change.Before.QuantityOnHand.Equal(change.After.QuantityOnHand))
		return nil
	}))

	got := loadBalance(t, conn, key)
	assert.True(t, got.UnitCost.Equal(dec("12")))
	assert.True(t, got.QuantityOnHand.Equal(dec("95")))
}

// sqlite runs one connection, so this covers sequencing only. Row locking
// itself is asserted on the generated postgres SQL below.
func TestConcurrentReceiptsAccumulate(t *testing.T) {
	conn := dbtest.Open(t)
	client := db.Wrap(conn, 0)
	store, err := NewStore(NewRepository(conn), 0)
	require.NoError(t, err)
	key := Key{ProductID: uuid.New(), WarehouseID: uuid.New()}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, qty := range []string{"10", "20"} {
		wg.Add(1)
		go func(qty string) {
			defer wg.Done()
			errs <- client.WithTx(context.Background(), func(tx *gorm.DB) error {
				_, err := store.ApplyDelta(context.Background(), tx, key, Delta{OnHand: dec(qty), IncomingUnitCost: decPtr("1")})
				return err
			})
		}(qty)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := loadBalance(t, conn, key)
	assert.True(t, got.QuantityOnHand.Equal(dec("30")), "on hand %s", got.QuantityOnHand)
	assert.Equal(t, int64(2), got.Version)
}

func TestLockExistingDoesNotCreateRows(t *testing.T) {
	store, conn := newTestStore(t)
	ctx := context.Background()
	warehouse := uuid.New()
	known := Key{ProductID: uuid.New(), WarehouseID: warehouse}
	unknown := Key{ProductID: uuid.New(), WarehouseID: warehouse}

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		_, err := store.ApplyDelta(ctx, tx, known, Delta{OnHand: dec("7"), IncomingUnitCost: decPtr("2")})
		return err
	}))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		locked, err := store.LockExisting(ctx, tx, []Key{unknown, known})
		if err != nil {
			return err
		}
		require.Len(t, locked, 2)
		assert.True(t, locked[known].QuantityOnHand.Equal(dec("7")))
		assert.True(t, locked[unknown].QuantityOnHand.IsZero())
		assert.Zero(t, locked[unknown].Version)
		return nil
	}))

	var n int64
	require.NoError(t, conn.Model(&models.StockBalance{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestLockReturnsEveryKey(t *testing.T) {
	store, conn := newTestStore(t)
	warehouse := uuid.New()
	keys := []Key{
		{ProductID: uuid.New(), WarehouseID: warehouse},
		{ProductID: uuid.New(), WarehouseID: warehouse},
	}
	keys = append(keys, keys[0])

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		locked, err := store.Lock(context.Background(), tx, keys)
		if err != nil {
			return err
		}
		assert.Len(t, locked, 2)
		for _, b := range locked {
			assert.Equal(t, enums.BalanceOutOfStock, b.Status)
		}
		return nil
	}))

	var count int64
	require.NoError(t, conn.Model(&models.StockBalance{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestGetOrCreateRequiresTransactionAndKey(t *testing.T) {
	store, conn := newTestStore(t)
	_, err := store.GetOrCreate(context.Background(), nil, Key{ProductID: uuid.New(), WarehouseID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))

	_, err = store.GetOrCreate(context.Background(), conn, Key{ProductID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestFindByKeyForUpdateTakesRowLock(t *testing.T) {
	conn, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=ledger dbname=stock sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	var statements []string
	require.NoError(t, conn.Callback().Query().After("gorm:query").Register("capture_sql", func(tx *gorm.DB) {
		statements = append(statements, tx.Statement.SQL.String())
	}))

	key := Key{ProductID: uuid.New(), WarehouseID: uuid.New()}
	_, err = NewRepository(conn).FindByKeyForUpdate(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, statements, 1)
	assert.Contains(t, statements[0], "FOR UPDATE")
	assert.Contains(t, statements[0], `"stock_balances"`)

	statements = nil
	_, err = NewRepository(conn).FindByKey(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, statements, 1)
	assert.NotContains(t, statements[0], "FOR UPDATE")
}

type lockedRepository struct {
	Repository
	findErr error
	saveErr error
	row     *models.StockBalance
}

func (r *lockedRepository) WithTx(*gorm.DB) Repository { return r }

func (r *lockedRepository) FindByKeyForUpdate(context.Context, Key) (*models.StockBalance, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	row := *r.row
	return &row, nil
}

func (r *lockedRepository) Save(context.Context, *models.StockBalance) error {
	return r.saveErr
}

func TestApplyDeltaLockTimeoutIsConcurrencyConflict(t *testing.T) {
	timeout := &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"}
	key := Key{ProductID: uuid.New(), WarehouseID: uuid.New()}
	row := newBalance(key)
	row.Version = 4

	cases := []struct {
		name string
		repo *lockedRepository
	}{
		{name: "locking read", repo: &lockedRepository{findErr: timeout}},
		{name: "save", repo: &lockedRepository{saveErr: timeout, row: row}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(tc.repo, 0)
			require.NoError(t, err)

			_, err = store.ApplyDelta(context.Background(), dbtest.Open(t), key, Delta{OnHand: dec("5"), IncomingUnitCost: decPtr("1")})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict), "got %v", err)
			assert.True(t, pkgerrors.IsRetryable(err))
		})
	}
}
