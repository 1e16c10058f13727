package balances

import (
	"context"
	"testing"

	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	pkgpagination "github.com/angelmondragon/stockledger-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	calls [][]models.StockBalance
}

func (r *recordingNotifier) BalancesChanged(ctx context.Context, balances []models.StockBalance) {
	r.calls = append(r.calls, balances)
}

func newTestService(t *testing.T) (Service, *Store, *gorm.DB, *recordingNotifier) {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	store, err := NewStore(repo, 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	notifier := &recordingNotifier{}
	svc, err := NewService(repo, store, db.Wrap(conn, 0), notifier)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store, conn, notifier
}

func TestServiceGetNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Get(context.Background(), uuid.New(), uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = svc.Get(context.Background(), uuid.Nil, uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceUpdateReorderPolicyRecomputesStatus(t *testing.T) {
	svc, store, conn, notifier := newTestService(t)
	ctx := context.Background()
	key := Key{ProductID: uuid.New(), WarehouseID: uuid.New()}

	if err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := store.ApplyDelta(ctx, tx, key, Delta{OnHand: dec("8"), IncomingUnitCost: decPtr("2")})
		return err
	}); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	view, err := svc.UpdateReorderPolicy(ctx, ReorderPolicyInput{
		ProductID:       key.ProductID,
		WarehouseID:     key.WarehouseID,
		ReorderPoint:    dec("10"),
		ReorderQuantity: dec("25"),
	})
	if err != nil {
		t.Fatalf("update reorder policy: %v", err)
	}
	if view.Status != enums.BalanceLowStock {
		t.Fatalf("expected low stock, got %s", view.Status)
	}
	if view.Version != 2 {
		t.Fatalf("expected version 2, got %d", view.Version)
	}
	if len(notifier.calls) != 1 || len(notifier.calls[0]) != 1 {
		t.Fatalf("expected one notification, got %+v", notifier.calls)
	}

	_, err = svc.UpdateReorderPolicy(ctx, ReorderPolicyInput{ProductID: key.ProductID, WarehouseID: key.WarehouseID, ReorderPoint: dec("-1")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceListFiltersByStatusAndPaginates(t *testing.T) {
	svc, store, conn, _ := newTestService(t)
	ctx := context.Background()
	warehouse := uuid.New()

	if err := conn.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < 3; i++ {
			key := Key{ProductID: uuid.New(), WarehouseID: warehouse}
			if _, err := store.ApplyDelta(ctx, tx, key, Delta{OnHand: dec("5"), IncomingUnitCost: decPtr("1")}); err != nil {
				return err
			}
		}
		_, err := store.GetOrCreate(ctx, tx, Key{ProductID: uuid.New(), WarehouseID: warehouse})
		return err
	}); err != nil {
		t.Fatalf("seed balances: %v", err)
	}

	inStock := enums.BalanceInStock
	first, err := svc.List(ctx, ListParams{WarehouseID: &warehouse, Status: &inStock, Params: paginationParams(2, "")})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first.Items) != 2 || first.Cursor == "" {
		t.Fatalf("expected 2 items with a cursor, got %d cursor=%q", len(first.Items), first.Cursor)
	}

	second, err := svc.List(ctx, ListParams{WarehouseID: &warehouse, Status: &inStock, Params: paginationParams(2, first.Cursor)})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Items) != 1 || second.Cursor != "" {
		t.Fatalf("expected final page of 1, got %d cursor=%q", len(second.Items), second.Cursor)
	}
	for _, item := range append(first.Items, second.Items...) {
		if item.Status != enums.BalanceInStock {
			t.Fatalf("unexpected status %s", item.Status)
		}
	}

	bad := enums.BalanceStatus("nope")
	if _, err := svc.List(ctx, ListParams{Status: &bad}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func paginationParams(limit int, cursor string) pkgpagination.Params {
	return pkgpagination.Params{Limit: limit, Cursor: cursor}
}
