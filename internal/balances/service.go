package balances

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	pkgpagination "github.com/angelmondragon/stockledger-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ChangeNotifier is told about balances after their transaction commits.
type ChangeNotifier interface {
	BalancesChanged(ctx context.Context, balances []models.StockBalance)
}

// Service exposes balance reads and reorder policy maintenance.
type Service interface {
	Get(ctx context.Context, productID, warehouseID uuid.UUID) (*BalanceView, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	UpdateReorderPolicy(ctx context.Context, input ReorderPolicyInput) (*BalanceView, error)
}

type service struct {
	repo     Repository
	store    *Store
	tx       txRunner
	notifier ChangeNotifier
}

func NewService(repo Repository, store *Store, tx txRunner, notifier ChangeNotifier) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("balance repository required")
	}
	if store == nil {
		return nil, fmt.Errorf("balance store required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("change notifier required")
	}
	return &service{repo: repo, store: store, tx: tx, notifier: notifier}, nil
}

func (s *service) Get(ctx context.Context, productID, warehouseID uuid.UUID) (*BalanceView, error) {
	key := Key{ProductID: productID, WarehouseID: warehouseID}
	if !key.valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id and warehouse id are required")
	}
	balance, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock balance not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock balance")
	}
	view := ToView(*balance)
	return &view, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid balance status")
	}

	window, err := params.Window()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := listQuery{
		warehouseID: params.WarehouseID,
		productID:   params.ProductID,
		status:      params.Status,
		window:      window,
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock balances")
	}

	rows, nextCursor := pkgpagination.Trim(rows, window, func(row models.StockBalance) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})

	items := make([]BalanceView, len(rows))
	for i, row := range rows {
		items[i] = ToView(row)
	}
	return &ListResult{Items: items, Cursor: nextCursor}, nil
}

func (s *service) UpdateReorderPolicy(ctx context.Context, input ReorderPolicyInput) (*BalanceView, error) {
	if input.ReorderPoint.IsNegative() || input.ReorderQuantity.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reorder thresholds cannot be negative")
	}
	key := Key{ProductID: input.ProductID, WarehouseID: input.WarehouseID}

	var updated models.StockBalance
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		balance, err := s.store.GetOrCreate(ctx, tx, key)
		if err != nil {
			return err
		}
		balance.ReorderPoint = input.ReorderPoint
		balance.ReorderQuantity = input.ReorderQuantity
		Recalculate(balance)
		balance.Version++
		if err := s.repo.WithTx(tx).Save(ctx, balance); err != nil {
			return lockError(err, "save reorder policy")
		}
		updated = *balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BalancesChanged(ctx, []models.StockBalance{updated})
	view := ToView(updated)
	return &view, nil
}
