package balances

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Delta describes one mutation of a balance row.
// UnitCostOverride replaces the average cost outright. IncomingUnitCost
// blends positive on-hand deltas into the weighted average.
type Delta struct {
	OnHand           decimal.Decimal
	Reserved         decimal.Decimal
	UnitCostOverride *decimal.Decimal
	IncomingUnitCost *decimal.Decimal
}

// Change carries the balance state on both sides of an applied delta.
type Change struct {
	Before models.StockBalance
	After  models.StockBalance
}

// Shortfall reports an item that cannot be served from available stock.
type Shortfall struct {
	ProductID   uuid.UUID       `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	Available   decimal.Decimal `json:"available"`
	Requested   decimal.Decimal `json:"requested"`
}

// InsufficientStock builds the typed rejection for one or more shortfalls.
func InsufficientStock(shortfalls ...Shortfall) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock available").
		WithDetails(map[string]any{"shortfalls": shortfalls})
}

// Store applies quantity changes to balance rows inside a caller's
// transaction. Every method takes the row lock of the keys it touches.
type Store struct {
	repo        Repository
	lockTimeout time.Duration
}

func NewStore(repo Repository, lockTimeout time.Duration) (*Store, error) {
	if repo == nil {
		return nil, errors.New("balance repository required")
	}
	return &Store{repo: repo, lockTimeout: lockTimeout}, nil
}

// Lock acquires the row locks for keys in sorted order, creating missing
// rows, and returns the locked balances indexed by key.
func (s *Store) Lock(ctx context.Context, tx *gorm.DB, keys []Key) (map[Key]*models.StockBalance, error) {
	locked := make(map[Key]*models.StockBalance, len(keys))
	for _, key := range SortedKeys(keys) {
		balance, err := s.GetOrCreate(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		locked[key] = balance
	}
	return locked, nil
}

// LockExisting locks the rows that exist for keys, in sorted order, without
// creating any. Keys with no row map to an unsaved zeroed balance.
func (s *Store) LockExisting(ctx context.Context, tx *gorm.DB, keys []Key) (map[Key]*models.StockBalance, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "balance locks require a transaction")
	}
	if err := db.SetLocalLockTimeout(tx, s.lockTimeout); err != nil {
		return nil, lockError(err, "set lock timeout")
	}
	repo := s.repo.WithTx(tx)
	locked := make(map[Key]*models.StockBalance, len(keys))
	for _, key := range SortedKeys(keys) {
		if !key.valid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id and warehouse id are required")
		}
		balance, err := repo.FindByKeyForUpdate(ctx, key)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			balance = newBalance(key)
		case err != nil:
			return nil, lockError(err, "lock stock balance")
		}
		locked[key] = balance
	}
	return locked, nil
}

// GetOrCreate returns the locked balance for key, inserting a zeroed row
// on first use.
func (s *Store) GetOrCreate(ctx context.Context, tx *gorm.DB, key Key) (*models.StockBalance, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "balance writes require a transaction")
	}
	if !key.valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id and warehouse id are required")
	}
	if err := db.SetLocalLockTimeout(tx, s.lockTimeout); err != nil {
		return nil, lockError(err, "set lock timeout")
	}

	repo := s.repo.WithTx(tx)
	balance, err := repo.FindByKeyForUpdate(ctx, key)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, lockError(err, "lock stock balance")
	}

	fresh := newBalance(key)
	if err := repo.InsertIfAbsent(ctx, fresh); err != nil {
		return nil, lockError(err, "create stock balance")
	}
	balance, err = repo.FindByKeyForUpdate(ctx, key)
	if err != nil {
		return nil, lockError(err, "lock stock balance")
	}
	return balance, nil
}

// ApplyDelta mutates the balance for key and bumps its version. A delta that
// lowers availability below zero is rejected with INSUFFICIENT_STOCK and
// nothing is written.
func (s *Store) ApplyDelta(ctx context.Context, tx *gorm.DB, key Key, delta Delta) (*Change, error) {
	current, err := s.GetOrCreate(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	before := *current
	next := *current
	next.QuantityOnHand = next.QuantityOnHand.Add(delta.OnHand)
	next.QuantityReserved = next.QuantityReserved.Add(delta.Reserved)
	if next.QuantityReserved.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reserved quantity cannot go negative").
			WithDetails(map[string]any{
				"product_id":   key.ProductID,
				"warehouse_id": key.WarehouseID,
				"reserved":     before.QuantityReserved,
				"release":      delta.Reserved.Neg(),
			})
	}
	Recalculate(&next)

	lowersAvailability := delta.OnHand.IsNegative() || delta.Reserved.IsPositive()
	if lowersAvailability && next.QuantityAvailable.IsNegative() {
		return nil, InsufficientStock(shortfallFor(key, before, delta))
	}

	switch {
	case delta.UnitCostOverride != nil:
		if delta.UnitCostOverride.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit cost cannot be negative")
		}
		next.UnitCost = *delta.UnitCostOverride
	case delta.IncomingUnitCost != nil && delta.OnHand.IsPositive():
		next.UnitCost = WeightedAverageCost(before.QuantityOnHand, before.UnitCost, delta.OnHand, *delta.IncomingUnitCost)
	}

	next.Version = before.Version + 1
	if err := s.repo.WithTx(tx).Save(ctx, &next); err != nil {
		return nil, lockError(err, "save stock balance")
	}
	*current = next
	return &Change{Before: before, After: next}, nil
}

// shortfallFor reports the gross quantity the delta takes out against what
// it could draw on. Reserved units the delta consumes count as available to
// it, so issuing 100 against a 30-unit reservation asks for 100.
func shortfallFor(key Key, before models.StockBalance, delta Delta) Shortfall {
	requested := decimal.Zero
	available := before.QuantityAvailable
	if delta.OnHand.IsNegative() {
		requested = requested.Add(delta.OnHand.Neg())
	}
	if delta.Reserved.IsPositive() {
		requested = requested.Add(delta.Reserved)
	} else {
		available = available.Add(delta.Reserved.Neg())
	}
	return Shortfall{
		ProductID:   key.ProductID,
		WarehouseID: key.WarehouseID,
		Available:   available,
		Requested:   requested,
	}
}

func newBalance(key Key) *models.StockBalance {
	return &models.StockBalance{
		ProductID:         key.ProductID,
		WarehouseID:       key.WarehouseID,
		QuantityOnHand:    decimal.Zero,
		QuantityReserved:  decimal.Zero,
		QuantityAvailable: decimal.Zero,
		QuantityVirtual:   decimal.Zero,
		QuantityOnLoanOut: decimal.Zero,
		QuantityOnLoanIn:  decimal.Zero,
		ReorderPoint:      decimal.Zero,
		ReorderQuantity:   decimal.Zero,
		UnitCost:          decimal.Zero,
		Status:            enums.BalanceOutOfStock,
	}
}

func lockError(err error, action string) error {
	if db.IsLockContention(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
