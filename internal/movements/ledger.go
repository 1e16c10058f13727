package movements

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const amountScale = 4

// Entry describes the movement produced by one applied balance change.
type Entry struct {
	Change        *balances.Change
	MovementType  enums.MovementType
	ReferenceType enums.ReferenceType
	ReferenceID   string
	DocumentID    *uuid.UUID
	Quantity      decimal.Decimal
	UnitCost      decimal.Decimal
	// TotalCost overrides quantity times unit cost, as revaluations do.
	TotalCost *decimal.Decimal
	ActorID   *uuid.UUID
}

// Ledger appends movement records inside the caller's transaction.
type Ledger struct {
	repo Repository
}

func NewLedger(repo Repository) (*Ledger, error) {
	if repo == nil {
		return nil, errors.New("movement repository required")
	}
	return &Ledger{repo: repo}, nil
}

// Record turns a balance change into its movement record and appends it.
// The movement carries the on-hand values around the change and the
// balance version the change produced.
func (l *Ledger) Record(ctx context.Context, tx *gorm.DB, entry Entry) (*models.StockMovement, error) {
	if entry.Change == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "movement requires a balance change")
	}
	after := entry.Change.After
	total := entry.Quantity.Mul(entry.UnitCost)
	if entry.TotalCost != nil {
		total = *entry.TotalCost
	}
	movement := &models.StockMovement{
		ProductID:      after.ProductID,
		WarehouseID:    after.WarehouseID,
		MovementType:   entry.MovementType,
		ReferenceType:  entry.ReferenceType,
		ReferenceID:    entry.ReferenceID,
		DocumentID:     entry.DocumentID,
		Quantity:       entry.Quantity,
		QuantityBefore: entry.Change.Before.QuantityOnHand,
		QuantityAfter:  after.QuantityOnHand,
		UnitCost:       entry.UnitCost,
		TotalCost:      total.Round(amountScale),
		BalanceVersion: after.Version,
		ActorID:        entry.ActorID,
	}
	if err := l.Append(ctx, tx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

// Append validates and writes one movement record.
func (l *Ledger) Append(ctx context.Context, tx *gorm.DB, movement *models.StockMovement) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "movement writes require a transaction")
	}
	if err := validateMovement(movement); err != nil {
		return err
	}
	if err := l.repo.WithTx(tx).Create(ctx, movement); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "movement already recorded for balance version")
		}
		if db.IsLockContention(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "append movement")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append movement")
	}
	return nil
}

func validateMovement(m *models.StockMovement) error {
	switch {
	case m == nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "movement is required")
	case m.ProductID == uuid.Nil || m.WarehouseID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "movement product and warehouse are required")
	case !m.MovementType.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid movement type")
	case !m.ReferenceType.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid reference type")
	case strings.TrimSpace(m.ReferenceID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "movement reference id is required")
	case m.Quantity.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "movement quantity must not be negative")
	case m.BalanceVersion <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "movement balance version is required")
	}
	return nil
}
