package movements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	pkgpagination "github.com/angelmondragon/stockledger-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes movement history queries and replay checks.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Reconcile(ctx context.Context, productID, warehouseID uuid.UUID) (*Reconciliation, error)
}

type ListParams struct {
	ProductID     *uuid.UUID
	WarehouseID   *uuid.UUID
	DocumentID    *uuid.UUID
	MovementType  *enums.MovementType
	ReferenceType *enums.ReferenceType
	ReferenceID   string
	From          *time.Time
	To            *time.Time
	pkgpagination.Params
}

type ListResult struct {
	Items  []MovementView `json:"items"`
	Cursor string         `json:"cursor"`
}

type MovementView struct {
	ID             uuid.UUID           `json:"id"`
	ProductID      uuid.UUID           `json:"product_id"`
	WarehouseID    uuid.UUID           `json:"warehouse_id"`
	MovementType   enums.MovementType  `json:"movement_type"`
	ReferenceType  enums.ReferenceType `json:"reference_type"`
	ReferenceID    string              `json:"reference_id"`
	DocumentID     *uuid.UUID          `json:"document_id,omitempty"`
	Quantity       decimal.Decimal     `json:"quantity"`
	QuantityBefore decimal.Decimal     `json:"quantity_before"`
	QuantityAfter  decimal.Decimal     `json:"quantity_after"`
	UnitCost       decimal.Decimal     `json:"unit_cost"`
	TotalCost      decimal.Decimal     `json:"total_cost"`
	BalanceVersion int64               `json:"balance_version"`
	ActorID        *uuid.UUID          `json:"actor_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

func toView(m models.StockMovement) MovementView {
	return MovementView{
		ID:             m.ID,
		ProductID:      m.ProductID,
		WarehouseID:    m.WarehouseID,
		MovementType:   m.MovementType,
		ReferenceType:  m.ReferenceType,
		ReferenceID:    m.ReferenceID,
		DocumentID:     m.DocumentID,
		Quantity:       m.Quantity,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		UnitCost:       m.UnitCost,
		TotalCost:      m.TotalCost,
		BalanceVersion: m.BalanceVersion,
		ActorID:        m.ActorID,
		CreatedAt:      m.CreatedAt,
	}
}

// ChainBreak marks a movement whose before value does not continue the
// previous movement's after value.
type ChainBreak struct {
	MovementID     uuid.UUID       `json:"movement_id"`
	BalanceVersion int64           `json:"balance_version"`
	Expected       decimal.Decimal `json:"expected_before"`
	Actual         decimal.Decimal `json:"actual_before"`
}

// Reconciliation compares the replayed movement history with the balance.
type Reconciliation struct {
	ProductID      uuid.UUID       `json:"product_id"`
	WarehouseID    uuid.UUID       `json:"warehouse_id"`
	BookOnHand     decimal.Decimal `json:"book_on_hand"`
	ReplayedOnHand decimal.Decimal `json:"replayed_on_hand"`
	MovementCount  int             `json:"movement_count"`
	Breaks         []ChainBreak    `json:"breaks"`
	Consistent     bool            `json:"consistent"`
}

type service struct {
	repo     Repository
	balances balances.Repository
	tx       txRunner
}

func NewService(repo Repository, balanceRepo balances.Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("movement repository required")
	}
	if balanceRepo == nil {
		return nil, fmt.Errorf("balance repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, balances: balanceRepo, tx: tx}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.MovementType != nil && !params.MovementType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid movement type")
	}
	if params.ReferenceType != nil && !params.ReferenceType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid reference type")
	}
	if params.From != nil && params.To != nil && !params.From.Before(*params.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}

	window, err := params.Window()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := listQuery{
		productID:     params.ProductID,
		warehouseID:   params.WarehouseID,
		documentID:    params.DocumentID,
		movementType:  params.MovementType,
		referenceType: params.ReferenceType,
		referenceID:   params.ReferenceID,
		from:          params.From,
		to:            params.To,
		window:        window,
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list movements")
	}

	rows, nextCursor := pkgpagination.Trim(rows, window, func(row models.StockMovement) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})

	items := make([]MovementView, len(rows))
	for i, row := range rows {
		items[i] = toView(row)
	}
	return &ListResult{Items: items, Cursor: nextCursor}, nil
}

// Reconcile replays the movements of one balance from zero, in version
// order, and reports whether the result matches the stored on-hand quantity.
func (s *service) Reconcile(ctx context.Context, productID, warehouseID uuid.UUID) (*Reconciliation, error) {
	if productID == uuid.Nil || warehouseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id and warehouse id are required")
	}
	key := balances.Key{ProductID: productID, WarehouseID: warehouseID}

	var (
		balance *models.StockBalance
		history []models.StockMovement
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		balance, err = s.balances.WithTx(tx).FindByKey(ctx, key)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stock balance not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock balance")
		}
		history, err = s.repo.WithTx(tx).ListForKey(ctx, key)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load movements")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := Replay(history)
	report.ProductID = productID
	report.WarehouseID = warehouseID
	report.BookOnHand = balance.QuantityOnHand
	report.Consistent = len(report.Breaks) == 0 && report.ReplayedOnHand.Equal(balance.QuantityOnHand)
	return &report, nil
}

// Replay folds version-ordered movements into an on-hand quantity starting
// at zero and collects every chain break.
func Replay(history []models.StockMovement) Reconciliation {
	report := Reconciliation{
		ReplayedOnHand: decimal.Zero,
		MovementCount:  len(history),
		Breaks:         []ChainBreak{},
	}
	running := decimal.Zero
	for _, m := range history {
		if !m.QuantityBefore.Equal(running) {
			report.Breaks = append(report.Breaks, ChainBreak{
				MovementID:     m.ID,
				BalanceVersion: m.BalanceVersion,
				Expected:       running,
				Actual:         m.QuantityBefore,
			})
		}
		running = running.Add(m.QuantityAfter.Sub(m.QuantityBefore))
	}
	report.ReplayedOnHand = running
	return report
}
