package balances

import (
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgpagination "github.com/angelmondragon/stockledger-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceView is the read shape of a stock balance.
type BalanceView struct {
	ID                uuid.UUID           `json:"id"`
	ProductID         uuid.UUID           `json:"product_id"`
	WarehouseID       uuid.UUID           `json:"warehouse_id"`
	QuantityOnHand    decimal.Decimal     `json:"quantity_on_hand"`
	QuantityReserved  decimal.Decimal     `json:"quantity_reserved"`
	QuantityAvailable decimal.Decimal     `json:"quantity_available"`
	QuantityVirtual   decimal.Decimal     `json:"quantity_virtual"`
	QuantityOnLoanOut decimal.Decimal     `json:"quantity_on_loan_out"`
	QuantityOnLoanIn  decimal.Decimal     `json:"quantity_on_loan_in"`
	TotalOwned        decimal.Decimal     `json:"total_owned"`
	ReorderPoint      decimal.Decimal     `json:"reorder_point"`
	ReorderQuantity   decimal.Decimal     `json:"reorder_quantity"`
	UnitCost          decimal.Decimal     `json:"unit_cost"`
	Status            enums.BalanceStatus `json:"status"`
	Version           int64               `json:"version"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func ToView(b models.StockBalance) BalanceView {
	return BalanceView{
		ID:                b.ID,
		ProductID:         b.ProductID,
		WarehouseID:       b.WarehouseID,
		QuantityOnHand:    b.QuantityOnHand,
		QuantityReserved:  b.QuantityReserved,
		QuantityAvailable: b.QuantityAvailable,
		QuantityVirtual:   b.QuantityVirtual,
		QuantityOnLoanOut: b.QuantityOnLoanOut,
		QuantityOnLoanIn:  b.QuantityOnLoanIn,
		TotalOwned:        b.TotalOwned(),
		ReorderPoint:      b.ReorderPoint,
		ReorderQuantity:   b.ReorderQuantity,
		UnitCost:          b.UnitCost,
		Status:            b.Status,
		Version:           b.Version,
		UpdatedAt:         b.UpdatedAt,
	}
}

// ListParams filters balance listings.
type ListParams struct {
	WarehouseID *uuid.UUID
	ProductID   *uuid.UUID
	Status      *enums.BalanceStatus
	pkgpagination.Params
}

type ListResult struct {
	Items  []BalanceView `json:"items"`
	Cursor string        `json:"cursor"`
}

// ReorderPolicyInput sets the replenishment thresholds of one balance.
type ReorderPolicyInput struct {
	ProductID       uuid.UUID
	WarehouseID     uuid.UUID
	ReorderPoint    decimal.Decimal
	ReorderQuantity decimal.Decimal
}
