package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// StockBalance is the current quantity state of one product in one warehouse.
// QuantityAvailable and Status are derived and stored for querying.
type StockBalance struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID           `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_stock_balances_product_warehouse,priority:1"`
	WarehouseID       uuid.UUID           `gorm:"column:warehouse_id;type:uuid;not null;uniqueIndex:ux_stock_balances_product_warehouse,priority:2;index:idx_stock_balances_warehouse_status,priority:1"`
	QuantityOnHand    decimal.Decimal     `gorm:"column:quantity_on_hand;type:numeric(18,4);not null"`
	QuantityReserved  decimal.Decimal     `gorm:"column:quantity_reserved;type:numeric(18,4);not null"`
	QuantityAvailable decimal.Decimal     `gorm:"column:quantity_available;type:numeric(18,4);not null"`
	QuantityVirtual   decimal.Decimal     `gorm:"column:quantity_virtual;type:numeric(18,4);not null"`
	QuantityOnLoanOut decimal.Decimal     `gorm:"column:quantity_on_loan_out;type:numeric(18,4);not null"`
	QuantityOnLoanIn  decimal.Decimal     `gorm:"column:quantity_on_loan_in;type:numeric(18,4);not null"`
	ReorderPoint      decimal.Decimal     `gorm:"column:reorder_point;type:numeric(18,4);not null"`
	ReorderQuantity   decimal.Decimal     `gorm:"column:reorder_quantity;type:numeric(18,4);not null"`
	UnitCost          decimal.Decimal     `gorm:"column:unit_cost;type:numeric(18,4);not null"`
	Status            enums.BalanceStatus `gorm:"column:status;type:varchar(16);not null;index:idx_stock_balances_warehouse_status,priority:2"`
	Version           int64               `gorm:"column:version;not null"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (StockBalance) TableName() string { return "stock_balances" }

func (b *StockBalance) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// TotalOwned is onHand plus virtual stock, less stock lent out, plus stock
// borrowed in. It is reported only and never used for reservation checks.
func (b StockBalance) TotalOwned() decimal.Decimal {
	return b.QuantityOnHand.
		Add(b.QuantityVirtual).
		Sub(b.QuantityOnLoanOut).
		Add(b.QuantityOnLoanIn)
}
