package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// StockMovement is an immutable audit entry describing one quantity change.
// QuantityBefore and QuantityAfter are on-hand values around the change and
// BalanceVersion is the balance version the movement produced.
type StockMovement struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID      uuid.UUID           `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_stock_movements_key_version,priority:1"`
	WarehouseID    uuid.UUID           `gorm:"column:warehouse_id;type:uuid;not null;uniqueIndex:idx_stock_movements_key_version,priority:2"`
	MovementType   enums.MovementType  `gorm:"column:movement_type;type:varchar(16);not null"`
	ReferenceType  enums.ReferenceType `gorm:"column:reference_type;type:varchar(16);not null"`
	ReferenceID    string              `gorm:"column:reference_id;type:varchar(64);not null;index:idx_stock_movements_reference"`
	DocumentID     *uuid.UUID          `gorm:"column:document_id;type:uuid"`
	Quantity       decimal.Decimal     `gorm:"column:quantity;type:numeric(18,4);not null"`
	QuantityBefore decimal.Decimal     `gorm:"column:quantity_before;type:numeric(18,4);not null"`
	QuantityAfter  decimal.Decimal     `gorm:"column:quantity_after;type:numeric(18,4);not null"`
	UnitCost       decimal.Decimal     `gorm:"column:unit_cost;type:numeric(18,4);not null"`
	TotalCost      decimal.Decimal     `gorm:"column:total_cost;type:numeric(18,4);not null"`
	BalanceVersion int64               `gorm:"column:balance_version;not null;uniqueIndex:idx_stock_movements_key_version,priority:3"`
	ActorID        *uuid.UUID          `gorm:"column:actor_id;type:uuid"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (StockMovement) TableName() string { return "stock_movements" }

func (m *StockMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
