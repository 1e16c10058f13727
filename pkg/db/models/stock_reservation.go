package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// StockReservation tracks stock promised to a sales order. Quantity is what
// is still held; issues and cancellations draw it down.
type StockReservation struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_stock_reservations_order_product_warehouse,priority:1"`
	ProductID   uuid.UUID               `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_stock_reservations_order_product_warehouse,priority:2"`
	WarehouseID uuid.UUID               `gorm:"column:warehouse_id;type:uuid;not null;uniqueIndex:ux_stock_reservations_order_product_warehouse,priority:3"`
	Quantity    decimal.Decimal         `gorm:"column:quantity;type:numeric(18,4);not null"`
	Requested   decimal.Decimal         `gorm:"column:requested;type:numeric(18,4);not null"`
	Status      enums.ReservationStatus `gorm:"column:status;type:varchar(16);not null"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (StockReservation) TableName() string { return "stock_reservations" }

func (r *StockReservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
