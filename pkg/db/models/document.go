package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// Document is the header of a receipt, issue, transfer, counting, posting or
// revaluation. Lines are loaded explicitly by document id.
type Document struct {
	ID                     uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Kind                   enums.DocumentKind   `gorm:"column:kind;type:varchar(16);not null;uniqueIndex:ux_documents_kind_external_ref,priority:1"`
	Number                 string               `gorm:"column:number;type:varchar(32);not null;uniqueIndex:ux_documents_number"`
	Status                 enums.DocumentStatus `gorm:"column:status;type:varchar(16);not null"`
	WarehouseID            uuid.UUID            `gorm:"column:warehouse_id;type:uuid;not null;index"`
	DestinationWarehouseID *uuid.UUID           `gorm:"column:destination_warehouse_id;type:uuid"`
	SalesOrderID           *uuid.UUID           `gorm:"column:sales_order_id;type:uuid"`
	SourceDocumentID       *uuid.UUID           `gorm:"column:source_document_id;type:uuid;index"`
	ExternalRef            *string              `gorm:"column:external_ref;type:varchar(128);uniqueIndex:ux_documents_kind_external_ref,priority:2"`
	DocumentDate           time.Time            `gorm:"column:document_date;not null"`
	Reason                 *string              `gorm:"column:reason"`
	Notes                  *string              `gorm:"column:notes"`
	CreatedBy              *uuid.UUID           `gorm:"column:created_by;type:uuid"`
	CommittedBy            *uuid.UUID           `gorm:"column:committed_by;type:uuid"`
	CommittedAt            *time.Time           `gorm:"column:committed_at"`
	CancelledAt            *time.Time           `gorm:"column:cancelled_at"`
	CreatedAt              time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time            `gorm:"column:updated_at;autoUpdateTime"`

	Lines []DocumentLine `gorm:"-"`
}

func (Document) TableName() string { return "documents" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// DocumentLine carries the per-kind quantities of one product. Amount holds
// the kind's derived value: total, variance, adjustment or revaluation amount.
type DocumentLine struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	DocumentID       uuid.UUID       `gorm:"column:document_id;type:uuid;not null;uniqueIndex:ux_document_lines_document_line,priority:1"`
	LineNo           int             `gorm:"column:line_no;not null;uniqueIndex:ux_document_lines_document_line,priority:2"`
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Quantity         decimal.Decimal `gorm:"column:quantity;type:numeric(18,4);not null"`
	UnitCost         decimal.Decimal `gorm:"column:unit_cost;type:numeric(18,4);not null"`
	ExpectedQuantity *decimal.Decimal `gorm:"column:expected_quantity;type:numeric(18,4)"`
	CountedQuantity  decimal.Decimal `gorm:"column:counted_quantity;type:numeric(18,4);not null"`
	Variance         decimal.Decimal `gorm:"column:variance;type:numeric(18,4);not null"`
	QuantityBefore   decimal.Decimal `gorm:"column:quantity_before;type:numeric(18,4);not null"`
	QuantityAfter    decimal.Decimal `gorm:"column:quantity_after;type:numeric(18,4);not null"`
	OldCost          decimal.Decimal `gorm:"column:old_cost;type:numeric(18,4);not null"`
	NewCost          decimal.Decimal `gorm:"column:new_cost;type:numeric(18,4);not null"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(18,4);not null"`
	Notes            *string         `gorm:"column:notes"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (DocumentLine) TableName() string { return "document_lines" }

func (l *DocumentLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
