package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgpagination "github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// Actor is the authenticated principal behind a document operation.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// SystemActor acts for event-driven flows that have no human principal.
var SystemActor = Actor{Role: enums.ActorRoleSystem}

func (a Actor) idPtr() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}

func (a Actor) canCommit() bool {
	return a.Role == enums.ActorRoleSupervisor || a.Role == enums.ActorRoleSystem
}

// CreateInput is a new document header plus its kind-specific payload.
type CreateInput struct {
	WarehouseID  uuid.UUID
	DocumentDate *time.Time
	ExternalRef  *string
	Reason       *string
	Notes        *string
	Payload      UpdatePayload
}

type LineView struct {
	LineNo           int              `json:"line_no"`
	ProductID        uuid.UUID        `json:"product_id"`
	Quantity         decimal.Decimal  `json:"quantity"`
	UnitCost         decimal.Decimal  `json:"unit_cost"`
	ExpectedQuantity *decimal.Decimal `json:"expected_quantity,omitempty"`
	CountedQuantity  decimal.Decimal  `json:"counted_quantity"`
	Variance         decimal.Decimal  `json:"variance"`
	QuantityBefore   decimal.Decimal  `json:"quantity_before"`
	QuantityAfter    decimal.Decimal  `json:"quantity_after"`
	OldCost          decimal.Decimal  `json:"old_cost"`
	NewCost          decimal.Decimal  `json:"new_cost"`
	Amount           decimal.Decimal  `json:"amount"`
	Notes            *string          `json:"notes,omitempty"`
}

type DocumentView struct {
	ID                     uuid.UUID            `json:"id"`
	Kind                   enums.DocumentKind   `json:"kind"`
	Number                 string               `json:"number"`
	Status                 enums.DocumentStatus `json:"status"`
	WarehouseID            uuid.UUID            `json:"warehouse_id"`
	DestinationWarehouseID *uuid.UUID           `json:"destination_warehouse_id,omitempty"`
	SalesOrderID           *uuid.UUID           `json:"sales_order_id,omitempty"`
	SourceDocumentID       *uuid.UUID           `json:"source_document_id,omitempty"`
	ExternalRef            *string              `json:"external_ref,omitempty"`
	DocumentDate           time.Time            `json:"document_date"`
	Reason                 *string              `json:"reason,omitempty"`
	Notes                  *string              `json:"notes,omitempty"`
	CreatedBy              *uuid.UUID           `json:"created_by,omitempty"`
	CommittedBy            *uuid.UUID           `json:"committed_by,omitempty"`
	CommittedAt            *time.Time           `json:"committed_at,omitempty"`
	CancelledAt            *time.Time           `json:"cancelled_at,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
	Lines                  []LineView           `json:"lines,omitempty"`
}

func ToView(doc models.Document) DocumentView {
	view := DocumentView{
		ID:                     doc.ID,
		Kind:                   doc.Kind,
		Number:                 doc.Number,
		Status:                 doc.Status,
		WarehouseID:            doc.WarehouseID,
		DestinationWarehouseID: doc.DestinationWarehouseID,
		SalesOrderID:           doc.SalesOrderID,
		SourceDocumentID:       doc.SourceDocumentID,
		ExternalRef:            doc.ExternalRef,
		DocumentDate:           doc.DocumentDate,
		Reason:                 doc.Reason,
		Notes:                  doc.Notes,
		CreatedBy:              doc.CreatedBy,
		CommittedBy:            doc.CommittedBy,
		CommittedAt:            doc.CommittedAt,
		CancelledAt:            doc.CancelledAt,
		CreatedAt:              doc.CreatedAt,
		UpdatedAt:              doc.UpdatedAt,
	}
	if len(doc.Lines) > 0 {
		view.Lines = make([]LineView, len(doc.Lines))
		for i, l := range doc.Lines {
			view.Lines[i] = LineView{
				LineNo:           l.LineNo,
				ProductID:        l.ProductID,
				Quantity:         l.Quantity,
				UnitCost:         l.UnitCost,
				ExpectedQuantity: l.ExpectedQuantity,
				CountedQuantity:  l.CountedQuantity,
				Variance:         l.Variance,
				QuantityBefore:   l.QuantityBefore,
				QuantityAfter:    l.QuantityAfter,
				OldCost:          l.OldCost,
				NewCost:          l.NewCost,
				Amount:           l.Amount,
				Notes:            l.Notes,
			}
		}
	}
	return view
}

// ListParams filters document listings. A warehouse filter matches both
// the source and destination of transfers.
type ListParams struct {
	Kind        *enums.DocumentKind
	Status      *enums.DocumentStatus
	WarehouseID *uuid.UUID
	pkgpagination.Params
}

type ListResult struct {
	Items  []DocumentView `json:"items"`
	Cursor string         `json:"cursor"`
}
