package documents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

// UpdatePayload is the kind-specific body of a document: its lines plus
// the header fields only that kind carries. The set of variants is closed.
type UpdatePayload interface {
	Kind() enums.DocumentKind
	validate() error
	applyHeader(doc *models.Document)
	lines() []models.DocumentLine
}

type ReceiptLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Notes     *string         `json:"notes,omitempty"`
}

type ReceiptUpdate struct {
	Lines []ReceiptLine `json:"lines"`
}

type IssueLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	// UnitCost of zero issues at the balance's average cost.
	UnitCost decimal.Decimal `json:"unit_cost"`
	Notes    *string         `json:"notes,omitempty"`
}

type IssueUpdate struct {
	SalesOrderID *uuid.UUID  `json:"sales_order_id,omitempty"`
	Lines        []IssueLine `json:"lines"`
}

type TransferLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Notes     *string         `json:"notes,omitempty"`
}

type TransferUpdate struct {
	DestinationWarehouseID uuid.UUID      `json:"destination_warehouse_id"`
	Lines                  []TransferLine `json:"lines"`
}

type CountingLine struct {
	ProductID uuid.UUID `json:"product_id"`
	// ExpectedQuantity is snapshotted from the balance when omitted.
	ExpectedQuantity *decimal.Decimal `json:"expected_quantity,omitempty"`
	CountedQuantity  decimal.Decimal  `json:"counted_quantity"`
	Notes            *string          `json:"notes,omitempty"`
}

type CountingUpdate struct {
	Lines []CountingLine `json:"lines"`
}

type PostingLine struct {
	ProductID     uuid.UUID       `json:"product_id"`
	QuantityAfter decimal.Decimal `json:"quantity_after"`
	Notes         *string         `json:"notes,omitempty"`
}

type PostingUpdate struct {
	Lines []PostingLine `json:"lines"`
}

type RevaluationLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	NewCost   decimal.Decimal `json:"new_cost"`
	Notes     *string         `json:"notes,omitempty"`
}

type RevaluationUpdate struct {
	Lines []RevaluationLine `json:"lines"`
}

// DecodeUpdatePayload reads the "kind" discriminator of raw and decodes the
// matching variant.
func DecodeUpdatePayload(raw json.RawMessage) (UpdatePayload, error) {
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payload is required")
	}
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payload")
	}
	kind, err := enums.ParseDocumentKind(strings.ToLower(strings.TrimSpace(probe.Kind)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payload kind")
	}

	var payload UpdatePayload
	switch kind {
	case enums.DocumentReceipt:
		payload = &ReceiptUpdate{}
	case enums.DocumentIssue:
		payload = &IssueUpdate{}
	case enums.DocumentTransfer:
		payload = &TransferUpdate{}
	case enums.DocumentCounting:
		payload = &CountingUpdate{}
	case enums.DocumentPosting:
		payload = &PostingUpdate{}
	case enums.DocumentRevaluation:
		payload = &RevaluationUpdate{}
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid %s payload", kind))
	}
	return payload, nil
}

func (*ReceiptUpdate) Kind() enums.DocumentKind     { return enums.DocumentReceipt }
func (*IssueUpdate) Kind() enums.DocumentKind       { return enums.DocumentIssue }
func (*TransferUpdate) Kind() enums.DocumentKind    { return enums.DocumentTransfer }
func (*CountingUpdate) Kind() enums.DocumentKind    { return enums.DocumentCounting }
func (*PostingUpdate) Kind() enums.DocumentKind     { return enums.DocumentPosting }
func (*RevaluationUpdate) Kind() enums.DocumentKind { return enums.DocumentRevaluation }

func (p *ReceiptUpdate) validate() error {
	if len(p.Lines) == 0 {
		return errNoLines
	}
	for i, l := range p.Lines {
		if err := requireProduct(i, l.ProductID); err != nil {
			return err
		}
		if !l.Quantity.IsPositive() {
			return lineError(i, "quantity must be positive")
		}
		if l.UnitCost.IsNegative() {
			return lineError(i, "unit cost cannot be negative")
		}
	}
	return nil
}

func (p *IssueUpdate) validate() error {
	if len(p.Lines) == 0 {
		return errNoLines
	}
	if p.SalesOrderID != nil && *p.SalesOrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "sales order id is invalid")
	}
	for i, l := range p.Lines {
		if err := requireProduct(i, l.ProductID); err != nil {
			return err
		}
		if !l.Quantity.IsPositive() {
			return lineError(i, "quantity must be positive")
		}
		if l.UnitCost.IsNegative() {
			return lineError(i, "unit cost cannot be negative")
		}
	}
	return nil
}

func (p *TransferUpdate) validate() error {
	if len(p.Lines) == 0 {
		return errNoLines
	}
	if p.DestinationWarehouseID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "destination warehouse is required")
	}
	for i, l := range p.Lines {
		if err := requireProduct(i, l.ProductID); err != nil {
			return err
		}
		if !l.Quantity.IsPositive() {
			return lineError(i, "quantity must be positive")
		}
	}
	return nil
}

func (p *CountingUpdate) validate() error {
	if len(p.Lines) == 0 {
		return errNoLines
	}
	for i, l := range p.Lines {
		if err := requireProduct(i, l.ProductID); err != nil {
			return err
		}
		if l.ExpectedQuantity != nil && l.ExpectedQuantity.IsNegative() {
			return lineError(i, "expected quantity cannot be negative")
		}
		if l.CountedQuantity.IsNegative() {
			return lineError(i, "counted quantity cannot be negative")
		}
	}
	return nil
}

func (p *PostingUpdate) validate() error {
	if len(p.Lines) == 0 {
		return errNoLines
	}
	for i, l := range p.Lines {
		if err := requireProduct(i, l.ProductID); err != nil {
			return err
		}
		if l.QuantityAfter.IsNegative() {
			return lineError(i, "quantity after cannot be negative")
		}
	}
	return nil
}

func (p *RevaluationUpdate) validate() error {
	if len(p.Lines) == 0 {
		return errNoLines
	}
	for i, l := range p.Lines {
		if err := requireProduct(i, l.ProductID); err != nil {
			return err
		}
		if l.NewCost.IsNegative() {
			return lineError(i, "new cost cannot be negative")
		}
	}
	return nil
}

func (*ReceiptUpdate) applyHeader(*models.Document) {}

func (p *IssueUpdate) applyHeader(doc *models.Document) {
	doc.SalesOrderID = p.SalesOrderID
}

func (p *TransferUpdate) applyHeader(doc *models.Document) {
	dest := p.DestinationWarehouseID
	doc.DestinationWarehouseID = &dest
}

func (*CountingUpdate) applyHeader(*models.Document)    {}
func (*PostingUpdate) applyHeader(*models.Document)     {}
func (*RevaluationUpdate) applyHeader(*models.Document) {}

func (p *ReceiptUpdate) lines() []models.DocumentLine {
	out := make([]models.DocumentLine, len(p.Lines))
	for i, l := range p.Lines {
		out[i] = models.DocumentLine{LineNo: i + 1, ProductID: l.ProductID, Quantity: l.Quantity, UnitCost: l.UnitCost, Notes: l.Notes}
	}
	return out
}

func (p *IssueUpdate) lines() []models.DocumentLine {
	out := make([]models.DocumentLine, len(p.Lines))
	for i, l := range p.Lines {
		out[i] = models.DocumentLine{LineNo: i + 1, ProductID: l.ProductID, Quantity: l.Quantity, UnitCost: l.UnitCost, Notes: l.Notes}
	}
	return out
}

func (p *TransferUpdate) lines() []models.DocumentLine {
	out := make([]models.DocumentLine, len(p.Lines))
	for i, l := range p.Lines {
		out[i] = models.DocumentLine{LineNo: i + 1, ProductID: l.ProductID, Quantity: l.Quantity, Notes: l.Notes}
	}
	return out
}

func (p *CountingUpdate) lines() []models.DocumentLine {
	out := make([]models.DocumentLine, len(p.Lines))
	for i, l := range p.Lines {
		out[i] = models.DocumentLine{
			LineNo:           i + 1,
			ProductID:        l.ProductID,
			ExpectedQuantity: l.ExpectedQuantity,
			CountedQuantity:  l.CountedQuantity,
			Notes:            l.Notes,
		}
	}
	return out
}

func (p *PostingUpdate) lines() []models.DocumentLine {
	out := make([]models.DocumentLine, len(p.Lines))
	for i, l := range p.Lines {
		out[i] = models.DocumentLine{LineNo: i + 1, ProductID: l.ProductID, QuantityAfter: l.QuantityAfter, Notes: l.Notes}
	}
	return out
}

func (p *RevaluationUpdate) lines() []models.DocumentLine {
	out := make([]models.DocumentLine, len(p.Lines))
	for i, l := range p.Lines {
		out[i] = models.DocumentLine{LineNo: i + 1, ProductID: l.ProductID, NewCost: l.NewCost, UnitCost: l.NewCost, Notes: l.Notes}
	}
	return out
}

var errNoLines = pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")

func requireProduct(i int, id uuid.UUID) error {
	if id == uuid.Nil {
		return lineError(i, "product id is required")
	}
	return nil
}

func lineError(i int, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).
		WithDetails(map[string]any{"line_no": i + 1})
}
