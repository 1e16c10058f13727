package documents

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/stockledger-backend/internal/eventing"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

const goodsReceivedReason = "goods received"

// ReceiveGoods books an inbound delivery as a receipt keyed by the
// delivery's receipt id and commits it. Redelivery of the same receipt
// finds the existing document and does not book it twice.
func (s *service) ReceiveGoods(ctx context.Context, event payloads.GoodsReceivedEvent) (*DocumentView, error) {
	ref := strings.TrimSpace(event.ReceiptID)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt id is required")
	}

	existing, err := s.repo.FindByExternalRef(ctx, enums.DocumentReceipt, ref)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up receipt")
	}
	if existing == nil {
		existing, err = s.createReceipt(ctx, ref, event)
		if err != nil {
			return nil, err
		}
	}

	if existing.Status == enums.DocumentStatusDraft {
		if _, err := s.prepare(ctx, existing.ID, enums.DocumentActionSubmit); err != nil {
			return nil, err
		}
	}
	doc, err := s.commit(ctx, existing.ID, SystemActor)
	if err != nil {
		return nil, err
	}
	view := ToView(*doc)
	return &view, nil
}

func (s *service) createReceipt(ctx context.Context, ref string, event payloads.GoodsReceivedEvent) (*models.Document, error) {
	lines := make([]ReceiptLine, len(event.Items))
	for i, item := range event.Items {
		lines[i] = ReceiptLine{ProductID: item.ProductID, Quantity: item.Quantity, UnitCost: item.UnitCost}
	}
	reason := goodsReceivedReason
	view, err := s.Create(ctx, CreateInput{
		WarehouseID: event.WarehouseID,
		ExternalRef: &ref,
		Reason:      &reason,
		Payload:     &ReceiptUpdate{Lines: lines},
	}, SystemActor)
	if err == nil {
		return &models.Document{ID: view.ID, Status: view.Status}, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		return nil, err
	}

	// A concurrent delivery of the same receipt won the insert.
	existing, findErr := s.repo.FindByExternalRef(ctx, enums.DocumentReceipt, ref)
	if findErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload receipt")
	}
	if existing == nil {
		return nil, err
	}
	return existing, nil
}

// EventHandler books goods_received events.
type EventHandler struct {
	svc Service
}

func NewEventHandler(svc Service) (*EventHandler, error) {
	if svc == nil {
		return nil, errors.New("document service required")
	}
	return &EventHandler{svc: svc}, nil
}

// Register binds goods_received to router.
func (h *EventHandler) Register(router *eventing.Router) {
	router.Register(enums.EventGoodsReceived, eventing.HandlerFunc(h.GoodsReceived))
}

func (h *EventHandler) GoodsReceived(ctx context.Context, msg eventing.Message) error {
	var event payloads.GoodsReceivedEvent
	if err := msg.Decode(&event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid goods_received payload")
	}
	_, err := h.svc.ReceiveGoods(ctx, event)
	return err
}
