package documents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
)

const amountScale = 4

// commitRun carries the state of one document commit transaction.
type commitRun struct {
	s       *service
	ctx     context.Context
	tx      *gorm.DB
	doc     *models.Document
	actor   Actor
	locked  map[balances.Key]*models.StockBalance
	changed []models.StockBalance
}

// commit applies the ledger effect of a document exactly once. Balance rows
// are locked in key order before any of them changes. A document that is
// already committed is returned unchanged.
func (s *service) commit(ctx context.Context, id uuid.UUID, actor Actor) (*models.Document, error) {
	started := time.Now()
	var (
		doc     *models.Document
		run     *commitRun
		already bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if doc, err = repo.FindByIDForUpdate(ctx, id); err != nil {
			return lookupError(err)
		}
		if doc.Lines, err = repo.FindLines(ctx, doc.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document lines")
		}
		pol, _ := policyFor(doc.Kind)
		if doc.Status == pol.committed {
			already = true
			return nil
		}
		if doc.Status != pol.intermediate {
			return stateConflict(doc, string(enums.DocumentActionCommit))
		}
		if len(doc.Lines) == 0 {
			return errNoLines
		}

		lock := s.store.Lock
		if doc.Kind == enums.DocumentCounting {
			lock = s.store.LockExisting
		}
		locked, err := lock(ctx, tx, affectedKeys(doc))
		if err != nil {
			return err
		}
		run = &commitRun{s: s, ctx: ctx, tx: tx, doc: doc, actor: actor, locked: locked}
		if err := run.apply(); err != nil {
			return err
		}

		if err := repo.SaveLines(ctx, doc.Lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save document lines")
		}
		now := s.now().UTC()
		doc.Status = pol.committed
		doc.CommittedBy = actor.idPtr()
		doc.CommittedAt = &now
		if err := repo.Save(ctx, doc); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark document committed")
		}
		return nil
	})

	kind := ""
	if doc != nil {
		kind = string(doc.Kind)
	}
	switch {
	case err != nil:
		outcome := metrics.OutcomeFailed
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			outcome = metrics.OutcomeRejected
			s.metrics.IncInsufficientStock("document")
		}
		s.metrics.ObserveCommit(kind, outcome, time.Since(started))
		return nil, err
	case already:
		s.metrics.ObserveCommit(kind, metrics.OutcomeNoop, time.Since(started))
		return doc, nil
	}

	s.metrics.ObserveCommit(kind, metrics.OutcomeCommitted, time.Since(started))
	logCtx := s.logg.WithDocumentID(ctx, doc.ID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{"number": doc.Number, "kind": doc.Kind}), "document committed")

	if len(run.changed) > 0 {
		s.notifier.BalancesChanged(ctx, run.changed)
	}
	s.notifier.DocumentCommitted(ctx, *doc)
	return doc, nil
}

func affectedKeys(doc *models.Document) []balances.Key {
	keys := make([]balances.Key, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		keys = append(keys, balances.Key{ProductID: line.ProductID, WarehouseID: doc.WarehouseID})
		if doc.Kind == enums.DocumentTransfer && doc.DestinationWarehouseID != nil {
			keys = append(keys, balances.Key{ProductID: line.ProductID, WarehouseID: *doc.DestinationWarehouseID})
		}
	}
	return keys
}

func (r *commitRun) apply() error {
	switch r.doc.Kind {
	case enums.DocumentReceipt:
		return r.receipt()
	case enums.DocumentIssue:
		return r.issue()
	case enums.DocumentTransfer:
		return r.transfer()
	case enums.DocumentCounting:
		return r.counting()
	case enums.DocumentPosting:
		return r.posting()
	case enums.DocumentRevaluation:
		return r.revaluation()
	}
	return pkgerrors.New(pkgerrors.CodeInternal, "no commit handler for "+string(r.doc.Kind))
}

func (r *commitRun) key(productID uuid.UUID) balances.Key {
	return balances.Key{ProductID: productID, WarehouseID: r.doc.WarehouseID}
}

func (r *commitRun) change(key balances.Key, delta balances.Delta) (*balances.Change, error) {
	change, err := r.s.store.ApplyDelta(r.ctx, r.tx, key, delta)
	if err != nil {
		return nil, err
	}
	r.changed = append(r.changed, change.After)
	return change, nil
}

func (r *commitRun) record(change *balances.Change, mt enums.MovementType, rt enums.ReferenceType, qty, unitCost decimal.Decimal, total *decimal.Decimal) error {
	docID := r.doc.ID
	_, err := r.s.ledger.Record(r.ctx, r.tx, movements.Entry{
		Change:        change,
		MovementType:  mt,
		ReferenceType: rt,
		ReferenceID:   r.doc.Number,
		DocumentID:    &docID,
		Quantity:      qty,
		UnitCost:      unitCost,
		TotalCost:     total,
		ActorID:       r.actor.idPtr(),
	})
	return err
}

func (r *commitRun) receipt() error {
	for i := range r.doc.Lines {
		line := &r.doc.Lines[i]
		cost := line.UnitCost
		change, err := r.change(r.key(line.ProductID), balances.Delta{OnHand: line.Quantity, IncomingUnitCost: &cost})
		if err != nil {
			return err
		}
		if err := r.record(change, enums.MovementIn, enums.ReferencePurchase, line.Quantity, cost, nil); err != nil {
			return err
		}
		line.Amount = line.Quantity.Mul(cost).Round(amountScale)
	}
	return nil
}

// issue removes stock and draws down the sales order's reservation for the
// same product by at most the issued quantity.
func (r *commitRun) issue() error {
	for i := range r.doc.Lines {
		line := &r.doc.Lines[i]
		key := r.key(line.ProductID)

		release := decimal.Zero
		var reservation *models.StockReservation
		if r.doc.SalesOrderID != nil {
			var err error
			reservation, err = r.s.reservations.WithTx(r.tx).FindActiveForUpdate(r.ctx, *r.doc.SalesOrderID, key.ProductID, key.WarehouseID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
			}
			if reservation != nil {
				release = decimal.Min(line.Quantity, reservation.Quantity)
			}
		}

		change, err := r.change(key, balances.Delta{OnHand: line.Quantity.Neg(), Reserved: release.Neg()})
		if err != nil {
			return err
		}
		if !line.UnitCost.IsPositive() {
			line.UnitCost = change.Before.UnitCost
		}
		if err := r.record(change, enums.MovementOut, enums.ReferenceSales, line.Quantity, line.UnitCost, nil); err != nil {
			return err
		}
		line.Amount = line.Quantity.Mul(line.UnitCost).Round(amountScale)

		if reservation != nil && release.IsPositive() {
			reservation.Quantity = reservation.Quantity.Sub(release)
			if !reservation.Quantity.IsPositive() {
				reservation.Quantity = decimal.Zero
				reservation.Status = enums.ReservationConsumed
			}
			if err := r.s.reservations.WithTx(r.tx).Save(r.ctx, reservation); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update reservation")
			}
		}
	}
	return nil
}

// transfer moves stock at the source's average cost.
func (r *commitRun) transfer() error {
	if r.doc.DestinationWarehouseID == nil || *r.doc.DestinationWarehouseID == r.doc.WarehouseID {
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer needs a distinct destination warehouse")
	}
	dest := *r.doc.DestinationWarehouseID
	for i := range r.doc.Lines {
		line := &r.doc.Lines[i]
		out, err := r.change(r.key(line.ProductID), balances.Delta{OnHand: line.Quantity.Neg()})
		if err != nil {
			return err
		}
		cost := out.Before.UnitCost
		if err := r.record(out, enums.MovementTransfer, enums.ReferenceTransfer, line.Quantity, cost, nil); err != nil {
			return err
		}

		in, err := r.change(balances.Key{ProductID: line.ProductID, WarehouseID: dest}, balances.Delta{OnHand: line.Quantity, IncomingUnitCost: &cost})
		if err != nil {
			return err
		}
		if err := r.record(in, enums.MovementTransfer, enums.ReferenceTransfer, line.Quantity, cost, nil); err != nil {
			return err
		}
		line.UnitCost = cost
		line.Amount = line.Quantity.Mul(cost).Round(amountScale)
	}
	return nil
}

// counting records variances only.
func (r *commitRun) counting() error {
	for i := range r.doc.Lines {
		line := &r.doc.Lines[i]
		balance := r.locked[r.key(line.ProductID)]
		if line.ExpectedQuantity == nil {
			expected := balance.QuantityOnHand
			line.ExpectedQuantity = &expected
		}
		line.UnitCost = balance.UnitCost
		line.Variance = line.CountedQuantity.Sub(*line.ExpectedQuantity)
		line.Amount = line.Variance.Mul(line.UnitCost).Round(amountScale)
	}
	return nil
}

// posting sets on-hand to each line's quantity after. Lines already at that
// quantity are recorded without a balance effect.
func (r *commitRun) posting() error {
	for i := range r.doc.Lines {
		line := &r.doc.Lines[i]
		key := r.key(line.ProductID)
		balance := r.locked[key]
		line.QuantityBefore = balance.QuantityOnHand
		line.UnitCost = balance.UnitCost
		delta := line.QuantityAfter.Sub(line.QuantityBefore)
		line.Quantity = delta.Abs()
		line.Amount = delta.Mul(line.UnitCost).Round(amountScale)
		if delta.IsZero() {
			continue
		}

		change, err := r.change(key, balances.Delta{OnHand: delta})
		if err != nil {
			return err
		}
		if err := r.record(change, enums.MovementAdjustment, enums.ReferenceAdjustment, line.Quantity, line.UnitCost, nil); err != nil {
			return err
		}
	}
	return nil
}

// revaluation replaces the average cost; quantity is taken from the
// locked balance.
func (r *commitRun) revaluation() error {
	for i := range r.doc.Lines {
		line := &r.doc.Lines[i]
		key := r.key(line.ProductID)
		balance := r.locked[key]
		line.Quantity = balance.QuantityOnHand
		line.OldCost = balance.UnitCost
		line.UnitCost = line.NewCost
		amount := line.NewCost.Sub(line.OldCost).Mul(line.Quantity).Round(amountScale)
		line.Amount = amount

		newCost := line.NewCost
		change, err := r.change(key, balances.Delta{UnitCostOverride: &newCost})
		if err != nil {
			return err
		}
		if err := r.record(change, enums.MovementAdjustment, enums.ReferenceAdjustment, line.Quantity, newCost, &amount); err != nil {
			return err
		}
	}
	return nil
}
