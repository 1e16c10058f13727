// Package notifier queues change notifications for committed ledger state.
// It runs after the ledger transaction has committed and never reports
// failure back to it: the ledger is the source of truth and notifications
// are advisory.
package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type Notifier struct {
	tx      txRunner
	outbox  outboxEmitter
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

type Params struct {
	Tx      txRunner
	Outbox  outboxEmitter
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
	Now     func() time.Time
}

func New(p Params) (*Notifier, error) {
	if p.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Notifier{tx: p.Tx, outbox: p.Outbox, logg: p.Logger, metrics: p.Metrics, now: p.Now}, nil
}

// BalancesChanged queues one stock_level_changed event per balance carrying
// its absolute quantities. Failures are logged and counted.
func (n *Notifier) BalancesChanged(ctx context.Context, balances []models.StockBalance) {
	if err := n.PublishBalances(ctx, balances); err != nil {
		n.logg.Error(ctx, "stock level notification failed", err)
	}
}

// DocumentCommitted queues a document_committed event.
func (n *Notifier) DocumentCommitted(ctx context.Context, doc models.Document) {
	if err := n.PublishDocument(ctx, doc); err != nil {
		n.logg.Error(n.logg.WithDocumentID(ctx, doc.ID.String()), "document notification failed", err)
	}
}

// PublishBalances writes each balance event in its own transaction so one
// failure does not hold back the rest. The combined failure is returned as
// a PUBLISH error.
func (n *Notifier) PublishBalances(ctx context.Context, balances []models.StockBalance) error {
	var combined error
	for _, b := range latestPerKey(balances) {
		stamp := b.UpdatedAt
		if stamp.IsZero() {
			stamp = n.now()
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventStockLevelChanged,
			AggregateType: enums.AggregateStockBalance,
			AggregateID:   b.ID,
			OccurredAt:    n.now().UTC(),
			Data: payloads.StockLevelChangedEvent{
				BalanceID:         b.ID,
				ProductID:         b.ProductID,
				WarehouseID:       b.WarehouseID,
				QuantityOnHand:    b.QuantityOnHand,
				QuantityAvailable: b.QuantityAvailable,
				QuantityReserved:  b.QuantityReserved,
				UnitCost:          b.UnitCost,
				Status:            b.Status,
				Version:           b.Version,
				Timestamp:         stamp.UTC(),
			},
		}
		if err := n.emit(ctx, event); err != nil {
			combined = multierr.Append(combined, err)
		}
	}
	if combined != nil {
		return pkgerrors.Wrap(pkgerrors.CodePublish, combined, "queue stock level notifications")
	}
	return nil
}

func (n *Notifier) PublishDocument(ctx context.Context, doc models.Document) error {
	committedAt := n.now().UTC()
	if doc.CommittedAt != nil {
		committedAt = doc.CommittedAt.UTC()
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventDocumentCommitted,
		AggregateType: enums.AggregateDocument,
		AggregateID:   doc.ID,
		OccurredAt:    committedAt,
		Data: payloads.DocumentCommittedEvent{
			DocumentID:             doc.ID,
			Kind:                   doc.Kind,
			Number:                 doc.Number,
			WarehouseID:            doc.WarehouseID,
			DestinationWarehouseID: doc.DestinationWarehouseID,
			LineCount:              len(doc.Lines),
			CommittedAt:            committedAt,
		},
	}
	if doc.CommittedBy != nil {
		event.Actor = &outbox.ActorRef{ActorID: *doc.CommittedBy}
	}
	if err := n.emit(ctx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePublish, err, "queue document notification")
	}
	return nil
}

func (n *Notifier) emit(ctx context.Context, event outbox.DomainEvent) error {
	err := n.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return n.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		n.metrics.IncNotificationFailure(string(event.EventType))
	}
	return err
}

// latestPerKey keeps the highest version of each balance, in first-seen order.
func latestPerKey(balances []models.StockBalance) []models.StockBalance {
	index := make(map[[2]string]int, len(balances))
	out := make([]models.StockBalance, 0, len(balances))
	for _, b := range balances {
		k := [2]string{b.ProductID.String(), b.WarehouseID.String()}
		if i, ok := index[k]; ok {
			if b.Version > out[i].Version {
				out[i] = b
			}
			continue
		}
		index[k] = len(out)
		out = append(out, b)
	}
	return out
}
