package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service reserves stock for incoming orders and hands it back on cancel.
type Service interface {
	ReserveOrder(ctx context.Context, event payloads.OrderCreatedEvent) (*Result, error)
	ReleaseOrder(ctx context.Context, event payloads.OrderCanceledEvent) (*Result, error)
}

// Result summarizes the balances touched for an order.
type Result struct {
	OrderID   uuid.UUID
	Duplicate bool
	Balances  []models.StockBalance
}

type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Store    *balances.Store
	Ledger   *movements.Ledger
	Outbox   outboxEmitter
	Notifier balances.ChangeNotifier
	Metrics  *metrics.LedgerMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	store    *balances.Store
	ledger   *movements.Ledger
	outbox   outboxEmitter
	notifier balances.ChangeNotifier
	metrics  *metrics.LedgerMetrics
	logg     *logger.Logger
	now      func() time.Time
}

var errAlreadyReserved = errors.New("order already reserved")

func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("reservation repository required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Store == nil:
		return nil, fmt.Errorf("balance store required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("movement ledger required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case p.Notifier == nil:
		return nil, fmt.Errorf("change notifier required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		repo:     p.Repo,
		tx:       p.Tx,
		store:    p.Store,
		ledger:   p.Ledger,
		outbox:   p.Outbox,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      p.Now,
	}, nil
}

type orderLine struct {
	key      balances.Key
	quantity decimal.Decimal
}

// ReserveOrder reserves every item of the order or none of them. Items of
// the same product are merged. A redelivered order is a no-op.
func (s *service) ReserveOrder(ctx context.Context, event payloads.OrderCreatedEvent) (*Result, error) {
	lines, err := aggregateItems(event)
	if err != nil {
		return nil, err
	}
	result := &Result{OrderID: event.OrderID}
	keys := make([]balances.Key, len(lines))
	for i, l := range lines {
		keys[i] = l.key
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.CountForOrder(ctx, event.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing reservations")
		}
		if existing > 0 {
			return errAlreadyReserved
		}

		locked, err := s.store.Lock(ctx, tx, keys)
		if err != nil {
			return err
		}

		var shortfalls []balances.Shortfall
		for _, l := range lines {
			available := locked[l.key].QuantityAvailable
			if available.LessThan(l.quantity) {
				shortfalls = append(shortfalls, balances.Shortfall{
					ProductID:   l.key.ProductID,
					WarehouseID: l.key.WarehouseID,
					Available:   available,
					Requested:   l.quantity,
				})
			}
		}
		if len(shortfalls) > 0 {
			return balances.InsufficientStock(shortfalls...)
		}

		reference := event.OrderID.String()
		for _, l := range lines {
			change, err := s.store.ApplyDelta(ctx, tx, l.key, balances.Delta{Reserved: l.quantity})
			if err != nil {
				return err
			}
			if _, err := s.ledger.Record(ctx, tx, movements.Entry{
				Change:        change,
				MovementType:  enums.MovementOut,
				ReferenceType: enums.ReferenceSales,
				ReferenceID:   reference,
				Quantity:      l.quantity,
				UnitCost:      change.After.UnitCost,
			}); err != nil {
				return err
			}
			if err := repo.Create(ctx, &models.StockReservation{
				OrderID:     event.OrderID,
				ProductID:   l.key.ProductID,
				WarehouseID: l.key.WarehouseID,
				Quantity:    l.quantity,
				Requested:   l.quantity,
				Status:      enums.ReservationActive,
			}); err != nil {
				if db.IsUniqueViolation(err, "") {
					return errAlreadyReserved
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
			}
			result.Balances = append(result.Balances, change.After)
		}
		return nil
	})

	logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": event.OrderID.String(), "warehouse_id": event.WarehouseID.String()})
	switch {
	case errors.Is(err, errAlreadyReserved):
		s.metrics.IncReservation(metrics.ReservationDuplicate)
		s.logg.Info(logCtx, "order already reserved")
		result.Duplicate = true
		result.Balances = nil
		return result, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		s.metrics.IncInsufficientStock("reservation")
		s.metrics.IncReservation(metrics.ReservationRejected)
		return nil, err
	case err != nil:
		return nil, err
	}

	s.metrics.IncReservation(metrics.ReservationReserved)
	s.logg.Info(logCtx, "order reserved")
	s.notifier.BalancesChanged(ctx, result.Balances)
	return result, nil
}

// ReleaseOrder returns every active reservation of the order to available
// stock. Orders without active reservations are a no-op.
func (s *service) ReleaseOrder(ctx context.Context, event payloads.OrderCanceledEvent) (*Result, error) {
	if event.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	result := &Result{OrderID: event.OrderID}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		pending, err := repo.ListActiveForOrder(ctx, event.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservations")
		}
		if len(pending) == 0 {
			return nil
		}
		keys := make([]balances.Key, len(pending))
		for i, r := range pending {
			keys[i] = balances.Key{ProductID: r.ProductID, WarehouseID: r.WarehouseID}
		}
		if _, err := s.store.Lock(ctx, tx, keys); err != nil {
			return err
		}

		active, err := repo.ListActiveForOrderForUpdate(ctx, event.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock reservations")
		}

		reference := event.OrderID.String()
		released := make([]payloads.OrderItem, 0, len(active))
		for i := range active {
			res := &active[i]
			if !res.Quantity.IsPositive() {
				continue
			}
			key := balances.Key{ProductID: res.ProductID, WarehouseID: res.WarehouseID}
			change, err := s.store.ApplyDelta(ctx, tx, key, balances.Delta{Reserved: res.Quantity.Neg()})
			if err != nil {
				return err
			}
			if _, err := s.ledger.Record(ctx, tx, movements.Entry{
				Change:        change,
				MovementType:  enums.MovementIn,
				ReferenceType: enums.ReferenceSales,
				ReferenceID:   reference,
				Quantity:      res.Quantity,
				UnitCost:      change.After.UnitCost,
			}); err != nil {
				return err
			}
			released = append(released, payloads.OrderItem{ProductID: res.ProductID, Quantity: res.Quantity})
			res.Quantity = decimal.Zero
			res.Status = enums.ReservationReleased
			if err := repo.Save(ctx, res); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release reservation")
			}
			result.Balances = append(result.Balances, change.After)
		}
		if len(released) == 0 {
			return nil
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationReleased,
			AggregateType: enums.AggregateOrder,
			AggregateID:   event.OrderID,
			Data: payloads.ReservationReleasedEvent{
				OrderID:     event.OrderID,
				WarehouseID: active[0].WarehouseID,
				Items:       released,
				ReleasedAt:  s.now().UTC(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if len(result.Balances) > 0 {
		s.metrics.IncReservation(metrics.ReservationReleased)
		s.notifier.BalancesChanged(ctx, result.Balances)
	}
	return result, nil
}

func aggregateItems(event payloads.OrderCreatedEvent) ([]orderLine, error) {
	if event.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if event.WarehouseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse id is required")
	}
	if len(event.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
	}

	index := map[uuid.UUID]int{}
	var lines []orderLine
	for _, item := range event.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item product id is required")
		}
		if !item.Quantity.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		if i, ok := index[item.ProductID]; ok {
			lines[i].quantity = lines[i].quantity.Add(item.Quantity)
			continue
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, orderLine{
			key:      balances.Key{ProductID: item.ProductID, WarehouseID: event.WarehouseID},
			quantity: item.Quantity,
		})
	}
	return lines, nil
}
