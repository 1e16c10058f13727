// Package bootstrap assembles the ledger services shared by the api and the
// event workers.
package bootstrap

import (
	"errors"
	"time"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/internal/documents"
	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/internal/notifier"
	"github.com/angelmondragon/stockledger-backend/internal/numbering"
	"github.com/angelmondragon/stockledger-backend/internal/reservations"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
)

type Params struct {
	DB      *db.Client
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
	Now     func() time.Time
}

// Services is the wired service graph.
type Services struct {
	Outbox       *outbox.Service
	Notifier     *notifier.Notifier
	Balances     balances.Service
	Movements    movements.Service
	Documents    documents.Service
	Reservations reservations.Service

	DocumentEvents    *documents.EventHandler
	ReservationEvents *reservations.EventHandler
}

func NewServices(p Params) (*Services, error) {
	if p.DB == nil {
		return nil, errors.New("database client is required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	conn := p.DB.DB()

	balanceRepo := balances.NewRepository(conn)
	store, err := balances.NewStore(balanceRepo, p.DB.LockTimeout())
	if err != nil {
		return nil, err
	}
	ledger, err := movements.NewLedger(movements.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), p.Logger)

	changes, err := notifier.New(notifier.Params{
		Tx:      p.DB,
		Outbox:  outboxSvc,
		Logger:  p.Logger,
		Metrics: p.Metrics,
		Now:     p.Now,
	})
	if err != nil {
		return nil, err
	}

	balanceSvc, err := balances.NewService(balanceRepo, store, p.DB, changes)
	if err != nil {
		return nil, err
	}
	movementSvc, err := movements.NewService(movements.NewRepository(conn), balanceRepo, p.DB)
	if err != nil {
		return nil, err
	}

	reservationRepo := reservations.NewRepository(conn)
	reservationSvc, err := reservations.NewService(reservations.ServiceParams{
		Repo:     reservationRepo,
		Tx:       p.DB,
		Store:    store,
		Ledger:   ledger,
		Outbox:   outboxSvc,
		Notifier: changes,
		Metrics:  p.Metrics,
		Logger:   p.Logger,
		Now:      p.Now,
	})
	if err != nil {
		return nil, err
	}

	documentSvc, err := documents.NewService(documents.ServiceParams{
		Repo:         documents.NewRepository(conn),
		Tx:           p.DB,
		Store:        store,
		Balances:     balanceRepo,
		Ledger:       ledger,
		Reservations: reservationRepo,
		Numbers:      numbering.NewSequencer(p.Now),
		Notifier:     changes,
		Metrics:      p.Metrics,
		Logger:       p.Logger,
		Now:          p.Now,
	})
	if err != nil {
		return nil, err
	}

	documentEvents, err := documents.NewEventHandler(documentSvc)
	if err != nil {
		return nil, err
	}
	reservationEvents, err := reservations.NewEventHandler(reservationSvc, p.DB, outboxSvc, p.Logger)
	if err != nil {
		return nil, err
	}

	return &Services{
		Outbox:            outboxSvc,
		Notifier:          changes,
		Balances:          balanceSvc,
		Movements:         movementSvc,
		Documents:         documentSvc,
		Reservations:      reservationSvc,
		DocumentEvents:    documentEvents,
		ReservationEvents: reservationEvents,
	}, nil
}
