package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/internal/reservations"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
	pkgpagination "github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type numberer interface {
	Next(ctx context.Context, tx *gorm.DB, prefix string) (string, error)
}

// ChangeNotifier is told about committed effects once their transaction
// has committed.
type ChangeNotifier interface {
	BalancesChanged(ctx context.Context, balances []models.StockBalance)
	DocumentCommitted(ctx context.Context, doc models.Document)
}

// Service drives stock documents from draft to their committed ledger effect.
type Service interface {
	Create(ctx context.Context, input CreateInput, actor Actor) (*DocumentView, error)
	Get(ctx context.Context, id uuid.UUID) (*DocumentView, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, id uuid.UUID, payload UpdatePayload, actor Actor) (*DocumentView, error)
	Transition(ctx context.Context, id uuid.UUID, action enums.DocumentAction, actor Actor) (*DocumentView, error)
	CreatePostingFromCounting(ctx context.Context, countingID uuid.UUID, actor Actor) (*DocumentView, error)
	ReceiveGoods(ctx context.Context, event payloads.GoodsReceivedEvent) (*DocumentView, error)
}

type ServiceParams struct {
	Repo         Repository
	Tx           txRunner
	Store        *balances.Store
	Balances     balances.Repository
	Ledger       *movements.Ledger
	Reservations reservations.Repository
	Numbers      numberer
	Notifier     ChangeNotifier
	Metrics      *metrics.LedgerMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	repo         Repository
	tx           txRunner
	store        *balances.Store
	balances     balances.Repository
	ledger       *movements.Ledger
	reservations reservations.Repository
	numbers      numberer
	notifier     ChangeNotifier
	metrics      *metrics.LedgerMetrics
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("document repository required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Store == nil:
		return nil, fmt.Errorf("balance store required")
	case p.Balances == nil:
		return nil, fmt.Errorf("balance repository required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("movement ledger required")
	case p.Reservations == nil:
		return nil, fmt.Errorf("reservation repository required")
	case p.Numbers == nil:
		return nil, fmt.Errorf("document numberer required")
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
		repo:         p.Repo,
		tx:           p.Tx,
		store:        p.Store,
		balances:     p.Balances,
		ledger:       p.Ledger,
		reservations: p.Reservations,
		numbers:      p.Numbers,
		notifier:     p.Notifier,
		metrics:      p.Metrics,
		logg:         p.Logger,
		now:          p.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput, actor Actor) (*DocumentView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if input.Payload == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payload is required")
	}
	if input.WarehouseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse id is required")
	}
	kind := input.Payload.Kind()
	pol, ok := policyFor(kind)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported document kind")
	}
	if err := validatePayload(pol, input.WarehouseID, input.Payload); err != nil {
		return nil, err
	}

	documentDate := s.now().UTC()
	if input.DocumentDate != nil && !input.DocumentDate.IsZero() {
		documentDate = input.DocumentDate.UTC()
	}
	doc := &models.Document{
		Kind:         kind,
		Status:       enums.DocumentStatusDraft,
		WarehouseID:  input.WarehouseID,
		ExternalRef:  trimmed(input.ExternalRef),
		DocumentDate: documentDate,
		Reason:       trimmed(input.Reason),
		Notes:        trimmed(input.Notes),
		CreatedBy:    actor.idPtr(),
	}
	input.Payload.applyHeader(doc)
	lines := input.Payload.lines()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		number, err := s.numbers.Next(ctx, tx, pol.prefix)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate document number")
		}
		doc.Number = number

		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, doc); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "document already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create document")
		}
		if err := repo.ReplaceLines(ctx, doc.ID, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create document lines")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	doc.Lines = lines
	view := ToView(*doc)
	return &view, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*DocumentView, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document id is required")
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if doc.Lines, err = s.repo.FindLines(ctx, id); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document lines")
	}
	view := ToView(*doc)
	return &view, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Kind != nil && !params.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid document kind")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid document status")
	}

	window, err := params.Window()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := listQuery{
		kind:        params.Kind,
		status:      params.Status,
		warehouseID: params.WarehouseID,
		window:      window,
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list documents")
	}

	rows, nextCursor := pkgpagination.Trim(rows, window, func(row models.Document) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})

	items := make([]DocumentView, len(rows))
	for i, row := range rows {
		items[i] = ToView(row)
	}
	return &ListResult{Items: items, Cursor: nextCursor}, nil
}

// Update replaces the lines and kind-specific header fields of a document.
// Counting lines may still change while the count is in progress; their
// expected quantity snapshot is kept when the update omits it.
func (s *service) Update(ctx context.Context, id uuid.UUID, payload UpdatePayload, actor Actor) (*DocumentView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payload is required")
	}

	var doc *models.Document
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		doc, err = repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return lookupError(err)
		}
		if payload.Kind() != doc.Kind {
			return pkgerrors.New(pkgerrors.CodeValidation, "payload kind does not match document").
				WithDetails(map[string]any{"document_kind": doc.Kind, "payload_kind": payload.Kind()})
		}
		if !editable(doc.Kind, doc.Status) {
			return stateConflict(doc, "update")
		}
		pol, _ := policyFor(doc.Kind)
		if err := validatePayload(pol, doc.WarehouseID, payload); err != nil {
			return err
		}

		lines := payload.lines()
		if doc.Kind == enums.DocumentCounting && doc.Status == enums.DocumentStatusInProgress {
			existing, err := repo.FindLines(ctx, doc.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document lines")
			}
			keepSnapshots(lines, existing)
		}

		payload.applyHeader(doc)
		if err := repo.Save(ctx, doc); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update document")
		}
		if err := repo.ReplaceLines(ctx, doc.ID, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace document lines")
		}
		doc.Lines = lines
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := ToView(*doc)
	return &view, nil
}

// Transition applies a lifecycle action. Commit, approve and cancel need a
// supervisor or the system actor.
func (s *service) Transition(ctx context.Context, id uuid.UUID, action enums.DocumentAction, actor Actor) (*DocumentView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid document action")
	}
	switch action {
	case enums.DocumentActionCommit, enums.DocumentActionApprove, enums.DocumentActionCancel:
		if !actor.canCommit() {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("%s requires a supervisor", action))
		}
	}

	var (
		doc *models.Document
		err error
	)
	switch action {
	case enums.DocumentActionCommit:
		doc, err = s.commit(ctx, id, actor)
	case enums.DocumentActionCancel:
		doc, err = s.cancel(ctx, id)
	default:
		doc, err = s.prepare(ctx, id, action)
	}
	if err != nil {
		return nil, err
	}
	view := ToView(*doc)
	return &view, nil
}

func (s *service) prepare(ctx context.Context, id uuid.UUID, action enums.DocumentAction) (*models.Document, error) {
	var doc *models.Document
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if doc, err = repo.FindByIDForUpdate(ctx, id); err != nil {
			return lookupError(err)
		}
		pol, _ := policyFor(doc.Kind)
		if action != pol.prepare {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not available for %s documents", action, doc.Kind))
		}
		if doc.Lines, err = repo.FindLines(ctx, doc.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document lines")
		}
		if doc.Status == pol.intermediate {
			return nil
		}
		if doc.Status != enums.DocumentStatusDraft {
			return stateConflict(doc, string(action))
		}
		if len(doc.Lines) == 0 {
			return errNoLines
		}

		if doc.Kind == enums.DocumentCounting {
			if err := s.snapshotExpected(ctx, tx, doc); err != nil {
				return err
			}
		}
		doc.Status = pol.intermediate
		if err := repo.Save(ctx, doc); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update document status")
		}
		return nil
	})
	return doc, err
}

func (s *service) cancel(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc *models.Document
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if doc, err = repo.FindByIDForUpdate(ctx, id); err != nil {
			return lookupError(err)
		}
		if doc.Lines, err = repo.FindLines(ctx, doc.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document lines")
		}
		if doc.Status == enums.DocumentStatusCancelled {
			return nil
		}
		pol, _ := policyFor(doc.Kind)
		if !pol.cancellable(doc.Status) {
			return stateConflict(doc, string(enums.DocumentActionCancel))
		}
		now := s.now().UTC()
		doc.Status = enums.DocumentStatusCancelled
		doc.CancelledAt = &now
		if err := repo.Save(ctx, doc); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel document")
		}
		return nil
	})
	return doc, err
}

// snapshotExpected fills omitted expected quantities from current on-hand.
func (s *service) snapshotExpected(ctx context.Context, tx *gorm.DB, doc *models.Document) error {
	repo := s.balances.WithTx(tx)
	changed := false
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if line.ExpectedQuantity != nil {
			continue
		}
		expected := decimal.Zero
		balance, err := repo.FindByKey(ctx, balances.Key{ProductID: line.ProductID, WarehouseID: doc.WarehouseID})
		switch {
		case err == nil:
			expected = balance.QuantityOnHand
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance for counting")
		}
		line.ExpectedQuantity = &expected
		changed = true
	}
	if !changed {
		return nil
	}
	if err := s.repo.WithTx(tx).SaveLines(ctx, doc.Lines); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save counting snapshot")
	}
	return nil
}

// CreatePostingFromCounting drafts a posting that sets every counted product
// with a non-zero variance to its counted quantity. A counting feeds at most
// one posting that is not cancelled.
func (s *service) CreatePostingFromCounting(ctx context.Context, countingID uuid.UUID, actor Actor) (*DocumentView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var posting *models.Document
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		counting, err := repo.FindByIDForUpdate(ctx, countingID)
		if err != nil {
			return lookupError(err)
		}
		if counting.Kind != enums.DocumentCounting {
			return pkgerrors.New(pkgerrors.CodeValidation, "postings derive from counting documents only")
		}
		if counting.Status != enums.DocumentStatusCompleted {
			return stateConflict(counting, "create posting")
		}
		exists, err := repo.HasOpenPosting(ctx, counting.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing posting")
		}
		if exists {
			return pkgerrors.New(pkgerrors.CodeConflict, "counting already has a posting")
		}

		countLines, err := repo.FindLines(ctx, counting.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load counting lines")
		}
		var lines []models.DocumentLine
		for _, cl := range countLines {
			if cl.Variance.IsZero() {
				continue
			}
			line := models.DocumentLine{
				LineNo:        len(lines) + 1,
				ProductID:     cl.ProductID,
				QuantityAfter: cl.CountedQuantity,
				UnitCost:      cl.UnitCost,
			}
			if cl.ExpectedQuantity != nil {
				line.QuantityBefore = *cl.ExpectedQuantity
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "counting has no variances to post")
		}

		number, err := s.numbers.Next(ctx, tx, Prefix(enums.DocumentPosting))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate document number")
		}
		sourceID := counting.ID
		reason := "posting of counting " + counting.Number
		posting = &models.Document{
			Kind:             enums.DocumentPosting,
			Number:           number,
			Status:           enums.DocumentStatusDraft,
			WarehouseID:      counting.WarehouseID,
			SourceDocumentID: &sourceID,
			DocumentDate:     s.now().UTC(),
			Reason:           &reason,
			CreatedBy:        actor.idPtr(),
		}
		if err := repo.Create(ctx, posting); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create posting")
		}
		if err := repo.ReplaceLines(ctx, posting.ID, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create posting lines")
		}
		posting.Lines = lines
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := ToView(*posting)
	return &view, nil
}

func validatePayload(pol policy, warehouseID uuid.UUID, payload UpdatePayload) error {
	if err := payload.validate(); err != nil {
		return err
	}
	if t, ok := payload.(*TransferUpdate); ok && t.DestinationWarehouseID == warehouseID {
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer source and destination must differ")
	}
	if pol.setLines {
		seen := map[uuid.UUID]struct{}{}
		for _, line := range payload.lines() {
			if _, dup := seen[line.ProductID]; dup {
				return pkgerrors.New(pkgerrors.CodeValidation, "product appears on more than one line").
					WithDetails(map[string]any{"product_id": line.ProductID})
			}
			seen[line.ProductID] = struct{}{}
		}
	}
	return nil
}

func keepSnapshots(lines, existing []models.DocumentLine) {
	snapshots := make(map[uuid.UUID]*decimal.Decimal, len(existing))
	for _, l := range existing {
		if l.ExpectedQuantity != nil {
			snapshots[l.ProductID] = l.ExpectedQuantity
		}
	}
	for i := range lines {
		if lines[i].ExpectedQuantity == nil {
			lines[i].ExpectedQuantity = snapshots[lines[i].ProductID]
		}
	}
}

func requireActor(actor Actor) error {
	if !actor.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role is required")
	}
	return nil
}

func stateConflict(doc *models.Document, action string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot %s a %s document in status %s", action, doc.Kind, doc.Status)).
		WithDetails(map[string]any{"document_id": doc.ID, "status": doc.Status, "action": action})
}

func lookupError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	case db.IsLockContention(err):
		return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "lock document")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document")
	}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
