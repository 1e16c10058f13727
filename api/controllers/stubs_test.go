package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/internal/documents"
	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

type stubDocumentService struct {
	create     func(ctx context.Context, input documents.CreateInput, actor documents.Actor) (*documents.DocumentView, error)
	get        func(ctx context.Context, id uuid.UUID) (*documents.DocumentView, error)
	list       func(ctx context.Context, params documents.ListParams) (*documents.ListResult, error)
	update     func(ctx context.Context, id uuid.UUID, payload documents.UpdatePayload, actor documents.Actor) (*documents.DocumentView, error)
	transition func(ctx context.Context, id uuid.UUID, action enums.DocumentAction, actor documents.Actor) (*documents.DocumentView, error)
	posting    func(ctx context.Context, countingID uuid.UUID, actor documents.Actor) (*documents.DocumentView, error)
}

func (s stubDocumentService) Create(ctx context.Context, input documents.CreateInput, actor documents.Actor) (*documents.DocumentView, error) {
	return s.create(ctx, input, actor)
}

func (s stubDocumentService) Get(ctx context.Context, id uuid.UUID) (*documents.DocumentView, error) {
	return s.get(ctx, id)
}

func (s stubDocumentService) List(ctx context.Context, params documents.ListParams) (*documents.ListResult, error) {
	return s.list(ctx, params)
}

func (s stubDocumentService) Update(ctx context.Context, id uuid.UUID, payload documents.UpdatePayload, actor documents.Actor) (*documents.DocumentView, error) {
	return s.update(ctx, id, payload, actor)
}

func (s stubDocumentService) Transition(ctx context.Context, id uuid.UUID, action enums.DocumentAction, actor documents.Actor) (*documents.DocumentView, error) {
	return s.transition(ctx, id, action, actor)
}

func (s stubDocumentService) CreatePostingFromCounting(ctx context.Context, countingID uuid.UUID, actor documents.Actor) (*documents.DocumentView, error) {
	return s.posting(ctx, countingID, actor)
}

func (stubDocumentService) ReceiveGoods(context.Context, payloads.GoodsReceivedEvent) (*documents.DocumentView, error) {
	return nil, nil
}

type stubBalanceService struct {
	get     func(ctx context.Context, productID, warehouseID uuid.UUID) (*balances.BalanceView, error)
	list    func(ctx context.Context, params balances.ListParams) (*balances.ListResult, error)
	reorder func(ctx context.Context, input balances.ReorderPolicyInput) (*balances.BalanceView, error)
}

func (s stubBalanceService) Get(ctx context.Context, productID, warehouseID uuid.UUID) (*balances.BalanceView, error) {
	return s.get(ctx, productID, warehouseID)
}

func (s stubBalanceService) List(ctx context.Context, params balances.ListParams) (*balances.ListResult, error) {
	return s.list(ctx, params)
}

func (s stubBalanceService) UpdateReorderPolicy(ctx context.Context, input balances.ReorderPolicyInput) (*balances.BalanceView, error) {
	return s.reorder(ctx, input)
}

type stubMovementService struct {
	list      func(ctx context.Context, params movements.ListParams) (*movements.ListResult, error)
	reconcile func(ctx context.Context, productID, warehouseID uuid.UUID) (*movements.Reconciliation, error)
}

func (s stubMovementService) List(ctx context.Context, params movements.ListParams) (*movements.ListResult, error) {
	return s.list(ctx, params)
}

func (s stubMovementService) Reconcile(ctx context.Context, productID, warehouseID uuid.UUID) (*movements.Reconciliation, error) {
	return s.reconcile(ctx, productID, warehouseID)
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return env
}
