package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

func TestMovementListParsesFilters(t *testing.T) {
	productID := uuid.New()
	var got movements.ListParams
	svc := stubMovementService{
		list: func(_ context.Context, params movements.ListParams) (*movements.ListResult, error) {
			got = params
			return &movements.ListResult{Items: []movements.MovementView{}}, nil
		},
	}
	url := "/api/v1/movements?product_id=" + productID.String() +
		"&movement_type=TRANSFER&reference_type=TRANSFER&reference_id=TR2026100001" +
		"&from=2026-10-01T00:00:00Z&to=2026-10-31T23:59:59Z"
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()

	MovementList(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.ProductID)
	assert.Equal(t, productID, *got.ProductID)
	require.NotNil(t, got.MovementType)
	assert.Equal(t, enums.MovementTransfer, *got.MovementType)
	require.NotNil(t, got.ReferenceType)
	assert.Equal(t, enums.ReferenceTransfer, *got.ReferenceType)
	assert.Equal(t, "TR2026100001", got.ReferenceID)
	require.NotNil(t, got.From)
	require.NotNil(t, got.To)
}

func TestMovementListRejectsInvertedRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/movements?from=2026-10-31T00:00:00Z&to=2026-10-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()

	MovementList(stubMovementService{}, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMovementListRejectsUnknownType(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/movements?movement_type=TELEPORT", nil)
	rec := httptest.NewRecorder()

	MovementList(stubMovementService{}, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
