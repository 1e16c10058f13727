package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	pkgpagination "github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

type reorderPolicyRequest struct {
	ReorderPoint    decimal.Decimal `json:"reorder_point" validate:"gte=0"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity" validate:"gte=0"`
}

func balanceKey(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	productID, err := validators.ParsePathUUID(chi.URLParam(r, "productId"), "productId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	warehouseID, err := validators.ParsePathUUID(chi.URLParam(r, "warehouseId"), "warehouseId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return productID, warehouseID, nil
}

// BalanceList supports low-stock reporting through the status filter.
func BalanceList(svc balances.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}

		warehouseID, err := validators.ParseQueryUUID(r, "warehouse_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseQueryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseQueryEnum(r, "status", enums.ParseBalanceStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pkgpagination.DefaultLimit, 1, pkgpagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), balances.ListParams{
			WarehouseID: warehouseID,
			ProductID:   productID,
			Status:      status,
			Params:      pkgpagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func BalanceGet(svc balances.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}

		productID, warehouseID, err := balanceKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.Get(r.Context(), productID, warehouseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

func BalanceReorderPolicy(svc balances.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}

		productID, warehouseID, err := balanceKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithWarehouseID(ctx, warehouseID.String())
		}

		var req reorderPolicyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		balance, err := svc.UpdateReorderPolicy(ctx, balances.ReorderPolicyInput{
			ProductID:       productID,
			WarehouseID:     warehouseID,
			ReorderPoint:    req.ReorderPoint,
			ReorderQuantity: req.ReorderQuantity,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// BalanceReconciliation replays the movement history of one balance and
// reports whether it matches the book quantity.
func BalanceReconciliation(svc movements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "movement service unavailable"))
			return
		}

		productID, warehouseID, err := balanceKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Reconcile(r.Context(), productID, warehouseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
