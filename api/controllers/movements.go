package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	pkgpagination "github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

func MovementList(svc movements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "movement service unavailable"))
			return
		}

		params, err := movementListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func movementListParams(r *http.Request) (movements.ListParams, error) {
	var (
		params movements.ListParams
		err    error
	)
	if params.ProductID, err = validators.ParseQueryUUID(r, "product_id"); err != nil {
		return params, err
	}
	if params.WarehouseID, err = validators.ParseQueryUUID(r, "warehouse_id"); err != nil {
		return params, err
	}
	if params.DocumentID, err = validators.ParseQueryUUID(r, "document_id"); err != nil {
		return params, err
	}
	if params.MovementType, err = validators.ParseQueryEnum(r, "movement_type", enums.ParseMovementType); err != nil {
		return params, err
	}
	if params.ReferenceType, err = validators.ParseQueryEnum(r, "reference_type", enums.ParseReferenceType); err != nil {
		return params, err
	}
	if params.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return params, err
	}
	if params.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return params, err
	}
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		return params, pkgerrors.New(pkgerrors.CodeValidation, "to must not precede from")
	}
	limit, err := validators.ParseQueryInt(r, "limit", pkgpagination.DefaultLimit, 1, pkgpagination.MaxLimit)
	if err != nil {
		return params, err
	}
	params.ReferenceID = strings.TrimSpace(r.URL.Query().Get("reference_id"))
	params.Params = pkgpagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}
	return params, nil
}
