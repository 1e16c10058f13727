package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/stockledger-backend/api/middleware"
	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/api/validators"
	"github.com/angelmondragon/stockledger-backend/internal/documents"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	pkgpagination "github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

type createDocumentRequest struct {
	WarehouseID  string          `json:"warehouse_id" validate:"required,uuid"`
	DocumentDate *time.Time      `json:"document_date,omitempty"`
	ExternalRef  *string         `json:"external_ref,omitempty" validate:"omitempty,max=128"`
	Reason       *string         `json:"reason,omitempty"`
	Notes        *string         `json:"notes,omitempty"`
	Payload      json.RawMessage `json:"payload" validate:"required"`
}

type updateDocumentRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type transitionRequest struct {
	Action string `json:"action" validate:"required,oneof=submit approve start commit cancel"`
}

// DocumentCreate opens a DRAFT document of the payload's kind.
func DocumentCreate(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable"))
			return
		}

		var req createDocumentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		warehouseID, err := validators.ParsePathUUID(req.WarehouseID, "warehouse_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload, err := documents.DecodeUpdatePayload(req.Payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		doc, err := svc.Create(r.Context(), documents.CreateInput{
			WarehouseID:  warehouseID,
			DocumentDate: req.DocumentDate,
			ExternalRef:  req.ExternalRef,
			Reason:       req.Reason,
			Notes:        req.Notes,
			Payload:      payload,
		}, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, doc)
	}
}

func DocumentList(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable"))
			return
		}

		params, err := documentListParams(r)
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

func documentListParams(r *http.Request) (documents.ListParams, error) {
	var params documents.ListParams
	kind, err := validators.ParseQueryEnum(r, "kind", enums.ParseDocumentKind)
	if err != nil {
		return params, err
	}
	status, err := validators.ParseQueryEnum(r, "status", enums.ParseDocumentStatus)
	if err != nil {
		return params, err
	}
	warehouseID, err := validators.ParseQueryUUID(r, "warehouse_id")
	if err != nil {
		return params, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", pkgpagination.DefaultLimit, 1, pkgpagination.MaxLimit)
	if err != nil {
		return params, err
	}
	params.Kind = kind
	params.Status = status
	params.WarehouseID = warehouseID
	params.Params = pkgpagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}
	return params, nil
}

func DocumentGet(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "documentId"), "documentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

// DocumentUpdate replaces the lines of a document. The payload kind must
// match the stored document.
func DocumentUpdate(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "documentId"), "documentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithDocumentID(ctx, id.String())
		}

		var req updateDocumentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payload, err := documents.DecodeUpdatePayload(req.Payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		doc, err := svc.Update(ctx, id, payload, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

// DocumentTransition applies a lifecycle action, including commit.
func DocumentTransition(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "documentId"), "documentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithDocumentID(ctx, id.String())
		}

		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		action, err := enums.ParseDocumentAction(req.Action)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action"))
			return
		}

		doc, err := svc.Transition(ctx, id, action, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

// DocumentPostingFromCounting drafts a posting from a completed counting.
func DocumentPostingFromCounting(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "documentId"), "documentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := svc.CreatePostingFromCounting(r.Context(), id, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, doc)
	}
}
