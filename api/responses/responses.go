// Package responses writes the JSON envelopes shared by every route.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Success{Data: data})
}

// WriteError renders err through its typed code and logs the full cause.
// Server-side failures log at error level, caller mistakes at warn.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	public := pkgerrors.ToPublic(err)

	if logg != nil {
		entry := logg.WithFields(ctx, pkgerrors.LogFields(err))
		entry = logg.WithField(entry, "status", public.Status)
		if public.Status >= http.StatusInternalServerError {
			logg.Error(entry, "request failed", err)
		} else {
			logg.Warn(entry, "request rejected")
		}
	}

	writeJSON(w, public.Status, Failure{Error: ErrorBody{
		Code:    string(public.Code),
		Message: public.Message,
		Details: public.Details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"response encoding failed"}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
