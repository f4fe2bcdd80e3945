package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/mind/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// errorStatus maps tree engine errors onto HTTP statuses. Zero means the
// error is not a client error.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrPathNotFound),
		errors.Is(err, apperr.ErrTreeNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrPathAmbiguous),
		errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrStaleRead),
		errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrEmptyText),
		errors.Is(err, apperr.ErrInvalidAttachment),
		errors.Is(err, apperr.ErrNoAttachment),
		errors.Is(err, apperr.ErrNoParent),
		errors.Is(err, apperr.ErrCycleDetected),
		errors.Is(err, apperr.ErrCannotMoveRoot),
		errors.Is(err, apperr.ErrCannotDeleteRoot),
		errors.Is(err, apperr.ErrValidation):
		return http.StatusUnprocessableEntity
	}
	return 0
}

// writeError answers with the status errorStatus picks. Anything else is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, op string, err error) {
	if status := errorStatus(err); status != 0 {
		writeJSON(w, status, errorBody(err.Error()))
		return
	}
	slog.Error(op+" failed", slog.String("error", err.Error()))
	if errors.Is(err, apperr.ErrParse) {
		writeJSON(w, http.StatusInternalServerError, errorBody("tree file is corrupt"))
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}
