package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/marco-erp/ledger/internal/shared"
)

// RespondError maps the cross-module sentinels to problem responses. Handlers
// translate their own domain errors first and fall back here; anything
// unrecognized is logged and hidden behind a plain 500.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConcurrencyConflict):
		Problem(w, http.StatusConflict, "Concurrency Conflict", err.Error())
	case errors.Is(err, shared.ErrResourceContention):
		Problem(w, http.StatusServiceUnavailable, "Busy", err.Error())
	default:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
