// Package handlers implements the ledger API endpoints.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
)

const dayFormat = "2006-01-02"

// writeStoreError maps the ledger error taxonomy onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, message)
	case errors.Is(err, ledger.ErrConflict):
		middleware.WriteError(w, http.StatusConflict, message)
	default:
		middleware.WriteError(w, http.StatusInternalServerError, message)
	}
}

// parseDay parses a YYYY-MM-DD query value into a day-granularity time.
func parseDay(value string) (time.Time, error) {
	t, err := time.Parse(dayFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parseDay: %q is not a YYYY-MM-DD date", value)
	}
	return domain.TruncateToDay(t), nil
}
