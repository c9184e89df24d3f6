package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/fiscalmonth"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/recurrence"
)

// RecurringHandler serves recurrence detection, smart income, bill
// prediction and financial month endpoints.
type RecurringHandler struct {
	store    ledger.Store
	detector *recurrence.Detector
	log      zerolog.Logger
}

// NewRecurringHandler creates a recurring handler.
func NewRecurringHandler(store ledger.Store, detector *recurrence.Detector, log zerolog.Logger) *RecurringHandler {
	return &RecurringHandler{store: store, detector: detector, log: log}
}

// Detect handles POST /api/recurring/detect
func (h *RecurringHandler) Detect(w http.ResponseWriter, r *http.Request) {
	detected, err := h.detector.DetectMonthly(r.Context(), time.Now())
	if err != nil {
		h.log.Error().Err(err).Msg("Recurrence detection failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Recurrence detection failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"recurring": detected,
		"count":     len(detected),
	})
}

// List handles GET /api/recurring
func (h *RecurringHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ListRecurring(r.Context())
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list recurring transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"recurring": recs,
		"count":     len(recs),
	})
}

// Create handles POST /api/recurring, seeding a series from one transaction.
func (h *RecurringHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transaction_id"`
		Frequency     string `json:"frequency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TransactionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}
	freq := domain.Frequency(req.Frequency)
	if freq == "" {
		freq = domain.Monthly
	}

	rec, err := h.detector.CreateFromTransaction(r.Context(), req.TransactionID, freq)
	if err != nil {
		writeStoreError(w, err, "Failed to create recurring transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, rec)
}

// SetStatus handles POST /api/recurring/{id}/status
func (h *RecurringHandler) SetStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch domain.RecurringStatus(req.Status) {
	case domain.RecurringActive, domain.RecurringPaused, domain.RecurringCancelled, domain.RecurringCompleted:
	default:
		middleware.WriteError(w, http.StatusBadRequest, "Unknown status")
		return
	}

	if err := h.detector.SetStatus(r.Context(), id, domain.RecurringStatus(req.Status)); err != nil {
		writeStoreError(w, err, "Failed to update status")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"recurring_id": id,
		"status":       req.Status,
	})
}

// Income handles GET /api/income
func (h *RecurringHandler) Income(w http.ResponseWriter, r *http.Request) {
	result, err := h.detector.DetectIncome(r.Context(), time.Now())
	if err != nil {
		h.log.Error().Err(err).Msg("Income detection failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Income detection failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// UpcomingBills handles GET /api/bills/upcoming
func (h *RecurringHandler) UpcomingBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.detector.PredictUpcoming(r.Context(), time.Now())
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Bill prediction failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bills": bills,
		"count": len(bills),
	})
}

// Months handles GET /api/months. Auto mode derives periods from detected
// salary dates; ?mode=fixed&day=N uses a fixed day-of-month instead.
func (h *RecurringHandler) Months(w http.ResponseWriter, r *http.Request) {
	settings := fiscalmonth.DefaultSettings()
	if r.URL.Query().Get("mode") == string(fiscalmonth.ModeFixed) {
		settings.Mode = fiscalmonth.ModeFixed
		if day := r.URL.Query().Get("day"); day != "" {
			n, err := strconv.Atoi(day)
			if err != nil || n < 1 || n > 31 {
				middleware.WriteError(w, http.StatusBadRequest, "Invalid 'day'")
				return
			}
			settings.FixedStartDay = n
		}
	}

	var salaryDates []time.Time
	if settings.Mode == fiscalmonth.ModeAuto {
		income, err := h.detector.DetectIncome(r.Context(), time.Now())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, "Income detection failed")
			return
		}
		for _, s := range income.Salaries {
			salaryDates = append(salaryDates, s.Date)
		}
	}

	resolver, err := fiscalmonth.Resolve(salaryDates, settings, time.Now())
	if err != nil {
		if errors.Is(err, fiscalmonth.ErrUndetermined) {
			middleware.WriteError(w, http.StatusUnprocessableEntity, "No salary data to anchor financial months")
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve financial months")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"months":  resolver.All(),
		"current": resolver.Current(),
	})
}
