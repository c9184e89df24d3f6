package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/classify"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/reconcile"
)

// AccountsHandler serves account, balance and checkpoint endpoints.
type AccountsHandler struct {
	store      ledger.Store
	reconciler *reconcile.Reconciler
	chain      *classify.Chain
	log        zerolog.Logger
}

// NewAccountsHandler creates an accounts handler.
func NewAccountsHandler(store ledger.Store, reconciler *reconcile.Reconciler, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{
		store:      store,
		reconciler: reconciler,
		chain:      classify.NewDefaultChain(nil, nil),
		log:        log,
	}
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// Reconcile handles POST /api/accounts/{id}/reconcile
func (h *AccountsHandler) Reconcile(w http.ResponseWriter, r *http.Request, accountID string) {
	result, err := h.reconciler.Reconcile(r.Context(), accountID)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Reconcile failed")
		writeStoreError(w, err, "Reconcile failed")
		return
	}
	if result == nil {
		// Unknown account is a silent no-op for the engine; the API still
		// reports it so the caller can tell.
		middleware.WriteError(w, http.StatusNotFound, "Account not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// Balance handles GET /api/accounts/{id}/balance with an optional ?at=date.
func (h *AccountsHandler) Balance(w http.ResponseWriter, r *http.Request, accountID string) {
	ctx := r.Context()

	if at := r.URL.Query().Get("at"); at != "" {
		date, err := parseDay(at)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid 'at' date")
			return
		}
		balance, err := h.reconciler.BalanceAt(ctx, accountID, date)
		if err != nil {
			writeStoreError(w, err, "Failed to compute balance")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"account_id": accountID,
			"date":       date.Format(dayFormat),
			"balance":    balance,
		})
		return
	}

	balance, err := h.reconciler.CurrentBalance(ctx, accountID)
	if err != nil {
		writeStoreError(w, err, "Failed to compute balance")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"balance":    balance,
	})
}

// History handles GET /api/accounts/{id}/history?start=...&end=...
func (h *AccountsHandler) History(w http.ResponseWriter, r *http.Request, accountID string) {
	start, err := parseDay(r.URL.Query().Get("start"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid 'start' date")
		return
	}
	end, err := parseDay(r.URL.Query().Get("end"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid 'end' date")
		return
	}
	if end.Before(start) {
		middleware.WriteError(w, http.StatusBadRequest, "'end' precedes 'start'")
		return
	}

	history, err := h.reconciler.History(r.Context(), accountID, start, end)
	if err != nil {
		writeStoreError(w, err, "Failed to compute history")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"history":    history,
	})
}

// Transactions handles GET /api/accounts/{id}/transactions with optional
// ?start=...&end=... bounds. Each transaction carries its budget type.
func (h *AccountsHandler) Transactions(w http.ResponseWriter, r *http.Request, accountID string) {
	var dateRange *domain.DateRange
	if start, end := r.URL.Query().Get("start"), r.URL.Query().Get("end"); start != "" || end != "" {
		startDate, err := parseDay(start)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid 'start' date")
			return
		}
		endDate, err := parseDay(end)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid 'end' date")
			return
		}
		if endDate.Before(startDate) {
			middleware.WriteError(w, http.StatusBadRequest, "'end' precedes 'start'")
			return
		}
		dateRange = &domain.DateRange{Start: startDate, End: endDate}
	}

	txns, err := h.store.ListTransactionsByAccount(r.Context(), accountID, dateRange)
	if err != nil {
		writeStoreError(w, err, "Failed to list transactions")
		return
	}

	type classified struct {
		*domain.Transaction
		BudgetType classify.BudgetType `json:"budget_type"`
	}
	out := make([]classified, len(txns))
	for i, t := range txns {
		out[i] = classified{Transaction: t, BudgetType: h.chain.Classify(t)}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":   accountID,
		"transactions": out,
		"count":        len(out),
	})
}

// Consistency handles GET /api/accounts/{id}/consistency
func (h *AccountsHandler) Consistency(w http.ResponseWriter, r *http.Request, accountID string) {
	report, err := h.reconciler.CheckConsistency(r.Context(), accountID)
	if err != nil {
		writeStoreError(w, err, "Consistency check failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

// AddCheckpoint handles POST /api/accounts/{id}/checkpoints
func (h *AccountsHandler) AddCheckpoint(w http.ResponseWriter, r *http.Request, accountID string) {
	var req struct {
		Date    string  `json:"date"`
		Balance float64 `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	date, err := parseDay(req.Date)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid checkpoint date")
		return
	}

	ctx := r.Context()
	id, err := h.store.AddCheckpoint(ctx, &domain.BalanceCheckpoint{
		AccountID: accountID,
		Date:      date,
		Balance:   req.Balance,
		IsActive:  true,
	})
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to add checkpoint")
		writeStoreError(w, err, "Failed to add checkpoint")
		return
	}

	// Checkpoints change the effective initial balance, so reconcile now.
	if _, err := h.reconciler.Reconcile(ctx, accountID); err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Post-checkpoint reconcile failed")
		writeStoreError(w, err, "Checkpoint saved but reconcile failed")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"checkpoint_id": id,
		"account_id":    accountID,
	})
}

// DeleteCheckpoint handles DELETE /api/accounts/{id}/checkpoints/{checkpointId}
func (h *AccountsHandler) DeleteCheckpoint(w http.ResponseWriter, r *http.Request, accountID, checkpointID string) {
	ctx := r.Context()
	if err := h.store.DeleteCheckpoint(ctx, checkpointID); err != nil {
		writeStoreError(w, err, "Failed to delete checkpoint")
		return
	}
	if _, err := h.reconciler.Reconcile(ctx, accountID); err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Post-delete reconcile failed")
		writeStoreError(w, err, "Checkpoint deleted but reconcile failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"checkpoint_id": checkpointID,
		"status":        "deleted",
	})
}
