package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger/memstore"
	"github.com/dvloznov/ledger-engine/internal/reconcile"
)

func newTestHandler(t *testing.T) (*AccountsHandler, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	log := zerolog.Nop()
	return NewAccountsHandler(store, reconcile.New(store, log), log), store
}

func seedAccount(t *testing.T, store *memstore.Store) string {
	t.Helper()
	id, err := store.AddAccount(context.Background(), &domain.Account{
		Name:               "Checking",
		Currency:           "EUR",
		InitialBalance:     1000,
		InitialBalanceDate: domain.Day(2026, 1, 1),
	})
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	return id
}

func TestTransactionsEndpointClassifies(t *testing.T) {
	h, store := newTestHandler(t)
	accountID := seedAccount(t, store)

	ctx := context.Background()
	rentID, _ := store.AddTransaction(ctx, &domain.Transaction{
		AccountID: accountID,
		Date:      domain.Day(2026, 2, 1),
		Direction: domain.Debit,
		Amount:    900,
		Category:  "Rent",
	})
	salaryID, _ := store.AddTransaction(ctx, &domain.Transaction{
		AccountID: accountID,
		Date:      domain.Day(2026, 2, 25),
		Direction: domain.Credit,
		Amount:    3000,
		Category:  "Income",
	})
	linkedID, _ := store.AddTransaction(ctx, &domain.Transaction{
		AccountID:        accountID,
		Date:             domain.Day(2026, 2, 26),
		Direction:        domain.Debit,
		Amount:           500,
		Category:         "Other",
		LinkedTransferID: salaryID,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/"+accountID+"/transactions", nil)
	rec := httptest.NewRecorder()
	h.Transactions(rec, req, accountID)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Transactions []struct {
			ID         string `json:"id"`
			BudgetType string `json:"budget_type"`
		} `json:"transactions"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 3 {
		t.Fatalf("count = %d, want 3", resp.Count)
	}

	want := map[string]string{
		rentID:   "essential",
		salaryID: "income",
		linkedID: "excluded",
	}
	for _, tx := range resp.Transactions {
		if got := want[tx.ID]; tx.BudgetType != got {
			t.Errorf("transaction %s classified %q, want %q", tx.ID, tx.BudgetType, got)
		}
	}
}

func TestTransactionsEndpointRejectsBadRange(t *testing.T) {
	h, store := newTestHandler(t)
	accountID := seedAccount(t, store)

	req := httptest.NewRequest(http.MethodGet,
		"/api/accounts/"+accountID+"/transactions?start=2026-03-01&end=2026-02-01", nil)
	rec := httptest.NewRecorder()
	h.Transactions(rec, req, accountID)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBalanceUnknownAccountIs404(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/nope/balance", nil)
	rec := httptest.NewRecorder()
	h.Balance(rec, req, "nope")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404; body: %s", rec.Code, rec.Body.String())
	}
}
