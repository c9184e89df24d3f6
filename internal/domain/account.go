package domain

import (
	"time"
)

// Account holds the effective initial balance and the cached running balance
// of one ledger account.
//
// Balance must equal the fold of all of the account's transactions over
// InitialBalance; staleness is tolerated only between a mutation and the next
// reconciliation pass.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`

	InitialBalance     float64   `json:"initial_balance"`
	InitialBalanceDate time.Time `json:"initial_balance_date"`

	// Balance is the cached current balance, written by the reconciler.
	Balance float64 `json:"balance"`

	// LastRecalculated is an audit timestamp set on every reconcile pass.
	LastRecalculated time.Time `json:"last_recalculated"`

	CreatedTS time.Time `json:"created_ts"`
}

// BalanceCheckpoint is a user-attested true balance on a given date. It is
// used to correct drift in computed history without editing individual
// transactions: the reconciler re-derives the account's effective initial
// balance from the latest active checkpoint.
type BalanceCheckpoint struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Date      time.Time `json:"date"`
	Balance   float64   `json:"balance"`
	IsActive  bool      `json:"is_active"`
	CreatedTS time.Time `json:"created_ts"`
}
