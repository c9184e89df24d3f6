package domain

import (
	"time"
)

// Direction tells whether a transaction moves money into or out of its account.
type Direction string

const (
	// Credit is money arriving in the account.
	Credit Direction = "credit"
	// Debit is money leaving the account.
	Debit Direction = "debit"
)

// Transaction is one dated debit or credit record in the ledger.
// This is a domain struct, not a storage row; the BigQuery store maps it
// into the ledger.transactions table schema.
//
// Date carries day granularity only (midnight UTC). Seq is the insertion
// order assigned by the store; (Date, Seq) ascending is the canonical fold
// order for running balances.
type Transaction struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`

	Date      time.Time `json:"date"` // calendar day, no time component
	Direction Direction `json:"direction"`
	Amount    float64   `json:"amount"` // non-negative magnitude

	// BalanceAfter is the signed running balance of the account as of this
	// transaction. It is owned by the reconciler; nobody else writes it.
	BalanceAfter float64 `json:"balance_after"`

	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Merchant    string `json:"merchant,omitempty"`
	Description string `json:"description,omitempty"`

	IsRecurring      bool   `json:"is_recurring"`
	LinkedTransferID string `json:"linked_transfer_id,omitempty"` // id of the paired transaction, empty if unlinked

	Tags []string `json:"tags,omitempty"`

	Seq       int64     `json:"seq"` // insertion order, assigned by the store
	CreatedTS time.Time `json:"created_ts"`
}

// Signed returns +Amount for a credit and -Amount for a debit.
// This is the unit folded to produce running balances.
func (t *Transaction) Signed() float64 {
	if t.Direction == Debit {
		return -t.Amount
	}
	return t.Amount
}

// IsLinked reports whether the transaction is part of a transfer pair.
func (t *Transaction) IsLinked() bool {
	return t.LinkedTransferID != ""
}

// Day builds a day-granularity date (midnight UTC).
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TruncateToDay drops any time component, keeping the calendar day in UTC.
func TruncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive [Start, End] day range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the day d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}
