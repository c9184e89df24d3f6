package domain

import (
	"time"
)

// Frequency is the period of a recurring transaction series.
type Frequency string

const (
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

// RecurringStatus is the lifecycle state of a recurring series.
// Cancellation is a status transition, never a delete, so history survives.
type RecurringStatus string

const (
	RecurringActive    RecurringStatus = "active"
	RecurringPaused    RecurringStatus = "paused"
	RecurringCancelled RecurringStatus = "cancelled"
	RecurringCompleted RecurringStatus = "completed"
)

// OccurrenceStatus is the per-occurrence payment state.
type OccurrenceStatus string

const (
	OccurrencePaid    OccurrenceStatus = "paid"
	OccurrencePending OccurrenceStatus = "pending"
	OccurrenceMissed  OccurrenceStatus = "missed"
)

// Occurrence references one ledger transaction matched to a recurring series.
type Occurrence struct {
	TransactionID string           `json:"transaction_id"`
	Date          time.Time        `json:"date"`
	Amount        float64          `json:"amount"`
	Status        OccurrenceStatus `json:"status"`
}

// RecurringTransaction is a detected or user-created repeating payment or
// income pattern (bill, subscription, salary).
type RecurringTransaction struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"` // typical magnitude

	Frequency   Frequency `json:"frequency"`
	ExpectedDay int       `json:"expected_day"` // day-of-period anchor

	LastDetected time.Time `json:"last_detected"`
	NextExpected time.Time `json:"next_expected"`

	Status RecurringStatus `json:"status"`

	// Occurrences is the ordered list of matched transactions, oldest first.
	Occurrences []Occurrence `json:"occurrences,omitempty"`

	// SeedTransactionID is set when the series was created explicitly from a
	// transaction; it is part of the dedupe key alongside Name.
	SeedTransactionID string `json:"seed_transaction_id,omitempty"`

	CreatedTS time.Time `json:"created_ts"`
}

// FinancialMonth is a derived budgeting period anchored to salary arrival
// rather than the calendar month boundary. It is never stored as ground
// truth; it is always re-derivable from salary detection output.
type FinancialMonth struct {
	ID          string    `json:"id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}
