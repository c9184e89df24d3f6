// Package bigquery implements the ledger store on top of BigQuery tables.
// Row structs mirror the ledger dataset schema; conversion helpers map them
// to and from the domain structs.
package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

type AccountRow struct {
	AccountID string `bigquery:"account_id"` // REQUIRED

	AccountName string `bigquery:"account_name"` // NULLABLE
	Currency    string `bigquery:"currency"`     // NULLABLE

	InitialBalance     float64           `bigquery:"initial_balance"`
	InitialBalanceDate bigquery.NullDate `bigquery:"initial_balance_date"` // DATE, NULLABLE

	Balance          float64                `bigquery:"balance"`
	LastRecalculated bigquery.NullTimestamp `bigquery:"last_recalculated"` // TIMESTAMP, NULLABLE

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"`
}

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	AccountID     string `bigquery:"account_id"`     // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // DATE
	Direction       string     `bigquery:"direction"`        // "credit" | "debit"
	Amount          float64    `bigquery:"amount"`
	BalanceAfter    float64    `bigquery:"balance_after"`

	CategoryName    string `bigquery:"category_name"`    // NULLABLE
	SubcategoryName string `bigquery:"subcategory_name"` // NULLABLE
	Merchant        string `bigquery:"merchant"`         // NULLABLE
	Description     string `bigquery:"description"`      // NULLABLE

	IsRecurring      bool   `bigquery:"is_recurring"`
	LinkedTransferID string `bigquery:"linked_transfer_id"` // NULLABLE, empty when unlinked

	Tags []string `bigquery:"tags"` // REPEATED

	Seq       int64                  `bigquery:"seq"`
	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"`
}

type CheckpointRow struct {
	CheckpointID string `bigquery:"checkpoint_id"` // REQUIRED
	AccountID    string `bigquery:"account_id"`    // REQUIRED

	CheckpointDate civil.Date `bigquery:"checkpoint_date"` // DATE
	Balance        float64    `bigquery:"balance"`
	IsActive       bool       `bigquery:"is_active"`

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"`
}

type RecurringRow struct {
	RecurringID string `bigquery:"recurring_id"` // REQUIRED

	Name      string  `bigquery:"name"`
	Amount    float64 `bigquery:"amount"`
	Frequency string  `bigquery:"frequency"`
	Status    string  `bigquery:"status"`

	ExpectedDay  int64             `bigquery:"expected_day"`
	LastDetected bigquery.NullDate `bigquery:"last_detected"` // DATE, NULLABLE
	NextExpected bigquery.NullDate `bigquery:"next_expected"` // DATE, NULLABLE

	SeedTransactionID string `bigquery:"seed_transaction_id"` // NULLABLE, set for user-created entries

	// Occurrence history as a JSON blob; the detector rewrites it wholesale
	// on every update so per-element mutation is not needed.
	Occurrences bigquery.NullJSON `bigquery:"occurrences"`

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"`
}

func civilOf(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}

func dayOf(d civil.Date) time.Time {
	return domain.Day(d.Year, d.Month, d.Day)
}

func nullDateOf(t time.Time) bigquery.NullDate {
	if t.IsZero() {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: civilOf(t), Valid: true}
}

func timeOfNullDate(d bigquery.NullDate) time.Time {
	if !d.Valid {
		return time.Time{}
	}
	return dayOf(d.Date)
}

func timeOfNullTS(ts bigquery.NullTimestamp) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Timestamp
}

func (r *AccountRow) toDomain() *domain.Account {
	return &domain.Account{
		ID:                 r.AccountID,
		Name:               r.AccountName,
		Currency:           r.Currency,
		InitialBalance:     r.InitialBalance,
		InitialBalanceDate: timeOfNullDate(r.InitialBalanceDate),
		Balance:            r.Balance,
		LastRecalculated:   timeOfNullTS(r.LastRecalculated),
		CreatedTS:          timeOfNullTS(r.CreatedTS),
	}
}

func (r *TransactionRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:               r.TransactionID,
		AccountID:        r.AccountID,
		Date:             dayOf(r.TransactionDate),
		Direction:        domain.Direction(r.Direction),
		Amount:           r.Amount,
		BalanceAfter:     r.BalanceAfter,
		Category:         r.CategoryName,
		Subcategory:      r.SubcategoryName,
		Merchant:         r.Merchant,
		Description:      r.Description,
		IsRecurring:      r.IsRecurring,
		LinkedTransferID: r.LinkedTransferID,
		Tags:             r.Tags,
		Seq:              r.Seq,
		CreatedTS:        timeOfNullTS(r.CreatedTS),
	}
}

// occurrenceJSON is the serialized shape of one matched occurrence inside
// the recurring row's JSON column.
type occurrenceJSON struct {
	TransactionID string    `json:"transaction_id"`
	Date          time.Time `json:"date"`
	Amount        float64   `json:"amount"`
	Status        string    `json:"status"`
}

func occurrencesToJSON(occs []domain.Occurrence) bigquery.NullJSON {
	if len(occs) == 0 {
		return bigquery.NullJSON{}
	}
	out := make([]occurrenceJSON, len(occs))
	for i, o := range occs {
		out[i] = occurrenceJSON{
			TransactionID: o.TransactionID,
			Date:          o.Date,
			Amount:        o.Amount,
			Status:        string(o.Status),
		}
	}
	return bigquery.NullJSON{JSONVal: out, Valid: true}
}

func occurrencesFromJSON(v bigquery.NullJSON) ([]domain.Occurrence, error) {
	if !v.Valid || v.JSONVal == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v.JSONVal)
	if err != nil {
		return nil, fmt.Errorf("occurrencesFromJSON: re-marshal: %w", err)
	}
	var parsed []occurrenceJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("occurrencesFromJSON: unmarshal: %w", err)
	}
	occs := make([]domain.Occurrence, len(parsed))
	for i, o := range parsed {
		occs[i] = domain.Occurrence{
			TransactionID: o.TransactionID,
			Date:          o.Date,
			Amount:        o.Amount,
			Status:        domain.OccurrenceStatus(o.Status),
		}
	}
	return occs, nil
}

func (r *RecurringRow) toDomain() (*domain.RecurringTransaction, error) {
	occs, err := occurrencesFromJSON(r.Occurrences)
	if err != nil {
		return nil, err
	}
	return &domain.RecurringTransaction{
		ID:                r.RecurringID,
		Name:              r.Name,
		Amount:            r.Amount,
		Frequency:         domain.Frequency(r.Frequency),
		ExpectedDay:       int(r.ExpectedDay),
		LastDetected:      timeOfNullDate(r.LastDetected),
		NextExpected:      timeOfNullDate(r.NextExpected),
		Status:            domain.RecurringStatus(r.Status),
		Occurrences:       occs,
		SeedTransactionID: r.SeedTransactionID,
		CreatedTS:         timeOfNullTS(r.CreatedTS),
	}, nil
}

func (r *CheckpointRow) toDomain() *domain.BalanceCheckpoint {
	return &domain.BalanceCheckpoint{
		ID:        r.CheckpointID,
		AccountID: r.AccountID,
		Date:      dayOf(r.CheckpointDate),
		Balance:   r.Balance,
		IsActive:  r.IsActive,
		CreatedTS: timeOfNullTS(r.CreatedTS),
	}
}
