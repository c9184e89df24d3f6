package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
)

const recurringColumns = `
	recurring_id,
	name,
	amount,
	frequency,
	status,
	expected_day,
	last_detected,
	next_expected,
	seed_transaction_id,
	occurrences,
	created_ts`

// AddRecurring inserts a recurring series record.
func (s *Store) AddRecurring(ctx context.Context, rec *domain.RecurringTransaction) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	query := fmt.Sprintf(`
		INSERT %s (
			recurring_id, name, amount, frequency, status,
			expected_day, last_detected, next_expected,
			seed_transaction_id, occurrences, created_ts
		)
		VALUES (
			@recurring_id, @name, @amount, @frequency, @status,
			@expected_day, @last_detected, @next_expected,
			@seed_transaction_id, @occurrences, @created_ts
		)
	`, s.table(recurringTable))
	params := []bigquery.QueryParameter{
		{Name: "recurring_id", Value: rec.ID},
		{Name: "name", Value: rec.Name},
		{Name: "amount", Value: rec.Amount},
		{Name: "frequency", Value: string(rec.Frequency)},
		{Name: "status", Value: string(rec.Status)},
		{Name: "expected_day", Value: int64(rec.ExpectedDay)},
		{Name: "last_detected", Value: nullDateOf(rec.LastDetected)},
		{Name: "next_expected", Value: nullDateOf(rec.NextExpected)},
		{Name: "seed_transaction_id", Value: rec.SeedTransactionID},
		{Name: "occurrences", Value: occurrencesToJSON(rec.Occurrences)},
		{Name: "created_ts", Value: time.Now()},
	}

	if _, err := s.runDML(ctx, query, params); err != nil {
		return "", fmt.Errorf("AddRecurring: %w", err)
	}
	return rec.ID, nil
}

// UpdateRecurring applies a partial update to a recurring record.
func (s *Store) UpdateRecurring(ctx context.Context, id string, patch ledger.RecurringPatch) error {
	set := newSetClause()
	if patch.Amount != nil {
		set.add("amount", *patch.Amount)
	}
	if patch.ExpectedDay != nil {
		set.add("expected_day", int64(*patch.ExpectedDay))
	}
	if patch.LastDetected != nil {
		set.add("last_detected", civilOf(*patch.LastDetected))
	}
	if patch.NextExpected != nil {
		set.add("next_expected", civilOf(*patch.NextExpected))
	}
	if patch.Status != nil {
		set.add("status", string(*patch.Status))
	}
	if patch.Occurrences != nil {
		set.add("occurrences", occurrencesToJSON(*patch.Occurrences))
	}
	if set.empty() {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE recurring_id = @recurring_id
	`, s.table(recurringTable), set.sql())
	params := append(set.params(), bigquery.QueryParameter{Name: "recurring_id", Value: id})

	affected, err := s.runDML(ctx, query, params)
	if err != nil {
		return fmt.Errorf("UpdateRecurring: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateRecurring: recurring %s: %w", id, ledger.ErrNotFound)
	}
	return nil
}

// FindRecurringByName matches on lowercase name and returns (nil, nil) when
// no record exists.
func (s *Store) FindRecurringByName(ctx context.Context, name string) (*domain.RecurringTransaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE LOWER(name) = LOWER(@name)
		ORDER BY created_ts
		LIMIT 1
	`, recurringColumns, s.table(recurringTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "name", Value: name},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindRecurringByName: query read: %w", err)
	}

	var row RecurringRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindRecurringByName: iter next: %w", err)
	}
	rec, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("FindRecurringByName: %w", err)
	}
	return rec, nil
}

// ListRecurring retrieves every recurring record.
func (s *Store) ListRecurring(ctx context.Context) ([]*domain.RecurringTransaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY created_ts
	`, recurringColumns, s.table(recurringTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecurring: query read: %w", err)
	}

	var recs []*domain.RecurringTransaction
	for {
		var row RecurringRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecurring: iter next: %w", err)
		}
		rec, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListRecurring: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
