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

// ListCheckpoints retrieves an account's balance checkpoints, oldest first.
func (s *Store) ListCheckpoints(ctx context.Context, accountID string) ([]*domain.BalanceCheckpoint, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			checkpoint_id,
			account_id,
			checkpoint_date,
			balance,
			is_active,
			created_ts
		FROM %s
		WHERE account_id = @account_id
		ORDER BY checkpoint_date, created_ts
	`, s.table(checkpointsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCheckpoints: query read: %w", err)
	}

	var cps []*domain.BalanceCheckpoint
	for {
		var row CheckpointRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCheckpoints: iter next: %w", err)
		}
		cps = append(cps, row.toDomain())
	}
	return cps, nil
}

// AddCheckpoint inserts a checkpoint via DML so it is immediately visible to
// the reconciler's next read.
func (s *Store) AddCheckpoint(ctx context.Context, cp *domain.BalanceCheckpoint) (string, error) {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}

	query := fmt.Sprintf(`
		INSERT %s (checkpoint_id, account_id, checkpoint_date, balance, is_active, created_ts)
		VALUES (@checkpoint_id, @account_id, @checkpoint_date, @balance, @is_active, @created_ts)
	`, s.table(checkpointsTable))
	params := []bigquery.QueryParameter{
		{Name: "checkpoint_id", Value: cp.ID},
		{Name: "account_id", Value: cp.AccountID},
		{Name: "checkpoint_date", Value: civilOf(cp.Date)},
		{Name: "balance", Value: cp.Balance},
		{Name: "is_active", Value: cp.IsActive},
		{Name: "created_ts", Value: time.Now()},
	}

	if _, err := s.runDML(ctx, query, params); err != nil {
		return "", fmt.Errorf("AddCheckpoint: %w", err)
	}
	return cp.ID, nil
}

// DeleteCheckpoint removes a checkpoint, or returns ledger.ErrNotFound.
func (s *Store) DeleteCheckpoint(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE checkpoint_id = @checkpoint_id
	`, s.table(checkpointsTable))
	params := []bigquery.QueryParameter{
		{Name: "checkpoint_id", Value: id},
	}

	affected, err := s.runDML(ctx, query, params)
	if err != nil {
		return fmt.Errorf("DeleteCheckpoint: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("DeleteCheckpoint: checkpoint %s: %w", id, ledger.ErrNotFound)
	}
	return nil
}
