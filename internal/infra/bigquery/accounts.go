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

const accountColumns = `
	account_id,
	account_name,
	currency,
	initial_balance,
	initial_balance_date,
	balance,
	last_recalculated,
	created_ts`

// GetAccount retrieves one account, or ledger.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE account_id = @account_id
		LIMIT 1
	`, accountColumns, s.table(accountsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: query read: %w", err)
	}

	var row AccountRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetAccount: account %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: iter next: %w", err)
	}
	return row.toDomain(), nil
}

// ListAccounts retrieves every account.
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY created_ts
	`, accountColumns, s.table(accountsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: query read: %w", err)
	}

	var accounts []*domain.Account
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: iter next: %w", err)
		}
		accounts = append(accounts, row.toDomain())
	}
	return accounts, nil
}

// UpdateAccount applies a partial update. Nil patch fields keep their stored
// value.
func (s *Store) UpdateAccount(ctx context.Context, id string, patch ledger.AccountPatch) error {
	set := newSetClause()
	if patch.InitialBalance != nil {
		set.add("initial_balance", *patch.InitialBalance)
	}
	if patch.InitialBalanceDate != nil {
		set.add("initial_balance_date", civilOf(*patch.InitialBalanceDate))
	}
	if patch.Balance != nil {
		set.add("balance", *patch.Balance)
	}
	if patch.LastRecalculated != nil {
		set.add("last_recalculated", *patch.LastRecalculated)
	}
	if set.empty() {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE account_id = @account_id
	`, s.table(accountsTable), set.sql())
	params := append(set.params(), bigquery.QueryParameter{Name: "account_id", Value: id})

	affected, err := s.runDML(ctx, query, params)
	if err != nil {
		return fmt.Errorf("UpdateAccount: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateAccount: account %s: %w", id, ledger.ErrNotFound)
	}
	return nil
}

// InsertAccount creates an account row, assigning an id when absent. It is
// used by import tooling; the engine itself never creates accounts.
func (s *Store) InsertAccount(ctx context.Context, acc *domain.Account) (string, error) {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	row := &AccountRow{
		AccountID:          acc.ID,
		AccountName:        acc.Name,
		Currency:           acc.Currency,
		InitialBalance:     acc.InitialBalance,
		InitialBalanceDate: nullDateOf(acc.InitialBalanceDate),
		Balance:            acc.Balance,
		CreatedTS:          bigquery.NullTimestamp{Timestamp: time.Now(), Valid: true},
	}
	inserter := s.client.DatasetInProject(s.project, s.dataset).Table(accountsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return "", fmt.Errorf("InsertAccount: inserting row: %w", err)
	}
	return acc.ID, nil
}
