package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
)

const transactionColumns = `
	transaction_id,
	account_id,
	transaction_date,
	direction,
	amount,
	balance_after,
	category_name,
	subcategory_name,
	merchant,
	description,
	is_recurring,
	linked_transfer_id,
	tags,
	seq,
	created_ts`

// unlinkedCondition guards transfer-link writes. An empty string and NULL
// both mean "no link".
const unlinkedCondition = "(linked_transfer_id IS NULL OR linked_transfer_id = '')"

// GetTransaction retrieves one transaction, or ledger.ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE transaction_id = @transaction_id
		LIMIT 1
	`, transactionColumns, s.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: query read: %w", err)
	}

	var row TransactionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetTransaction: transaction %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: iter next: %w", err)
	}
	return row.toDomain(), nil
}

// ListTransactionsByAccount retrieves an account's transactions in fold
// order. A nil dateRange means the whole history.
func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID string, dateRange *domain.DateRange) ([]*domain.Transaction, error) {
	where := "account_id = @account_id"
	params := []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
	}
	if dateRange != nil {
		where += " AND transaction_date >= @start_date AND transaction_date <= @end_date"
		params = append(params,
			bigquery.QueryParameter{Name: "start_date", Value: dateRange.Start.Format(dateFormat)},
			bigquery.QueryParameter{Name: "end_date", Value: dateRange.End.Format(dateFormat)},
		)
	}
	return s.queryTransactions(ctx, "ListTransactionsByAccount", where, params)
}

// ListTransactionsByDateRange retrieves all transactions across accounts in
// the inclusive day range, in fold order.
func (s *Store) ListTransactionsByDateRange(ctx context.Context, dateRange domain.DateRange) ([]*domain.Transaction, error) {
	where := "transaction_date >= @start_date AND transaction_date <= @end_date"
	params := []bigquery.QueryParameter{
		{Name: "start_date", Value: dateRange.Start.Format(dateFormat)},
		{Name: "end_date", Value: dateRange.End.Format(dateFormat)},
	}
	return s.queryTransactions(ctx, "ListTransactionsByDateRange", where, params)
}

func (s *Store) queryTransactions(ctx context.Context, op, where string, params []bigquery.QueryParameter) ([]*domain.Transaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY transaction_date, seq
	`, transactionColumns, s.table(transactionsTable), where))
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", op, err)
	}

	var txs []*domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iter next: %w", op, err)
		}
		txs = append(txs, row.toDomain())
	}
	return txs, nil
}

func transactionSet(patch ledger.TransactionPatch, prefix string) *setClause {
	set := newPrefixedSetClause(prefix)
	if patch.Date != nil {
		set.add("transaction_date", civilOf(*patch.Date))
	}
	if patch.Amount != nil {
		set.add("amount", *patch.Amount)
	}
	if patch.Direction != nil {
		set.add("direction", string(*patch.Direction))
	}
	if patch.BalanceAfter != nil {
		set.add("balance_after", *patch.BalanceAfter)
	}
	if patch.Category != nil {
		set.add("category_name", *patch.Category)
	}
	if patch.Subcategory != nil {
		set.add("subcategory_name", *patch.Subcategory)
	}
	if patch.IsRecurring != nil {
		set.add("is_recurring", *patch.IsRecurring)
	}
	if patch.LinkedTransferID != nil {
		set.add("linked_transfer_id", *patch.LinkedTransferID)
	}
	return set
}

// UpdateTransaction applies a partial update. With RequireUnlinked set, the
// write only lands while the row is still unlinked; a linked row yields
// ledger.ErrConflict.
func (s *Store) UpdateTransaction(ctx context.Context, id string, patch ledger.TransactionPatch) error {
	set := transactionSet(patch, "set_")
	if set.empty() {
		return nil
	}

	where := "transaction_id = @transaction_id"
	if patch.RequireUnlinked {
		where += " AND " + unlinkedCondition
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE %s
	`, s.table(transactionsTable), set.sql(), where)
	params := append(set.params(), bigquery.QueryParameter{Name: "transaction_id", Value: id})

	affected, err := s.runDML(ctx, query, params)
	if err != nil {
		return fmt.Errorf("UpdateTransaction: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a failed link precondition.
		if _, err := s.GetTransaction(ctx, id); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return fmt.Errorf("UpdateTransaction: transaction %s: %w", id, ledger.ErrNotFound)
			}
			return fmt.Errorf("UpdateTransaction: %w", err)
		}
		return fmt.Errorf("UpdateTransaction: transaction %s is already linked: %w", id, ledger.ErrConflict)
	}
	return nil
}

// UpdateTransactionPair applies two patches inside one BigQuery transaction.
// Either both rows update or neither does; a failed RequireUnlinked
// precondition aborts the script and surfaces as ledger.ErrConflict.
func (s *Store) UpdateTransactionPair(ctx context.Context, idA, idB string, patchA, patchB ledger.TransactionPatch) error {
	setA := transactionSet(patchA, "a_")
	setB := transactionSet(patchB, "b_")
	if setA.empty() || setB.empty() {
		return fmt.Errorf("UpdateTransactionPair: both patches must set at least one field")
	}

	whereA := "transaction_id = @id_a"
	if patchA.RequireUnlinked {
		whereA += " AND " + unlinkedCondition
	}
	whereB := "transaction_id = @id_b"
	if patchB.RequireUnlinked {
		whereB += " AND " + unlinkedCondition
	}

	table := s.table(transactionsTable)
	script := fmt.Sprintf(`
		BEGIN TRANSACTION;

		UPDATE %s SET %s WHERE %s;
		IF @@row_count != 1 THEN
			RAISE USING MESSAGE = 'pair update precondition failed';
		END IF;

		UPDATE %s SET %s WHERE %s;
		IF @@row_count != 1 THEN
			RAISE USING MESSAGE = 'pair update precondition failed';
		END IF;

		COMMIT TRANSACTION;
	`, table, setA.sql(), whereA, table, setB.sql(), whereB)

	params := append(setA.params(), setB.params()...)
	params = append(params,
		bigquery.QueryParameter{Name: "id_a", Value: idA},
		bigquery.QueryParameter{Name: "id_b", Value: idB},
	)

	if _, err := s.runDML(ctx, script, params); err != nil {
		if strings.Contains(err.Error(), "pair update precondition failed") {
			return fmt.Errorf("UpdateTransactionPair: %s/%s: %w", idA, idB, ledger.ErrConflict)
		}
		return fmt.Errorf("UpdateTransactionPair: %w", err)
	}
	return nil
}

// InsertTransactions streams a batch of new transactions, assigning ids and
// insertion seq numbers. Used by import tooling.
func (s *Store) InsertTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	nextSeq, err := s.maxSeq(ctx)
	if err != nil {
		return fmt.Errorf("InsertTransactions: %w", err)
	}

	rows := make([]*TransactionRow, len(txs))
	now := time.Now()
	for i, t := range txs {
		nextSeq++
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.Seq = nextSeq
		rows[i] = &TransactionRow{
			TransactionID:    t.ID,
			AccountID:        t.AccountID,
			TransactionDate:  civilOf(t.Date),
			Direction:        string(t.Direction),
			Amount:           t.Amount,
			BalanceAfter:     t.BalanceAfter,
			CategoryName:     t.Category,
			SubcategoryName:  t.Subcategory,
			Merchant:         t.Merchant,
			Description:      t.Description,
			IsRecurring:      t.IsRecurring,
			LinkedTransferID: t.LinkedTransferID,
			Tags:             t.Tags,
			Seq:              t.Seq,
			CreatedTS:        bigquery.NullTimestamp{Timestamp: now, Valid: true},
		}
	}

	inserter := s.client.DatasetInProject(s.project, s.dataset).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

func (s *Store) maxSeq(ctx context.Context) (int64, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT IFNULL(MAX(seq), 0) AS max_seq
		FROM %s
	`, s.table(transactionsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("maxSeq: query read: %w", err)
	}
	var row struct {
		MaxSeq int64 `bigquery:"max_seq"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return 0, fmt.Errorf("maxSeq: iter next: %w", err)
	}
	return row.MaxSeq, nil
}
