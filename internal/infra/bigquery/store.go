package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/ledger-engine/internal/ledger"
)

const (
	accountsTable     = "accounts"
	transactionsTable = "transactions"
	checkpointsTable  = "balance_checkpoints"
	recurringTable    = "recurring_transactions"

	dateFormat = "2006-01-02"
)

// Store implements ledger.Store over a BigQuery dataset. One client is
// shared across all operations; the caller owns its lifecycle via Close.
type Store struct {
	client  *bigquery.Client
	project string
	dataset string
}

// New creates a store with a fresh BigQuery client.
func New(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("New: bigquery client: %w", err)
	}
	return NewWithClient(client, projectID, datasetID), nil
}

// NewWithClient wraps an existing client, sharing it with other repositories.
func NewWithClient(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{client: client, project: projectID, dataset: datasetID}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// table returns the fully qualified `project.dataset.table` reference for
// use inside query text.
func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.project, s.dataset, name)
}

// runDML executes a DML statement and returns the number of affected rows.
func (s *Store) runDML(ctx context.Context, query string, params []bigquery.QueryParameter) (int64, error) {
	q := s.client.Query(query)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	var affected int64
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		affected = stats.NumDMLAffectedRows
	}
	return affected, nil
}

var _ ledger.Store = (*Store)(nil)
