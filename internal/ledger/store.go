// Package ledger defines the storage contract the reconciliation and
// detection engines run against. Implementations: memstore (in-memory,
// reference semantics for tests and local runs) and infra/bigquery
// (production).
package ledger

import (
	"context"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// TransactionPatch is a partial update of a transaction. Nil fields are left
// untouched. LinkedTransferID uses a pointer-to-empty-string to clear a link.
type TransactionPatch struct {
	Date         *time.Time
	Amount       *float64
	Direction    *domain.Direction
	BalanceAfter *float64

	Category    *string
	Subcategory *string

	IsRecurring      *bool
	LinkedTransferID *string

	// RequireUnlinked makes the write fail with ErrConflict unless the
	// transaction is unlinked at commit time. The precondition is checked
	// inside the same write transaction, not at scan time.
	RequireUnlinked bool
}

// AccountPatch is a partial update of an account.
type AccountPatch struct {
	InitialBalance     *float64
	InitialBalanceDate *time.Time
	Balance            *float64
	LastRecalculated   *time.Time
}

// RecurringPatch is a partial update of a recurring transaction record.
type RecurringPatch struct {
	Amount       *float64
	ExpectedDay  *int
	LastDetected *time.Time
	NextExpected *time.Time
	Status       *domain.RecurringStatus
	Occurrences  *[]domain.Occurrence
}

// Store is the ordered ledger persistence consumed by the engine.
//
// All reads return snapshots consistent at call time. All single-record
// writes are individually atomic; UpdateTransactionPair is the atomic group
// used for symmetric transfer-link writes (both records update or neither
// does). List results are sorted by (date ascending, insertion seq
// ascending), the canonical fold order.
type Store interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	UpdateAccount(ctx context.Context, id string, patch AccountPatch) error

	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID string, dateRange *domain.DateRange) ([]*domain.Transaction, error)
	ListTransactionsByDateRange(ctx context.Context, dateRange domain.DateRange) ([]*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch TransactionPatch) error
	UpdateTransactionPair(ctx context.Context, idA, idB string, patchA, patchB TransactionPatch) error

	ListCheckpoints(ctx context.Context, accountID string) ([]*domain.BalanceCheckpoint, error)
	AddCheckpoint(ctx context.Context, cp *domain.BalanceCheckpoint) (string, error)
	DeleteCheckpoint(ctx context.Context, id string) error

	AddRecurring(ctx context.Context, rec *domain.RecurringTransaction) (string, error)
	UpdateRecurring(ctx context.Context, id string, patch RecurringPatch) error
	// FindRecurringByName returns (nil, nil) when no record matches.
	FindRecurringByName(ctx context.Context, name string) (*domain.RecurringTransaction, error)
	ListRecurring(ctx context.Context) ([]*domain.RecurringTransaction, error)
}
