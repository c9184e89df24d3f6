// Package reconcile computes and repairs running balances.
//
// The reconciler deliberately refolds the whole account history on every
// call instead of patching incrementally: edits can reorder history at any
// point, and a full refold from the effective initial balance is the only
// update that is safe after arbitrary mutations. Write amortization keeps
// the refold cheap on storage - only rows whose stored balance disagrees
// with the recomputed one are written.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/rs/zerolog"
)

// Epsilon is the tolerance, in currency units, within which a stored balance
// is considered consistent with the recomputed fold.
const Epsilon = 0.01

// Reconciler recomputes running balances for one account at a time.
type Reconciler struct {
	store ledger.Store
	log   zerolog.Logger
}

// New creates a reconciler over the given store.
func New(store ledger.Store, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// Result summarizes one reconcile pass.
type Result struct {
	AccountID         string  `json:"account_id"`
	FinalBalance      float64 `json:"final_balance"`
	TransactionsSeen  int     `json:"transactions_seen"`
	BalancesRewritten int     `json:"balances_rewritten"`
	AccountUpdated    bool    `json:"account_updated"`
}

// Reconcile refolds the account's full history and repairs stored balances.
//
// It resolves the effective initial balance (latest active checkpoint wins
// over the stored initial balance), folds signed amounts over transactions in
// (date, seq) order, writes balanceAfter only where it differs, and finally
// writes the account balance and lastRecalculated audit timestamp.
//
// Reconcile is idempotent: a second call with no intervening mutation
// performs zero balance writes. A missing account is a silent no-op.
func (r *Reconciler) Reconcile(ctx context.Context, accountID string) (*Result, error) {
	account, err := r.store.GetAccount(ctx, accountID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Reconcile: get account %s: %w", accountID, err)
	}

	initial, initialDate, fromCheckpoint, err := r.effectiveInitial(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: resolve initial balance: %w", err)
	}

	// A checkpoint re-derives the initial balance; persist the corrected
	// value so later reads see it, but only when it actually moved.
	if fromCheckpoint {
		if math.Abs(account.InitialBalance-initial) > 1e-9 || !account.InitialBalanceDate.Equal(initialDate) {
			patch := ledger.AccountPatch{
				InitialBalance:     &initial,
				InitialBalanceDate: &initialDate,
			}
			if err := r.store.UpdateAccount(ctx, accountID, patch); err != nil {
				return nil, fmt.Errorf("Reconcile: persist corrected initial balance: %w", err)
			}
		}
	}

	txs, err := r.store.ListTransactionsByAccount(ctx, accountID, nil)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: list transactions: %w", err)
	}

	result := &Result{AccountID: accountID, TransactionsSeen: len(txs)}

	// Full fold from the start of history. Transactions before the
	// checkpoint still fold over the corrected initial balance, reproducing
	// pre-checkpoint balances consistently.
	running := initial
	for _, t := range txs {
		running += t.Signed()
		if t.BalanceAfter != running {
			balance := running
			if err := r.store.UpdateTransaction(ctx, t.ID, ledger.TransactionPatch{BalanceAfter: &balance}); err != nil {
				return nil, fmt.Errorf("Reconcile: write balance for transaction %s: %w", t.ID, err)
			}
			result.BalancesRewritten++
		}
	}
	result.FinalBalance = running

	now := time.Now()
	patch := ledger.AccountPatch{LastRecalculated: &now}
	if account.Balance != running {
		balance := running
		patch.Balance = &balance
		result.AccountUpdated = true
	}
	if err := r.store.UpdateAccount(ctx, accountID, patch); err != nil {
		return nil, fmt.Errorf("Reconcile: update account %s: %w", accountID, err)
	}

	r.log.Debug().
		Str("account_id", accountID).
		Int("transactions", result.TransactionsSeen).
		Int("rewritten", result.BalancesRewritten).
		Float64("balance", result.FinalBalance).
		Msg("Reconcile pass complete")

	return result, nil
}

// effectiveInitial resolves the balance the fold starts from.
//
// The checkpoint with the latest date among active checkpoints is
// authoritative: initial = cp.balance - sum(signed amounts | date <= cp.date).
// Without an active checkpoint the account's stored initial balance is used.
func (r *Reconciler) effectiveInitial(ctx context.Context, account *domain.Account) (float64, time.Time, bool, error) {
	cps, err := r.store.ListCheckpoints(ctx, account.ID)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("effectiveInitial: list checkpoints: %w", err)
	}

	var latest *domain.BalanceCheckpoint
	for _, cp := range cps {
		if !cp.IsActive {
			continue
		}
		if latest == nil || cp.Date.After(latest.Date) {
			latest = cp
		}
	}
	if latest == nil {
		return account.InitialBalance, account.InitialBalanceDate, false, nil
	}

	txs, err := r.store.ListTransactionsByAccount(ctx, account.ID, nil)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("effectiveInitial: list transactions: %w", err)
	}

	var sum float64
	for _, t := range txs {
		if t.Date.After(latest.Date) {
			continue
		}
		sum += t.Signed()
	}
	return latest.Balance - sum, latest.Date, true, nil
}
