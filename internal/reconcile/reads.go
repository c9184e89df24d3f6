package reconcile

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// DailyBalance is one point in a balance history.
type DailyBalance struct {
	Date    time.Time `json:"date"`
	Balance float64   `json:"balance"`
}

// Mismatch is one transaction whose stored balance disagrees with the
// recomputed fold by more than Epsilon.
type Mismatch struct {
	TransactionID string  `json:"transaction_id"`
	Stored        float64 `json:"stored"`
	Recomputed    float64 `json:"recomputed"`
}

// ConsistencyReport is the output of a diagnostic consistency pass.
type ConsistencyReport struct {
	AccountID  string     `json:"account_id"`
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Consistent reports whether the pass found no disagreement.
func (r *ConsistencyReport) Consistent() bool {
	return len(r.Mismatches) == 0
}

// CurrentBalance derives the account balance as of now, without writing
// anything.
func (r *Reconciler) CurrentBalance(ctx context.Context, accountID string) (float64, error) {
	return r.BalanceAt(ctx, accountID, domain.TruncateToDay(time.Now()))
}

// BalanceAt derives the account balance at the end of an arbitrary past day,
// without writing anything.
func (r *Reconciler) BalanceAt(ctx context.Context, accountID string, date time.Time) (float64, error) {
	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("BalanceAt: get account %s: %w", accountID, err)
	}
	initial, _, _, err := r.effectiveInitial(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("BalanceAt: resolve initial balance: %w", err)
	}

	txs, err := r.store.ListTransactionsByAccount(ctx, accountID, nil)
	if err != nil {
		return 0, fmt.Errorf("BalanceAt: list transactions: %w", err)
	}

	date = domain.TruncateToDay(date)
	balance := initial
	for _, t := range txs {
		if t.Date.After(date) {
			break
		}
		balance += t.Signed()
	}
	return balance, nil
}

// History derives daily balance snapshots over [from, to], inclusive.
func (r *Reconciler) History(ctx context.Context, accountID string, from, to time.Time) ([]DailyBalance, error) {
	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("History: get account %s: %w", accountID, err)
	}
	initial, _, _, err := r.effectiveInitial(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("History: resolve initial balance: %w", err)
	}

	txs, err := r.store.ListTransactionsByAccount(ctx, accountID, nil)
	if err != nil {
		return nil, fmt.Errorf("History: list transactions: %w", err)
	}

	from = domain.TruncateToDay(from)
	to = domain.TruncateToDay(to)

	var history []DailyBalance
	balance := initial
	i := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if day.Equal(from) {
			// Fold everything up to the window start first.
			for i < len(txs) && !txs[i].Date.After(day) {
				balance += txs[i].Signed()
				i++
			}
		} else {
			for i < len(txs) && txs[i].Date.Equal(day) {
				balance += txs[i].Signed()
				i++
			}
		}
		history = append(history, DailyBalance{Date: day, Balance: balance})
	}
	return history, nil
}

// CheckConsistency recomputes the fold and reports every transaction whose
// persisted balanceAfter disagrees by more than Epsilon. It never repairs
// anything; repair happens only through an explicit Reconcile call.
func (r *Reconciler) CheckConsistency(ctx context.Context, accountID string) (*ConsistencyReport, error) {
	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("CheckConsistency: get account %s: %w", accountID, err)
	}
	initial, _, _, err := r.effectiveInitial(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("CheckConsistency: resolve initial balance: %w", err)
	}

	txs, err := r.store.ListTransactionsByAccount(ctx, accountID, nil)
	if err != nil {
		return nil, fmt.Errorf("CheckConsistency: list transactions: %w", err)
	}

	report := &ConsistencyReport{AccountID: accountID, Checked: len(txs)}
	running := initial
	for _, t := range txs {
		running += t.Signed()
		if math.Abs(t.BalanceAfter-running) > Epsilon {
			report.Mismatches = append(report.Mismatches, Mismatch{
				TransactionID: t.ID,
				Stored:        t.BalanceAfter,
				Recomputed:    running,
			})
		}
	}
	return report, nil
}
