package reconcile

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/ledger/memstore"
	"github.com/rs/zerolog"
)

func patchBalance(v *float64) ledger.TransactionPatch {
	return ledger.TransactionPatch{BalanceAfter: v}
}

func newTestReconciler() (*Reconciler, *memstore.Store) {
	store := memstore.New()
	return New(store, zerolog.Nop()), store
}

func seedAccount(t *testing.T, store *memstore.Store, initial float64) string {
	t.Helper()
	id, err := store.AddAccount(context.Background(), &domain.Account{
		Name:               "Current",
		Currency:           "EUR",
		InitialBalance:     initial,
		InitialBalanceDate: domain.Day(2025, 12, 31),
	})
	if err != nil {
		t.Fatalf("AddAccount failed: %v", err)
	}
	return id
}

func seedTx(t *testing.T, store *memstore.Store, accountID string, date time.Time, dir domain.Direction, amount float64) string {
	t.Helper()
	id, err := store.AddTransaction(context.Background(), &domain.Transaction{
		AccountID: accountID,
		Date:      date,
		Direction: dir,
		Amount:    amount,
	})
	if err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	return id
}

func TestReconcile_FoldsSignedAmounts(t *testing.T) {
	r, store := newTestReconciler()
	ctx := context.Background()

	accountID := seedAccount(t, store, 1000)
	txDebit := seedTx(t, store, accountID, domain.Day(2026, 1, 10), domain.Debit, 50)
	txCredit := seedTx(t, store, accountID, domain.Day(2026, 1, 20), domain.Credit, 200)

	result, err := r.Reconcile(ctx, accountID)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if result.FinalBalance != 1150 {
		t.Errorf("FinalBalance = %v, want 1150", result.FinalBalance)
	}
	if result.BalancesRewritten != 2 {
		t.Errorf("BalancesRewritten = %d, want 2", result.BalancesRewritten)
	}

	wantBalances := map[string]float64{txDebit: 950, txCredit: 1150}
	for id, want := range wantBalances {
		tx, err := store.GetTransaction(ctx, id)
		if err != nil {
			t.Fatalf("GetTransaction(%s) failed: %v", id, err)
		}
		if tx.BalanceAfter != want {
			t.Errorf("transaction %s balanceAfter = %v, want %v", id, tx.BalanceAfter, want)
		}
	}

	account, err := store.GetAccount(ctx, accountID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if account.Balance != 1150 {
		t.Errorf("account balance = %v, want 1150", account.Balance)
	}
	if account.LastRecalculated.IsZero() {
		t.Error("lastRecalculated was not set")
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	r, store := newTestReconciler()
	ctx := context.Background()

	accountID := seedAccount(t, store, 500)
	seedTx(t, store, accountID, domain.Day(2026, 3, 1), domain.Credit, 120)
	seedTx(t, store, accountID, domain.Day(2026, 3, 5), domain.Debit, 30)

	first, err := r.Reconcile(ctx, accountID)
	if err != nil {
		t.Fatalf("first Reconcile failed: %v", err)
	}
	if first.BalancesRewritten == 0 {
		t.Fatal("first pass should have written balances")
	}

	second, err := r.Reconcile(ctx, accountID)
	if err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}
	if second.BalancesRewritten != 0 {
		t.Errorf("second pass rewrote %d balances, want 0", second.BalancesRewritten)
	}
	if second.AccountUpdated {
		t.Error("second pass should not have moved the account balance")
	}
	if second.FinalBalance != first.FinalBalance {
		t.Errorf("final balance changed between passes: %v vs %v", first.FinalBalance, second.FinalBalance)
	}
}

func TestReconcile_SameDayUsesInsertionOrder(t *testing.T) {
	r, store := newTestReconciler()
	ctx := context.Background()

	accountID := seedAccount(t, store, 100)
	day := domain.Day(2026, 2, 14)
	first := seedTx(t, store, accountID, day, domain.Debit, 80)
	second := seedTx(t, store, accountID, day, domain.Credit, 50)

	if _, err := r.Reconcile(ctx, accountID); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	tx1, _ := store.GetTransaction(ctx, first)
	tx2, _ := store.GetTransaction(ctx, second)
	if tx1.BalanceAfter != 20 {
		t.Errorf("first same-day transaction balanceAfter = %v, want 20", tx1.BalanceAfter)
	}
	if tx2.BalanceAfter != 70 {
		t.Errorf("second same-day transaction balanceAfter = %v, want 70", tx2.BalanceAfter)
	}
}

func TestReconcile_CheckpointCorrectsInitialBalance(t *testing.T) {
	r, store := newTestReconciler()
	ctx := context.Background()

	// Stored initial balance is wrong (missing early history); a checkpoint
	// attests the true balance after the first two transactions.
	accountID := seedAccount(t, store, 0)
	seedTx(t, store, accountID, domain.Day(2026, 1, 5), domain.Debit, 100)
	seedTx(t, store, accountID, domain.Day(2026, 1, 15), domain.Credit, 40)
	seedTx(t, store, accountID, domain.Day(2026, 2, 10), domain.Debit, 10)

	cpDate := domain.Day(2026, 1, 31)
	const cpBalance = 940.0
	if _, err := store.AddCheckpoint(ctx, &domain.BalanceCheckpoint{
		AccountID: accountID,
		Date:      cpDate,
		Balance:   cpBalance,
		IsActive:  true,
	}); err != nil {
		t.Fatalf("AddCheckpoint failed: %v", err)
	}

	result, err := r.Reconcile(ctx, accountID)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	account, err := store.GetAccount(ctx, accountID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}

	// Checkpoint correctness: B = effectiveInitial + sum(signed | date <= D).
	signedSum := -100.0 + 40.0
	if got := account.InitialBalance + signedSum; math.Abs(got-cpBalance) > Epsilon {
		t.Errorf("checkpoint law violated: initial %v + sum %v = %v, want %v",
			account.InitialBalance, signedSum, got, cpBalance)
	}
	if !account.InitialBalanceDate.Equal(cpDate) {
		t.Errorf("initialBalanceDate = %v, want checkpoint date %v", account.InitialBalanceDate, cpDate)
	}

	// Full fold still runs from the start of history.
	if want := 1000.0 - 100 + 40 - 10; result.FinalBalance != want {
		t.Errorf("FinalBalance = %v, want %v", result.FinalBalance, want)
	}
}

func TestReconcile_LatestActiveCheckpointWins(t *testing.T) {
	r, store := newTestReconciler()
	ctx := context.Background()

	accountID := seedAccount(t, store, 0)
	seedTx(t, store, accountID, domain.Day(2026, 1, 5), domain.Credit, 100)

	checkpoints := []*domain.BalanceCheckpoint{
		{AccountID: accountID, Date: domain.Day(2026, 1, 10), Balance: 500, IsActive: true},
		{AccountID: accountID, Date: domain.Day(2026, 2, 10), Balance: 700, IsActive: true},
		{AccountID: accountID, Date: domain.Day(2026, 3, 10), Balance: 900, IsActive: false},
	}
	for _, cp := range checkpoints {
		if _, err := store.AddCheckpoint(ctx, cp); err != nil {
			t.Fatalf("AddCheckpoint failed: %v", err)
		}
	}

	result, err := r.Reconcile(ctx, accountID)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	// Latest active checkpoint (700 on Feb 10) is authoritative:
	// initial = 700 - 100 = 600, final = 600 + 100 = 700.
	if result.FinalBalance != 700 {
		t.Errorf("FinalBalance = %v, want 700", result.FinalBalance)
	}
}

func TestReconcile_MissingAccountIsNoOp(t *testing.T) {
	r, _ := newTestReconciler()

	result, err := r.Reconcile(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Reconcile on missing account returned error: %v", err)
	}
	if result != nil {
		t.Errorf("Reconcile on missing account returned result %+v, want nil", result)
	}
}

func TestBalanceAt(t *testing.T) {
	r, store := newTestReconciler()
	ctx := context.Background()

	accountID := seedAccount(t, store, 1000)
	seedTx(t, store, accountID, domain.Day(2026, 1, 10), domain.Debit, 50)
	seedTx(t, store, accountID, domain.Day(2026, 1, 20), domain.Credit, 200)

	tests := []struct {
		name string
		date time.Time
		want float64
	}{
		{"before any transaction", domain.Day(2026, 1, 1), 1000},
		{"on first transaction day", domain.Day(2026, 1, 10), 950},
		{"between transactions", domain.Day(2026, 1, 15), 950},
		{"after all transactions", domain.Day(2026, 2, 1), 1150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.BalanceAt(ctx, accountID, tt.date)
			if err != nil {
				t.Fatalf("BalanceAt failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("BalanceAt(%s) = %v, want %v", tt.date.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestHistory_DailySnapshots(t *testing.T) {
	r, store := newTestReconciler()
	ctx := context.Background()

	accountID := seedAccount(t, store, 100)
	seedTx(t, store, accountID, domain.Day(2026, 1, 2), domain.Credit, 50)
	seedTx(t, store, accountID, domain.Day(2026, 1, 4), domain.Debit, 30)

	history, err := r.History(ctx, accountID, domain.Day(2026, 1, 1), domain.Day(2026, 1, 5))
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	want := []float64{100, 150, 150, 120, 120}
	if len(history) != len(want) {
		t.Fatalf("history length = %d, want %d", len(history), len(want))
	}
	for i, w := range want {
		if history[i].Balance != w {
			t.Errorf("day %d balance = %v, want %v", i+1, history[i].Balance, w)
		}
	}
}

func TestCheckConsistency(t *testing.T) {
	r, store := newTestReconciler()
	ctx := context.Background()

	accountID := seedAccount(t, store, 1000)
	txID := seedTx(t, store, accountID, domain.Day(2026, 1, 10), domain.Debit, 50)
	seedTx(t, store, accountID, domain.Day(2026, 1, 20), domain.Credit, 200)

	if _, err := r.Reconcile(ctx, accountID); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	report, err := r.CheckConsistency(ctx, accountID)
	if err != nil {
		t.Fatalf("CheckConsistency failed: %v", err)
	}
	if !report.Consistent() {
		t.Fatalf("fresh reconcile reported mismatches: %+v", report.Mismatches)
	}

	// Corrupt one stored balance beyond epsilon; the check must report it
	// without repairing it.
	bad := 123.45
	if err := store.UpdateTransaction(ctx, txID, patchBalance(&bad)); err != nil {
		t.Fatalf("UpdateTransaction failed: %v", err)
	}

	report, err = r.CheckConsistency(ctx, accountID)
	if err != nil {
		t.Fatalf("CheckConsistency failed: %v", err)
	}
	if len(report.Mismatches) != 1 {
		t.Fatalf("mismatches = %d, want 1", len(report.Mismatches))
	}
	if report.Mismatches[0].TransactionID != txID {
		t.Errorf("mismatch id = %s, want %s", report.Mismatches[0].TransactionID, txID)
	}

	tx, _ := store.GetTransaction(ctx, txID)
	if tx.BalanceAfter != bad {
		t.Error("CheckConsistency must not repair stored balances")
	}
}
