package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/ledger/memstore"
	"github.com/rs/zerolog"
)

func newTestDetector() (*Detector, *memstore.Store) {
	store := memstore.New()
	return New(store, DefaultConfig(), zerolog.Nop()), store
}

func seedTx(t *testing.T, store *memstore.Store, accountID string, date time.Time, dir domain.Direction, amount float64, description string) string {
	t.Helper()
	id, err := store.AddTransaction(context.Background(), &domain.Transaction{
		AccountID:   accountID,
		Date:        date,
		Direction:   dir,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	return id
}

func daysAgo(n int) time.Time {
	return domain.TruncateToDay(time.Now()).AddDate(0, 0, -n)
}

func TestDetect_ExactAmountOneDayApartWithKeyword(t *testing.T) {
	d, store := newTestDetector()
	ctx := context.Background()

	outID := seedTx(t, store, "acc-a", daysAgo(11), domain.Debit, 100, "Virement vers compte epargne")
	inID := seedTx(t, store, "acc-b", daysAgo(10), domain.Credit, 100, "Incoming payment")

	detected, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(detected) != 1 {
		t.Fatalf("detected %d transfers, want 1", len(detected))
	}

	match := detected[0]
	if match.Outgoing.ID != outID || match.Incoming.ID != inID {
		t.Errorf("matched pair (%s, %s), want (%s, %s)", match.Outgoing.ID, match.Incoming.ID, outID, inID)
	}
	// 0.5 base + 0.2 exact amount + 0.10 one day + 0.10 keyword.
	if match.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", match.Confidence)
	}

	wantReasons := map[string]bool{
		"exact amount match": false,
		"1 day apart":        false,
	}
	keywordSeen := false
	for _, reason := range match.Reasons {
		if _, ok := wantReasons[reason]; ok {
			wantReasons[reason] = true
		}
		if reason == `keyword "virement" in outgoing description` {
			keywordSeen = true
		}
	}
	for reason, seen := range wantReasons {
		if !seen {
			t.Errorf("missing reason %q in %v", reason, match.Reasons)
		}
	}
	if !keywordSeen {
		t.Errorf("missing keyword reason in %v", match.Reasons)
	}
}

func TestDetect_NeverPairsWithinSameAccount(t *testing.T) {
	d, store := newTestDetector()

	seedTx(t, store, "acc-a", daysAgo(5), domain.Debit, 250, "")
	seedTx(t, store, "acc-a", daysAgo(5), domain.Credit, 250, "")

	detected, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(detected) != 0 {
		t.Errorf("detected %d transfers within one account, want 0", len(detected))
	}
}

func TestDetect_ConsumedCreditIsNotReused(t *testing.T) {
	d, store := newTestDetector()

	seedTx(t, store, "acc-a", daysAgo(8), domain.Debit, 300, "")
	seedTx(t, store, "acc-c", daysAgo(8), domain.Debit, 300, "")
	seedTx(t, store, "acc-b", daysAgo(8), domain.Credit, 300, "")

	detected, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(detected) != 1 {
		t.Fatalf("detected %d transfers, want 1 (single credit can only match once)", len(detected))
	}
}

func TestDetect_AmountTolerance(t *testing.T) {
	tests := []struct {
		name         string
		creditAmount float64
		wantMatch    bool
	}{
		{"within 2% (fee absorbed)", 98.5, true},
		{"beyond 2%", 97.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, store := newTestDetector()
			seedTx(t, store, "acc-a", daysAgo(4), domain.Debit, 100, "")
			seedTx(t, store, "acc-b", daysAgo(4), domain.Credit, tt.creditAmount, "transfer")

			detected, err := d.Detect(context.Background())
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if got := len(detected) == 1; got != tt.wantMatch {
				t.Errorf("match = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}

func TestDetect_LinkedTransactionsAreExcluded(t *testing.T) {
	d, store := newTestDetector()
	ctx := context.Background()

	outID := seedTx(t, store, "acc-a", daysAgo(3), domain.Debit, 75, "")
	inID := seedTx(t, store, "acc-b", daysAgo(3), domain.Credit, 75, "")
	if err := d.LinkAsTransfer(ctx, outID, inID); err != nil {
		t.Fatalf("LinkAsTransfer failed: %v", err)
	}

	detected, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(detected) != 0 {
		t.Errorf("detected %d transfers among already linked transactions, want 0", len(detected))
	}
}

func TestLinkAsTransfer_Symmetric(t *testing.T) {
	d, store := newTestDetector()
	ctx := context.Background()

	outID := seedTx(t, store, "acc-a", daysAgo(2), domain.Debit, 50, "")
	inID := seedTx(t, store, "acc-b", daysAgo(2), domain.Credit, 50, "")

	if err := d.LinkAsTransfer(ctx, outID, inID); err != nil {
		t.Fatalf("LinkAsTransfer failed: %v", err)
	}

	out, _ := store.GetTransaction(ctx, outID)
	in, _ := store.GetTransaction(ctx, inID)
	if out.LinkedTransferID != inID {
		t.Errorf("outgoing linkedTransferId = %q, want %q", out.LinkedTransferID, inID)
	}
	if in.LinkedTransferID != outID {
		t.Errorf("incoming linkedTransferId = %q, want %q", in.LinkedTransferID, outID)
	}
	if out.Category != "Transfer" || in.Category != "Transfer" {
		t.Errorf("categories = (%q, %q), want both Transfer", out.Category, in.Category)
	}
}

func TestLinkAsTransfer_ConflictWhenAlreadyLinked(t *testing.T) {
	d, store := newTestDetector()
	ctx := context.Background()

	outID := seedTx(t, store, "acc-a", daysAgo(2), domain.Debit, 50, "")
	inID := seedTx(t, store, "acc-b", daysAgo(2), domain.Credit, 50, "")
	otherID := seedTx(t, store, "acc-c", daysAgo(2), domain.Credit, 50, "")

	if err := d.LinkAsTransfer(ctx, outID, inID); err != nil {
		t.Fatalf("LinkAsTransfer failed: %v", err)
	}

	err := d.LinkAsTransfer(ctx, outID, otherID)
	if !errors.Is(err, ledger.ErrConflict) {
		t.Errorf("relinking a linked transaction returned %v, want ErrConflict", err)
	}

	// The losing write must not leave a partial link behind.
	other, _ := store.GetTransaction(ctx, otherID)
	if other.IsLinked() {
		t.Error("conflicting link left a partial write on the unmatched side")
	}
}

func TestLinkAsTransfer_RejectsSameAccount(t *testing.T) {
	d, store := newTestDetector()

	outID := seedTx(t, store, "acc-a", daysAgo(2), domain.Debit, 50, "")
	inID := seedTx(t, store, "acc-a", daysAgo(2), domain.Credit, 50, "")

	if err := d.LinkAsTransfer(context.Background(), outID, inID); err == nil {
		t.Error("linking two transactions in the same account should fail")
	}
}

func TestUnlinkTransfer(t *testing.T) {
	d, store := newTestDetector()
	ctx := context.Background()

	outID := seedTx(t, store, "acc-a", daysAgo(2), domain.Debit, 50, "")
	inID := seedTx(t, store, "acc-b", daysAgo(2), domain.Credit, 50, "")
	if err := d.LinkAsTransfer(ctx, outID, inID); err != nil {
		t.Fatalf("LinkAsTransfer failed: %v", err)
	}

	if err := d.UnlinkTransfer(ctx, outID); err != nil {
		t.Fatalf("UnlinkTransfer failed: %v", err)
	}

	out, _ := store.GetTransaction(ctx, outID)
	in, _ := store.GetTransaction(ctx, inID)
	if out.IsLinked() || in.IsLinked() {
		t.Errorf("links not cleared symmetrically: (%q, %q)", out.LinkedTransferID, in.LinkedTransferID)
	}

	// Unlinking an unlinked transaction is a no-op.
	if err := d.UnlinkTransfer(ctx, outID); err != nil {
		t.Errorf("UnlinkTransfer on unlinked transaction returned %v, want nil", err)
	}
}
