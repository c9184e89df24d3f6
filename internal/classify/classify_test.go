package classify

import (
	"testing"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

func TestChain_PrecedenceOrder(t *testing.T) {
	tx := &domain.Transaction{
		ID:        "tx-1",
		Direction: domain.Debit,
		Category:  "Rent",
	}

	tests := []struct {
		name         string
		txOverrides  TransactionOverrides
		catOverrides CategoryOverrides
		want         BudgetType
	}{
		{
			name: "built-in default applies",
			want: Essential,
		},
		{
			name:         "category override beats default",
			catOverrides: CategoryOverrides{"rent": Savings},
			want:         Savings,
		},
		{
			name:         "transaction override beats category override",
			txOverrides:  TransactionOverrides{"tx-1": Excluded},
			catOverrides: CategoryOverrides{"rent": Savings},
			want:         Excluded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := NewDefaultChain(tt.txOverrides, tt.catOverrides)
			if got := chain.Classify(tx); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChain_Defaults(t *testing.T) {
	chain := NewDefaultChain(nil, nil)

	tests := []struct {
		name string
		tx   *domain.Transaction
		want BudgetType
	}{
		{
			name: "linked transfer excluded",
			tx:   &domain.Transaction{Direction: domain.Debit, Category: "Transfer", LinkedTransferID: "tx-9"},
			want: Excluded,
		},
		{
			name: "transfer category excluded even without link",
			tx:   &domain.Transaction{Direction: domain.Debit, Category: "Transfer"},
			want: Excluded,
		},
		{
			name: "credit without category is income",
			tx:   &domain.Transaction{Direction: domain.Credit},
			want: Income,
		},
		{
			name: "category match is case-insensitive",
			tx:   &domain.Transaction{Direction: domain.Debit, Category: "GROCERIES"},
			want: Essential,
		},
		{
			name: "unknown debit is discretionary",
			tx:   &domain.Transaction{Direction: domain.Debit, Category: "Hobbies"},
			want: Discretionary,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chain.Classify(tt.tx); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChain_OverridesDoNotLeakAcrossTransactions(t *testing.T) {
	chain := NewDefaultChain(TransactionOverrides{"tx-1": Savings}, nil)

	other := &domain.Transaction{ID: "tx-2", Direction: domain.Debit, Category: "Hobbies"}
	if got := chain.Classify(other); got != Discretionary {
		t.Errorf("Classify = %q, want discretionary for non-overridden transaction", got)
	}
}
