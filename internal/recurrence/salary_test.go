package recurrence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger/memstore"
	"github.com/rs/zerolog"
)

func newTestDetector() (*Detector, *memstore.Store) {
	store := memstore.New()
	return New(store, DefaultConfig(), zerolog.Nop()), store
}

func seedCredit(t *testing.T, store *memstore.Store, date time.Time, amount float64, category, description string) {
	t.Helper()
	_, err := store.AddTransaction(context.Background(), &domain.Transaction{
		AccountID:   "acc-main",
		Date:        date,
		Direction:   domain.Credit,
		Amount:      amount,
		Category:    category,
		Description: description,
	})
	if err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
}

func TestDetectIncome_MedianAndOutlierLaw(t *testing.T) {
	d, store := newTestDetector()
	now := domain.Day(2026, 7, 15)

	amounts := []float64{3000, 3100, 3050, 3000, 5000, 3100}
	for i, amount := range amounts {
		seedCredit(t, store, domain.Day(2026, time.Month(i+1), 25), amount, "Income", "ACME payroll")
	}

	result, err := d.DetectIncome(context.Background(), now)
	if err != nil {
		t.Fatalf("DetectIncome failed: %v", err)
	}

	if result.MedianSalary != 3075 {
		t.Errorf("median = %v, want 3075", result.MedianSalary)
	}
	if result.OutlierThreshold != 3075*1.3 {
		t.Errorf("outlier threshold = %v, want %v", result.OutlierThreshold, 3075*1.3)
	}
	if result.OutlierCount != 1 {
		t.Errorf("outlier count = %d, want 1", result.OutlierCount)
	}
	for _, s := range result.Salaries {
		if s.Amount == 5000 && !s.IsOutlier {
			t.Error("the 5000 instance should be flagged as outlier")
		}
		if s.Amount != 5000 && s.IsOutlier {
			t.Errorf("the %v instance should not be an outlier", s.Amount)
		}
	}
	// Average excludes the bonus month: (3000+3100+3050+3000+3100)/5.
	if result.AverageSalary != 3050 {
		t.Errorf("average = %v, want 3050", result.AverageSalary)
	}
	if result.SalaryCount != 6 {
		t.Errorf("salary count = %d, want 6", result.SalaryCount)
	}
	if result.SalaryDay != 25 {
		t.Errorf("salary day = %d, want 25", result.SalaryDay)
	}
	if result.LastSalary != 3100 {
		t.Errorf("last salary = %v, want 3100", result.LastSalary)
	}
}

func TestDetectIncome_ConfidenceTiers(t *testing.T) {
	tests := []struct {
		regularCount int
		want         string
	}{
		{5, ConfidenceHigh},
		{3, ConfidenceMedium},
		{1, ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d regular instances", tt.regularCount), func(t *testing.T) {
			d, store := newTestDetector()
			now := domain.Day(2026, 7, 15)

			for i := 0; i < tt.regularCount; i++ {
				seedCredit(t, store, domain.Day(2026, time.Month(i+2), 28), 2500, "Income", "salary")
			}

			result, err := d.DetectIncome(context.Background(), now)
			if err != nil {
				t.Fatalf("DetectIncome failed: %v", err)
			}
			if result.Confidence != tt.want {
				t.Errorf("confidence = %q, want %q", result.Confidence, tt.want)
			}
		})
	}
}

func TestDetectIncome_FallbackToLargestCredits(t *testing.T) {
	d, store := newTestDetector()
	now := domain.Day(2026, 7, 15)

	// No salary signal anywhere: category is not Income, no keywords.
	seedCredit(t, store, domain.Day(2026, 3, 5), 2200, "Other", "monthly remittance")
	seedCredit(t, store, domain.Day(2026, 4, 5), 2300, "Other", "monthly remittance")
	seedCredit(t, store, domain.Day(2026, 5, 5), 800, "Other", "too small to qualify")

	result, err := d.DetectIncome(context.Background(), now)
	if err != nil {
		t.Fatalf("DetectIncome failed: %v", err)
	}
	if result.SalaryCount != 2 {
		t.Errorf("salary count = %d, want 2 (fallback over qualifying credits)", result.SalaryCount)
	}
	if result.SalaryDay != 5 {
		t.Errorf("salary day = %d, want 5", result.SalaryDay)
	}
}

func TestDetectIncome_EmptyLedger(t *testing.T) {
	d, _ := newTestDetector()

	result, err := d.DetectIncome(context.Background(), domain.Day(2026, 7, 15))
	if err != nil {
		t.Fatalf("DetectIncome on empty ledger returned error: %v", err)
	}
	if result.SalaryCount != 0 {
		t.Errorf("salary count = %d, want 0", result.SalaryCount)
	}
	if result.SalaryDay != 25 {
		t.Errorf("default salary day = %d, want 25", result.SalaryDay)
	}
	if result.Confidence != ConfidenceLow {
		t.Errorf("confidence = %q, want low", result.Confidence)
	}
}

func TestDetectIncome_SalaryDayModeFirstToMaxWins(t *testing.T) {
	d, store := newTestDetector()
	now := domain.Day(2026, 7, 15)

	// Two instances on day 25 and two on day 26: day 25 reaches the max
	// count first in chronological order.
	seedCredit(t, store, domain.Day(2026, 2, 25), 3000, "Income", "")
	seedCredit(t, store, domain.Day(2026, 3, 25), 3000, "Income", "")
	seedCredit(t, store, domain.Day(2026, 4, 26), 3000, "Income", "")
	seedCredit(t, store, domain.Day(2026, 5, 26), 3000, "Income", "")

	result, err := d.DetectIncome(context.Background(), now)
	if err != nil {
		t.Fatalf("DetectIncome failed: %v", err)
	}
	if result.SalaryDay != 25 {
		t.Errorf("salary day = %d, want 25 (first day reaching max count)", result.SalaryDay)
	}
}

func TestDetectIncome_AllOutliersFallBackToMedian(t *testing.T) {
	d, store := newTestDetector()
	now := domain.Day(2026, 7, 15)

	// One instance: it cannot exceed 1.3x its own median, so craft two where
	// both exceed the shared median threshold is impossible; instead verify
	// the single-instance case keeps average = median = amount.
	seedCredit(t, store, domain.Day(2026, 5, 25), 4000, "Income", "")

	result, err := d.DetectIncome(context.Background(), now)
	if err != nil {
		t.Fatalf("DetectIncome failed: %v", err)
	}
	if result.AverageSalary != 4000 || result.MedianSalary != 4000 {
		t.Errorf("average/median = %v/%v, want 4000/4000", result.AverageSalary, result.MedianSalary)
	}
}
