package recurrence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// Confidence tiers for salary detection and bill prediction.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// SalaryInstance is one detected salary arrival. Instances above the outlier
// threshold are flagged as bonus months and excluded from the average.
type SalaryInstance struct {
	TransactionID string    `json:"transaction_id"`
	Date          time.Time `json:"date"`
	Amount        float64   `json:"amount"`
	IsOutlier     bool      `json:"is_outlier"`
}

// SmartIncomeResult is the read-only salary projection emitted to callers.
type SmartIncomeResult struct {
	AverageSalary    float64          `json:"average_salary"`
	MedianSalary     float64          `json:"median_salary"`
	LastSalary       float64          `json:"last_salary"`
	SalaryDay        int              `json:"salary_day"`
	Salaries         []SalaryInstance `json:"salaries"`
	OutlierThreshold float64          `json:"outlier_threshold"`
	Confidence       string           `json:"confidence"`
	SalaryCount      int              `json:"salary_count"`
	OutlierCount     int              `json:"outlier_count"`
}

// DetectIncome finds salary arrivals over the income lookback window.
//
// Candidates are credits of at least MinSalaryAmount carrying a salary
// signal (Income category, or a salary keyword in merchant, description or
// subcategory). When no credit carries the signal, the top-N largest
// qualifying credits stand in (N = lookback months). Empty input yields an
// empty result, never an error.
func (d *Detector) DetectIncome(ctx context.Context, now time.Time) (*SmartIncomeResult, error) {
	now = domain.TruncateToDay(now)
	window := domain.DateRange{Start: now.AddDate(0, -d.cfg.IncomeLookbackMonths, 0), End: now}

	txs, err := d.store.ListTransactionsByDateRange(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("DetectIncome: list transactions: %w", err)
	}

	var candidates, signalled []*domain.Transaction
	for _, t := range txs {
		if t.Direction != domain.Credit || t.Amount < d.cfg.MinSalaryAmount {
			continue
		}
		candidates = append(candidates, t)
		if d.hasSalarySignal(t) {
			signalled = append(signalled, t)
		}
	}

	selected := signalled
	if len(selected) == 0 {
		selected = topNByAmount(candidates, d.cfg.IncomeLookbackMonths)
	}

	result := &SmartIncomeResult{
		SalaryDay:  d.cfg.DefaultSalaryDay,
		Confidence: ConfidenceLow,
	}
	if len(selected) == 0 {
		return result, nil
	}

	// Chronological order; "last salary" is the latest-dated instance and
	// the day-of-month mode breaks ties by first day reaching the max count.
	sortByDate(selected)

	amounts := make([]float64, len(selected))
	for i, t := range selected {
		amounts[i] = t.Amount
	}
	med := median(amounts)
	threshold := med * d.cfg.OutlierMultiplier

	var regular []float64
	for _, t := range selected {
		instance := SalaryInstance{
			TransactionID: t.ID,
			Date:          t.Date,
			Amount:        t.Amount,
		}
		if t.Amount > threshold {
			instance.IsOutlier = true
			result.OutlierCount++
		} else {
			regular = append(regular, t.Amount)
		}
		result.Salaries = append(result.Salaries, instance)
	}

	result.MedianSalary = med
	result.OutlierThreshold = threshold
	result.SalaryCount = len(result.Salaries)
	result.LastSalary = selected[len(selected)-1].Amount
	result.SalaryDay = modeDayOfMonth(selected, d.cfg.DefaultSalaryDay)

	if len(regular) > 0 {
		result.AverageSalary = mean(regular)
	} else {
		// Every instance is a bonus month; the median is the safe average.
		result.AverageSalary = med
	}

	switch {
	case len(regular) >= 4:
		result.Confidence = ConfidenceHigh
	case len(regular) >= 2:
		result.Confidence = ConfidenceMedium
	}

	return result, nil
}

func (d *Detector) hasSalarySignal(t *domain.Transaction) bool {
	if t.Category == d.cfg.IncomeCategory {
		return true
	}
	haystack := strings.ToLower(t.Merchant + " " + t.Description + " " + t.Subcategory)
	for _, kw := range d.cfg.SalaryKeywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// modeDayOfMonth returns the statistical mode of day-of-month across the
// instances; the first day to reach the maximum count wins ties.
func modeDayOfMonth(txs []*domain.Transaction, fallback int) int {
	if len(txs) == 0 {
		return fallback
	}
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, t := range txs {
		day := t.Date.Day()
		counts[day]++
		if counts[day] > bestCount {
			best, bestCount = day, counts[day]
		}
	}
	return best
}

func topNByAmount(txs []*domain.Transaction, n int) []*domain.Transaction {
	sorted := append([]*domain.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func sortByDate(txs []*domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].Seq < txs[j].Seq
	})
}
