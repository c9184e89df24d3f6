package recurrence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// PredictedBill is a near-term expected charge for a merchant with a regular
// day-of-month pattern.
type PredictedBill struct {
	Merchant     string    `json:"merchant"`
	Amount       float64   `json:"amount"`
	ExpectedDate time.Time `json:"expected_date"`
	DaysUntil    int       `json:"days_until"`
	Confidence   string    `json:"confidence"`
}

// PredictUpcoming predicts bills due within the prediction horizon.
//
// For merchants with enough prior debits whose day-of-month deviation is
// small, and whose latest occurrence is not already in the current calendar
// month, the next charge is predicted at min(mean day, 28) of the current
// month and reported when it falls 0 to PredictionHorizonDays days out.
func (d *Detector) PredictUpcoming(ctx context.Context, now time.Time) ([]PredictedBill, error) {
	now = domain.TruncateToDay(now)
	window := domain.DateRange{Start: now.AddDate(0, -d.cfg.LookbackMonths, 0), End: now}

	txs, err := d.store.ListTransactionsByDateRange(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("PredictUpcoming: list transactions: %w", err)
	}

	byMerchant := make(map[string][]*domain.Transaction)
	var merchants []string
	for _, t := range txs {
		if t.Direction != domain.Debit || t.Merchant == "" {
			continue
		}
		key := strings.ToLower(t.Merchant)
		if _, ok := byMerchant[key]; !ok {
			merchants = append(merchants, key)
		}
		byMerchant[key] = append(byMerchant[key], t)
	}
	sort.Strings(merchants)

	var out []PredictedBill
	for _, key := range merchants {
		history := byMerchant[key]
		if len(history) < d.cfg.PredictionMinOccurrences {
			continue
		}

		days := make([]float64, len(history))
		amounts := make([]float64, len(history))
		latest := history[0].Date
		for i, t := range history {
			days[i] = float64(t.Date.Day())
			amounts[i] = t.Amount
			if t.Date.After(latest) {
				latest = t.Date
			}
		}

		dayDev := meanAbsDev(days)
		if dayDev >= d.cfg.PredictionDayVariance {
			continue
		}
		// Already charged this calendar month; nothing to predict.
		if latest.Year() == now.Year() && latest.Month() == now.Month() {
			continue
		}

		day := int(math.Round(mean(days)))
		if day > 28 {
			day = 28
		}
		expected := domain.Day(now.Year(), now.Month(), day)
		daysUntil := int(expected.Sub(now).Hours() / 24)
		if daysUntil < 0 || daysUntil > d.cfg.PredictionHorizonDays {
			continue
		}

		confidence := ConfidenceMedium
		meanAmount := mean(amounts)
		if dayDev < d.cfg.PredictionTightDayVariance && meanAmount > 0 &&
			meanAbsDev(amounts)/meanAmount < d.cfg.PredictionAmountVariance {
			confidence = ConfidenceHigh
		}

		out = append(out, PredictedBill{
			Merchant:     history[0].Merchant,
			Amount:       meanAmount,
			ExpectedDate: expected,
			DaysUntil:    daysUntil,
			Confidence:   confidence,
		})
	}
	return out, nil
}
