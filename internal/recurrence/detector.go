// Package recurrence finds repeating debit/credit patterns in the ledger:
// monthly bills and subscriptions, salary arrivals, and near-term bill
// predictions. Detection is conservative and read-mostly; the only mutation
// is materializing a RecurringTransaction record, which never duplicates an
// existing entry for the same logical series.
package recurrence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/rs/zerolog"
)

// Detector runs recurrence detection passes over the ledger.
type Detector struct {
	store ledger.Store
	cfg   Config
	log   zerolog.Logger
}

// New creates a detector.
func New(store ledger.Store, cfg Config, log zerolog.Logger) *Detector {
	return &Detector{store: store, cfg: cfg, log: log}
}

// group is one (merchant, rounded amount) bucket of debit transactions,
// kept in (date, seq) order.
type group struct {
	merchant string
	txs      []*domain.Transaction
}

// DetectMonthly scans the lookback window for debit series whose mean
// day-gap falls in the monthly band and materializes them as monthly
// RecurringTransaction records. Series with fewer than MinOccurrences
// members never fire. A user-created entry of the same name short-circuits
// recreation; entries from earlier detection passes are updated in place.
func (d *Detector) DetectMonthly(ctx context.Context, now time.Time) ([]*domain.RecurringTransaction, error) {
	now = domain.TruncateToDay(now)
	window := domain.DateRange{Start: now.AddDate(0, -d.cfg.LookbackMonths, 0), End: now}

	txs, err := d.store.ListTransactionsByDateRange(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("DetectMonthly: list transactions: %w", err)
	}

	groups := groupDebits(txs)

	var out []*domain.RecurringTransaction
	for _, g := range groups {
		if len(g.txs) < d.cfg.MinOccurrences {
			continue
		}
		gap := meanDayGap(g.txs)
		if gap < d.cfg.MonthlyGapMin || gap > d.cfg.MonthlyGapMax {
			continue
		}

		rec, err := d.materializeMonthly(ctx, g)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}

	d.log.Debug().
		Int("transactions", len(txs)).
		Int("series", len(out)).
		Msg("Monthly recurrence detection pass complete")
	return out, nil
}

// materializeMonthly creates or updates the RecurringTransaction for one
// detected group. Returns nil when an existing user-created entry blocks
// the series.
func (d *Detector) materializeMonthly(ctx context.Context, g group) (*domain.RecurringTransaction, error) {
	latest := g.txs[len(g.txs)-1]

	var amounts []float64
	occurrences := make([]domain.Occurrence, 0, len(g.txs))
	for _, t := range g.txs {
		amounts = append(amounts, t.Amount)
		occurrences = append(occurrences, domain.Occurrence{
			TransactionID: t.ID,
			Date:          t.Date,
			Amount:        t.Amount,
			Status:        domain.OccurrencePaid,
		})
	}

	amount := mean(amounts)
	expectedDay := latest.Date.Day()
	nextExpected := latest.Date.AddDate(0, 1, 0)

	existing, err := d.store.FindRecurringByName(ctx, g.merchant)
	if err != nil {
		return nil, fmt.Errorf("materializeMonthly: find %q: %w", g.merchant, err)
	}
	if existing != nil {
		// Never merge a detected series into a user-created entry.
		if existing.SeedTransactionID != "" {
			return nil, nil
		}
		patch := ledger.RecurringPatch{
			Amount:       &amount,
			ExpectedDay:  &expectedDay,
			LastDetected: &latest.Date,
			NextExpected: &nextExpected,
			Occurrences:  &occurrences,
		}
		if err := d.store.UpdateRecurring(ctx, existing.ID, patch); err != nil {
			return nil, fmt.Errorf("materializeMonthly: update %q: %w", g.merchant, err)
		}
		updated := *existing
		updated.Amount = amount
		updated.ExpectedDay = expectedDay
		updated.LastDetected = latest.Date
		updated.NextExpected = nextExpected
		updated.Occurrences = occurrences
		d.flagRecurring(ctx, g.txs)
		return &updated, nil
	}

	rec := &domain.RecurringTransaction{
		Name:         g.merchant,
		Amount:       amount,
		Frequency:    domain.Monthly,
		ExpectedDay:  expectedDay,
		LastDetected: latest.Date,
		NextExpected: nextExpected,
		Status:       domain.RecurringActive,
		Occurrences:  occurrences,
	}
	id, err := d.store.AddRecurring(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("materializeMonthly: add %q: %w", g.merchant, err)
	}
	rec.ID = id
	d.flagRecurring(ctx, g.txs)
	return rec, nil
}

// flagRecurring marks matched transactions isRecurring. Failures are logged,
// not fatal: the flag is a classification hint, not ledger state.
func (d *Detector) flagRecurring(ctx context.Context, txs []*domain.Transaction) {
	flag := true
	for _, t := range txs {
		if t.IsRecurring {
			continue
		}
		if err := d.store.UpdateTransaction(ctx, t.ID, ledger.TransactionPatch{IsRecurring: &flag}); err != nil {
			d.log.Warn().Err(err).Str("transaction_id", t.ID).Msg("Failed to flag recurring transaction")
		}
	}
}

// CreateFromTransaction explicitly materializes a recurring series seeded by
// one transaction. Duplicate seeds and duplicate names are rejected as
// conflicts rather than silently recreated.
func (d *Detector) CreateFromTransaction(ctx context.Context, txID string, frequency domain.Frequency) (*domain.RecurringTransaction, error) {
	tx, err := d.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("CreateFromTransaction: get transaction %s: %w", txID, err)
	}

	name := tx.Merchant
	if name == "" {
		name = tx.Description
	}
	existing, err := d.store.FindRecurringByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("CreateFromTransaction: find %q: %w", name, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("CreateFromTransaction: series %q already exists: %w", name, ledger.ErrConflict)
	}

	rec := &domain.RecurringTransaction{
		Name:              name,
		Amount:            tx.Amount,
		Frequency:         frequency,
		ExpectedDay:       tx.Date.Day(),
		LastDetected:      tx.Date,
		NextExpected:      nextAfter(tx.Date, frequency),
		Status:            domain.RecurringActive,
		SeedTransactionID: tx.ID,
		Occurrences: []domain.Occurrence{
			{TransactionID: tx.ID, Date: tx.Date, Amount: tx.Amount, Status: domain.OccurrencePaid},
		},
	}
	id, err := d.store.AddRecurring(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("CreateFromTransaction: add %q: %w", name, err)
	}
	rec.ID = id
	d.flagRecurring(ctx, []*domain.Transaction{tx})
	return rec, nil
}

// SetStatus transitions a recurring series' lifecycle state. Records are
// never deleted; cancellation keeps the occurrence history.
func (d *Detector) SetStatus(ctx context.Context, id string, status domain.RecurringStatus) error {
	patch := ledger.RecurringPatch{Status: &status}
	if err := d.store.UpdateRecurring(ctx, id, patch); err != nil {
		return fmt.Errorf("SetStatus: update %s: %w", id, err)
	}
	return nil
}

func nextAfter(date time.Time, f domain.Frequency) time.Time {
	switch f {
	case domain.Weekly:
		return date.AddDate(0, 0, 7)
	case domain.Biweekly:
		return date.AddDate(0, 0, 14)
	case domain.Quarterly:
		return date.AddDate(0, 3, 0)
	case domain.Yearly:
		return date.AddDate(1, 0, 0)
	default:
		return date.AddDate(0, 1, 0)
	}
}

// groupDebits buckets debit transactions by (merchant, rounded amount),
// preserving (date, seq) order within each bucket. Bucket iteration order is
// deterministic (sorted keys) so detection passes are reproducible.
func groupDebits(txs []*domain.Transaction) []group {
	buckets := make(map[string]*group)
	var keys []string
	for _, t := range txs {
		if t.Direction != domain.Debit || t.Merchant == "" {
			continue
		}
		key := fmt.Sprintf("%s|%d", strings.ToLower(t.Merchant), int64(math.Round(t.Amount)))
		g, ok := buckets[key]
		if !ok {
			g = &group{merchant: t.Merchant}
			buckets[key] = g
			keys = append(keys, key)
		}
		g.txs = append(g.txs, t)
	}
	sort.Strings(keys)

	out := make([]group, 0, len(keys))
	for _, key := range keys {
		out = append(out, *buckets[key])
	}
	return out
}

// meanDayGap is the mean gap in days between consecutive dates, dates sorted
// ascending.
func meanDayGap(txs []*domain.Transaction) float64 {
	if len(txs) < 2 {
		return 0
	}
	dates := make([]time.Time, len(txs))
	for i, t := range txs {
		dates[i] = t.Date
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var gaps []float64
	for i := 1; i < len(dates); i++ {
		gaps = append(gaps, dates[i].Sub(dates[i-1]).Hours()/24)
	}
	return mean(gaps)
}
