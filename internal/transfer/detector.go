// Package transfer pairs opposite-sign transactions across accounts into
// transfer links with a confidence score.
package transfer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/rs/zerolog"
)

// Config holds the detection thresholds. The defaults are deliberate,
// fixed constants of the matching heuristic.
type Config struct {
	// LookbackMonths bounds the detection window.
	LookbackMonths int
	// DayTolerance is the maximum day offset between the two sides.
	DayTolerance int
	// AmountTolerance is the relative amount difference absorbed as transfer
	// fees (0.02 = 2%).
	AmountTolerance float64
	// Keywords are matched case-insensitively against either side's
	// description. Language-specific; configurable per deployment.
	Keywords []string
	// TransferCategory is the category both sides are reclassified into on
	// linking, and scores a bonus when already present.
	TransferCategory string
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		LookbackMonths:   12,
		DayTolerance:     3,
		AmountTolerance:  0.02,
		Keywords:         []string{"virement", "transfer", "interne"},
		TransferCategory: "Transfer",
	}
}

// DetectedTransfer is a proposed pairing of an outgoing debit with an
// incoming credit in another account. Reasons are human-readable match
// explanations for audit and UI display.
type DetectedTransfer struct {
	Outgoing   *domain.Transaction `json:"outgoing"`
	Incoming   *domain.Transaction `json:"incoming"`
	Confidence float64             `json:"confidence"`
	Reasons    []string            `json:"reasons"`
}

// Matcher selects transfer pairs from candidate debits and credits.
//
// The shipped implementation is a one-pass greedy matcher (best candidate
// per debit, consumed candidates leave the pool). It is a known
// simplification, not a global optimum; the interface exists so a global
// matching strategy could be substituted without touching callers.
type Matcher interface {
	Match(debits, credits []*domain.Transaction) []DetectedTransfer
}

// Detector runs transfer detection passes and performs link writes.
type Detector struct {
	store   ledger.Store
	matcher Matcher
	cfg     Config
	log     zerolog.Logger
}

// New creates a detector with the greedy matcher.
func New(store ledger.Store, cfg Config, log zerolog.Logger) *Detector {
	return &Detector{
		store:   store,
		matcher: &greedyMatcher{cfg: cfg},
		cfg:     cfg,
		log:     log,
	}
}

// Detect scans the lookback window and proposes transfer pairs. It performs
// no writes; linking is a separate, explicit operation.
func (d *Detector) Detect(ctx context.Context) ([]DetectedTransfer, error) {
	now := domain.TruncateToDay(time.Now())
	window := domain.DateRange{Start: now.AddDate(0, -d.cfg.LookbackMonths, 0), End: now}

	txs, err := d.store.ListTransactionsByDateRange(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("Detect: list transactions: %w", err)
	}

	var debits, credits []*domain.Transaction
	for _, t := range txs {
		if t.IsLinked() {
			continue
		}
		switch t.Direction {
		case domain.Debit:
			debits = append(debits, t)
		case domain.Credit:
			credits = append(credits, t)
		}
	}

	detected := d.matcher.Match(debits, credits)
	d.log.Debug().
		Int("debits", len(debits)).
		Int("credits", len(credits)).
		Int("detected", len(detected)).
		Msg("Transfer detection pass complete")
	return detected, nil
}

// greedyMatcher is the one-pass greedy maximum-confidence-per-debit matcher.
type greedyMatcher struct {
	cfg Config
}

func (m *greedyMatcher) Match(debits, credits []*domain.Transaction) []DetectedTransfer {
	var out []DetectedTransfer
	consumed := make(map[string]bool)

	for _, debit := range debits {
		var best *DetectedTransfer
		for _, credit := range credits {
			if consumed[credit.ID] {
				continue
			}
			// Self-pairing is forbidden.
			if credit.AccountID == debit.AccountID {
				continue
			}
			confidence, reasons, ok := m.score(debit, credit)
			if !ok {
				continue
			}
			// First found wins within the scored pool.
			if best == nil || confidence > best.Confidence {
				best = &DetectedTransfer{
					Outgoing:   debit,
					Incoming:   credit,
					Confidence: confidence,
					Reasons:    reasons,
				}
			}
		}
		if best == nil || best.Confidence < 0.5 {
			continue
		}
		consumed[best.Incoming.ID] = true
		out = append(out, *best)
	}
	return out
}

// score rates one debit/credit pair. ok is false when the pair fails the
// hard amount or day-window constraints.
func (m *greedyMatcher) score(debit, credit *domain.Transaction) (float64, []string, bool) {
	amountDiff := math.Abs(debit.Amount - credit.Amount)
	if amountDiff > debit.Amount*m.cfg.AmountTolerance {
		return 0, nil, false
	}

	dayDelta := int(math.Abs(credit.Date.Sub(debit.Date).Hours()) / 24)
	if dayDelta > m.cfg.DayTolerance {
		return 0, nil, false
	}

	confidence := 0.5
	var reasons []string

	if amountDiff < 0.005 {
		confidence += 0.2
		reasons = append(reasons, "exact amount match")
	} else {
		reasons = append(reasons, fmt.Sprintf("amount within %.0f%% tolerance", m.cfg.AmountTolerance*100))
	}

	switch {
	case dayDelta == 0:
		confidence += 0.15
		reasons = append(reasons, "same day")
	case dayDelta == 1:
		confidence += 0.10
		reasons = append(reasons, "1 day apart")
	default:
		confidence += 0.05
		reasons = append(reasons, fmt.Sprintf("%d days apart", dayDelta))
	}

	if kw := m.keywordHit(debit.Description); kw != "" {
		confidence += 0.10
		reasons = append(reasons, fmt.Sprintf("keyword %q in outgoing description", kw))
	} else if kw := m.keywordHit(credit.Description); kw != "" {
		confidence += 0.10
		reasons = append(reasons, fmt.Sprintf("keyword %q in incoming description", kw))
	}

	if debit.Category == m.cfg.TransferCategory || credit.Category == m.cfg.TransferCategory {
		confidence += 0.05
		reasons = append(reasons, "already categorized as transfer")
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence, reasons, true
}

func (m *greedyMatcher) keywordHit(description string) string {
	lower := strings.ToLower(description)
	for _, kw := range m.cfg.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw
		}
	}
	return ""
}
