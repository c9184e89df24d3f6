// Package fiscalmonth partitions time into salary-anchored budgeting periods
// instead of calendar months. The partition is a pure function of the salary
// dates, the settings and the reference "now": the same inputs always produce
// the same periods.
package fiscalmonth

import (
	"errors"
	"sort"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// Mode selects how period boundaries are anchored.
type Mode string

const (
	// ModeAuto anchors periods to detected salary dates.
	ModeAuto Mode = "auto"
	// ModeFixed anchors periods to a configured day-of-month.
	ModeFixed Mode = "fixed"
)

// Settings configure the resolver.
type Settings struct {
	Mode Mode
	// FixedStartDay is the day-of-month periods start on in fixed mode.
	// Clamped to the last day of short months.
	FixedStartDay int
	// MonthsBack is how many historical periods fixed mode produces.
	MonthsBack int
}

// DefaultSettings returns auto mode with a 12-period fixed-mode history.
func DefaultSettings() Settings {
	return Settings{Mode: ModeAuto, FixedStartDay: 1, MonthsBack: 12}
}

// ErrUndetermined is returned in auto mode when no salary instance exists;
// the resolver reports it rather than guessing boundaries.
var ErrUndetermined = errors.New("fiscalmonth: no salary data to anchor periods")

// Resolver holds a resolved period list and a navigation cursor. Navigation
// is index-based over the already produced list; nothing is recomputed per
// step.
type Resolver struct {
	months []domain.FinancialMonth
	index  int
}

// Resolve produces the financial month partition.
//
// In auto mode each period starts on a salary date and ends the day before
// the next salary date; the current period is open-ended and closes at
// "now". In fixed mode periods start on the configured day-of-month. The
// cursor starts on the period containing now (the last period otherwise).
func Resolve(salaryDates []time.Time, settings Settings, now time.Time) (*Resolver, error) {
	now = domain.TruncateToDay(now)

	var months []domain.FinancialMonth
	switch settings.Mode {
	case ModeFixed:
		months = fixedPartition(settings, now)
	default:
		if len(salaryDates) == 0 {
			return nil, ErrUndetermined
		}
		months = salaryPartition(salaryDates, now)
	}

	r := &Resolver{months: months, index: len(months) - 1}
	for i, m := range months {
		if !now.Before(m.PeriodStart) && !now.After(m.PeriodEnd) {
			r.index = i
			break
		}
	}
	return r, nil
}

// Len returns the number of periods.
func (r *Resolver) Len() int { return len(r.months) }

// All returns the full period list, oldest first.
func (r *Resolver) All() []domain.FinancialMonth {
	return append([]domain.FinancialMonth(nil), r.months...)
}

// Current returns the period under the cursor.
func (r *Resolver) Current() domain.FinancialMonth {
	return r.months[r.index]
}

// At returns the period at index i.
func (r *Resolver) At(i int) (domain.FinancialMonth, bool) {
	if i < 0 || i >= len(r.months) {
		return domain.FinancialMonth{}, false
	}
	return r.months[i], true
}

// Next advances the cursor. It stays put at the newest period.
func (r *Resolver) Next() (domain.FinancialMonth, bool) {
	if r.index+1 >= len(r.months) {
		return r.Current(), false
	}
	r.index++
	return r.Current(), true
}

// Prev moves the cursor back. It stays put at the oldest period.
func (r *Resolver) Prev() (domain.FinancialMonth, bool) {
	if r.index == 0 {
		return r.Current(), false
	}
	r.index--
	return r.Current(), true
}

func salaryPartition(salaryDates []time.Time, now time.Time) []domain.FinancialMonth {
	dates := make([]time.Time, 0, len(salaryDates))
	seen := make(map[time.Time]bool)
	for _, d := range salaryDates {
		day := domain.TruncateToDay(d)
		if !seen[day] {
			seen[day] = true
			dates = append(dates, day)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	months := make([]domain.FinancialMonth, 0, len(dates))
	for i, start := range dates {
		end := now
		if i+1 < len(dates) {
			end = dates[i+1].AddDate(0, 0, -1)
		}
		months = append(months, domain.FinancialMonth{
			ID:          start.Format("2006-01-02"),
			PeriodStart: start,
			PeriodEnd:   end,
		})
	}
	return months
}

func fixedPartition(settings Settings, now time.Time) []domain.FinancialMonth {
	day := settings.FixedStartDay
	if day < 1 {
		day = 1
	}
	monthsBack := settings.MonthsBack
	if monthsBack < 1 {
		monthsBack = 12
	}

	// Anchor of the current period: this month's start day, or last month's
	// when now precedes it.
	anchor := clampedDay(now.Year(), now.Month(), day)
	if now.Before(anchor) {
		prev := now.AddDate(0, -1, 0)
		anchor = clampedDay(prev.Year(), prev.Month(), day)
	}

	var months []domain.FinancialMonth
	for i := monthsBack; i >= 0; i-- {
		ref := anchor.AddDate(0, -i, 0)
		start := clampedDay(ref.Year(), ref.Month(), day)
		var end time.Time
		if i == 0 {
			end = now
		} else {
			nextRef := anchor.AddDate(0, -(i - 1), 0)
			end = clampedDay(nextRef.Year(), nextRef.Month(), day).AddDate(0, 0, -1)
		}
		months = append(months, domain.FinancialMonth{
			ID:          start.Format("2006-01-02"),
			PeriodStart: start,
			PeriodEnd:   end,
		})
	}
	return months
}

// clampedDay builds the date for day-of-month in the given month, clamped to
// the month's last day.
func clampedDay(year int, month time.Month, day int) time.Time {
	lastDay := domain.Day(year, month+1, 0).Day()
	if day > lastDay {
		day = lastDay
	}
	return domain.Day(year, month, day)
}
