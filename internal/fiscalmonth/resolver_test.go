package fiscalmonth

import (
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

func TestResolve_AutoPartitionsBetweenSalaries(t *testing.T) {
	now := domain.Day(2026, 6, 10)
	salaries := []time.Time{
		domain.Day(2026, 3, 25),
		domain.Day(2026, 4, 24),
		domain.Day(2026, 5, 25),
	}

	r, err := Resolve(salaries, DefaultSettings(), now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("periods = %d, want 3", r.Len())
	}

	all := r.All()
	wantBounds := []struct{ start, end time.Time }{
		{domain.Day(2026, 3, 25), domain.Day(2026, 4, 23)},
		{domain.Day(2026, 4, 24), domain.Day(2026, 5, 24)},
		{domain.Day(2026, 5, 25), now},
	}
	for i, want := range wantBounds {
		if !all[i].PeriodStart.Equal(want.start) || !all[i].PeriodEnd.Equal(want.end) {
			t.Errorf("period %d = [%v, %v], want [%v, %v]",
				i, all[i].PeriodStart, all[i].PeriodEnd, want.start, want.end)
		}
	}

	// Contiguity: each period starts the day after the previous one ends.
	for i := 1; i < len(all); i++ {
		if !all[i].PeriodStart.Equal(all[i-1].PeriodEnd.AddDate(0, 0, 1)) {
			t.Errorf("gap or overlap between period %d and %d", i-1, i)
		}
	}

	if cur := r.Current(); !cur.PeriodStart.Equal(domain.Day(2026, 5, 25)) {
		t.Errorf("current period starts %v, want 2026-05-25", cur.PeriodStart)
	}
}

func TestResolve_AutoWithoutSalariesIsUndetermined(t *testing.T) {
	_, err := Resolve(nil, DefaultSettings(), domain.Day(2026, 6, 10))
	if !errors.Is(err, ErrUndetermined) {
		t.Fatalf("err = %v, want ErrUndetermined", err)
	}
}

func TestResolve_AutoDeduplicatesSameDaySalaries(t *testing.T) {
	now := domain.Day(2026, 6, 10)
	salaries := []time.Time{
		domain.Day(2026, 4, 25),
		domain.Day(2026, 4, 25),
		domain.Day(2026, 5, 25),
	}

	r, err := Resolve(salaries, DefaultSettings(), now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("periods = %d, want 2 after same-day dedupe", r.Len())
	}
}

func TestResolve_FixedMode(t *testing.T) {
	now := domain.Day(2026, 6, 10)
	settings := Settings{Mode: ModeFixed, FixedStartDay: 28, MonthsBack: 3}

	r, err := Resolve(nil, settings, now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if r.Len() != 4 {
		t.Fatalf("periods = %d, want 4", r.Len())
	}

	all := r.All()
	// June 10 precedes June 28, so the current period started May 28. The
	// February start clamps to the month's last day.
	wantStarts := []time.Time{
		domain.Day(2026, 2, 28),
		domain.Day(2026, 3, 28),
		domain.Day(2026, 4, 28),
		domain.Day(2026, 5, 28),
	}
	for i, want := range wantStarts {
		if !all[i].PeriodStart.Equal(want) {
			t.Errorf("period %d starts %v, want %v", i, all[i].PeriodStart, want)
		}
	}
	if !all[3].PeriodEnd.Equal(now) {
		t.Errorf("current period ends %v, want now", all[3].PeriodEnd)
	}
	if cur := r.Current(); !cur.PeriodStart.Equal(domain.Day(2026, 5, 28)) {
		t.Errorf("current period starts %v, want 2026-05-28", cur.PeriodStart)
	}
}

func TestResolve_Navigation(t *testing.T) {
	now := domain.Day(2026, 6, 10)
	salaries := []time.Time{
		domain.Day(2026, 3, 25),
		domain.Day(2026, 4, 25),
		domain.Day(2026, 5, 25),
	}

	r, err := Resolve(salaries, DefaultSettings(), now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	prev, ok := r.Prev()
	if !ok || !prev.PeriodStart.Equal(domain.Day(2026, 4, 25)) {
		t.Errorf("Prev = %v ok=%v, want 2026-04-25 period", prev.PeriodStart, ok)
	}
	next, ok := r.Next()
	if !ok || !next.PeriodStart.Equal(domain.Day(2026, 5, 25)) {
		t.Errorf("Next = %v ok=%v, want 2026-05-25 period", next.PeriodStart, ok)
	}

	// At the newest period Next stays put.
	if _, ok := r.Next(); ok {
		t.Error("Next past the newest period reported ok")
	}

	// Walk to the oldest period; one more Prev stays put.
	r.Prev()
	r.Prev()
	if _, ok := r.Prev(); ok {
		t.Error("Prev past the oldest period reported ok")
	}

	if _, ok := r.At(99); ok {
		t.Error("At(99) reported ok")
	}
	if m, ok := r.At(0); !ok || !m.PeriodStart.Equal(domain.Day(2026, 3, 25)) {
		t.Errorf("At(0) = %v ok=%v, want oldest period", m.PeriodStart, ok)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	now := domain.Day(2026, 6, 10)
	salaries := []time.Time{
		domain.Day(2026, 5, 25),
		domain.Day(2026, 3, 25),
		domain.Day(2026, 4, 24),
	}

	a, err := Resolve(salaries, DefaultSettings(), now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	b, err := Resolve(salaries, DefaultSettings(), now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	am, bm := a.All(), b.All()
	if len(am) != len(bm) {
		t.Fatalf("lengths differ: %d vs %d", len(am), len(bm))
	}
	for i := range am {
		if am[i] != bm[i] {
			t.Errorf("period %d differs between runs", i)
		}
	}
}
