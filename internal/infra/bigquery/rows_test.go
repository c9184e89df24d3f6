package bigquery

import (
	"testing"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

func TestDateConversionRoundTrip(t *testing.T) {
	day := domain.Day(2026, 2, 28)
	if got := dayOf(civilOf(day)); !got.Equal(day) {
		t.Errorf("round trip = %v, want %v", got, day)
	}

	if nd := nullDateOf(time.Time{}); nd.Valid {
		t.Error("zero time should map to a NULL date")
	}
	if got := timeOfNullDate(nullDateOf(day)); !got.Equal(day) {
		t.Errorf("null date round trip = %v, want %v", got, day)
	}
}

func TestOccurrencesJSONRoundTrip(t *testing.T) {
	occs := []domain.Occurrence{
		{TransactionID: "tx-1", Date: domain.Day(2026, 3, 15), Amount: 9.99, Status: domain.OccurrencePaid},
		{TransactionID: "tx-2", Date: domain.Day(2026, 4, 15), Amount: 9.99, Status: domain.OccurrencePending},
	}

	got, err := occurrencesFromJSON(occurrencesToJSON(occs))
	if err != nil {
		t.Fatalf("occurrencesFromJSON failed: %v", err)
	}
	if len(got) != len(occs) {
		t.Fatalf("round trip length = %d, want %d", len(got), len(occs))
	}
	for i := range occs {
		if got[i].TransactionID != occs[i].TransactionID ||
			!got[i].Date.Equal(occs[i].Date) ||
			got[i].Amount != occs[i].Amount ||
			got[i].Status != occs[i].Status {
			t.Errorf("occurrence %d = %+v, want %+v", i, got[i], occs[i])
		}
	}

	empty, err := occurrencesFromJSON(occurrencesToJSON(nil))
	if err != nil {
		t.Fatalf("empty round trip failed: %v", err)
	}
	if empty != nil {
		t.Errorf("empty occurrences = %v, want nil", empty)
	}
}
