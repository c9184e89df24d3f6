package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// runReport is the JSON document archived after each pipeline run.
type runReport struct {
	StartedAt        time.Time       `json:"started_at"`
	GeneratedAt      time.Time       `json:"generated_at"`
	AccountsSeen     int             `json:"accounts_seen"`
	Reconciliations  json.RawMessage `json:"reconciliations"`
	Transfers        json.RawMessage `json:"transfers"`
	RecurringUpdated int             `json:"recurring_updated"`
	Income           json.RawMessage `json:"income"`
	UpcomingBills    json.RawMessage `json:"upcoming_bills"`
}

func buildReport(state *PipelineState) ([]byte, error) {
	recon, err := json.Marshal(state.ReconcileResults)
	if err != nil {
		return nil, fmt.Errorf("buildReport: marshal reconciliations: %w", err)
	}
	transfers, err := json.Marshal(state.Transfers)
	if err != nil {
		return nil, fmt.Errorf("buildReport: marshal transfers: %w", err)
	}
	income, err := json.Marshal(state.Income)
	if err != nil {
		return nil, fmt.Errorf("buildReport: marshal income: %w", err)
	}
	bills, err := json.Marshal(state.UpcomingBills)
	if err != nil {
		return nil, fmt.Errorf("buildReport: marshal bills: %w", err)
	}

	report := runReport{
		StartedAt:        state.StartedAt,
		GeneratedAt:      time.Now(),
		AccountsSeen:     len(state.ReconcileResults),
		Reconciliations:  recon,
		Transfers:        transfers,
		RecurringUpdated: len(state.Recurring),
		Income:           income,
		UpcomingBills:    bills,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("buildReport: marshal report: %w", err)
	}
	return data, nil
}
