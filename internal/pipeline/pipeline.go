// Package pipeline chains the ledger maintenance passes into one run:
// reconcile every account, match transfers, detect recurring patterns and
// income, then archive a run report.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/reconcile"
	"github.com/dvloznov/ledger-engine/internal/recurrence"
	"github.com/dvloznov/ledger-engine/internal/transfer"
)

// Archiver persists a finished run report. The GCS implementation lives in
// internal/gcsarchive; tests substitute a fake.
type Archiver interface {
	Upload(ctx context.Context, objectName string, data []byte) (string, error)
}

// PipelineStep is a single stage of the detection pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState is the shared state threaded through the steps.
type PipelineState struct {
	StartedAt time.Time
	Now       time.Time

	ReconcileResults []*reconcile.Result
	Transfers        []transfer.DetectedTransfer
	Recurring        []*domain.RecurringTransaction
	Income           *recurrence.SmartIncomeResult
	UpcomingBills    []recurrence.PredictedBill

	// ArchiveURI is set by the archive step when a report was stored.
	ArchiveURI string
}

// ReconcileAccountsStep refolds running balances for every account.
type ReconcileAccountsStep struct {
	Store      ledger.Store
	Reconciler *reconcile.Reconciler
}

func (s *ReconcileAccountsStep) Execute(ctx context.Context, state *PipelineState) error {
	accounts, err := s.Store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("reconcile accounts: list accounts: %w", err)
	}
	for _, acc := range accounts {
		result, err := s.Reconciler.Reconcile(ctx, acc.ID)
		if err != nil {
			return fmt.Errorf("reconcile accounts: account %s: %w", acc.ID, err)
		}
		if result != nil {
			state.ReconcileResults = append(state.ReconcileResults, result)
		}
	}
	return nil
}

// DetectTransfersStep runs the transfer matching pass.
type DetectTransfersStep struct {
	Detector *transfer.Detector
}

func (s *DetectTransfersStep) Execute(ctx context.Context, state *PipelineState) error {
	detected, err := s.Detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detect transfers: %w", err)
	}
	state.Transfers = detected
	return nil
}

// DetectRecurringStep runs monthly recurrence, income detection and bill
// prediction off the same snapshot.
type DetectRecurringStep struct {
	Detector *recurrence.Detector
}

func (s *DetectRecurringStep) Execute(ctx context.Context, state *PipelineState) error {
	recurring, err := s.Detector.DetectMonthly(ctx, state.Now)
	if err != nil {
		return fmt.Errorf("detect recurring: monthly: %w", err)
	}
	state.Recurring = recurring

	income, err := s.Detector.DetectIncome(ctx, state.Now)
	if err != nil {
		return fmt.Errorf("detect recurring: income: %w", err)
	}
	state.Income = income

	bills, err := s.Detector.PredictUpcoming(ctx, state.Now)
	if err != nil {
		return fmt.Errorf("detect recurring: predict bills: %w", err)
	}
	state.UpcomingBills = bills
	return nil
}

// ArchiveReportStep serializes the run report and hands it to the archiver.
// A nil archiver skips the step.
type ArchiveReportStep struct {
	Archiver Archiver
}

func (s *ArchiveReportStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Archiver == nil {
		return nil
	}
	data, err := buildReport(state)
	if err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	name := fmt.Sprintf("reports/detection-%s.json", state.StartedAt.UTC().Format("20060102T150405Z"))
	uri, err := s.Archiver.Upload(ctx, name, data)
	if err != nil {
		return fmt.Errorf("archive report: upload: %w", err)
	}
	state.ArchiveURI = uri
	return nil
}

// Pipeline executes steps in order, stopping at the first failure.
type Pipeline struct {
	steps []PipelineStep
	log   zerolog.Logger
}

// NewPipeline builds a pipeline over arbitrary steps.
func NewPipeline(log zerolog.Logger, steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps, log: log}
}

// NewDetectionPipeline wires the standard four-step run.
func NewDetectionPipeline(
	store ledger.Store,
	rec *reconcile.Reconciler,
	transfers *transfer.Detector,
	recurring *recurrence.Detector,
	archiver Archiver,
	log zerolog.Logger,
) *Pipeline {
	return NewPipeline(log,
		&ReconcileAccountsStep{Store: store, Reconciler: rec},
		&DetectTransfersStep{Detector: transfers},
		&DetectRecurringStep{Detector: recurring},
		&ArchiveReportStep{Archiver: archiver},
	)
}

// Execute runs the pipeline and returns the final state.
func (p *Pipeline) Execute(ctx context.Context) (*PipelineState, error) {
	state := &PipelineState{
		StartedAt: time.Now(),
		Now:       time.Now(),
	}
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return state, fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
		p.log.Debug().Int("step", i+1).Msg("pipeline step completed")
	}
	p.log.Info().
		Int("accounts_reconciled", len(state.ReconcileResults)).
		Int("transfers_detected", len(state.Transfers)).
		Int("recurring_detected", len(state.Recurring)).
		Int("bills_predicted", len(state.UpcomingBills)).
		Str("archive_uri", state.ArchiveURI).
		Msg("detection pipeline completed")
	return state, nil
}
