// Command worker runs the full detection pipeline on a fixed interval:
// reconcile every account, detect transfers, detect recurring series and
// archive the resulting report. Use --once for a single run from cron.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/gcsarchive"
	infraBQ "github.com/dvloznov/ledger-engine/internal/infra/bigquery"
	"github.com/dvloznov/ledger-engine/internal/logger"
	"github.com/dvloznov/ledger-engine/internal/pipeline"
	"github.com/dvloznov/ledger-engine/internal/reconcile"
	"github.com/dvloznov/ledger-engine/internal/recurrence"
	"github.com/dvloznov/ledger-engine/internal/transfer"
)

func main() {
	var (
		project  = flag.String("project", os.Getenv("GCP_PROJECT"), "GCP project id (or set GCP_PROJECT)")
		dataset  = flag.String("dataset", "ledger", "BigQuery dataset holding the ledger tables")
		bucket   = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for pipeline reports (or set GCS_BUCKET)")
		interval = flag.Duration("interval", 6*time.Hour, "time between pipeline runs")
		once     = flag.Bool("once", false, "run the pipeline once and exit")
	)
	flag.Parse()

	log := logger.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *project == "" {
		log.Fatal().Msg("No GCP project configured - pass --project or set GCP_PROJECT")
	}

	store, err := infraBQ.New(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery store")
	}
	defer store.Close()

	var archiver pipeline.Archiver
	if *bucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer storageClient.Close()
		archiver = gcsarchive.New(storageClient, *bucket)
	} else {
		log.Warn().Msg("No GCS bucket configured - pipeline reports will not be archived")
	}

	detectionPipeline := pipeline.NewDetectionPipeline(
		store,
		reconcile.New(store, log),
		transfer.New(store, transfer.DefaultConfig(), log),
		recurrence.New(store, recurrence.DefaultConfig(), log),
		archiver,
		log,
	)

	if *once {
		if err := runOnce(ctx, detectionPipeline, log); err != nil {
			os.Exit(1)
		}
		return
	}

	log.Info().Dur("interval", *interval).Msg("Starting pipeline worker")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	runOnce(ctx, detectionPipeline, log)
	for {
		select {
		case <-ticker.C:
			runOnce(ctx, detectionPipeline, log)
		case <-quit:
			log.Info().Msg("Shutting down pipeline worker")
			cancel()
			return
		}
	}
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, log zerolog.Logger) error {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()
	runCtx = logger.WithContext(runCtx, log)

	state, err := p.Execute(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("Pipeline run failed")
		return err
	}

	log.Info().
		Int("accounts_reconciled", len(state.ReconcileResults)).
		Int("transfers_detected", len(state.Transfers)).
		Int("recurring_detected", len(state.Recurring)).
		Str("report_uri", state.ArchiveURI).
		Msg("Pipeline run complete")
	return nil
}
