package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/ledger-engine/internal/api/handlers"
	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/gcsarchive"
	infraBQ "github.com/dvloznov/ledger-engine/internal/infra/bigquery"
	"github.com/dvloznov/ledger-engine/internal/jobs"
	"github.com/dvloznov/ledger-engine/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/ledger/memstore"
	"github.com/dvloznov/ledger-engine/internal/logger"
	"github.com/dvloznov/ledger-engine/internal/pipeline"
	"github.com/dvloznov/ledger-engine/internal/reconcile"
	"github.com/dvloznov/ledger-engine/internal/recurrence"
	"github.com/dvloznov/ledger-engine/internal/transfer"
)

func main() {
	var (
		port    = flag.String("port", "8080", "HTTP server port")
		project = flag.String("project", os.Getenv("GCP_PROJECT"), "GCP project id (or set GCP_PROJECT)")
		dataset = flag.String("dataset", "ledger", "BigQuery dataset holding the ledger tables")
		bucket  = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for pipeline reports (or set GCS_BUCKET)")
		local   = flag.Bool("local", false, "use the in-memory store instead of BigQuery")
	)
	flag.Parse()

	log := logger.New()
	ctx := context.Background()

	// Storage backend.
	var store ledger.Store
	if *local {
		log.Warn().Msg("Running against the in-memory store - data is not persisted")
		store = memstore.New()
	} else {
		if *project == "" {
			log.Fatal().Msg("No GCP project configured - pass --project or set GCP_PROJECT")
		}
		bqStore, err := infraBQ.New(ctx, *project, *dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery store")
		}
		defer bqStore.Close()
		store = bqStore
	}

	// Engine components.
	reconciler := reconcile.New(store, log)
	transferDetector := transfer.New(store, transfer.DefaultConfig(), log)
	recurrenceDetector := recurrence.New(store, recurrence.DefaultConfig(), log)

	// Report archiving is optional; without a bucket the pipeline skips it.
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
	detectionPipeline := pipeline.NewDetectionPipeline(store, reconciler, transferDetector, recurrenceDetector, archiver, log)

	// Job infrastructure.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job *jobs.LedgerJob) error {
		log.Info().
			Str("job_id", job.JobID).
			Str("type", string(job.Type)).
			Str("account_id", job.AccountID).
			Msg("Processing job")

		switch job.Type {
		case jobs.JobTypeReconcileAccount:
			_, err := reconciler.Reconcile(ctx, job.AccountID)
			return err
		case jobs.JobTypeDetectTransfers:
			_, err := transferDetector.Detect(ctx)
			return err
		case jobs.JobTypeDetectRecurring:
			if _, err := recurrenceDetector.DetectMonthly(ctx, time.Now()); err != nil {
				return err
			}
			_, err := recurrenceDetector.DetectIncome(ctx, time.Now())
			return err
		case jobs.JobTypeRunPipeline:
			_, err := detectionPipeline.Execute(ctx)
			return err
		default:
			return fmt.Errorf("unexpected job type: %s", job.Type)
		}
	}

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Handlers.
	accountsHandler := handlers.NewAccountsHandler(store, reconciler, log)
	transfersHandler := handlers.NewTransfersHandler(transferDetector, log)
	recurringHandler := handlers.NewRecurringHandler(store, recurrenceDetector, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, jobQueue, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			accountsHandler.ListAccounts(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/accounts/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
		parts := strings.Split(rest, "/")
		if parts[0] == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Account ID is required")
			return
		}
		accountID := parts[0]

		switch {
		case len(parts) == 2 && parts[1] == "reconcile" && r.Method == http.MethodPost:
			accountsHandler.Reconcile(w, r, accountID)
		case len(parts) == 2 && parts[1] == "balance" && r.Method == http.MethodGet:
			accountsHandler.Balance(w, r, accountID)
		case len(parts) == 2 && parts[1] == "history" && r.Method == http.MethodGet:
			accountsHandler.History(w, r, accountID)
		case len(parts) == 2 && parts[1] == "transactions" && r.Method == http.MethodGet:
			accountsHandler.Transactions(w, r, accountID)
		case len(parts) == 2 && parts[1] == "consistency" && r.Method == http.MethodGet:
			accountsHandler.Consistency(w, r, accountID)
		case len(parts) == 2 && parts[1] == "checkpoints" && r.Method == http.MethodPost:
			accountsHandler.AddCheckpoint(w, r, accountID)
		case len(parts) == 3 && parts[1] == "checkpoints" && r.Method == http.MethodDelete:
			accountsHandler.DeleteCheckpoint(w, r, accountID, parts[2])
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	mux.HandleFunc("/api/transfers/detect", postOnly(transfersHandler.Detect))
	mux.HandleFunc("/api/transfers/link", postOnly(transfersHandler.Link))
	mux.HandleFunc("/api/transfers/unlink", postOnly(transfersHandler.Unlink))

	mux.HandleFunc("/api/recurring", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			recurringHandler.List(w, r)
		case http.MethodPost:
			recurringHandler.Create(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	mux.HandleFunc("/api/recurring/detect", postOnly(recurringHandler.Detect))
	mux.HandleFunc("/api/recurring/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/recurring/")
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPost {
			recurringHandler.SetStatus(w, r, parts[0])
			return
		}
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	mux.HandleFunc("/api/income", getOnly(recurringHandler.Income))
	mux.HandleFunc("/api/bills/upcoming", getOnly(recurringHandler.UpcomingBills))
	mux.HandleFunc("/api/months", getOnly(recurringHandler.Months))

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			jobsHandler.ListJobs(w, r)
		case http.MethodPost:
			jobsHandler.Enqueue(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting ledger API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}
