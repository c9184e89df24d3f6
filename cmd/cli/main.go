package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/fiscalmonth"
	infraBQ "github.com/dvloznov/ledger-engine/internal/infra/bigquery"
	"github.com/dvloznov/ledger-engine/internal/logger"
	"github.com/dvloznov/ledger-engine/internal/reconcile"
	"github.com/dvloznov/ledger-engine/internal/recurrence"
	"github.com/dvloznov/ledger-engine/internal/transfer"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "reconcile":
		runReconcile(log)
	case "detect-transfers":
		runDetectTransfers(log)
	case "detect-recurring":
		runDetectRecurring(log)
	case "income":
		runIncome(log)
	case "months":
		runMonths(log)
	case "check":
		runCheck(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Ledger Engine CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  reconcile         Recompute running balances for an account")
	fmt.Println("  detect-transfers  Match debits to credits across accounts")
	fmt.Println("  detect-recurring  Detect monthly recurring payments")
	fmt.Println("  income            Detect salary arrivals and the typical income")
	fmt.Println("  months            Resolve salary-anchored financial months")
	fmt.Println("  check             Verify stored balances against a full refold")
	fmt.Println("  help              Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// openStore builds the BigQuery store from the shared flags registered on fs.
func openStore(ctx context.Context, log zerolog.Logger, project, dataset string) *infraBQ.Store {
	if project == "" {
		project = os.Getenv("GCP_PROJECT")
	}
	if project == "" {
		log.Fatal().Msg("Error: --project or GCP_PROJECT is required")
	}
	store, err := infraBQ.New(ctx, project, dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery store")
	}
	return store
}

func runReconcile(log zerolog.Logger) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	project := fs.String("project", "", "GCP project id")
	dataset := fs.String("dataset", "ledger", "BigQuery dataset")
	accountID := fs.String("account", "", "Account ID to reconcile")
	fs.Parse(os.Args[2:])

	if *accountID == "" {
		log.Fatal().Msg("Error: --account is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store := openStore(ctx, log, *project, *dataset)
	defer store.Close()

	result, err := reconcile.New(store, log).Reconcile(ctx, *accountID)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconcile failed")
	}
	if result == nil {
		fmt.Printf("Account %s not found; nothing to do.\n", *accountID)
		return
	}

	fmt.Printf("Reconciled %s: balance %.2f, %d transactions seen, %d balances rewritten\n",
		result.AccountID, result.FinalBalance, result.TransactionsSeen, result.BalancesRewritten)
}

func runDetectTransfers(log zerolog.Logger) {
	fs := flag.NewFlagSet("detect-transfers", flag.ExitOnError)
	project := fs.String("project", "", "GCP project id")
	dataset := fs.String("dataset", "ledger", "BigQuery dataset")
	link := fs.Bool("link", false, "link every detected pair instead of only reporting")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store := openStore(ctx, log, *project, *dataset)
	defer store.Close()

	detector := transfer.New(store, transfer.DefaultConfig(), log)
	detected, err := detector.Detect(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Transfer detection failed")
	}

	for _, d := range detected {
		fmt.Printf("%.2f  %s -> %s  confidence %.2f  (%v)\n",
			d.Outgoing.Amount, d.Outgoing.AccountID, d.Incoming.AccountID, d.Confidence, d.Reasons)
		if *link {
			if err := detector.LinkAsTransfer(ctx, d.Outgoing.ID, d.Incoming.ID); err != nil {
				log.Error().Err(err).Str("outgoing_id", d.Outgoing.ID).Msg("Link failed")
			}
		}
	}
	fmt.Printf("%d transfer pairs detected.\n", len(detected))
}

func runDetectRecurring(log zerolog.Logger) {
	fs := flag.NewFlagSet("detect-recurring", flag.ExitOnError)
	project := fs.String("project", "", "GCP project id")
	dataset := fs.String("dataset", "ledger", "BigQuery dataset")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store := openStore(ctx, log, *project, *dataset)
	defer store.Close()

	detector := recurrence.New(store, recurrence.DefaultConfig(), log)
	detected, err := detector.DetectMonthly(ctx, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Recurrence detection failed")
	}

	for _, rec := range detected {
		fmt.Printf("%s  %.2f monthly, day %d, next expected %s (%d occurrences)\n",
			rec.Name, rec.Amount, rec.ExpectedDay, rec.NextExpected.Format("2006-01-02"), len(rec.Occurrences))
	}
	fmt.Printf("%d recurring series detected.\n", len(detected))

	bills, err := detector.PredictUpcoming(ctx, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Bill prediction failed")
	}
	for _, b := range bills {
		fmt.Printf("Upcoming: %s  ~%.2f on %s (%d days, %s confidence)\n",
			b.Merchant, b.Amount, b.ExpectedDate.Format("2006-01-02"), b.DaysUntil, b.Confidence)
	}
}

func runIncome(log zerolog.Logger) {
	fs := flag.NewFlagSet("income", flag.ExitOnError)
	project := fs.String("project", "", "GCP project id")
	dataset := fs.String("dataset", "ledger", "BigQuery dataset")
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store := openStore(ctx, log, *project, *dataset)
	defer store.Close()

	result, err := recurrence.New(store, recurrence.DefaultConfig(), log).DetectIncome(ctx, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Income detection failed")
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(result)
		return
	}

	fmt.Printf("Average salary: %.2f (median %.2f, last %.2f)\n",
		result.AverageSalary, result.MedianSalary, result.LastSalary)
	fmt.Printf("Salary day: %d, %d instances (%d outliers), confidence %s\n",
		result.SalaryDay, result.SalaryCount, result.OutlierCount, result.Confidence)
}

func runMonths(log zerolog.Logger) {
	fs := flag.NewFlagSet("months", flag.ExitOnError)
	project := fs.String("project", "", "GCP project id")
	dataset := fs.String("dataset", "ledger", "BigQuery dataset")
	fixedDay := fs.Int("fixed-day", 0, "use fixed mode starting on this day-of-month")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store := openStore(ctx, log, *project, *dataset)
	defer store.Close()

	settings := fiscalmonth.DefaultSettings()
	var salaryDates []time.Time
	if *fixedDay > 0 {
		settings.Mode = fiscalmonth.ModeFixed
		settings.FixedStartDay = *fixedDay
	} else {
		income, err := recurrence.New(store, recurrence.DefaultConfig(), log).DetectIncome(ctx, time.Now())
		if err != nil {
			log.Fatal().Err(err).Msg("Income detection failed")
		}
		for _, s := range income.Salaries {
			salaryDates = append(salaryDates, s.Date)
		}
	}

	resolver, err := fiscalmonth.Resolve(salaryDates, settings, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve financial months")
	}

	current := resolver.Current()
	for _, m := range resolver.All() {
		marker := " "
		if m.ID == current.ID {
			marker = "*"
		}
		fmt.Printf("%s %s  %s .. %s\n", marker, m.ID,
			m.PeriodStart.Format("2006-01-02"), m.PeriodEnd.Format("2006-01-02"))
	}
}

func runCheck(log zerolog.Logger) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	project := fs.String("project", "", "GCP project id")
	dataset := fs.String("dataset", "ledger", "BigQuery dataset")
	accountID := fs.String("account", "", "Account ID to check")
	fs.Parse(os.Args[2:])

	if *accountID == "" {
		log.Fatal().Msg("Error: --account is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store := openStore(ctx, log, *project, *dataset)
	defer store.Close()

	report, err := reconcile.New(store, log).CheckConsistency(ctx, *accountID)
	if err != nil {
		log.Fatal().Err(err).Msg("Consistency check failed")
	}

	if report.Consistent() {
		fmt.Printf("Account %s is consistent.\n", *accountID)
		return
	}
	for _, m := range report.Mismatches {
		fmt.Printf("Mismatch on %s: stored %.2f, recomputed %.2f\n",
			m.TransactionID, m.Stored, m.Recomputed)
	}
	os.Exit(1)
}
