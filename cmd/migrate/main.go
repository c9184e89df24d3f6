// Command migrate applies the BigQuery schema migrations embedded in this
// binary. Applied versions are tracked in a schema_migrations table so the
// tool can be re-run safely.
package main

import (
	"context"
	"crypto/sha256"
	"embed"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledger-engine/internal/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var filenamePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

type migration struct {
	Version  int
	Name     string
	Filename string
	Content  string
	Checksum string
}

func main() {
	var (
		project = flag.String("project", os.Getenv("GCP_PROJECT"), "GCP project id (or set GCP_PROJECT)")
		dataset = flag.String("dataset", "ledger", "BigQuery dataset to migrate")
		dryRun  = flag.Bool("dry-run", false, "list pending migrations without applying them")
	)
	flag.Parse()

	log := logger.New()
	if *project == "" {
		log.Fatal().Msg("No GCP project configured - pass --project or set GCP_PROJECT")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := bigquery.NewClient(ctx, *project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	migrations, err := loadMigrations(*project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load embedded migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("Loaded migrations")

	if err := ensureMigrationsTable(ctx, client, *project, *dataset); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}

	applied, err := appliedVersions(ctx, client, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read applied migrations")
	}

	pending := 0
	for _, m := range migrations {
		if checksum, ok := applied[m.Version]; ok {
			if checksum != m.Checksum {
				log.Fatal().
					Int("version", m.Version).
					Str("name", m.Name).
					Msg("Applied migration content has changed - refusing to continue")
			}
			continue
		}
		pending++
		if *dryRun {
			log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Pending migration")
			continue
		}

		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")
		if err := applyMigration(ctx, client, m); err != nil {
			log.Fatal().Err(err).Int("version", m.Version).Msg("Migration failed")
		}
		if err := recordMigration(ctx, client, *project, *dataset, m); err != nil {
			log.Fatal().Err(err).Int("version", m.Version).Msg("Failed to record migration")
		}
	}

	if pending == 0 {
		log.Info().Msg("Schema is up to date")
	} else if *dryRun {
		log.Info().Int("pending", pending).Msg("Dry run complete")
	} else {
		log.Info().Int("applied", pending).Msg("Migrations applied")
	}
}

// loadMigrations reads the embedded SQL files, substitutes the project and
// dataset placeholders and returns them sorted by version.
func loadMigrations(projectID, datasetID string) ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("loadMigrations: read dir: %w", err)
	}

	var migrations []migration
	seen := make(map[int]string)
	for _, entry := range entries {
		m, ok, err := parseMigration(entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if prev, dup := seen[m.Version]; dup {
			return nil, fmt.Errorf("loadMigrations: duplicate version %04d (%s and %s)", m.Version, prev, entry.Name())
		}
		seen[m.Version] = entry.Name()

		raw, err := migrationFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("loadMigrations: read %s: %w", entry.Name(), err)
		}
		content := strings.ReplaceAll(string(raw), "{{PROJECT_ID}}", projectID)
		content = strings.ReplaceAll(content, "{{DATASET_ID}}", datasetID)

		m.Content = content
		m.Checksum = fmt.Sprintf("%x", sha256.Sum256(raw))
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// parseMigration extracts the version and name from a NNNN_name.sql filename.
// Files that do not match the pattern are skipped.
func parseMigration(filename string) (migration, bool, error) {
	matches := filenamePattern.FindStringSubmatch(filename)
	if matches == nil {
		return migration{}, false, nil
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return migration{}, false, fmt.Errorf("parseMigration: %s: %w", filename, err)
	}
	return migration{Version: version, Name: matches[2], Filename: filename}, true, nil
}

func ensureMigrationsTable(ctx context.Context, client *bigquery.Client, projectID, datasetID string) error {
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s.%s.schema_migrations` ("+
		"version INT64 NOT NULL, "+
		"name STRING NOT NULL, "+
		"checksum STRING NOT NULL, "+
		"applied_ts TIMESTAMP NOT NULL)", projectID, datasetID)
	return runStatement(ctx, client, query, nil)
}

func appliedVersions(ctx context.Context, client *bigquery.Client, projectID, datasetID string) (map[int]string, error) {
	query := fmt.Sprintf("SELECT version, checksum FROM `%s.%s.schema_migrations`", projectID, datasetID)
	it, err := client.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("appliedVersions: query: %w", err)
	}

	applied := make(map[int]string)
	for {
		var row struct {
			Version  int64  `bigquery:"version"`
			Checksum string `bigquery:"checksum"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("appliedVersions: iterate: %w", err)
		}
		applied[int(row.Version)] = row.Checksum
	}
	return applied, nil
}

func applyMigration(ctx context.Context, client *bigquery.Client, m migration) error {
	// Statements are separated by semicolons; BigQuery DDL runs one at a time.
	for _, stmt := range splitStatements(m.Content) {
		if err := runStatement(ctx, client, stmt, nil); err != nil {
			return fmt.Errorf("applyMigration: %s: %w", m.Filename, err)
		}
	}
	return nil
}

func recordMigration(ctx context.Context, client *bigquery.Client, projectID, datasetID string, m migration) error {
	query := fmt.Sprintf("INSERT INTO `%s.%s.schema_migrations` (version, name, checksum, applied_ts) "+
		"VALUES (@version, @name, @checksum, CURRENT_TIMESTAMP())", projectID, datasetID)
	params := []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
	}
	return runStatement(ctx, client, query, params)
}

func runStatement(ctx context.Context, client *bigquery.Client, query string, params []bigquery.QueryParameter) error {
	q := client.Query(query)
	q.Parameters = params
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("runStatement: run: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("runStatement: wait: %w", err)
	}
	if status.Err() != nil {
		return fmt.Errorf("runStatement: job: %w", status.Err())
	}
	return nil
}

// splitStatements breaks a migration file into individual statements,
// dropping comment-only lines and empty fragments.
func splitStatements(content string) []string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}

	var statements []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
