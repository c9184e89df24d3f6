package main

import (
	"strings"
	"testing"
)

func TestParseMigration(t *testing.T) {
	tests := []struct {
		filename string
		ok       bool
		version  int
		name     string
	}{
		{"0001_create_ledger_tables.sql", true, 1, "create_ledger_tables"},
		{"0042_add_column.sql", true, 42, "add_column"},
		{"001_short_version.sql", false, 0, ""},
		{"0001_missing_extension", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"notes_0001_backwards.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m, ok, err := parseMigration(tt.filename)
			if err != nil {
				t.Fatalf("parseMigration(%q) returned error: %v", tt.filename, err)
			}
			if ok != tt.ok {
				t.Fatalf("parseMigration(%q) ok = %v, want %v", tt.filename, ok, tt.ok)
			}
			if !ok {
				return
			}
			if m.Version != tt.version {
				t.Errorf("version = %d, want %d", m.Version, tt.version)
			}
			if m.Name != tt.name {
				t.Errorf("name = %q, want %q", m.Name, tt.name)
			}
		})
	}
}

func TestLoadMigrationsSubstitutesPlaceholders(t *testing.T) {
	migrations, err := loadMigrations("test-project", "test_dataset")
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one embedded migration")
	}

	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Errorf("migrations not sorted: %d after %d", migrations[i].Version, migrations[i-1].Version)
		}
	}

	for _, m := range migrations {
		if strings.Contains(m.Content, "{{PROJECT_ID}}") || strings.Contains(m.Content, "{{DATASET_ID}}") {
			t.Errorf("%s: unsubstituted placeholder remains", m.Filename)
		}
		if !strings.Contains(m.Content, "test-project.test_dataset") {
			t.Errorf("%s: expected fully qualified table references", m.Filename)
		}
		if len(m.Checksum) != 64 {
			t.Errorf("%s: checksum %q is not a sha256 hex digest", m.Filename, m.Checksum)
		}
	}
}

func TestLoadMigrationsChecksumIsStable(t *testing.T) {
	first, err := loadMigrations("p", "d")
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	second, err := loadMigrations("other", "dataset")
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}

	// Checksums cover the raw file, not the substituted content, so they
	// must not change with the target project.
	for i := range first {
		if first[i].Checksum != second[i].Checksum {
			t.Errorf("%s: checksum changed with substitution", first[i].Filename)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	content := `-- leading comment
CREATE TABLE IF NOT EXISTS ` + "`p.d.a`" + ` (id STRING);

-- another comment
CREATE TABLE IF NOT EXISTS ` + "`p.d.b`" + ` (id STRING);
`
	statements := splitStatements(content)
	if len(statements) != 2 {
		t.Fatalf("got %d statements, want 2: %v", len(statements), statements)
	}
	for _, stmt := range statements {
		if !strings.HasPrefix(stmt, "CREATE TABLE") {
			t.Errorf("unexpected statement: %q", stmt)
		}
		if strings.Contains(stmt, "--") {
			t.Errorf("comment leaked into statement: %q", stmt)
		}
	}
}
