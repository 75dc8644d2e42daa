package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/smart-budget/internal/store/sqlite"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_create_transactions.sql", true, 1, "create_transactions"},
		{"001_invalid.sql", false, 0, ""},       // wrong number format
		{"0001_test", false, 0, ""},             // missing .sql
		{"0001.sql", false, 0, ""},              // missing name
		{"invalid_0001_test.sql", false, 0, ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := sqlite.ParseMigrationFilename(tt.filename)
			if ok != tt.valid {
				t.Fatalf("ParseMigrationFilename(%q) ok = %v, want %v", tt.filename, ok, tt.valid)
			}
			if version != tt.version || name != tt.name {
				t.Errorf("ParseMigrationFilename(%q) = %d, %q", tt.filename, version, name)
			}
		})
	}
}

func TestApplyPendingThenStatus(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.OpenDB(ctx, filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	var out bytes.Buffer
	if err := printStatus(ctx, db, &out); err != nil {
		t.Fatalf("printStatus failed: %v", err)
	}
	if !strings.Contains(out.String(), "[PENDING]  0001_create_transactions") {
		t.Errorf("status before apply:\n%s", out.String())
	}

	out.Reset()
	if err := applyPending(ctx, db, &out); err != nil {
		t.Fatalf("applyPending failed: %v", err)
	}
	if !strings.Contains(out.String(), "[OK]   0001_create_transactions") {
		t.Errorf("apply output:\n%s", out.String())
	}

	out.Reset()
	if err := applyPending(ctx, db, &out); err != nil {
		t.Fatalf("second applyPending failed: %v", err)
	}
	if !strings.Contains(out.String(), "Database is up to date") {
		t.Errorf("second apply output:\n%s", out.String())
	}

	out.Reset()
	if err := printStatus(ctx, db, &out); err != nil {
		t.Fatalf("printStatus failed: %v", err)
	}
	if !strings.Contains(out.String(), "[APPLIED]") || !strings.Contains(out.String(), "0 pending") {
		t.Errorf("status after apply:\n%s", out.String())
	}
}
