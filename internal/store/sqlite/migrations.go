package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"time"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
}

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// ParseMigrationFilename extracts the version and name from a migration filename.
func ParseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// ReadMigrations returns the embedded migrations sorted by version.
func ReadMigrations() ([]Migration, error) {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("ReadMigrations: %w", err)
	}
	return readMigrations(sub)
}

func readMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		version, name, ok := ParseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: entry.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

const createSchemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL,
    checksum   TEXT NOT NULL
)`

// AppliedMigrations lists migrations recorded in schema_migrations, oldest first.
func AppliedMigrations(ctx context.Context, db *sql.DB) ([]AppliedMigration, error) {
	if _, err := db.ExecContext(ctx, createSchemaMigrations); err != nil {
		return nil, fmt.Errorf("AppliedMigrations: ensure table: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT version, name, applied_at, checksum FROM schema_migrations ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: query: %w", err)
	}
	defer rows.Close()

	applied := []AppliedMigration{}
	for rows.Next() {
		var (
			am        AppliedMigration
			appliedAt string
		)
		if err := rows.Scan(&am.Version, &am.Name, &appliedAt, &am.Checksum); err != nil {
			return nil, fmt.Errorf("AppliedMigrations: scan: %w", err)
		}
		am.AppliedAt, _ = time.Parse(timeLayout, appliedAt)
		applied = append(applied, am)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("AppliedMigrations: iterate: %w", err)
	}
	return applied, nil
}

// Migrate applies every pending embedded migration in version order and
// returns the ones it ran. A recorded migration whose checksum no longer
// matches its file is an error.
func Migrate(ctx context.Context, db *sql.DB, now func() time.Time) ([]Migration, error) {
	migrations, err := ReadMigrations()
	if err != nil {
		return nil, err
	}
	return migrate(ctx, db, migrations, now)
}

func migrate(ctx context.Context, db *sql.DB, migrations []Migration, now func() time.Time) ([]Migration, error) {
	applied, err := AppliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	appliedVersions := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		appliedVersions[am.Version] = am
	}

	var ran []Migration
	for _, m := range migrations {
		if am, ok := appliedVersions[m.Version]; ok {
			if am.Checksum != m.Checksum {
				return ran, fmt.Errorf("migration %04d_%s: checksum mismatch (applied %s, file %s)",
					m.Version, m.Name, am.Checksum, m.Checksum)
			}
			continue
		}

		if err := applyMigration(ctx, db, m, now().UTC()); err != nil {
			return ran, fmt.Errorf("migration %04d_%s: %w", m.Version, m.Name, err)
		}
		ran = append(ran, m)
	}
	return ran, nil
}

// applyMigration runs the migration and records it in one transaction.
func applyMigration(ctx context.Context, db *sql.DB, m Migration, at time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at, checksum) VALUES (?, ?, ?, ?)`,
		m.Version, m.Name, at.Format(timeLayout), m.Checksum); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}
