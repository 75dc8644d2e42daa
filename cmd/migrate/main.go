package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dvloznov/smart-budget/internal/config"
	"github.com/dvloznov/smart-budget/internal/logger"
	"github.com/dvloznov/smart-budget/internal/store/sqlite"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		dbPath = flag.String("db", cfg.DBPath, "SQLite database path (or set DB_PATH env)")
		status = flag.Bool("status", false, "Report migration status without applying anything")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sqlite.OpenDB(ctx, *dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", *dbPath).Msg("Failed to open database")
	}
	defer db.Close()

	log.Info().Str("db_path", *dbPath).Msg("Connected to SQLite database")

	if *status {
		err = printStatus(ctx, db, os.Stdout)
	} else {
		err = applyPending(ctx, db, os.Stdout)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

// applyPending applies every pending migration and reports each step to out.
func applyPending(ctx context.Context, db *sql.DB, out io.Writer) error {
	migrations, err := sqlite.ReadMigrations()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Found %d migration files\n", len(migrations))

	applied, err := sqlite.AppliedMigrations(ctx, db)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Found %d already applied migrations\n", len(applied))

	ran, err := sqlite.Migrate(ctx, db, time.Now)
	for _, m := range ran {
		fmt.Fprintf(out, "  [OK]   %04d_%s\n", m.Version, m.Name)
	}
	if err != nil {
		return err
	}

	if len(ran) == 0 {
		fmt.Fprintln(out, "No new migrations to apply. Database is up to date.")
	} else {
		fmt.Fprintf(out, "Successfully applied %d migration(s)\n", len(ran))
	}
	return nil
}

// printStatus lists every known migration with its applied state.
func printStatus(ctx context.Context, db *sql.DB, out io.Writer) error {
	migrations, err := sqlite.ReadMigrations()
	if err != nil {
		return err
	}
	applied, err := sqlite.AppliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	byVersion := make(map[int]sqlite.AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	pending := 0
	for _, m := range migrations {
		am, ok := byVersion[m.Version]
		switch {
		case !ok:
			pending++
			fmt.Fprintf(out, "  [PENDING]  %04d_%s\n", m.Version, m.Name)
		case am.Checksum != m.Checksum:
			fmt.Fprintf(out, "  [CHANGED]  %04d_%s (applied %s)\n", m.Version, m.Name, am.AppliedAt.Format(time.RFC3339))
		default:
			fmt.Fprintf(out, "  [APPLIED]  %04d_%s (%s)\n", m.Version, m.Name, am.AppliedAt.Format(time.RFC3339))
		}
	}
	fmt.Fprintf(out, "%d pending\n", pending)
	return nil
}
