package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/smart-budget/internal/config"
	"github.com/dvloznov/smart-budget/internal/logger"
	"github.com/dvloznov/smart-budget/internal/notionsync"
	"github.com/dvloznov/smart-budget/internal/store/sqlite"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Parse CLI flags
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path (or set DB_PATH env)")
	notionToken := flag.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := flag.String("notion-db-id", cfg.NotionDBID, "Notion database ID (or set NOTION_DB_ID env)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	prune := flag.Bool("prune", false, "Archive Notion pages whose transaction is no longer stored")
	flag.Parse()

	// Validate required flags
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("db_path", *dbPath).
		Bool("dry_run", *dryRun).
		Bool("prune", *prune).
		Msg("Starting Notion sync")

	store, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transaction store")
	}
	defer store.Close()

	// Initialize Notion client
	notionClient := notionsync.NewNotionClient(*notionToken)

	res, err := notionsync.SyncTransactions(ctx, store, notionClient, *notionDBID, notionsync.SyncOptions{
		DryRun: *dryRun,
		Prune:  *prune,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d skipped, %d archived, %d failed (of %d stored).\n",
		res.Created, res.Skipped, res.Archived, res.Failed, res.Total)
}
