package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/smart-budget/internal/config"
	"github.com/dvloznov/smart-budget/internal/jobs"
	"github.com/dvloznov/smart-budget/internal/jobs/inmemory"
	"github.com/dvloznov/smart-budget/internal/logger"
	mirrorBQ "github.com/dvloznov/smart-budget/internal/mirror/bigquery"
	"github.com/dvloznov/smart-budget/internal/store/sqlite"
)

// Worker backfills the analytics mirror from the transaction store. Rows that
// were already mirrored are deduplicated by their insert id.
func main() {
	// Initialize logger
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		dbPath    = flag.String("db", cfg.DBPath, "SQLite database path (or set DB_PATH env)")
		project   = flag.String("project", cfg.BQProject, "GCP project ID (or set BQ_PROJECT env)")
		batchSize = flag.Int("batch", 100, "Stored rows read per page")
	)
	flag.Parse()

	if *project == "" {
		log.Fatal().Msg("Error: -project is required")
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Interrupted, stopping backfill...")
		cancel()
	}()

	store, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transaction store")
	}
	defer store.Close()

	mirror, err := mirrorBQ.NewMirror(ctx, *project, cfg.BQDataset, cfg.BQTable)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery mirror")
	}
	defer mirror.Close()

	if err := mirror.EnsureTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure mirror table")
	}

	// The backfill publishes faster than the mirror drains, so it waits for room
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, inmemory.WithBlockingPublish())

	if err := jobQueue.Start(ctx, mirror.Handler()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Str("project", *project).Str("db_path", *dbPath).Msg("Starting mirror backfill")

	published, err := jobs.EnqueueAll(ctx, store, jobQueue, *batchSize)
	if err != nil {
		log.Error().Err(err).Int("published", published).Msg("Backfill enqueue stopped early")
	}

	waitForDrain(ctx, jobStore)

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	completed, _ := jobStore.ListJobs(shutdownCtx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
	failed, _ := jobStore.ListJobs(shutdownCtx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	for _, job := range failed {
		log.Error().
			Str("job_id", job.JobID).
			Int64("transaction_id", job.Transaction.ID).
			Str("error", job.Error).
			Msg("Mirror job failed")
	}

	fmt.Printf("Backfill finished: %d published, %d mirrored, %d failed.\n", published, len(completed), len(failed))

	if total, err := mirror.CountMirrored(shutdownCtx); err == nil {
		fmt.Printf("Mirror table now holds %d distinct transactions.\n", total)
	} else {
		log.Warn().Err(err).Msg("Could not count mirrored rows")
	}
}

// waitForDrain blocks until every job has completed or failed, or ctx ends.
func waitForDrain(ctx context.Context, store jobs.JobStore) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		n, err := jobs.Outstanding(ctx, store)
		if err != nil {
			log.Error().Err(err).Msg("Failed to check job progress")
			return
		}
		if n == 0 {
			return
		}
		log.Debug().Int("outstanding", n).Msg("Waiting for mirror jobs")

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
