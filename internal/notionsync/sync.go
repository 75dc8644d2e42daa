// Package notionsync exports stored transactions into a Notion database.
package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/smart-budget/internal/logger"
	"github.com/jomei/notionapi"
)

const (
	// BatchSize is the number of stored transactions read per store page.
	BatchSize = 100
)

// SyncOptions controls a sync run.
type SyncOptions struct {
	// DryRun logs what would change without calling Notion write APIs.
	DryRun bool

	// Prune archives Notion pages whose transaction no longer exists in
	// the store, or that carry no Transaction ID.
	Prune bool
}

// SyncResult counts what a sync run did (or would do, in dry-run mode).
type SyncResult struct {
	Created  int
	Skipped  int
	Archived int
	Failed   int
	Total    int
}

// SyncTransactions pushes every stored transaction that has no page in the
// Notion database yet. Pages are matched on the "Transaction ID" property,
// so running the sync twice creates nothing the second time. Per-page
// failures are logged and counted; only listing failures abort the run.
func SyncTransactions(ctx context.Context, store TransactionLister, notionClient NotionService, notionDBID string, opts SyncOptions) (SyncResult, error) {
	log := logger.FromContext(ctx)
	var result SyncResult

	log.Info().
		Bool("dry_run", opts.DryRun).
		Bool("prune", opts.Prune).
		Msg("Starting transaction sync to Notion")

	log.Info().Msg("Querying existing transactions from Notion")
	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return result, fmt.Errorf("failed to query Notion pages: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	existing := make(map[int64]bool, len(notionPages))
	for _, page := range notionPages {
		if id := extractTransactionID(page); id != 0 {
			existing[id] = true
		}
	}

	stored := make(map[int64]bool)
	for offset := 0; ; offset += BatchSize {
		batch, err := store.List(ctx, BatchSize, offset)
		if err != nil {
			return result, fmt.Errorf("failed to list transactions: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		log.Info().
			Int("batch_start", offset).
			Int("batch_size", len(batch)).
			Msg("Processing batch")

		for _, tx := range batch {
			result.Total++
			stored[tx.ID] = true

			if existing[tx.ID] {
				result.Skipped++
				continue
			}

			if opts.DryRun {
				log.Info().
					Int64("transaction_id", tx.ID).
					Str("category", tx.Category).
					Msg("[DRY RUN] Would create new Notion page")
				result.Created++
				continue
			}

			page, err := notionClient.CreatePage(ctx, notionDBID, TransactionToNotionProperties(tx))
			if err != nil {
				log.Warn().
					Err(err).
					Int64("transaction_id", tx.ID).
					Msg("Failed to create Notion page")
				result.Failed++
				continue
			}
			log.Info().
				Int64("transaction_id", tx.ID).
				Str("page_id", string(page.ID)).
				Msg("Created Notion page")
			result.Created++
			existing[tx.ID] = true
		}

		if len(batch) < BatchSize {
			break
		}
	}

	if opts.Prune {
		for _, page := range notionPages {
			id := extractTransactionID(page)
			if id != 0 && stored[id] {
				continue
			}

			if opts.DryRun {
				log.Info().
					Int64("transaction_id", id).
					Str("page_id", string(page.ID)).
					Msg("[DRY RUN] Would archive stale Notion page")
				result.Archived++
				continue
			}

			if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
				log.Warn().
					Err(err).
					Int64("transaction_id", id).
					Str("page_id", string(page.ID)).
					Msg("Failed to archive stale Notion page")
				result.Failed++
				continue
			}
			log.Info().
				Int64("transaction_id", id).
				Str("page_id", string(page.ID)).
				Msg("Archived stale Notion page")
			result.Archived++
		}
	}

	log.Info().
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("archived", result.Archived).
		Int("failed", result.Failed).
		Int("total", result.Total).
		Msg("Transaction sync completed")

	return result, nil
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
