package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/smart-budget/internal/domain"
)

// TransactionLister pages through stored transactions, newest first.
type TransactionLister interface {
	List(ctx context.Context, limit, offset int) ([]domain.StoredTransaction, error)
}

// EnqueueAll publishes one mirror job per stored transaction, reading the
// store batchSize rows at a time. It returns how many jobs were published.
func EnqueueAll(ctx context.Context, lister TransactionLister, pub Publisher, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("EnqueueAll: batch size must be positive, got %d", batchSize)
	}

	published := 0
	for offset := 0; ; offset += batchSize {
		batch, err := lister.List(ctx, batchSize, offset)
		if err != nil {
			return published, fmt.Errorf("EnqueueAll: list at offset %d: %w", offset, err)
		}

		for _, tx := range batch {
			if err := pub.PublishMirrorTransaction(ctx, &MirrorTransactionJob{Transaction: tx}); err != nil {
				return published, fmt.Errorf("EnqueueAll: publish transaction %d: %w", tx.ID, err)
			}
			published++
		}

		if len(batch) < batchSize {
			return published, nil
		}
	}
}

// Outstanding counts jobs that have not reached completed or failed.
func Outstanding(ctx context.Context, store JobStore) (int, error) {
	total := 0
	for _, status := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusRetrying} {
		list, err := store.ListJobs(ctx, JobFilter{Status: status})
		if err != nil {
			return 0, fmt.Errorf("Outstanding: list %s jobs: %w", status, err)
		}
		total += len(list)
	}
	return total, nil
}
