// Package bigquery mirrors stored transactions into a BigQuery table for
// analytics. The mirror is best effort and never part of the write path.
package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/smart-budget/internal/domain"
	"github.com/dvloznov/smart-budget/internal/jobs"
	"github.com/dvloznov/smart-budget/internal/logger"
	"google.golang.org/api/iterator"
)

// Defaults for the mirror table location.
const (
	DefaultDataset = "finance"
	DefaultTable   = "categorized_transactions"
)

// rowInserter is the subset of *bigquery.Inserter used by the mirror.
type rowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// Mirror writes stored transactions into BigQuery. It holds a shared client
// to avoid creating a new connection for each job.
type Mirror struct {
	client    *bigquery.Client
	inserter  rowInserter
	projectID string
	datasetID string
	tableID   string
	now       func() time.Time
}

// NewMirror creates a Mirror for projectID.datasetID.tableID.
func NewMirror(ctx context.Context, projectID, datasetID, tableID string) (*Mirror, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewMirror: project ID is required")
	}
	if datasetID == "" {
		datasetID = DefaultDataset
	}
	if tableID == "" {
		tableID = DefaultTable
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewMirror: creating client: %w", err)
	}

	table := client.DatasetInProject(projectID, datasetID).Table(tableID)
	return &Mirror{
		client:    client,
		inserter:  table.Inserter(),
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
		now:       time.Now,
	}, nil
}

// newMirrorWithInserter builds a Mirror around an arbitrary inserter.
func newMirrorWithInserter(ins rowInserter, now func() time.Time) *Mirror {
	return &Mirror{inserter: ins, now: now, datasetID: DefaultDataset, tableID: DefaultTable}
}

// Close closes the BigQuery client connection.
func (m *Mirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// EnsureTable creates the mirror table, partitioned by created_date, when it
// does not exist yet.
func (m *Mirror) EnsureTable(ctx context.Context) error {
	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}

	table := m.client.DatasetInProject(m.projectID, m.datasetID).Table(m.tableID)
	err = table.Create(ctx, &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "created_date",
		},
	})
	if err != nil && !strings.Contains(err.Error(), "Already Exists") {
		return fmt.Errorf("EnsureTable: creating table: %w", err)
	}
	return nil
}

// MirrorTransaction inserts one stored transaction.
func (m *Mirror) MirrorTransaction(ctx context.Context, t domain.StoredTransaction) error {
	row := NewTransactionRow(t, m.now())
	saver := &bigquery.StructSaver{Struct: row, InsertID: insertID(t.ID)}
	if err := m.inserter.Put(ctx, saver); err != nil {
		return fmt.Errorf("MirrorTransaction: inserting row for transaction %d: %w", t.ID, err)
	}
	return nil
}

// Handler returns a job handler that mirrors MirrorTransactionJob payloads.
func (m *Mirror) Handler() jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		mj, ok := job.(*jobs.MirrorTransactionJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %s", job.GetType())
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", mj.JobID).
			Int64("transaction_id", mj.Transaction.ID).
			Logger()

		if err := m.MirrorTransaction(ctx, mj.Transaction); err != nil {
			log.Warn().Err(err).Int("retry_count", mj.RetryCount).Msg("Mirror insert failed")
			return err
		}
		log.Debug().Msg("Transaction mirrored")
		return nil
	}
}

// CountMirrored returns the number of distinct transactions in the mirror table.
func (m *Mirror) CountMirrored(ctx context.Context) (int64, error) {
	q := m.client.Query(fmt.Sprintf(
		"SELECT COUNT(DISTINCT transaction_id) AS n FROM `%s.%s.%s`",
		m.projectID, m.datasetID, m.tableID))

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountMirrored: query read: %w", err)
	}

	var count int64
	for {
		var row struct {
			N int64 `bigquery:"n"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("CountMirrored: iterating results: %w", err)
		}
		count = row.N
	}
	return count, nil
}
