package bigquery

import (
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/smart-budget/internal/domain"
	"github.com/google/uuid"
)

// TransactionRow is one mirrored transaction in the analytics table.
type TransactionRow struct {
	RowID         string `bigquery:"row_id"`         // REQUIRED
	TransactionID int64  `bigquery:"transaction_id"` // REQUIRED, store id

	Description   string              `bigquery:"description"`    // REQUIRED
	Merchant      string              `bigquery:"merchant"`       // REQUIRED
	Amount        float64             `bigquery:"amount"`         // REQUIRED FLOAT64
	PaymentMethod bigquery.NullString `bigquery:"payment_method"` // NULLABLE
	Category      string              `bigquery:"category"`       // REQUIRED

	CreatedDate civil.Date `bigquery:"created_date"` // partition column
	CreatedTS   time.Time  `bigquery:"created_ts"`
	MirroredTS  time.Time  `bigquery:"mirrored_ts"`
}

// NewTransactionRow converts a stored transaction into a mirror row.
func NewTransactionRow(t domain.StoredTransaction, mirroredAt time.Time) *TransactionRow {
	created := t.CreatedAt.UTC()
	return &TransactionRow{
		RowID:         uuid.New().String(),
		TransactionID: t.ID,
		Description:   t.Description,
		Merchant:      t.Merchant,
		Amount:        t.Amount,
		PaymentMethod: bigquery.NullString{StringVal: t.PaymentMethod, Valid: t.PaymentMethod != ""},
		Category:      t.Category,
		CreatedDate:   civil.DateOf(created),
		CreatedTS:     created,
		MirroredTS:    mirroredAt.UTC(),
	}
}

// insertID keys streaming inserts by store id so a retried job does not
// duplicate the row.
func insertID(transactionID int64) string {
	return fmt.Sprintf("tx-%d", transactionID)
}
