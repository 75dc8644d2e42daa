package domain

import (
	"time"
)

// TransactionRecord is an incoming transaction as supplied by a client.
// It is validated before any inference or storage work happens.
type TransactionRecord struct {
	Description   string  `json:"description"`
	Merchant      string  `json:"merchant"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
}

// FeatureSet holds the classifier inputs derived from a TransactionRecord and
// the server's current date. It is built per request and never persisted.
type FeatureSet struct {
	Text          string  // description + " " + merchant
	Amount        float64 // copied from the record
	Month         int     // 1-12, from the server clock
	Day           int     // 1-31, from the server clock
	IsWeekend     int     // 1 on Saturday/Sunday, else 0
	PaymentMethod string  // copied from the record
}

// Feature field names as seen by classifiers that take named columns.
const (
	FieldText          = "text"
	FieldAmount        = "amount"
	FieldMonth         = "month"
	FieldDay           = "day"
	FieldIsWeekend     = "is_weekend"
	FieldPaymentMethod = "payment_method"
)

// NewFeatureSet derives the feature set for rec at the given instant.
func NewFeatureSet(rec TransactionRecord, now time.Time) FeatureSet {
	weekend := 0
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		weekend = 1
	}
	return FeatureSet{
		Text:          rec.Description + " " + rec.Merchant,
		Amount:        rec.Amount,
		Month:         int(now.Month()),
		Day:           now.Day(),
		IsWeekend:     weekend,
		PaymentMethod: rec.PaymentMethod,
	}
}

// Fields returns the feature set as a field map keyed by feature name.
// Only the six classifier features are included.
func (f FeatureSet) Fields() map[string]any {
	return map[string]any{
		FieldText:          f.Text,
		FieldAmount:        f.Amount,
		FieldMonth:         f.Month,
		FieldDay:           f.Day,
		FieldIsWeekend:     f.IsWeekend,
		FieldPaymentMethod: f.PaymentMethod,
	}
}

// StoredTransaction is a categorized transaction as persisted by the store.
// ID and CreatedAt are assigned by the store and never change afterwards.
type StoredTransaction struct {
	ID            int64     `json:"id"`
	Description   string    `json:"description"`
	Merchant      string    `json:"merchant"`
	Amount        float64   `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	Category      string    `json:"category"`
	CreatedAt     time.Time `json:"created_at"`
}

// Pagination defaults for listing stored transactions.
const (
	DefaultListLimit  = 50
	DefaultListOffset = 0
)
