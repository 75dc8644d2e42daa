package domain

import (
	"math"
	"unicode/utf8"
)

// MinTextLength is the minimum length of description and merchant.
const MinTextLength = 2

// Validate checks rec before any inference or storage work.
// It returns a *ValidationError for the first offending field.
func (rec TransactionRecord) Validate() error {
	if utf8.RuneCountInString(rec.Description) < MinTextLength {
		return &ValidationError{Field: "description", Reason: "must be at least 2 characters"}
	}
	if utf8.RuneCountInString(rec.Merchant) < MinTextLength {
		return &ValidationError{Field: "merchant", Reason: "must be at least 2 characters"}
	}
	if math.IsNaN(rec.Amount) || math.IsInf(rec.Amount, 0) || rec.Amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}
	return nil
}
