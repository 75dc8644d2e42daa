// Package classifier turns an opaque statistical model into a single
// predict(features) -> label capability.
package classifier

import (
	"context"
	"errors"
)

// Records is the sequence-of-field-maps input convention. Models with their
// own column-aware preprocessing accept it.
type Records []map[string]any

// Table is the named-column input convention: column name -> values, one
// value per row. All columns have the same length.
type Table map[string][]any

// Vectors is the fixed-order numeric input convention. Each row is
// [amount, month, day, is_weekend].
type Vectors [][]float64

// ErrUnsupportedInput is returned by models handed an input convention they
// do not understand.
var ErrUnsupportedInput = errors.New("unsupported input convention")

// Model is a loaded classifier. Predict returns one prediction per input row.
// Implementations must be safe for concurrent use and free of side effects.
type Model interface {
	Predict(ctx context.Context, input any) ([]any, error)
}

// ModelFunc adapts a plain function to the Model interface.
type ModelFunc func(ctx context.Context, input any) ([]any, error)

// Predict calls f(ctx, input).
func (f ModelFunc) Predict(ctx context.Context, input any) ([]any, error) {
	return f(ctx, input)
}

// Rows returns the number of rows in t, or an error when the columns have
// different lengths.
func (t Table) Rows() (int, error) {
	n := -1
	for col, values := range t {
		if n == -1 {
			n = len(values)
			continue
		}
		if len(values) != n {
			return 0, errors.New("table column " + col + " has mismatched length")
		}
	}
	if n == -1 {
		return 0, nil
	}
	return n, nil
}

// Row returns row i of t as a field map.
func (t Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t))
	for col, values := range t {
		if i < len(values) {
			row[col] = values[i]
		}
	}
	return row
}
