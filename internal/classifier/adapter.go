package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/smart-budget/internal/domain"
	"github.com/dvloznov/smart-budget/internal/logger"
)

// ErrEmptyLabel marks a strategy whose model answered with an empty label.
// Such an answer counts as a failure so that a category is never empty.
var ErrEmptyLabel = errors.New("model returned an empty label")

// Strategy shapes a feature set into one input convention.
type Strategy struct {
	Name  string
	Shape func(fs domain.FeatureSet) (any, error)
}

// DefaultStrategies are tried in order: field maps, a one-row table, then
// the numeric vector.
var DefaultStrategies = []Strategy{
	{Name: "records", Shape: asRecords},
	{Name: "table", Shape: asTable},
	{Name: "vector", Shape: asVector},
}

func asRecords(fs domain.FeatureSet) (any, error) {
	return Records{fs.Fields()}, nil
}

func asTable(fs domain.FeatureSet) (any, error) {
	fields := fs.Fields()
	t := make(Table, len(fields))
	for k, v := range fields {
		t[k] = []any{v}
	}
	return t, nil
}

func asVector(fs domain.FeatureSet) (any, error) {
	row, err := NumericVector(fs.Fields())
	if err != nil {
		return nil, err
	}
	return Vectors{row}, nil
}

// NumericVector builds [amount, month, day, is_weekend] from a field map.
// Missing fields default to 0.0, 1, 1 and 0.
func NumericVector(fields map[string]any) ([]float64, error) {
	amount, err := numericField(fields, domain.FieldAmount, 0.0)
	if err != nil {
		return nil, err
	}
	month, err := numericField(fields, domain.FieldMonth, 1)
	if err != nil {
		return nil, err
	}
	day, err := numericField(fields, domain.FieldDay, 1)
	if err != nil {
		return nil, err
	}
	weekend, err := numericField(fields, domain.FieldIsWeekend, 0)
	if err != nil {
		return nil, err
	}
	return []float64{amount, float64(int(month)), float64(int(day)), float64(int(weekend))}, nil
}

// Adapter presents a single Predict over a model whose input convention is
// not known in advance. It holds no per-request state.
type Adapter struct {
	model      Model
	strategies []Strategy
}

// NewAdapter wraps model with the default strategy order.
func NewAdapter(model Model) *Adapter {
	return NewAdapterWithStrategies(model, DefaultStrategies)
}

// NewAdapterWithStrategies wraps model with a custom strategy order.
func NewAdapterWithStrategies(model Model, strategies []Strategy) *Adapter {
	return &Adapter{model: model, strategies: strategies}
}

// Predict runs each strategy until one returns a non-empty prediction and
// returns its first element as a string. When all strategies fail it returns an
// *domain.InferenceError carrying the last failure.
func (a *Adapter) Predict(ctx context.Context, fs domain.FeatureSet) (string, error) {
	log := logger.FromContext(ctx)

	lastErr := errors.New("no invocation strategies configured")
	for _, s := range a.strategies {
		label, err := a.try(ctx, s, fs)
		if err == nil {
			log.Debug().Str("strategy", s.Name).Str("prediction", label).Msg("Classifier prediction")
			return label, nil
		}
		log.Debug().Err(err).Str("strategy", s.Name).Msg("Classifier strategy failed")
		lastErr = fmt.Errorf("%s strategy: %w", s.Name, err)
	}

	return "", &domain.InferenceError{Cause: lastErr}
}

// try runs one strategy. A panicking model counts as a failed strategy.
func (a *Adapter) try(ctx context.Context, s Strategy, fs domain.FeatureSet) (label string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()

	input, err := s.Shape(fs)
	if err != nil {
		return "", fmt.Errorf("shaping input: %w", err)
	}

	preds, err := a.model.Predict(ctx, input)
	if err != nil {
		return "", err
	}
	if len(preds) == 0 {
		return "", errors.New("model returned no predictions")
	}

	label = fmt.Sprint(preds[0])
	if label == "" {
		return "", ErrEmptyLabel
	}
	return label, nil
}

// WarmupFeatures is the fixed input used to exercise a freshly loaded model.
var WarmupFeatures = domain.FeatureSet{
	Text:          "warmup",
	Amount:        10.0,
	Month:         1,
	Day:           1,
	IsWeekend:     0,
	PaymentMethod: "Cash",
}

// Warmup runs one prediction on WarmupFeatures.
func (a *Adapter) Warmup(ctx context.Context) error {
	_, err := a.Predict(ctx, WarmupFeatures)
	return err
}
