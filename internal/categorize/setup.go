package categorize

import (
	"context"
	"fmt"

	"github.com/dvloznov/smart-budget/internal/classifier"
	"github.com/dvloznov/smart-budget/internal/config"
	"github.com/dvloznov/smart-budget/internal/logger"
	"github.com/dvloznov/smart-budget/internal/override"
)

// FallbackLabel is offered to label-constrained backends alongside the rule
// table categories.
const FallbackLabel = "Other"

// LoadPredictor loads the configured classifier and runs one warmup
// prediction. A warmup failure is logged and the predictor is still returned.
// On load failure the returned Predictor is a nil interface, never a typed nil.
func LoadPredictor(ctx context.Context, cfg config.Config, rules []override.Rule) (Predictor, error) {
	log := logger.FromContext(ctx)

	model, err := classifier.LoadModel(ctx, classifier.LoadOptions{
		Backend:     cfg.ClassifierBackend,
		ModelURI:    cfg.ModelURI,
		GeminiModel: cfg.GeminiModel,
		Labels:      override.Labels(rules, FallbackLabel),
	})
	if err != nil {
		return nil, fmt.Errorf("LoadPredictor: %w", err)
	}

	adapter := classifier.NewAdapter(model)
	if err := adapter.Warmup(ctx); err != nil {
		log.Warn().Err(err).Msg("Classifier warmup failed")
	} else {
		log.Debug().Str("backend", cfg.ClassifierBackend).Msg("Classifier warmed up")
	}
	return adapter, nil
}
