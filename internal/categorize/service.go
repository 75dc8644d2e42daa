// Package categorize composes feature derivation, classifier inference and
// keyword overrides into the categorize, record and list use cases.
package categorize

import (
	"context"
	"time"

	"github.com/dvloznov/smart-budget/internal/domain"
	"github.com/dvloznov/smart-budget/internal/jobs"
	"github.com/dvloznov/smart-budget/internal/logger"
	"github.com/dvloznov/smart-budget/internal/override"
)

// Predictor produces a raw label for a feature set.
// *classifier.Adapter implements it.
type Predictor interface {
	Predict(ctx context.Context, fs domain.FeatureSet) (string, error)
}

// TransactionStore persists categorized transactions.
type TransactionStore interface {
	Insert(ctx context.Context, rec domain.TransactionRecord, category string) (domain.StoredTransaction, error)
	List(ctx context.Context, limit, offset int) ([]domain.StoredTransaction, error)
}

// Service is safe for concurrent use; it holds no per-request state.
type Service struct {
	predictor Predictor
	resolver  *override.Resolver
	store     TransactionStore
	publisher jobs.Publisher
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for date features.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithPublisher enables publishing a mirror job after every insert.
func WithPublisher(p jobs.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// NewService creates a Service. predictor may be nil when no classifier could
// be loaded; every categorization then fails with domain.ErrModelUnavailable.
// store may be nil for predict-only use.
func NewService(predictor Predictor, resolver *override.Resolver, store TransactionStore, opts ...Option) *Service {
	s := &Service{
		predictor: predictor,
		resolver:  resolver,
		store:     store,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ModelLoaded reports whether a classifier is available.
func (s *Service) ModelLoaded() bool {
	return s.predictor != nil
}

// Categorize validates rec, predicts its category from today's features and
// applies the keyword overrides.
func (s *Service) Categorize(ctx context.Context, rec domain.TransactionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	return s.categorize(ctx, rec)
}

func (s *Service) categorize(ctx context.Context, rec domain.TransactionRecord) (string, error) {
	if s.predictor == nil {
		return "", domain.ErrModelUnavailable
	}

	fs := domain.NewFeatureSet(rec, s.now())
	predicted, err := s.predictor.Predict(ctx, fs)
	if err != nil {
		return "", err
	}

	category := s.resolver.Resolve(fs, predicted)
	if category != predicted {
		log := logger.FromContext(ctx)
		log.Debug().
			Str("predicted", predicted).
			Str("category", category).
			Msg("Keyword override applied")
	}
	return category, nil
}

// RecordTransaction categorizes rec and persists it. Nothing is stored when
// categorization fails. A mirror publish failure is logged and does not fail
// the call.
func (s *Service) RecordTransaction(ctx context.Context, rec domain.TransactionRecord) (domain.StoredTransaction, error) {
	if err := rec.Validate(); err != nil {
		return domain.StoredTransaction{}, err
	}

	category, err := s.categorize(ctx, rec)
	if err != nil {
		return domain.StoredTransaction{}, err
	}

	stored, err := s.store.Insert(ctx, rec, category)
	if err != nil {
		return domain.StoredTransaction{}, err
	}

	if s.publisher != nil {
		job := &jobs.MirrorTransactionJob{Transaction: stored}
		if err := s.publisher.PublishMirrorTransaction(ctx, job); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).
				Int64("transaction_id", stored.ID).
				Msg("Failed to publish mirror job")
		}
	}

	return stored, nil
}

// ListTransactions returns stored transactions newest first.
func (s *Service) ListTransactions(ctx context.Context, limit, offset int) ([]domain.StoredTransaction, error) {
	if limit < 0 {
		return nil, &domain.ValidationError{Field: "limit", Reason: "must be non-negative"}
	}
	if offset < 0 {
		return nil, &domain.ValidationError{Field: "offset", Reason: "must be non-negative"}
	}
	if limit == 0 {
		return []domain.StoredTransaction{}, nil
	}
	return s.store.List(ctx, limit, offset)
}

// Rules returns the override rule table in evaluation order.
func (s *Service) Rules() []override.Rule {
	return s.resolver.Rules()
}
