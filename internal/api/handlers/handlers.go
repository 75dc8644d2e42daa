package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/smart-budget/internal/api/middleware"
	"github.com/dvloznov/smart-budget/internal/domain"
	"github.com/dvloznov/smart-budget/internal/jobs"
	"github.com/dvloznov/smart-budget/internal/override"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Categorizer is the core surface the HTTP API adapts.
// *categorize.Service implements it.
type Categorizer interface {
	Categorize(ctx context.Context, rec domain.TransactionRecord) (string, error)
	RecordTransaction(ctx context.Context, rec domain.TransactionRecord) (domain.StoredTransaction, error)
	ListTransactions(ctx context.Context, limit, offset int) ([]domain.StoredTransaction, error)
	ModelLoaded() bool
	Rules() []override.Rule
}

// TransactionsHandler handles prediction and transaction endpoints.
type TransactionsHandler struct {
	svc Categorizer
	log zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc Categorizer, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		svc: svc,
		log: log,
	}
}

// Predict handles POST /predict
func (h *TransactionsHandler) Predict(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}

	category, err := h.svc.Categorize(r.Context(), rec)
	if err != nil {
		h.writeCoreError(w, r, err, "Failed to categorize transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"category": category})
}

// CreateTransaction handles POST /transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}

	stored, err := h.svc.RecordTransaction(r.Context(), rec)
	if err != nil {
		h.writeCoreError(w, r, err, "Failed to store transaction")
		return
	}

	h.log.Info().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Int64("transaction_id", stored.ID).
		Str("category", stored.Category).
		Msg("Transaction recorded")

	middleware.WriteJSON(w, http.StatusOK, stored)
}

// ListTransactions handles GET /transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := intParam(query.Get("limit"), domain.DefaultListLimit)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := intParam(query.Get("offset"), domain.DefaultListOffset)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	transactions, err := h.svc.ListTransactions(r.Context(), limit, offset)
	if err != nil {
		h.writeCoreError(w, r, err, "Failed to list transactions")
		return
	}

	// Return array directly for frontend compatibility
	if transactions == nil {
		transactions = []domain.StoredTransaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// writeCoreError maps the core error kinds onto HTTP responses.
func (h *TransactionsHandler) writeCoreError(w http.ResponseWriter, r *http.Request, err error, storageMsg string) {
	log := h.log.With().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("path", r.URL.Path).
		Logger()

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		middleware.WriteError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrModelUnavailable):
		log.Error().Err(err).Msg("No classifier loaded")
		middleware.WriteError(w, http.StatusInternalServerError, "Model not loaded.")
	case errors.Is(err, domain.ErrInference):
		log.Error().Err(err).Msg("Prediction failed")
		cause := err
		if u := errors.Unwrap(err); u != nil {
			cause = u
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Prediction failed: "+cause.Error())
	case errors.Is(err, domain.ErrStorage):
		log.Error().Err(err).Msg(storageMsg)
		middleware.WriteError(w, http.StatusInternalServerError, storageMsg)
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().Err(err).Msg("Request timed out")
		middleware.WriteError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		log.Error().Err(err).Msg("Unexpected error")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeRecord reads a TransactionRecord body, answering 400 itself on failure.
func decodeRecord(w http.ResponseWriter, r *http.Request) (domain.TransactionRecord, bool) {
	var rec domain.TransactionRecord

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&rec); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return rec, false
	}
	return rec, true
}

// intParam parses a non-negative integer query parameter.
func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

// HealthHandler reports liveness and classifier availability.
type HealthHandler struct {
	svc Categorizer
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(svc Categorizer) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"model_loaded": h.svc.ModelLoaded(),
	})
}

// CategoriesHandler handles category-related endpoints.
type CategoriesHandler struct {
	svc Categorizer
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(svc Categorizer) *CategoriesHandler {
	return &CategoriesHandler{svc: svc}
}

// ListCategories handles GET /api/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	rules := h.svc.Rules()

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": rules,
		"count":      len(rules),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Debug().Err(err).Str("job_id", jobID).Msg("Job lookup failed")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}

	if raw := query.Get("transaction_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid transaction_id")
			return
		}
		filter.TransactionID = id
	}

	var err error
	if filter.Limit, err = intParam(query.Get("limit"), 0); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	if filter.Offset, err = intParam(query.Get("offset"), 0); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// RegisterRoutes mounts every endpoint on router. jobsHandler may be nil
// when the mirror is disabled.
func RegisterRoutes(router *mux.Router, tx *TransactionsHandler, health *HealthHandler, categories *CategoriesHandler, jobsHandler *JobsHandler) {
	router.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	router.HandleFunc("/predict", tx.Predict).Methods(http.MethodPost)
	router.HandleFunc("/transactions", tx.CreateTransaction).Methods(http.MethodPost)
	router.HandleFunc("/transactions", tx.ListTransactions).Methods(http.MethodGet)
	router.HandleFunc("/api/categories", categories.ListCategories).Methods(http.MethodGet)

	if jobsHandler != nil {
		router.HandleFunc("/api/jobs", jobsHandler.ListJobs).Methods(http.MethodGet)
		router.HandleFunc("/api/jobs/{id}", jobsHandler.GetJob).Methods(http.MethodGet)
	}
}
