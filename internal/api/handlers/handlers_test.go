package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/smart-budget/internal/domain"
	"github.com/dvloznov/smart-budget/internal/jobs"
	"github.com/dvloznov/smart-budget/internal/jobs/inmemory"
	"github.com/dvloznov/smart-budget/internal/override"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// mockCategorizer is a test double for Categorizer.
type mockCategorizer struct {
	CategorizeFunc func(ctx context.Context, rec domain.TransactionRecord) (string, error)
	RecordFunc     func(ctx context.Context, rec domain.TransactionRecord) (domain.StoredTransaction, error)
	ListFunc       func(ctx context.Context, limit, offset int) ([]domain.StoredTransaction, error)
	loaded         bool
}

func (m *mockCategorizer) Categorize(ctx context.Context, rec domain.TransactionRecord) (string, error) {
	return m.CategorizeFunc(ctx, rec)
}

func (m *mockCategorizer) RecordTransaction(ctx context.Context, rec domain.TransactionRecord) (domain.StoredTransaction, error) {
	return m.RecordFunc(ctx, rec)
}

func (m *mockCategorizer) ListTransactions(ctx context.Context, limit, offset int) ([]domain.StoredTransaction, error) {
	return m.ListFunc(ctx, limit, offset)
}

func (m *mockCategorizer) ModelLoaded() bool { return m.loaded }

func (m *mockCategorizer) Rules() []override.Rule { return override.DefaultRules() }

func newRouter(svc Categorizer, store jobs.JobStore) *mux.Router {
	log := zerolog.New(io.Discard)
	router := mux.NewRouter()
	var jh *JobsHandler
	if store != nil {
		jh = NewJobsHandler(store, log)
	}
	RegisterRoutes(router, NewTransactionsHandler(svc, log), NewHealthHandler(svc), NewCategoriesHandler(svc), jh)
	return router
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

const coffeeJSON = `{"description":"Coffee run","merchant":"Starbucks","amount":5.5,"payment_method":"Card"}`

func TestHealth(t *testing.T) {
	for _, loaded := range []bool{true, false} {
		rec := do(t, newRouter(&mockCategorizer{loaded: loaded}, nil), http.MethodGet, "/health", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var body struct {
			Status      string `json:"status"`
			ModelLoaded bool   `json:"model_loaded"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Status != "ok" || body.ModelLoaded != loaded {
			t.Errorf("body = %+v, want model_loaded %v", body, loaded)
		}
	}
}

func TestPredict(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"success", coffeeJSON, nil, http.StatusOK, ""},
		{"malformed json", `{"description":`, nil, http.StatusBadRequest, "Invalid request body"},
		{"wrong type", `{"description":"ab","merchant":"cd","amount":"five"}`, nil, http.StatusBadRequest, "Invalid request body"},
		{"validation", coffeeJSON, &domain.ValidationError{Field: "amount", Reason: "must be positive"}, http.StatusBadRequest, "invalid amount: must be positive"},
		{"no model", coffeeJSON, domain.ErrModelUnavailable, http.StatusInternalServerError, "Model not loaded."},
		{"inference", coffeeJSON, &domain.InferenceError{Cause: errors.New("vector strategy: bad shape")}, http.StatusInternalServerError, "Prediction failed: vector strategy: bad shape"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.TransactionRecord
			svc := &mockCategorizer{CategorizeFunc: func(_ context.Context, rec domain.TransactionRecord) (string, error) {
				got = rec
				return "Food", tt.err
			}}

			rec := do(t, newRouter(svc, nil), http.MethodPost, "/predict", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}

			if tt.wantStatus == http.StatusOK {
				var body map[string]string
				json.Unmarshal(rec.Body.Bytes(), &body)
				if body["category"] != "Food" {
					t.Errorf("category = %q", body["category"])
				}
				if got.Merchant != "Starbucks" || got.Amount != 5.5 || got.PaymentMethod != "Card" {
					t.Errorf("decoded record = %+v", got)
				}
				return
			}
			if msg := errorBody(t, rec); msg != tt.wantBody {
				t.Errorf("error = %q, want %q", msg, tt.wantBody)
			}
		})
	}
}

func TestCreateTransaction(t *testing.T) {
	created := time.Date(2024, time.May, 1, 9, 30, 0, 0, time.UTC)
	svc := &mockCategorizer{RecordFunc: func(_ context.Context, rec domain.TransactionRecord) (domain.StoredTransaction, error) {
		return domain.StoredTransaction{
			ID: 7, Description: rec.Description, Merchant: rec.Merchant, Amount: rec.Amount,
			PaymentMethod: rec.PaymentMethod, Category: "Food", CreatedAt: created,
		}, nil
	}}

	rec := do(t, newRouter(svc, nil), http.MethodPost, "/transactions", coffeeJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body domain.StoredTransaction
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != 7 || body.Category != "Food" || !body.CreatedAt.Equal(created) {
		t.Errorf("body = %+v", body)
	}
}

func TestCreateTransaction_StorageError(t *testing.T) {
	svc := &mockCategorizer{RecordFunc: func(context.Context, domain.TransactionRecord) (domain.StoredTransaction, error) {
		return domain.StoredTransaction{}, &domain.StorageError{Op: "insert", Cause: errors.New("disk full")}
	}}

	rec := do(t, newRouter(svc, nil), http.MethodPost, "/transactions", coffeeJSON)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if msg := errorBody(t, rec); msg != "Failed to store transaction" {
		t.Errorf("error = %q", msg)
	}
}

func TestListTransactions(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", http.StatusOK, 50, 0},
		{"explicit", "?limit=2&offset=1", http.StatusOK, 2, 1},
		{"bad limit", "?limit=abc", http.StatusBadRequest, 0, 0},
		{"negative offset", "?offset=-1", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit, gotOffset int
			svc := &mockCategorizer{ListFunc: func(_ context.Context, limit, offset int) ([]domain.StoredTransaction, error) {
				gotLimit, gotOffset = limit, offset
				return nil, nil
			}}

			rec := do(t, newRouter(svc, nil), http.MethodGet, "/transactions"+tt.query, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if gotLimit != tt.wantLimit || gotOffset != tt.wantOffset {
				t.Errorf("limit/offset = %d/%d, want %d/%d", gotLimit, gotOffset, tt.wantLimit, tt.wantOffset)
			}
			if strings.TrimSpace(rec.Body.String()) != "[]" {
				t.Errorf("body = %q, want []", rec.Body.String())
			}
		})
	}
}

func TestListTransactions_StorageError(t *testing.T) {
	svc := &mockCategorizer{ListFunc: func(context.Context, int, int) ([]domain.StoredTransaction, error) {
		return nil, &domain.StorageError{Op: "list", Cause: errors.New("locked")}
	}}

	rec := do(t, newRouter(svc, nil), http.MethodGet, "/transactions", "")
	if rec.Code != http.StatusInternalServerError || errorBody(t, rec) != "Failed to list transactions" {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestListCategories(t *testing.T) {
	rec := do(t, newRouter(&mockCategorizer{}, nil), http.MethodGet, "/api/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Categories []override.Rule `json:"categories"`
		Count      int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 6 || body.Categories[0].Category != "Food" {
		t.Errorf("body = %+v", body)
	}
}

func TestJobs(t *testing.T) {
	store := inmemory.NewStore()
	ctx := context.Background()
	_ = store.SaveJob(ctx, &jobs.MirrorTransactionJob{JobID: "j1", Transaction: domain.StoredTransaction{ID: 1}, Status: jobs.JobStatusCompleted, CreatedAt: time.Now()})
	_ = store.SaveJob(ctx, &jobs.MirrorTransactionJob{JobID: "j2", Transaction: domain.StoredTransaction{ID: 2}, Status: jobs.JobStatusFailed, CreatedAt: time.Now()})

	router := newRouter(&mockCategorizer{}, store)

	t.Run("get", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/jobs/j1", "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"job_id":"j1"`) {
			t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("missing", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/jobs/nope", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("list filtered", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/jobs?status=failed", "")
		var body struct {
			Jobs  []jobs.MirrorTransactionJob `json:"jobs"`
			Count int                         `json:"count"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Count != 1 || body.Jobs[0].JobID != "j2" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("bad transaction id", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/jobs?transaction_id=x", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestRoutes_MethodMismatch(t *testing.T) {
	rec := do(t, newRouter(&mockCategorizer{}, nil), http.MethodDelete, "/transactions", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}

	rec = do(t, newRouter(&mockCategorizer{}, nil), http.MethodGet, "/api/jobs", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("jobs route without mirror: status = %d, want 404", rec.Code)
	}
}
