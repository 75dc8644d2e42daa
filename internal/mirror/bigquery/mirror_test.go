package bigquery

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/smart-budget/internal/domain"
	"github.com/dvloznov/smart-budget/internal/jobs"
)

// mockInserter is a test double for rowInserter.
type mockInserter struct {
	PutFunc func(ctx context.Context, src interface{}) error
	puts    []interface{}
}

func (m *mockInserter) Put(ctx context.Context, src interface{}) error {
	m.puts = append(m.puts, src)
	if m.PutFunc != nil {
		return m.PutFunc(ctx, src)
	}
	return nil
}

var mirroredAt = time.Date(2024, time.June, 2, 8, 0, 0, 0, time.UTC)

func storedTx() domain.StoredTransaction {
	return domain.StoredTransaction{
		ID:            9,
		Description:   "Coffee run",
		Merchant:      "Starbucks",
		Amount:        5.5,
		PaymentMethod: "Card",
		Category:      "Food",
		CreatedAt:     time.Date(2024, time.June, 1, 23, 30, 0, 0, time.UTC),
	}
}

func TestNewTransactionRow(t *testing.T) {
	row := NewTransactionRow(storedTx(), mirroredAt)

	if row.RowID == "" {
		t.Error("expected generated row ID")
	}
	if row.TransactionID != 9 || row.Category != "Food" || row.Amount != 5.5 {
		t.Errorf("unexpected row: %+v", row)
	}
	if !row.PaymentMethod.Valid || row.PaymentMethod.StringVal != "Card" {
		t.Errorf("PaymentMethod = %+v", row.PaymentMethod)
	}
	want := civil.Date{Year: 2024, Month: time.June, Day: 1}
	if row.CreatedDate != want {
		t.Errorf("CreatedDate = %v, want %v", row.CreatedDate, want)
	}
	if !row.MirroredTS.Equal(mirroredAt) {
		t.Errorf("MirroredTS = %v", row.MirroredTS)
	}

	noPayment := storedTx()
	noPayment.PaymentMethod = ""
	if NewTransactionRow(noPayment, mirroredAt).PaymentMethod.Valid {
		t.Error("empty payment method should be NULL")
	}
}

func TestMirrorTransaction(t *testing.T) {
	ins := &mockInserter{}
	m := newMirrorWithInserter(ins, func() time.Time { return mirroredAt })

	if err := m.MirrorTransaction(context.Background(), storedTx()); err != nil {
		t.Fatalf("MirrorTransaction failed: %v", err)
	}
	if len(ins.puts) != 1 {
		t.Fatalf("got %d puts, want 1", len(ins.puts))
	}

	saver, ok := ins.puts[0].(*bigquery.StructSaver)
	if !ok {
		t.Fatalf("put %T, want *bigquery.StructSaver", ins.puts[0])
	}
	if saver.InsertID != "tx-9" {
		t.Errorf("InsertID = %q, want tx-9", saver.InsertID)
	}
	if row, ok := saver.Struct.(*TransactionRow); !ok || row.TransactionID != 9 {
		t.Errorf("unexpected struct: %+v", saver.Struct)
	}
}

func TestHandler(t *testing.T) {
	putErr := errors.New("quota exceeded")

	tests := []struct {
		name    string
		putErr  error
		wantErr bool
	}{
		{"success", nil, false},
		{"insert failure is returned for retry", putErr, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := &mockInserter{PutFunc: func(context.Context, interface{}) error { return tt.putErr }}
			m := newMirrorWithInserter(ins, time.Now)

			err := m.Handler()(context.Background(), &jobs.MirrorTransactionJob{JobID: "j", Transaction: storedTx()})
			if (err != nil) != tt.wantErr {
				t.Errorf("Handler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, putErr) {
				t.Errorf("error %v does not wrap insert failure", err)
			}
		})
	}
}

type otherJob struct{}

func (otherJob) GetID() string             { return "x" }
func (otherJob) GetType() jobs.JobType     { return "other" }
func (otherJob) GetStatus() jobs.JobStatus { return jobs.JobStatusPending }

func TestHandler_RejectsUnknownJob(t *testing.T) {
	m := newMirrorWithInserter(&mockInserter{}, time.Now)
	if err := m.Handler()(context.Background(), otherJob{}); err == nil {
		t.Error("expected error for unknown job type")
	}
}
