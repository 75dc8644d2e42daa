package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/smart-budget/internal/domain"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedClock returns a clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := cur
		cur = cur.Add(step)
		return t
	}
}

func record(desc string) domain.TransactionRecord {
	return domain.TransactionRecord{Description: desc, Merchant: "Shop", Amount: 10, PaymentMethod: "Card"}
}

func TestStore_InsertListRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	start := time.Now()
	rec := domain.TransactionRecord{Description: "Coffee run", Merchant: "Starbucks", Amount: 5.50, PaymentMethod: "Card"}
	stored, err := s.Insert(ctx, rec, "Food")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if stored.ID <= 0 {
		t.Errorf("ID = %d, want positive", stored.ID)
	}
	if stored.Category != "Food" || stored.Description != "Coffee run" || stored.Merchant != "Starbucks" ||
		stored.Amount != 5.50 || stored.PaymentMethod != "Card" {
		t.Errorf("unexpected stored row: %+v", stored)
	}
	if stored.CreatedAt.Before(start) {
		t.Errorf("CreatedAt %v is before insert start %v", stored.CreatedAt, start)
	}

	got, err := s.List(ctx, 1, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if got[0] != stored {
		t.Errorf("List()[0] = %+v, want %+v", got[0], stored)
	}
}

func TestStore_ListOrderingAndPagination(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, WithClock(fixedClock(base, time.Second)))

	var ids []int64
	for _, d := range []string{"first", "second", "third"} {
		st, err := s.Insert(ctx, record(d), "Shopping")
		if err != nil {
			t.Fatalf("Insert(%s) failed: %v", d, err)
		}
		ids = append(ids, st.ID)
	}

	tests := []struct {
		name   string
		limit  int
		offset int
		want   []string
	}{
		{"all newest first", 50, 0, []string{"third", "second", "first"}},
		{"limit two offset one", 2, 1, []string{"second", "first"}},
		{"limit one", 1, 0, []string{"third"}},
		{"offset equals count", 10, 3, []string{}},
		{"offset past count", 10, 99, []string{}},
		{"zero limit", 0, 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if got == nil {
				t.Fatal("List returned nil slice")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d rows, want %d", len(got), len(tt.want))
			}
			for i, d := range tt.want {
				if got[i].Description != d {
					t.Errorf("row %d = %s, want %s", i, got[i].Description, d)
				}
			}
		})
	}

	if !(ids[0] < ids[1] && ids[1] < ids[2]) {
		t.Errorf("ids not strictly increasing: %v", ids)
	}
}

func TestStore_TiesBrokenByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	same := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, WithClock(func() time.Time { return same }))

	for _, d := range []string{"a", "b", "c"} {
		if _, err := s.Insert(ctx, record(d), "Food"); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	first, _ := s.List(ctx, 50, 0)
	second, _ := s.List(ctx, 50, 0)
	want := []string{"c", "b", "a"}
	for i := range want {
		if first[i].Description != want[i] {
			t.Errorf("row %d = %s, want %s", i, first[i].Description, want[i])
		}
		if first[i] != second[i] {
			t.Errorf("repeated List differs at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestStore_ListIsIdempotent(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	stamps := []time.Time{t0, t0.Add(time.Second), t0.Add(time.Second), t0.Add(time.Second), t0.Add(2 * time.Second)}
	var n int
	s := openTestStore(t, WithClock(func() time.Time {
		ts := stamps[min(n, len(stamps)-1)]
		n++
		return ts
	}))
	n = 0 // Open stamps applied migrations with the same clock

	for _, d := range []string{"a", "b", "c", "d", "e"} {
		if _, err := s.Insert(ctx, record(d), "Food"); err != nil {
			t.Fatalf("Insert(%s) failed: %v", d, err)
		}
	}

	first, err := s.List(ctx, 2, 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	second, err := s.List(ctx, 2, 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated List(2, 1) differs:\n%+v\n%+v", first, second)
	}
	if len(first) != 2 || first[0].Description != "d" || first[1].Description != "c" {
		t.Errorf("List(2, 1) = %+v, want rows d, c", first)
	}
}

func TestStore_ListRejectsNegative(t *testing.T) {
	s := openTestStore(t)

	for _, tc := range []struct{ limit, offset int }{{-1, 0}, {1, -1}} {
		_, err := s.List(context.Background(), tc.limit, tc.offset)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("List(%d, %d) error = %v, want validation error", tc.limit, tc.offset, err)
		}
	}
}

func TestStore_ConcurrentInsertsUniqueIDs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	const n = 20
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := s.Insert(ctx, record("concurrent"), "Food")
			if err != nil {
				t.Errorf("Insert failed: %v", err)
				return
			}
			mu.Lock()
			ids[st.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != n {
		t.Errorf("got %d unique ids, want %d", len(ids), n)
	}
	count, err := s.Count(ctx)
	if err != nil || count != n {
		t.Errorf("Count = %d, %v; want %d", count, err, n)
	}
}

func TestStore_ClosedReturnsStorageError(t *testing.T) {
	s := openTestStore(t)
	s.Close()

	_, err := s.Insert(context.Background(), record("after close"), "Food")
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("Insert error = %v, want storage error", err)
	}
	_, err = s.List(context.Background(), 10, 0)
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("List error = %v, want storage error", err)
	}
}

func TestStore_ReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	stored, err := s.Insert(ctx, record("durable"), "Utilities")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	s.Close()

	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.List(ctx, 1, 0)
	if err != nil || len(got) != 1 || got[0] != stored {
		t.Errorf("after reopen got %+v, %v; want %+v", got, err, stored)
	}
}
