package storage

import (
	"context"
	"sync"
	"testing"
	"time"
)

type countingRecorder struct {
	mu     sync.Mutex
	ops    []string
	errors int
}

func (r *countingRecorder) ObserveQuery(op string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	if err != nil {
		r.errors++
	}
}

func (r *countingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

func newTimedTestDB(t *testing.T) (*TimedDB, *countingRecorder) {
	t.Helper()
	db := openTestDB(t)
	if _, err := db.Exec("CREATE TABLE test (id TEXT PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	rec := &countingRecorder{}
	return NewTimedDB(db, rec, time.Second), rec
}

// TestTimedDB_RecordsEachCall verifies every call reaches the recorder.
func TestTimedDB_RecordsEachCall(t *testing.T) {
	tdb, rec := newTimedTestDB(t)
	ctx := context.Background()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello"); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	rows, err := tdb.QueryContext(ctx, "SELECT id, val FROM test")
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	rows.Close()

	var val string
	if err := tdb.QueryRowContext(ctx, "SELECT val FROM test WHERE id = ?", "1").Scan(&val); err != nil {
		t.Fatalf("QueryRowContext: %v", err)
	}
	if val != "hello" {
		t.Errorf("val = %q, want hello", val)
	}

	tx, err := tdb.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	tx.Rollback()

	if rec.count() != 4 {
		t.Errorf("recorded = %d (%v), want 4", rec.count(), rec.ops)
	}
}

// TestTimedDB_RecordsErrors verifies failed calls are reported with their error.
func TestTimedDB_RecordsErrors(t *testing.T) {
	tdb, rec := newTimedTestDB(t)
	_, err := tdb.ExecContext(context.Background(), "INSERT INTO missing_table VALUES (1)")
	if err == nil {
		t.Fatal("expected error")
	}
	if rec.errors != 1 {
		t.Errorf("errors = %d, want 1", rec.errors)
	}
}

// TestTimedDB_NilRecorder verifies a nil recorder is allowed.
func TestTimedDB_NilRecorder(t *testing.T) {
	db := openTestDB(t)
	tdb := NewTimedDB(db, nil, 0)
	if tdb.threshold != DefaultSlowQuery {
		t.Errorf("threshold = %v, want %v", tdb.threshold, DefaultSlowQuery)
	}
	if _, err := tdb.ExecContext(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
}
