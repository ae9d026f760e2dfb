package activity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"registrar/internal/adapters/storage"
	activityStore "registrar/internal/adapters/storage/activity"
	domain "registrar/internal/domain/activity"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func entry(id, entityID, actor string, at time.Time) domain.Entry {
	return domain.Entry{
		ID:         id,
		Action:     domain.ActionRegistrationUpdated,
		EntityType: domain.EntityRegistration,
		EntityID:   entityID,
		Changes: domain.Changes{
			"payment_status": {Before: "unpaid", After: "paid"},
		},
		ActorID:    actor,
		ActorEmail: actor + "@example.org",
		Timestamp:  at,
	}
}

// TestSQLiteStore_AppendList checks filters and newest-first ordering.
// PRE: empty database
// POST: entries read back with their changes decoded
func TestSQLiteStore_AppendList(t *testing.T) {
	db, err := storage.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	s := activityStore.NewSQLiteStore(db)
	ctx := context.Background()

	for _, e := range []domain.Entry{
		entry("a-1", "reg-1", "staff-1", base),
		entry("a-2", "reg-1", "staff-2", base.Add(time.Minute)),
		entry("a-3", "reg-2", "staff-1", base.Add(2*time.Minute)),
	} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append %s: %v", e.ID, err)
		}
	}

	all, err := s.List(ctx, activityStore.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a-3" {
		t.Fatalf("List = %d entries, first %q, want 3 starting a-3", len(all), all[0].ID)
	}
	if c := all[0].Changes["payment_status"]; c.After != "paid" {
		t.Errorf("changes = %+v, want payment_status to paid", all[0].Changes)
	}
	if !all[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("timestamp = %v", all[0].Timestamp)
	}

	byEntity, _ := s.List(ctx, activityStore.Filter{EntityID: "reg-1"})
	if len(byEntity) != 2 {
		t.Errorf("reg-1 entries = %d, want 2", len(byEntity))
	}
	byActor, _ := s.List(ctx, activityStore.Filter{ActorID: "staff-1", Limit: 1})
	if len(byActor) != 1 || byActor[0].ID != "a-3" {
		t.Errorf("staff-1 limited = %+v, want only a-3", byActor)
	}
}

func TestSQLiteStore_AppendRejectsInvalid(t *testing.T) {
	db, err := storage.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	s := activityStore.NewSQLiteStore(db)

	e := entry("a-1", "", "staff-1", base)
	if err := s.Append(context.Background(), e); !errors.Is(err, domain.ErrEmptyEntity) {
		t.Errorf("Append err = %v, want ErrEmptyEntity", err)
	}
}
