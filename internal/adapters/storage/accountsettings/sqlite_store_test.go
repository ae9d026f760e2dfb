package accountsettings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"registrar/internal/adapters/storage"
	accountStore "registrar/internal/adapters/storage/account"
	settingsStore "registrar/internal/adapters/storage/accountsettings"
	"registrar/internal/domain/account"
	domain "registrar/internal/domain/accountsettings"
)

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	db, err := storage.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := accountStore.NewSQLiteStore(db).Create(ctx, account.Account{
		ID: "acct-1", Email: "dana@example.com", Role: account.RoleParent, CreatedAt: now,
	}); err != nil {
		t.Fatalf("Create account: %v", err)
	}

	s := settingsStore.NewSQLiteStore(db)
	if _, err := s.Get(ctx, "acct-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get before save = %v, want ErrNotFound", err)
	}

	in := domain.Settings{
		AccountID: "acct-1",
		Parent:    domain.Contact{Name: "Dana", Phone: "021 555 0100"},
		Children:  []domain.Child{{ID: "k-1", Name: "Ari", DateOfBirth: time.Date(2016, 6, 15, 0, 0, 0, 0, time.UTC)}},
		UpdatedAt: now,
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	in.Parent.Phone = "021 555 0111"
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save (replace): %v", err)
	}

	got, err := s.Get(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Parent.Phone != "021 555 0111" || len(got.Children) != 1 || got.Children[0].AgeOn(now) != 9 {
		t.Errorf("got %+v", got)
	}
}
