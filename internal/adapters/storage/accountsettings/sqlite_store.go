package accountsettings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"registrar/internal/adapters/storage"
	domain "registrar/internal/domain/accountsettings"
)

const (
	dateLayout = "2006-01-02T15:04:05.999999999Z07:00"
)

// SQLiteStore implements Store using SQLite; the settings document is stored as JSON.
type SQLiteStore struct {
	db storage.SQLDB
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new account settings store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the saved settings for an account.
// PRE: accountID is non-empty
// POST: Returns the settings or storage.ErrNotFound
func (s *SQLiteStore) Get(ctx context.Context, accountID string) (domain.Settings, error) {
	var data, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT data, updated_at FROM account_settings WHERE account_id = ?", accountID,
	).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Settings{}, fmt.Errorf("settings for %s: %w", accountID, storage.ErrNotFound)
	}
	if err != nil {
		return domain.Settings{}, err
	}
	var out domain.Settings
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings for %s: %w", accountID, err)
	}
	out.AccountID = accountID
	out.UpdatedAt, _ = time.Parse(dateLayout, updatedAt)
	return out, nil
}

// Save replaces the settings for s.AccountID.
// PRE: s has been validated
// POST: Settings document replaced
func (s *SQLiteStore) Save(ctx context.Context, settings domain.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO account_settings (account_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(account_id) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		settings.AccountID, string(data), settings.UpdatedAt.Format(dateLayout))
	return err
}
