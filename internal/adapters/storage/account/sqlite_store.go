package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"registrar/internal/adapters/storage"
	domain "registrar/internal/domain/account"
)

const (
	dateLayout = "2006-01-02T15:04:05.999999999Z07:00"
)

// ErrEmailTaken is returned by Create when the email already has an account.
var ErrEmailTaken = errors.New("email already has an account")

const accountColumns = "id, email, display_name, password_hash, provider, role, created_at, failed_logins, locked_until"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new AccountStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an Account by its ID.
// PRE: id is non-empty
// POST: Returns the entity or storage.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM account WHERE id = ?", id)
	entity, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("account not found: %w", storage.ErrNotFound)
	}
	return entity, err
}

// GetByEmail retrieves an Account by normalized email.
// PRE: email is non-empty
// POST: Returns the entity or storage.ErrNotFound
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM account WHERE email = ?", domain.NormalizeEmail(email))
	entity, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("account not found: %w", storage.ErrNotFound)
	}
	return entity, err
}

// Create inserts a new account.
// PRE: entity has been validated
// POST: Account stored, or ErrEmailTaken if the email is in use
func (s *SQLiteStore) Create(ctx context.Context, entity domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO account ("+accountColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		accountArgs(entity)...)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: account.email") {
		return ErrEmailTaken
	}
	return err
}

// Save persists an Account to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, entity domain.Account) error {
	updates := []string{
		"email=excluded.email",
		"display_name=excluded.display_name",
		"password_hash=excluded.password_hash",
		"provider=excluded.provider",
		"role=excluded.role",
		"failed_logins=excluded.failed_logins",
		"locked_until=excluded.locked_until",
	}
	query := fmt.Sprintf(
		"INSERT INTO account (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO UPDATE SET %s",
		accountColumns,
		strings.Join(updates, ", "),
	)
	_, err := s.db.ExecContext(ctx, query, accountArgs(entity)...)
	return err
}

// SaveResetToken persists a reset token (insert or update).
// PRE: token.AccountID refers to a stored account
func (s *SQLiteStore) SaveResetToken(ctx context.Context, t domain.ResetToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reset_token (id, account_id, token, expires_at, used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET used=excluded.used`,
		t.ID, t.AccountID, t.Token, t.ExpiresAt.Format(dateLayout), t.Used, t.CreatedAt.Format(dateLayout))
	return err
}

// GetResetToken retrieves a reset token by its token value.
// POST: Returns the token or storage.ErrNotFound
func (s *SQLiteStore) GetResetToken(ctx context.Context, token string) (domain.ResetToken, error) {
	var t domain.ResetToken
	var expiresAt, createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, account_id, token, expires_at, used, created_at FROM reset_token WHERE token = ?", token,
	).Scan(&t.ID, &t.AccountID, &t.Token, &expiresAt, &t.Used, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ResetToken{}, fmt.Errorf("reset token not found: %w", storage.ErrNotFound)
	}
	if err != nil {
		return domain.ResetToken{}, err
	}
	t.ExpiresAt, _ = time.Parse(dateLayout, expiresAt)
	t.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	return t, nil
}

func accountArgs(a domain.Account) []any {
	var lockedUntil any
	if !a.LockedUntil.IsZero() {
		lockedUntil = a.LockedUntil.Format(dateLayout)
	}
	provider := a.Provider
	if provider == "" {
		provider = domain.ProviderPassword
	}
	return []any{
		a.ID,
		domain.NormalizeEmail(a.Email),
		a.DisplayName,
		a.PasswordHash,
		provider,
		a.Role,
		a.CreatedAt.Format(dateLayout),
		a.FailedLogins,
		lockedUntil,
	}
}

// scanAccount extracts an Account from a row scanner function.
func scanAccount(scan func(dest ...any) error) (domain.Account, error) {
	var entity domain.Account
	var createdAt string
	var lockedUntil sql.NullString
	err := scan(
		&entity.ID,
		&entity.Email,
		&entity.DisplayName,
		&entity.PasswordHash,
		&entity.Provider,
		&entity.Role,
		&createdAt,
		&entity.FailedLogins,
		&lockedUntil,
	)
	if err != nil {
		return domain.Account{}, err
	}
	entity.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	if lockedUntil.Valid && lockedUntil.String != "" {
		entity.LockedUntil, _ = time.Parse(dateLayout, lockedUntil.String)
	}
	return entity, nil
}
