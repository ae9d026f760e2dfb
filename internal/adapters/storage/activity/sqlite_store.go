package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"registrar/internal/adapters/storage"
	domain "registrar/internal/domain/activity"
)

const (
	dateLayout = "2006-01-02T15:04:05.999999999Z07:00"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new activity store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Append stores a new entry.
// PRE: entry is valid
// POST: Entry is persisted
func (s *SQLiteStore) Append(ctx context.Context, entry domain.Entry) error {
	return Append(ctx, s.db, entry)
}

// Append writes entry through ex, which may be a transaction owned by the caller.
// PRE: entry is valid
// POST: One activity_log row inserted
func Append(ctx context.Context, ex storage.Execer, entry domain.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	changes := entry.Changes
	if changes == nil {
		changes = domain.Changes{}
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode activity changes: %w", err)
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO activity_log (id, action, entity_type, entity_id, changes, actor_id, actor_email, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Action), entry.EntityType, entry.EntityID, string(raw),
		entry.ActorID, entry.ActorEmail, entry.Timestamp.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("insert activity entry: %w", err)
	}
	return nil
}

// List returns entries newest first.
// PRE: filter.Limit >= 0
// POST: Returns matching entries
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]domain.Entry, error) {
	var qb strings.Builder
	var where []string
	var args []any

	qb.WriteString("SELECT id, action, entity_type, entity_id, changes, actor_id, actor_email, created_at FROM activity_log")
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if len(where) > 0 {
		qb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	qb.WriteString(" ORDER BY created_at DESC, id DESC LIMIT ?")
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		var action, changes, createdAt string
		if err := rows.Scan(&e.ID, &action, &e.EntityType, &e.EntityID, &changes, &e.ActorID, &e.ActorEmail, &createdAt); err != nil {
			return nil, err
		}
		e.Action = domain.Action(action)
		if err := json.Unmarshal([]byte(changes), &e.Changes); err != nil {
			return nil, fmt.Errorf("decode activity changes for %s: %w", e.ID, err)
		}
		e.Timestamp, _ = time.Parse(dateLayout, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
