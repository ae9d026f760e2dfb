package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"registrar/internal/adapters/storage"
	"registrar/internal/domain/program"
	domain "registrar/internal/domain/session"
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

// NewSQLiteStore creates a new session store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a Session by its ID.
// PRE: id is non-empty
// POST: Returns the session or storage.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, program_type, title, starts_at, capacity, active FROM program_session WHERE id = ?", id)
	sess, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return sess, err
}

// GetMany retrieves sessions by ID; an unknown ID is an error.
// PRE: ids are distinct
// POST: Returns one session per id, ordered by start time
func (s *SQLiteStore) GetMany(ctx context.Context, ids []string) ([]domain.Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, program_type, title, starts_at, capacity, active FROM program_session WHERE id IN ("+
			placeholders(len(ids))+") ORDER BY starts_at, id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) != len(ids) {
		return nil, fmt.Errorf("sessions %v: %w", ids, storage.ErrNotFound)
	}
	return out, nil
}

// Save persists a Session to the database.
// PRE: s has been validated
// POST: Session is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, sess domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO program_session (id, program_type, title, starts_at, capacity, active)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   program_type=excluded.program_type, title=excluded.title, starts_at=excluded.starts_at,
		   capacity=excluded.capacity, active=excluded.active`,
		sess.ID, string(sess.ProgramType), sess.Title, sess.StartsAt.Format(dateLayout), sess.Capacity, sess.Active)
	return err
}

// List returns sessions ordered by start time.
// PRE: none
// POST: Returns matching sessions
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Session, error) {
	var qb strings.Builder
	var where []string
	var args []any

	qb.WriteString("SELECT id, program_type, title, starts_at, capacity, active FROM program_session")
	if filter.ProgramType != "" {
		where = append(where, "program_type = ?")
		args = append(args, filter.ProgramType)
	}
	if filter.ActiveOnly {
		where = append(where, "active = 1")
	}
	if len(where) > 0 {
		qb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	qb.WriteString(" ORDER BY starts_at, id")

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Availability counts enrolled children per session at read time.
// PRE: ids reference stored sessions
// POST: Returns one Availability per known id
func (s *SQLiteStore) Availability(ctx context.Context, ids []string) ([]domain.Availability, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT ps.id, ps.capacity,
			(SELECT COUNT(*) FROM registration_child rc
			   JOIN registration_session rs ON rs.registration_id = rc.registration_id
			   JOIN registration r ON r.id = rc.registration_id
			  WHERE rs.session_id = ps.id AND r.status != 'cancelled')
		 FROM program_session ps WHERE ps.id IN (`+placeholders(len(ids))+`) ORDER BY ps.starts_at, ps.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Availability
	for rows.Next() {
		var a domain.Availability
		if err := rows.Scan(&a.SessionID, &a.Capacity, &a.Enrolled); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanSession(scan func(dest ...any) error) (domain.Session, error) {
	var sess domain.Session
	var programType, startsAt string
	if err := scan(&sess.ID, &programType, &sess.Title, &startsAt, &sess.Capacity, &sess.Active); err != nil {
		return domain.Session{}, err
	}
	sess.ProgramType = program.Type(programType)
	sess.StartsAt, _ = time.Parse(dateLayout, startsAt)
	return sess, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
