package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"registrar/internal/adapters/storage"
	activityStore "registrar/internal/adapters/storage/activity"
	"registrar/internal/domain/activity"
	"registrar/internal/domain/program"
	domain "registrar/internal/domain/registration"
)

const (
	dateLayout = "2006-01-02T15:04:05.999999999Z07:00"
)

const selectColumns = `r.id, r.program_type, COALESCE(r.account_id, ''),
	r.parent_name, r.parent_email, r.parent_phone, r.parent_relationship,
	r.emergency_name, r.emergency_phone, r.emergency_relationship,
	r.base_price_cents, r.session_count, r.total_amount_cents, r.amount_paid_cents,
	r.payment_method, r.payment_status, r.status, r.cancelled_at, r.cancellation_reason,
	r.media_consent_internal, r.media_consent_marketing,
	r.how_heard, r.comments, r.admin_notes, r.needs_repair, r.created_at, r.updated_at,
	COALESCE((SELECT GROUP_CONCAT(rs.session_id, ',') FROM registration_session rs WHERE rs.registration_id = r.id), '')`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new registration store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// InsertHeader writes the registration header and its session links.
// PRE: r has been validated
// POST: Header and session links exist, or nothing was written
func (s *SQLiteStore) InsertHeader(ctx context.Context, r domain.Registration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO registration (
			id, program_type, account_id,
			parent_name, parent_email, parent_phone, parent_relationship,
			emergency_name, emergency_phone, emergency_relationship,
			base_price_cents, session_count, total_amount_cents, amount_paid_cents,
			payment_method, payment_status, status, cancelled_at, cancellation_reason,
			media_consent_internal, media_consent_marketing,
			how_heard, comments, admin_notes, needs_repair, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.ProgramType), nullString(r.AccountID),
		r.ParentName, r.ParentEmail, r.ParentPhone, r.ParentRelationship,
		r.EmergencyName, r.EmergencyPhone, r.EmergencyRelationship,
		r.BasePriceCents, r.SessionCount, r.TotalAmountCents, r.AmountPaidCents,
		r.PaymentMethod, r.PaymentStatus, r.Status, nullTime(r.CancelledAt), r.CancellationReason,
		r.MediaConsentInternal, r.MediaConsentMarketing,
		r.HowHeard, r.Comments, r.AdminNotes, r.NeedsRepair,
		r.CreatedAt.Format(dateLayout), r.UpdatedAt.Format(dateLayout),
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}

	for _, sessionID := range r.SessionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO registration_session (registration_id, session_id) VALUES (?, ?)`,
			r.ID, sessionID); err != nil {
			return fmt.Errorf("insert registration session: %w", err)
		}
	}

	return tx.Commit()
}

// InsertDependents writes child and pickup rows for an existing header.
// PRE: registrationID refers to a stored header
// POST: All rows written, or none
func (s *SQLiteStore) InsertDependents(ctx context.Context, registrationID string, children []domain.Child, pickups []domain.Pickup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range children {
		_, err := tx.ExecContext(ctx, `INSERT INTO registration_child
				(id, registration_id, position, name, age, school, medical_notes, allergies, dietary, tshirt_size, discount_cents)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, registrationID, c.Position, c.Name, c.Age, c.School, c.MedicalNotes,
			c.Allergies, c.Dietary, c.TShirtSize, c.DiscountCents)
		if err != nil {
			return fmt.Errorf("insert child %d: %w", c.Position, err)
		}
	}
	for _, p := range pickups {
		_, err := tx.ExecContext(ctx, `INSERT INTO registration_pickup
				(id, registration_id, position, name, phone, relationship)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, registrationID, p.Position, p.Name, p.Phone, p.Relationship)
		if err != nil {
			return fmt.Errorf("insert pickup %d: %w", p.Position, err)
		}
	}

	return tx.Commit()
}

// MarkNeedsRepair flags a header whose dependent rows could not be written.
// PRE: id is non-empty
// POST: needs_repair is set
func (s *SQLiteStore) MarkNeedsRepair(ctx context.Context, id string, now time.Time) error {
	return s.exec1(ctx, `UPDATE registration SET needs_repair = 1, updated_at = ? WHERE id = ?`,
		now.Format(dateLayout), id)
}

// LinkAccount records the owning account after deferred account creation.
// PRE: id and accountID are non-empty
// POST: account_id is set
func (s *SQLiteStore) LinkAccount(ctx context.Context, id, accountID string, now time.Time) error {
	return s.exec1(ctx, `UPDATE registration SET account_id = ?, updated_at = ? WHERE id = ?`,
		accountID, now.Format(dateLayout), id)
}

// GetByID retrieves a Registration header by its ID.
// PRE: id is non-empty
// POST: Returns the header or storage.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Registration, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM registration r WHERE r.id = ?", id)
	r, err := scanRegistration(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, fmt.Errorf("registration %s: %w", id, storage.ErrNotFound)
	}
	return r, err
}

// ListChildren returns the children of a registration in position order.
func (s *SQLiteStore) ListChildren(ctx context.Context, registrationID string) ([]domain.Child, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, registration_id, position, name, age, school, medical_notes,
			allergies, dietary, tshirt_size, discount_cents
		 FROM registration_child WHERE registration_id = ? ORDER BY position`, registrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Child
	for rows.Next() {
		var c domain.Child
		if err := rows.Scan(&c.ID, &c.RegistrationID, &c.Position, &c.Name, &c.Age, &c.School,
			&c.MedicalNotes, &c.Allergies, &c.Dietary, &c.TShirtSize, &c.DiscountCents); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListPickups returns the authorized pickups of a registration in position order.
func (s *SQLiteStore) ListPickups(ctx context.Context, registrationID string) ([]domain.Pickup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, registration_id, position, name, phone, relationship
		 FROM registration_pickup WHERE registration_id = ? ORDER BY position`, registrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Pickup
	for rows.Next() {
		var p domain.Pickup
		if err := rows.Scan(&p.ID, &p.RegistrationID, &p.Position, &p.Name, &p.Phone, &p.Relationship); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// List retrieves registration headers matching the filter, newest first.
// PRE: filter has valid parameters
// POST: Returns matching headers; a zero Limit means no limit
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Registration, error) {
	var qb strings.Builder
	var where []string
	var args []any

	qb.WriteString("SELECT " + selectColumns + " FROM registration r")
	if filter.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, filter.Status)
	}
	if filter.PaymentStatus != "" {
		where = append(where, "r.payment_status = ?")
		args = append(args, filter.PaymentStatus)
	}
	if filter.ProgramType != "" {
		where = append(where, "r.program_type = ?")
		args = append(args, filter.ProgramType)
	}
	if filter.AccountID != "" {
		where = append(where, "r.account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.SessionID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM registration_session rs WHERE rs.registration_id = r.id AND rs.session_id = ?)")
		args = append(args, filter.SessionID)
	}
	if filter.NeedsRepair != nil {
		where = append(where, "r.needs_repair = ?")
		args = append(args, *filter.NeedsRepair)
	}
	if len(where) > 0 {
		qb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	qb.WriteString(" ORDER BY r.created_at DESC, r.id")
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Registration
	for rows.Next() {
		r, err := scanRegistration(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ApplyAdminUpdate writes the admin-editable fields and appends entry in the same transaction.
// The write only lands while the stored updated_at still equals readAt.
// PRE: r was loaded by GetByID at readAt and modified through the domain methods
// POST: Both writes land or neither does; storage.ErrConflict when another write got there first
func (s *SQLiteStore) ApplyAdminUpdate(ctx context.Context, r domain.Registration, readAt time.Time, entry *activity.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE registration SET
			status = ?, payment_status = ?, amount_paid_cents = ?, payment_method = ?,
			admin_notes = ?, cancelled_at = ?, cancellation_reason = ?, updated_at = ?
		 WHERE id = ? AND updated_at = ?`,
		r.Status, r.PaymentStatus, r.AmountPaidCents, r.PaymentMethod,
		r.AdminNotes, nullTime(r.CancelledAt), r.CancellationReason, r.UpdatedAt.Format(dateLayout),
		r.ID, readAt.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM registration WHERE id = ?`, r.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("registration %s: %w", r.ID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check registration: %w", err)
		}
		return fmt.Errorf("registration %s: %w", r.ID, storage.ErrConflict)
	}

	if entry != nil {
		if err := activityStore.Append(ctx, tx, *entry); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) exec1(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanRegistration extracts a Registration from a row scanner function.
func scanRegistration(scan func(dest ...any) error) (domain.Registration, error) {
	var r domain.Registration
	var programType, createdAt, updatedAt, sessionIDs string
	var cancelledAt sql.NullString
	err := scan(
		&r.ID, &programType, &r.AccountID,
		&r.ParentName, &r.ParentEmail, &r.ParentPhone, &r.ParentRelationship,
		&r.EmergencyName, &r.EmergencyPhone, &r.EmergencyRelationship,
		&r.BasePriceCents, &r.SessionCount, &r.TotalAmountCents, &r.AmountPaidCents,
		&r.PaymentMethod, &r.PaymentStatus, &r.Status, &cancelledAt, &r.CancellationReason,
		&r.MediaConsentInternal, &r.MediaConsentMarketing,
		&r.HowHeard, &r.Comments, &r.AdminNotes, &r.NeedsRepair, &createdAt, &updatedAt,
		&sessionIDs,
	)
	if err != nil {
		return domain.Registration{}, err
	}
	r.ProgramType = program.Type(programType)
	r.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	r.UpdatedAt, _ = time.Parse(dateLayout, updatedAt)
	if cancelledAt.Valid && cancelledAt.String != "" {
		r.CancelledAt, _ = time.Parse(dateLayout, cancelledAt.String)
	}
	if sessionIDs != "" {
		r.SessionIDs = strings.Split(sessionIDs, ",")
		sort.Strings(r.SessionIDs)
	}
	return r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}
