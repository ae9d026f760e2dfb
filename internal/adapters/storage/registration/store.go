package registration

import (
	"context"
	"time"

	"registrar/internal/domain/activity"
	domain "registrar/internal/domain/registration"
)

// Store persists Registration state.
type Store interface {
	// InsertHeader writes the registration row and its session links atomically.
	InsertHeader(ctx context.Context, r domain.Registration) error
	// InsertDependents writes child and pickup rows atomically.
	InsertDependents(ctx context.Context, registrationID string, children []domain.Child, pickups []domain.Pickup) error
	MarkNeedsRepair(ctx context.Context, id string, now time.Time) error
	LinkAccount(ctx context.Context, id, accountID string, now time.Time) error
	GetByID(ctx context.Context, id string) (domain.Registration, error)
	ListChildren(ctx context.Context, registrationID string) ([]domain.Child, error)
	ListPickups(ctx context.Context, registrationID string) ([]domain.Pickup, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Registration, error)
	// ApplyAdminUpdate writes the admin-editable fields and the activity entry in one transaction.
	// A nil entry writes the update alone. readAt is the UpdatedAt the caller read; a newer
	// stored value returns storage.ErrConflict.
	ApplyAdminUpdate(ctx context.Context, r domain.Registration, readAt time.Time, entry *activity.Entry) error
}

// ListFilter carries filtering parameters for List operations.
type ListFilter struct {
	Status        string
	PaymentStatus string
	ProgramType   string
	SessionID     string
	AccountID     string
	NeedsRepair   *bool
	Limit         int
	Offset        int
}
