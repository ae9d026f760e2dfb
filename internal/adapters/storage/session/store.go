package session

import (
	"context"

	domain "registrar/internal/domain/session"
)

// Store persists program sessions and answers capacity reads.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Session, error)
	GetMany(ctx context.Context, ids []string) ([]domain.Session, error)
	Save(ctx context.Context, s domain.Session) error
	List(ctx context.Context, filter ListFilter) ([]domain.Session, error)
	// Availability counts children on non-cancelled registrations per session.
	// The count is a point-in-time read and takes no locks.
	Availability(ctx context.Context, ids []string) ([]domain.Availability, error)
}

// ListFilter carries filtering parameters for List operations.
type ListFilter struct {
	ProgramType string
	ActiveOnly  bool
}
