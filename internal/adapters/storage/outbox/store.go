package outbox

import (
	"context"

	domain "registrar/internal/domain/outbox"
)

// Store defines the interface for outbox entry persistence.
type Store interface {
	// GetByID retrieves an outbox entry by its ID.
	// PRE: id is non-empty
	// POST: Returns the entry or storage.ErrNotFound
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// Save persists an outbox entry to the database.
	// PRE: entity has been validated
	// POST: Entity is persisted (insert or update)
	Save(ctx context.Context, e domain.Entry) error

	// List returns entries filtered by status and registration, newest first.
	// PRE: limit >= 0; zero means no limit
	List(ctx context.Context, filter ListFilter) ([]domain.Entry, error)
}

// ListFilter carries filtering parameters for List operations.
type ListFilter struct {
	Status         string
	RegistrationID string
	Limit          int
}
