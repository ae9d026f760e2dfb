package activity

import (
	"context"

	domain "registrar/internal/domain/activity"
)

// Store persists the append-only activity log.
type Store interface {
	// Append stores a new entry.
	// PRE: entry is valid
	// POST: Entry is persisted; existing entries are never modified
	Append(ctx context.Context, entry domain.Entry) error

	// List returns entries newest first.
	// PRE: filter.Limit >= 0; zero means no limit
	List(ctx context.Context, filter Filter) ([]domain.Entry, error)
}

// Filter defines query parameters for listing entries.
type Filter struct {
	EntityType string
	EntityID   string
	ActorID    string
	Limit      int
}
