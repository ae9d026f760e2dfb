package accountsettings

import (
	"context"

	domain "registrar/internal/domain/accountsettings"
)

// Store persists per-account registration defaults.
type Store interface {
	// Get returns the saved settings, or storage.ErrNotFound when none exist.
	Get(ctx context.Context, accountID string) (domain.Settings, error)
	// Save replaces the settings for an account.
	Save(ctx context.Context, s domain.Settings) error
}
