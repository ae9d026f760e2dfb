package account

import (
	"context"

	domain "registrar/internal/domain/account"
)

// Store persists Account state.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	// Create inserts a new account; a duplicate email returns ErrEmailTaken.
	Create(ctx context.Context, value domain.Account) error
	Save(ctx context.Context, value domain.Account) error
	SaveResetToken(ctx context.Context, token domain.ResetToken) error
	GetResetToken(ctx context.Context, token string) (domain.ResetToken, error)
}
