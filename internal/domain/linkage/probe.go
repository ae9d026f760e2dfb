package linkage

import (
	"context"
	"errors"
)

// Existence is the tri-state outcome of an account-existence probe.
type Existence string

const (
	ExistenceExists        Existence = "exists"
	ExistenceNotExists     Existence = "not_exists"
	ExistenceIndeterminate Existence = "indeterminate"
)

// Prober answers whether an identity exists for an email.
// Implementations must never fail hard: anything uncertain is indeterminate.
type Prober interface {
	Probe(ctx context.Context, email string) Existence
}

// Category is the finite set of failure reasons reported by the identity collaborator.
type Category string

const (
	CategoryWrongSecret     Category = "wrong_secret"
	CategoryUnknownIdentity Category = "unknown_identity"
	CategoryLocked          Category = "locked"
	CategoryRateLimited     Category = "rate_limited"
	CategoryUnavailable     Category = "unavailable"
	CategoryInvalidInput    Category = "invalid_input"
	CategoryConflict        Category = "conflict"
)

// IdentityError carries a categorized failure from the identity collaborator.
type IdentityError struct {
	Category Category
	Err      error
}

func (e *IdentityError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return string(e.Category) + ": " + e.Err.Error()
}

func (e *IdentityError) Unwrap() error { return e.Err }

// NewIdentityError wraps err with a category.
func NewIdentityError(c Category, err error) error {
	return &IdentityError{Category: c, Err: err}
}

// CategoryOf extracts the category from an identity error.
// POST: Returns "" when err carries no category
func CategoryOf(err error) Category {
	var ie *IdentityError
	if errors.As(err, &ie) {
		return ie.Category
	}
	return ""
}

// ClassifyCredentialError infers existence from a failed credential exchange made with a
// deliberately wrong secret.
// INVARIANT: Only wrong_secret and unknown_identity are conclusive
func ClassifyCredentialError(err error) Existence {
	if err == nil {
		return ExistenceExists
	}
	switch CategoryOf(err) {
	case CategoryWrongSecret:
		return ExistenceExists
	case CategoryUnknownIdentity:
		return ExistenceNotExists
	}
	return ExistenceIndeterminate
}

// ResolvedState maps a probe outcome to the flow state it leads to.
// Indeterminate is treated exactly like not_exists so a false negative never blocks a submission.
func ResolvedState(e Existence) State {
	if e == ExistenceExists {
		return StateExistingUser
	}
	return StateNewUser
}
