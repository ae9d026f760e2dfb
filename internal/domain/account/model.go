package account

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	MaxEmailLength    = 254
	MinPasswordLength = 8
	MaxFailedLogins   = 5
	LockoutDuration   = 15 * time.Minute
	ResetTokenTTL     = time.Hour
	bcryptCost        = 12
)

// Role constants
const (
	RoleParent = "parent"
	RoleStaff  = "staff"
)

// Provider records how the identity authenticates.
const (
	ProviderPassword = "password"
	ProviderOAuth    = "oauth"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleParent, RoleStaff}

// Domain errors
var (
	ErrInvalidEmail     = errors.New("email must contain '@'")
	ErrEmptyEmail       = errors.New("email cannot be empty")
	ErrEmailTooLong     = errors.New("email cannot exceed 254 characters")
	ErrInvalidRole      = errors.New("role must be one of: parent, staff")
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrWrongPassword    = errors.New("incorrect password")
	ErrLocked           = errors.New("account is temporarily locked")
	ErrResetExpired     = errors.New("reset link has expired")
	ErrResetUsed        = errors.New("reset link has already been used")
)

// Account is an authenticated identity that may own registrations and saved defaults.
type Account struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Provider     string // password, oauth
	Role         string
	CreatedAt    time.Time
	FailedLogins int
	LockedUntil  time.Time
}

// ResetToken is a single-use password reset credential.
type ResetToken struct {
	ID        string
	AccountID string
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// NormalizeEmail lower-cases and trims an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks if the Account has valid data.
// PRE: Account struct is populated
// POST: Returns nil if valid, error otherwise
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Email) == "" {
		return ErrEmptyEmail
	}
	if len(a.Email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if !strings.Contains(a.Email, "@") {
		return ErrInvalidEmail
	}
	for _, r := range ValidRoles {
		if r == a.Role {
			return nil
		}
	}
	return ErrInvalidRole
}

// SetPassword hashes a plaintext password with bcrypt.
// PRE: plaintext is at least MinPasswordLength characters
// POST: PasswordHash holds the bcrypt hash; Provider is password
func (a *Account) SetPassword(plaintext string) error {
	if plaintext == "" {
		return ErrEmptyPassword
	}
	if len(plaintext) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	a.Provider = ProviderPassword
	return nil
}

// CheckPassword verifies a plaintext password against the stored hash.
// OAuth-only accounts have no hash and always fail.
// INVARIANT: Account fields are not mutated
func (a *Account) CheckPassword(plaintext string) error {
	if a.PasswordHash == "" {
		return ErrWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(plaintext)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// IsLocked reports whether the lockout window is still open at now.
// INVARIANT: Account fields are not mutated
func (a *Account) IsLocked(now time.Time) bool {
	return !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// RecordFailedLogin counts a failed sign-in and opens the lockout window at the limit.
// POST: FailedLogins incremented; LockedUntil set once MaxFailedLogins is reached
func (a *Account) RecordFailedLogin(now time.Time) {
	a.FailedLogins++
	if a.FailedLogins >= MaxFailedLogins {
		a.LockedUntil = now.Add(LockoutDuration)
	}
}

// ResetFailedLogins clears the failed login counter and lock.
// POST: FailedLogins is 0, LockedUntil is zero
func (a *Account) ResetFailedLogins() {
	a.FailedLogins = 0
	a.LockedUntil = time.Time{}
}

// IsStaff returns true for staff accounts.
func (a *Account) IsStaff() bool {
	return a.Role == RoleStaff
}

// Redeem checks the token can be used at now and marks it used.
// PRE: Token was loaded by its token value
// POST: Used is true on success
func (t *ResetToken) Redeem(now time.Time) error {
	if t.Used {
		return ErrResetUsed
	}
	if now.After(t.ExpiresAt) {
		return ErrResetExpired
	}
	t.Used = true
	return nil
}
