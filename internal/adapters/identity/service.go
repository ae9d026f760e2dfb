package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"registrar/internal/adapters/email"
	"registrar/internal/adapters/storage"
	accountStore "registrar/internal/adapters/storage/account"
	"registrar/internal/domain/account"
	"registrar/internal/domain/linkage"
)

// Service is the identity collaborator: credentials, sign-up, password resets and sessions.
// Every failure it returns carries a linkage.Category.
type Service struct {
	accounts accountStore.Store
	sessions *SessionStore
	mailer   email.Sender
	resetURL string

	Now   func() time.Time
	NewID func() string
}

// NewService creates an identity service over the account store.
// PRE: accounts and sessions are non-nil; mailer may be nil to skip reset emails
func NewService(accounts accountStore.Store, sessions *SessionStore, mailer email.Sender, resetURL string) *Service {
	return &Service{
		accounts: accounts,
		sessions: sessions,
		mailer:   mailer,
		resetURL: resetURL,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

// SignIn verifies a password credential.
// PRE: none
// POST: Returns the account, or an IdentityError categorized as invalid_input,
// unknown_identity, locked, wrong_secret or unavailable
// INVARIANT: a wrong password counts toward lockout; a correct one resets the counter
func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (account.Account, error) {
	emailAddr = account.NormalizeEmail(emailAddr)
	if !linkage.ValidEmail(emailAddr) || password == "" {
		return account.Account{}, linkage.NewIdentityError(linkage.CategoryInvalidInput, errors.New("email and password are required"))
	}

	acct, err := s.accounts.GetByEmail(ctx, emailAddr)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Info("auth_event", "event", "sign_in_failed", "reason", "unknown_identity")
		return account.Account{}, linkage.NewIdentityError(linkage.CategoryUnknownIdentity, err)
	}
	if err != nil {
		return account.Account{}, linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}

	now := s.Now()
	if acct.IsLocked(now) {
		slog.Info("auth_event", "event", "sign_in_blocked", "account_id", acct.ID, "reason", "locked")
		return account.Account{}, linkage.NewIdentityError(linkage.CategoryLocked, account.ErrLocked)
	}

	if err := acct.CheckPassword(password); err != nil {
		acct.RecordFailedLogin(now)
		if saveErr := s.accounts.Save(ctx, acct); saveErr != nil {
			slog.Error("auth_event", "event", "failed_login_not_recorded", "account_id", acct.ID, "error", saveErr)
		}
		slog.Info("auth_event", "event", "sign_in_failed", "account_id", acct.ID, "reason", "wrong_secret", "failed_logins", acct.FailedLogins)
		return account.Account{}, linkage.NewIdentityError(linkage.CategoryWrongSecret, err)
	}

	if acct.FailedLogins > 0 || !acct.LockedUntil.IsZero() {
		acct.ResetFailedLogins()
		if err := s.accounts.Save(ctx, acct); err != nil {
			slog.Error("auth_event", "event", "failed_login_reset_not_saved", "account_id", acct.ID, "error", err)
		}
	}
	slog.Info("auth_event", "event", "sign_in_success", "account_id", acct.ID)
	return acct, nil
}

// SignUpInput carries the fields for a new password account.
type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUp creates a parent account with a password credential.
// PRE: none
// POST: Returns the new account, or an IdentityError categorized as invalid_input,
// conflict or unavailable
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (account.Account, error) {
	acct := account.Account{
		ID:          s.NewID(),
		Email:       account.NormalizeEmail(in.Email),
		DisplayName: in.DisplayName,
		Role:        account.RoleParent,
		CreatedAt:   s.Now(),
	}
	if err := acct.Validate(); err != nil {
		return account.Account{}, linkage.NewIdentityError(linkage.CategoryInvalidInput, err)
	}
	if err := acct.SetPassword(in.Password); err != nil {
		return account.Account{}, linkage.NewIdentityError(linkage.CategoryInvalidInput, err)
	}
	if err := s.create(ctx, acct); err != nil {
		return account.Account{}, err
	}
	slog.Info("auth_event", "event", "sign_up", "account_id", acct.ID, "provider", acct.Provider)
	return acct, nil
}

// SignInOAuth finds or creates the account for a verified provider profile.
// PRE: profile.Email was verified by the provider
// POST: Returns the existing account for the email or a new oauth account
func (s *Service) SignInOAuth(ctx context.Context, profile Profile) (account.Account, error) {
	acct, err := s.accounts.GetByEmail(ctx, profile.Email)
	if err == nil {
		if acct.IsLocked(s.Now()) {
			return account.Account{}, linkage.NewIdentityError(linkage.CategoryLocked, account.ErrLocked)
		}
		slog.Info("auth_event", "event", "oauth_sign_in", "account_id", acct.ID)
		return acct, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return account.Account{}, linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}

	acct = account.Account{
		ID:          s.NewID(),
		Email:       account.NormalizeEmail(profile.Email),
		DisplayName: profile.Name,
		Provider:    account.ProviderOAuth,
		Role:        account.RoleParent,
		CreatedAt:   s.Now(),
	}
	if err := acct.Validate(); err != nil {
		return account.Account{}, linkage.NewIdentityError(linkage.CategoryInvalidInput, err)
	}
	if err := s.create(ctx, acct); err != nil {
		return account.Account{}, err
	}
	slog.Info("auth_event", "event", "sign_up", "account_id", acct.ID, "provider", acct.Provider)
	return acct, nil
}

func (s *Service) create(ctx context.Context, acct account.Account) error {
	err := s.accounts.Create(ctx, acct)
	if errors.Is(err, accountStore.ErrEmailTaken) {
		return linkage.NewIdentityError(linkage.CategoryConflict, err)
	}
	if err != nil {
		return linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}
	return nil
}

// Exists answers the direct existence question for an email.
// Callers must rate-limit it; see DirectProber.
func (s *Service) Exists(ctx context.Context, emailAddr string) (bool, error) {
	_, err := s.accounts.GetByEmail(ctx, emailAddr)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}
	return true, nil
}

// RequestPasswordReset issues a single-use reset token and emails the link.
// Unknown emails succeed silently so the endpoint reveals nothing.
// POST: A token valid for account.ResetTokenTTL is stored when the account exists
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	acct, err := s.accounts.GetByEmail(ctx, emailAddr)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Info("auth_event", "event", "password_reset_requested", "known", false)
		return nil
	}
	if err != nil {
		return linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}

	secret, err := randomToken()
	if err != nil {
		return linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}
	now := s.Now()
	tok := account.ResetToken{
		ID:        s.NewID(),
		AccountID: acct.ID,
		Token:     secret,
		ExpiresAt: now.Add(account.ResetTokenTTL),
		CreatedAt: now,
	}
	if err := s.accounts.SaveResetToken(ctx, tok); err != nil {
		return linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}
	slog.Info("auth_event", "event", "password_reset_requested", "known", true, "account_id", acct.ID)

	if s.mailer == nil {
		return nil
	}
	link := s.resetURL + "?token=" + url.QueryEscape(secret)
	_, err = s.mailer.Send(ctx, email.Message{
		To:       []string{acct.Email},
		Subject:  "Reset your password",
		Text:     fmt.Sprintf("Use this link within the hour to choose a new password:\n\n%s\n\nIf you did not ask for this, ignore this email.", link),
		HTML:     fmt.Sprintf(`<p>Use this link within the hour to choose a new password:</p><p><a href="%s">Reset password</a></p><p>If you did not ask for this, ignore this email.</p>`, link),
		Category: "password_reset",
	})
	if err != nil {
		slog.Error("auth_event", "event", "password_reset_email_failed", "account_id", acct.ID, "error", err)
		return linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}
	return nil
}

// ResetPassword redeems a reset token and sets a new password.
// PRE: token came from RequestPasswordReset
// POST: Password replaced, lockout cleared, token marked used
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	tok, err := s.accounts.GetResetToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return linkage.NewIdentityError(linkage.CategoryInvalidInput, errors.New("reset link is not valid"))
	}
	if err != nil {
		return linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}
	now := s.Now()
	if err := tok.Redeem(now); err != nil {
		return linkage.NewIdentityError(linkage.CategoryInvalidInput, err)
	}
	acct, err := s.accounts.GetByID(ctx, tok.AccountID)
	if err != nil {
		return linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}
	if err := acct.SetPassword(newPassword); err != nil {
		return linkage.NewIdentityError(linkage.CategoryInvalidInput, err)
	}
	acct.ResetFailedLogins()
	if err := s.accounts.Save(ctx, acct); err != nil {
		return linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}
	if err := s.accounts.SaveResetToken(ctx, tok); err != nil {
		return linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}
	slog.Info("auth_event", "event", "password_reset", "account_id", acct.ID)
	return nil
}

// StartSession opens a session for acct and returns its token.
func (s *Service) StartSession(acct account.Account) (string, error) {
	return s.sessions.Create(Session{
		AccountID:   acct.ID,
		Email:       acct.Email,
		DisplayName: acct.DisplayName,
		Role:        acct.Role,
	})
}

// Session returns the active session for a token.
func (s *Service) Session(token string) (Session, bool) {
	return s.sessions.Get(token)
}

// EndSession signs the token out.
func (s *Service) EndSession(token string) {
	s.sessions.Delete(token)
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
