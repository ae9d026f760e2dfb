package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"registrar/internal/adapters/storage"
	"registrar/internal/application/intake"
	"registrar/internal/domain/account"
	"registrar/internal/domain/accountsettings"
	"registrar/internal/domain/linkage"
	"registrar/internal/domain/program"
)

// Sign-in errors surfaced to the registration form.
var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountLocked       = errors.New("account is locked after too many failed attempts, try again later")
	ErrIdentityUnavailable = errors.New("sign-in is unavailable right now, you can continue without signing in")
)

// ProbeRecorder counts existence probe outcomes.
type ProbeRecorder interface {
	ProbeResult(result string)
}

// ResolveLinkageInput carries the email typed into the form.
type ResolveLinkageInput struct {
	Email string
	// SignedInEmail is set when the request already carries a session.
	SignedInEmail string
}

// ResolveLinkageResult is the linkage state the form should show.
type ResolveLinkageResult struct {
	State       linkage.State `json:"state"`
	Email       string        `json:"email"`
	Mode        intake.Mode   `json:"mode"`
	OfferSignIn bool          `json:"offer_sign_in"`
}

// ResolveLinkageDeps holds dependencies for ResolveLinkage.
type ResolveLinkageDeps struct {
	Prober  linkage.Prober
	Metrics ProbeRecorder // optional
}

// ExecuteResolveLinkage decides whether the typed email belongs to an existing account.
// PRE: none
// POST: Returns idle for unusable emails, logged_in for an active session, otherwise
// existing_user or new_user. Indeterminate probes resolve to new_user.
// INVARIANT: Never returns an error; ambiguity only skips the sign-in offer
func ExecuteResolveLinkage(ctx context.Context, input ResolveLinkageInput, deps ResolveLinkageDeps) ResolveLinkageResult {
	r := linkage.NewResolver()
	if input.SignedInEmail != "" {
		r.Apply(linkage.Event{Kind: linkage.EventSessionActive, Email: input.SignedInEmail})
		return linkageResult(r)
	}

	r.Apply(linkage.Event{Kind: linkage.EventEmailChanged, Email: input.Email})
	if r.State != linkage.StateChecking {
		return linkageResult(r)
	}

	ticket := r.Ticket()
	existence := deps.Prober.Probe(ctx, r.Email)
	if deps.Metrics != nil {
		deps.Metrics.ProbeResult(string(existence))
	}
	r.Apply(linkage.Event{Kind: linkage.EventProbeResolved, Ticket: ticket, Result: existence})
	slog.Debug("linkage_resolved", "state", r.State, "existence", existence)
	return linkageResult(r)
}

func linkageResult(r *linkage.Resolver) ResolveLinkageResult {
	return ResolveLinkageResult{
		State:       r.State,
		Email:       r.Email,
		Mode:        intake.ModeFor(r.State),
		OfferSignIn: r.State == linkage.StateExistingUser,
	}
}

// SignInService is the identity surface used by the in-form sign-in.
type SignInService interface {
	SignIn(ctx context.Context, email, password string) (account.Account, error)
	StartSession(acct account.Account) (string, error)
}

// SettingsReader loads saved registration defaults.
type SettingsReader interface {
	Get(ctx context.Context, accountID string) (accountsettings.Settings, error)
}

// LinkedSignInInput carries the scoped sign-in offered on existing_user.
type LinkedSignInInput struct {
	Email    string
	Password string
	// Decline skips signing in and continues as a new user.
	Decline bool
	// Draft is the form as it stands; defaults merge into untouched sections.
	Draft intake.DraftRequest
}

// LinkedSignInResult is the form state after the sign-in attempt.
type LinkedSignInResult struct {
	State        linkage.State
	AccountID    string
	SessionToken string
	Draft        intake.Draft
}

// LinkedSignInDeps holds dependencies for LinkedSignIn.
type LinkedSignInDeps struct {
	Identity SignInService
	Settings SettingsReader
	Catalog  *program.Catalog
	Now      func() time.Time
}

// ExecuteLinkedSignIn runs the credential sign-in offered inside the registration form.
// PRE: The email resolved to existing_user
// POST: On success the state is logged_in, a session token is issued, and saved defaults
// fill untouched sections. On failure the state stays existing_user and an error is returned.
func ExecuteLinkedSignIn(ctx context.Context, input LinkedSignInInput, deps LinkedSignInDeps) (LinkedSignInResult, error) {
	r := &linkage.Resolver{State: linkage.StateExistingUser, Email: linkage.NormalizeEmail(input.Email)}
	now := deps.Now()

	if input.Decline {
		r.Apply(linkage.Event{Kind: linkage.EventSignInDeclined})
		input.Draft.Linkage = r.State
		return LinkedSignInResult{State: r.State, Draft: intake.BuildDraft(input.Draft, nil, deps.Catalog, now)}, nil
	}

	acct, err := deps.Identity.SignIn(ctx, r.Email, input.Password)
	if err != nil {
		r.Apply(linkage.Event{Kind: linkage.EventSignInFailed})
		input.Draft.Linkage = r.State
		res := LinkedSignInResult{State: r.State, Draft: intake.BuildDraft(input.Draft, nil, deps.Catalog, now)}
		switch linkage.CategoryOf(err) {
		case linkage.CategoryWrongSecret, linkage.CategoryUnknownIdentity, linkage.CategoryInvalidInput:
			return res, ErrInvalidCredentials
		case linkage.CategoryLocked:
			return res, ErrAccountLocked
		}
		slog.Warn("linked_sign_in_unavailable", "error", err)
		return res, ErrIdentityUnavailable
	}

	token, err := deps.Identity.StartSession(acct)
	if err != nil {
		return LinkedSignInResult{State: r.State}, ErrIdentityUnavailable
	}
	r.Apply(linkage.Event{Kind: linkage.EventSignInSucceeded})

	var settings *accountsettings.Settings
	saved, err := deps.Settings.Get(ctx, acct.ID)
	switch {
	case err == nil:
		settings = &saved
	case !errors.Is(err, storage.ErrNotFound):
		slog.Warn("account_settings_load_failed", "account_id", acct.ID, "error", err)
	}

	input.Draft.Linkage = r.State
	draft := intake.BuildDraft(input.Draft, settings, deps.Catalog, now)
	slog.Info("linked_sign_in", "account_id", acct.ID, "applied_defaults", len(draft.Applied))
	return LinkedSignInResult{
		State:        r.State,
		AccountID:    acct.ID,
		SessionToken: token,
		Draft:        draft,
	}, nil
}
