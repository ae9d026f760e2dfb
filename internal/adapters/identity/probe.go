package identity

import (
	"context"
	"log/slog"

	"registrar/internal/domain/account"
	"registrar/internal/domain/linkage"
)

// probeSecret is never accepted as a password: it is shorter than account.MinPasswordLength.
const probeSecret = "\x00probe"

// CredentialChecker attempts a password credential exchange.
type CredentialChecker interface {
	SignIn(ctx context.Context, email, password string) (account.Account, error)
}

// CredentialProber infers existence from a sign-in attempt with a deliberately wrong secret.
// Each probe counts toward the account's failed-login lockout.
type CredentialProber struct {
	Checker CredentialChecker
}

var _ linkage.Prober = CredentialProber{}

// Probe classifies the failed exchange.
// POST: exists on wrong_secret, not_exists on unknown_identity, indeterminate otherwise
func (p CredentialProber) Probe(ctx context.Context, email string) linkage.Existence {
	_, err := p.Checker.SignIn(ctx, email, probeSecret)
	e := linkage.ClassifyCredentialError(err)
	slog.Debug("existence_probe", "strategy", "credential", "result", e, "category", linkage.CategoryOf(err))
	return e
}

// ExistenceChecker answers existence directly.
type ExistenceChecker interface {
	Exists(ctx context.Context, email string) (bool, error)
}

// Limiter admits or refuses a call for a key.
type Limiter interface {
	Allow(key string) bool
}

// DirectProber asks the identity collaborator directly, behind a per-client rate limit.
type DirectProber struct {
	Checker ExistenceChecker
	Limiter Limiter
}

var _ linkage.Prober = DirectProber{}

// Probe returns the direct answer.
// POST: indeterminate when the caller is over the limit or the lookup fails
func (p DirectProber) Probe(ctx context.Context, email string) linkage.Existence {
	key := ClientKey(ctx)
	if p.Limiter != nil && !p.Limiter.Allow("probe:"+key) {
		slog.Warn("existence_probe_rate_limited", "client", key)
		return linkage.ExistenceIndeterminate
	}
	ok, err := p.Checker.Exists(ctx, email)
	if err != nil {
		slog.Warn("existence_probe_failed", "error", err)
		return linkage.ExistenceIndeterminate
	}
	if ok {
		return linkage.ExistenceExists
	}
	return linkage.ExistenceNotExists
}

type clientKeyType struct{}

// WithClientKey tags ctx with the caller identity used for probe rate limiting.
func WithClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyType{}, key)
}

// ClientKey returns the caller identity, or "anonymous".
func ClientKey(ctx context.Context) string {
	if k, ok := ctx.Value(clientKeyType{}).(string); ok && k != "" {
		return k
	}
	return "anonymous"
}
