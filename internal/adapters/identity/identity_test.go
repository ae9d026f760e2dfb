package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"registrar/internal/adapters/email"
	"registrar/internal/adapters/storage"
	accountStore "registrar/internal/adapters/storage/account"
	"registrar/internal/domain/account"
	"registrar/internal/domain/linkage"
)

func newTestService(t *testing.T) (*Service, *email.MemorySender, *time.Time) {
	t.Helper()
	db, err := storage.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mailer := &email.MemorySender{}
	svc := NewService(accountStore.NewSQLiteStore(db), NewSessionStore(), mailer, "https://register.example.com/reset")
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }
	return svc, mailer, &now
}

func mustSignUp(t *testing.T, svc *Service, addr string) account.Account {
	t.Helper()
	acct, err := svc.SignUp(context.Background(), SignUpInput{Email: addr, Password: "correct horse", DisplayName: "Dana"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	return acct
}

// TestSignIn_Categories verifies each failure maps to its category.
// PRE: One account exists
// POST: unknown, wrong and malformed credentials are told apart
func TestSignIn_Categories(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	mustSignUp(t, svc, "dana@example.com")

	tests := []struct {
		name     string
		email    string
		password string
		want     linkage.Category
	}{
		{"unknown identity", "nobody@example.com", "whatever1", linkage.CategoryUnknownIdentity},
		{"wrong secret", "dana@example.com", "wrong-password", linkage.CategoryWrongSecret},
		{"missing password", "dana@example.com", "", linkage.CategoryInvalidInput},
		{"malformed email", "dana", "correct horse", linkage.CategoryInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignIn(ctx, tt.email, tt.password)
			if got := linkage.CategoryOf(err); got != tt.want {
				t.Errorf("category = %q, want %q (err %v)", got, tt.want, err)
			}
		})
	}

	acct, err := svc.SignIn(ctx, " DANA@example.com ", "correct horse")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if acct.FailedLogins != 0 {
		t.Errorf("FailedLogins = %d after success, want 0", acct.FailedLogins)
	}
}

func TestSignIn_LocksAfterRepeatedFailures(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()
	mustSignUp(t, svc, "dana@example.com")

	for i := 0; i < account.MaxFailedLogins; i++ {
		svc.SignIn(ctx, "dana@example.com", "nope-nope")
	}
	_, err := svc.SignIn(ctx, "dana@example.com", "correct horse")
	if linkage.CategoryOf(err) != linkage.CategoryLocked {
		t.Fatalf("category = %q, want locked", linkage.CategoryOf(err))
	}

	*now = now.Add(account.LockoutDuration + time.Minute)
	if _, err := svc.SignIn(ctx, "dana@example.com", "correct horse"); err != nil {
		t.Errorf("SignIn after lockout window: %v", err)
	}
}

func TestSignUp_Conflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustSignUp(t, svc, "dana@example.com")
	_, err := svc.SignUp(context.Background(), SignUpInput{Email: "Dana@Example.com", Password: "another pass"})
	if linkage.CategoryOf(err) != linkage.CategoryConflict {
		t.Errorf("category = %q, want conflict", linkage.CategoryOf(err))
	}
	_, err = svc.SignUp(context.Background(), SignUpInput{Email: "new@example.com", Password: "short"})
	if linkage.CategoryOf(err) != linkage.CategoryInvalidInput {
		t.Errorf("short password category = %q, want invalid_input", linkage.CategoryOf(err))
	}
}

func TestPasswordReset(t *testing.T) {
	svc, mailer, now := newTestService(t)
	ctx := context.Background()
	mustSignUp(t, svc, "dana@example.com")

	if err := svc.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email reset: %v", err)
	}
	if len(mailer.Sent()) != 0 {
		t.Fatalf("sent %d emails for an unknown address", len(mailer.Sent()))
	}

	if err := svc.RequestPasswordReset(ctx, "dana@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	sent := mailer.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sent))
	}
	i := strings.Index(sent[0].Text, "?token=")
	if i < 0 {
		t.Fatalf("reset email has no link: %s", sent[0].Text)
	}
	token := strings.Fields(sent[0].Text[i+len("?token="):])[0]

	if err := svc.ResetPassword(ctx, token, "brand new secret"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := svc.SignIn(ctx, "dana@example.com", "brand new secret"); err != nil {
		t.Errorf("SignIn with new password: %v", err)
	}
	if err := svc.ResetPassword(ctx, token, "third password"); linkage.CategoryOf(err) != linkage.CategoryInvalidInput {
		t.Errorf("reused token category = %q, want invalid_input", linkage.CategoryOf(err))
	}

	svc.RequestPasswordReset(ctx, "dana@example.com")
	second := mailer.Sent()[1].Text
	j := strings.Index(second, "?token=")
	expiredToken := strings.Fields(second[j+len("?token="):])[0]
	*now = now.Add(account.ResetTokenTTL + time.Minute)
	if err := svc.ResetPassword(ctx, expiredToken, "too late pass"); !errors.Is(err, account.ErrResetExpired) {
		t.Errorf("expired token err = %v, want ErrResetExpired", err)
	}
}

func TestSessions(t *testing.T) {
	svc, _, _ := newTestService(t)
	acct := mustSignUp(t, svc, "dana@example.com")

	clock := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc.sessions.now = func() time.Time { return clock }
	token, err := svc.StartSession(acct)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	sess, ok := svc.Session(token)
	if !ok || sess.AccountID != acct.ID || sess.Email != "dana@example.com" {
		t.Fatalf("Session = %+v, %v", sess, ok)
	}
	clock = clock.Add(SessionTTL + time.Second)
	if _, ok := svc.Session(token); ok {
		t.Error("session still valid after TTL")
	}

	clock = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	token, _ = svc.StartSession(acct)
	svc.EndSession(token)
	if _, ok := svc.Session(token); ok {
		t.Error("session still valid after EndSession")
	}
}

func TestCredentialProber(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	mustSignUp(t, svc, "dana@example.com")
	p := CredentialProber{Checker: svc}

	if got := p.Probe(ctx, "dana@example.com"); got != linkage.ExistenceExists {
		t.Errorf("existing = %q, want exists", got)
	}
	if got := p.Probe(ctx, "nobody@example.com"); got != linkage.ExistenceNotExists {
		t.Errorf("unknown = %q, want not_exists", got)
	}
	if got := p.Probe(ctx, "not-an-email"); got != linkage.ExistenceIndeterminate {
		t.Errorf("malformed = %q, want indeterminate", got)
	}
}

type countingLimiter struct {
	allowed int
	keys    []string
}

func (l *countingLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	if l.allowed == 0 {
		return false
	}
	l.allowed--
	return true
}

func TestDirectProber_RateLimited(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustSignUp(t, svc, "dana@example.com")
	lim := &countingLimiter{allowed: 1}
	p := DirectProber{Checker: svc, Limiter: lim}
	ctx := WithClientKey(context.Background(), "203.0.113.9")

	if got := p.Probe(ctx, "dana@example.com"); got != linkage.ExistenceExists {
		t.Errorf("first probe = %q, want exists", got)
	}
	if got := p.Probe(ctx, "dana@example.com"); got != linkage.ExistenceIndeterminate {
		t.Errorf("over-limit probe = %q, want indeterminate", got)
	}
	if lim.keys[0] != "probe:203.0.113.9" {
		t.Errorf("limiter key = %q", lim.keys[0])
	}
}

func TestDirectProber_NotExists(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := DirectProber{Checker: svc}
	if got := p.Probe(context.Background(), "nobody@example.com"); got != linkage.ExistenceNotExists {
		t.Errorf("probe = %q, want not_exists", got)
	}
}

func TestOAuthProvider_Exchange(t *testing.T) {
	verified := true
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "at-123", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"email": "Dana@Example.com", "email_verified": verified, "name": "Dana"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewOAuthProvider(OAuthConfig{
		ClientID:    "client",
		AuthURL:     srv.URL + "/authorize",
		TokenURL:    srv.URL + "/token",
		UserInfoURL: srv.URL + "/userinfo",
		RedirectURL: "https://register.example.com/auth/oauth/callback",
	})

	u := p.AuthCodeURL("state-token")
	if !strings.Contains(u, "state=state-token") || !strings.HasPrefix(u, srv.URL+"/authorize") {
		t.Errorf("AuthCodeURL = %q", u)
	}

	profile, err := p.Exchange(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if profile.Email != "dana@example.com" || profile.Name != "Dana" {
		t.Errorf("profile = %+v", profile)
	}

	verified = false
	if _, err := p.Exchange(context.Background(), "code-2"); !errors.Is(err, ErrUnverifiedEmail) {
		t.Errorf("unverified err = %v, want ErrUnverifiedEmail", err)
	}
}

func TestSignInOAuth_CreatesThenReuses(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	first, err := svc.SignInOAuth(ctx, Profile{Email: "kai@example.com", Name: "Kai"})
	if err != nil {
		t.Fatalf("SignInOAuth: %v", err)
	}
	if first.Provider != account.ProviderOAuth || first.PasswordHash != "" {
		t.Errorf("new oauth account = %+v", first)
	}
	again, err := svc.SignInOAuth(ctx, Profile{Email: "kai@example.com"})
	if err != nil {
		t.Fatalf("second SignInOAuth: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("ID = %q, want %q", again.ID, first.ID)
	}
}
