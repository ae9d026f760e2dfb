package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"registrar/internal/adapters/identity"
)

type recordedRequest struct {
	method, route string
	status        int
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (f *fakeRecorder) ObserveRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedRequest{method, route, status})
}

func timedRouter(rec RequestRecorder) http.Handler {
	r := chi.NewRouter()
	r.Use(Timing(rec, time.Hour))
	r.Get("/api/admin/registrations/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/static/*", func(w http.ResponseWriter, _ *http.Request) {})
	return r
}

// TestTiming_RecordsRoutePattern verifies observations use the chi pattern and captured status.
func TestTiming_RecordsRoutePattern(t *testing.T) {
	rec := &fakeRecorder{}
	rr := httptest.NewRecorder()
	timedRouter(rec).ServeHTTP(rr, httptest.NewRequest("GET", "/api/admin/registrations/reg-123", nil))

	if len(rec.seen) != 1 {
		t.Fatalf("observations = %d, want 1", len(rec.seen))
	}
	got := rec.seen[0]
	if got.route != "/api/admin/registrations/{id}" || got.status != http.StatusNotFound || got.method != "GET" {
		t.Errorf("observation = %+v", got)
	}
}

// TestTiming_SkipsStatic verifies static assets are excluded from timing.
func TestTiming_SkipsStatic(t *testing.T) {
	rec := &fakeRecorder{}
	timedRouter(rec).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/static/app.css", nil))
	if len(rec.seen) != 0 {
		t.Errorf("observations = %d, want 0 (static excluded)", len(rec.seen))
	}
}

// TestTiming_NilRecorder verifies middleware works without a recorder.
func TestTiming_NilRecorder(t *testing.T) {
	rr := httptest.NewRecorder()
	timedRouter(nil).ServeHTTP(rr, httptest.NewRequest("GET", "/api/admin/registrations/x", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

// TestRoutePattern_Unmatched verifies requests outside a chi router get a fixed label.
func TestRoutePattern_Unmatched(t *testing.T) {
	if got := RoutePattern(httptest.NewRequest("GET", "/anything/42", nil)); got != "unmatched" {
		t.Errorf("RoutePattern = %q, want unmatched", got)
	}
}

// TestRateLimiter_RefillsPerInterval verifies the bucket empties and refills with the clock.
func TestRateLimiter_RefillsPerInterval(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("k") || !rl.Allow("k") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("k") {
		t.Error("third request inside the interval should be refused")
	}
	if !rl.Allow("other") {
		t.Error("keys must not share a bucket")
	}
	now = now.Add(time.Minute)
	if !rl.Allow("k") {
		t.Error("bucket should refill after the interval")
	}

	now = now.Add(10 * time.Minute)
	rl.Sweep(5 * time.Minute)
	if len(rl.visitors) != 0 {
		t.Errorf("visitors after sweep = %d, want 0", len(rl.visitors))
	}
}

// TestRateLimiter_ServesIdentityLimiter verifies the limiter plugs into the existence probe.
func TestRateLimiter_ServesIdentityLimiter(t *testing.T) {
	var _ identity.Limiter = NewRateLimiter(1, time.Second)
}

type fakeSessions map[string]identity.Session

func (f fakeSessions) Session(token string) (identity.Session, bool) {
	s, ok := f[token]
	return s, ok
}

func adminChain(allow []string) http.Handler {
	sessions := fakeSessions{
		"staff-token":  {AccountID: "a1", Email: "Office@Example.com"},
		"parent-token": {AccountID: "a2", Email: "parent@example.com"},
	}
	final := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	return Chain(final, RequireAdmin(allow), Auth(sessions))
}

// TestRequireAdmin covers the allow-list boundary.
// PRE: Allow-list holds office@example.com in a different case
// POST: 204 for staff, 403 for other accounts, 401 without a session
func TestRequireAdmin(t *testing.T) {
	h := adminChain([]string{" office@example.com "})
	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"allow-listed", "staff-token", http.StatusNoContent},
		{"other account", "parent-token", http.StatusForbidden},
		{"unknown token", "nope", http.StatusUnauthorized},
		{"no cookie", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/admin/registrations", nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: tt.token})
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

// TestClientKey_StripsPort verifies the probe limiter key is the caller's address.
func TestClientKey_StripsPort(t *testing.T) {
	var got string
	h := ClientKey(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = identity.ClientKey(r.Context())
	}))
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "[2001:db8::1]:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "2001:db8::1" {
		t.Errorf("client key = %q", got)
	}
}

// TestCSRF_ExemptsJSON verifies JSON bodies bypass the token check while form posts need one.
func TestCSRF_ExemptsJSON(t *testing.T) {
	h := CSRF(make([]byte, 32), false, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("POST", "/api/registrations", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("json status = %d, want 204", rr.Code)
	}

	req = httptest.NewRequest("POST", "/api/registrations", strings.NewReader("parent_name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("form status = %d, want 403", rr.Code)
	}
}
