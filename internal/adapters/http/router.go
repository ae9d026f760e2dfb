package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"registrar/internal/adapters/http/middleware"
	"registrar/internal/adapters/identity"
	"registrar/internal/adapters/metrics"
	"registrar/internal/adapters/notify"
	activityStore "registrar/internal/adapters/storage/activity"
	outboxStore "registrar/internal/adapters/storage/outbox"
	registrationStore "registrar/internal/adapters/storage/registration"
	sessionStore "registrar/internal/adapters/storage/session"
	settingsStore "registrar/internal/adapters/storage/accountsettings"
	"registrar/internal/domain/linkage"
	"registrar/internal/domain/program"
)

// Stores holds all storage dependencies.
type Stores struct {
	Registrations registrationStore.Store
	Sessions      sessionStore.Store
	Activity      activityStore.Store
	Outbox        outboxStore.Store
	Settings      settingsStore.Store
}

// Deps wires the HTTP surface to the application layer.
type Deps struct {
	Stores   Stores
	Catalog  *program.Catalog
	Identity *identity.Service
	Prober   linkage.Prober
	OAuth    *identity.OAuthProvider // nil disables /auth/oauth
	// Continuations signs the state carried across the OAuth redirect.
	Continuations *linkage.ContinuationSigner
	Notifier      notify.Notifier
	Metrics       *metrics.Metrics

	AdminEmails    []string
	CSRFKey        []byte
	SecureCookies  bool
	TrustedOrigins []string
	Limiter        *middleware.RateLimiter
	SlowRequest    time.Duration
	StaticDir      string

	Now        func() time.Time
	GenerateID func() string
	// Background runs post-response work such as notification sends. Nil runs it inline.
	Background func(func())
}

// server carries the wired dependencies into handlers.
type server struct {
	Deps
}

// NewRouter wires HTTP handlers for the app.
// PRE: Stores, Catalog, Identity, Prober, Notifier and Continuations are set; CSRFKey is 32 bytes
func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.GenerateID == nil {
		d.GenerateID = uuid.NewString
	}
	middleware.SecureCookies = d.SecureCookies
	s := &server{Deps: d}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Timing(d.Metrics, d.SlowRequest))
	r.Use(middleware.SecurityHeaders)
	if d.Limiter != nil {
		r.Use(middleware.RateLimit(d.Limiter))
	}
	r.Use(middleware.Auth(d.Identity))
	r.Use(middleware.ClientKey)
	r.Use(middleware.CSRF(d.CSRFKey, d.SecureCookies, d.TrustedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}) })

	r.Route("/api", func(r chi.Router) {
		r.Get("/programs", s.handlePrograms)
		r.Get("/sessions", s.handlePublicSessions)
		r.Get("/quote", s.handleQuote)
		r.Post("/draft", s.handleDraft)
		r.Post("/registrations", s.handleSubmitRegistration)

		r.Post("/linkage/resolve", s.handleResolveLinkage)
		r.Post("/linkage/sign-in", s.handleLinkedSignIn)

		r.Post("/sign-in", s.handleSignIn)
		r.Post("/sign-up", s.handleSignUp)
		r.Post("/sign-out", s.handleSignOut)
		r.Post("/password-reset", s.handlePasswordResetRequest)
		r.Post("/password-reset/confirm", s.handlePasswordResetConfirm)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/me", s.handleMe)
			r.Get("/account/settings", s.handleGetAccountSettings)
			r.Put("/account/settings", s.handleSaveAccountSettings)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(d.AdminEmails))
			r.Get("/registrations", s.handleAdminListRegistrations)
			r.Get("/registrations/{id}", s.handleAdminRegistrationDetail)
			r.Patch("/registrations/{id}", s.handleAdminUpdateRegistration)
			r.Get("/sessions", s.handleAdminSessions)
			r.Put("/sessions/{id}", s.handleAdminSaveSession)
			r.Get("/activity", s.handleAdminActivity)
			r.Get("/outbox", s.handleAdminOutbox)
			r.Post("/outbox/{id}/resend", s.handleAdminOutboxResend)
			r.Post("/outbox/{id}/abandon", s.handleAdminOutboxAbandon)
		})
	})

	r.Get("/auth/oauth/start", s.handleOAuthStart)
	r.Get("/auth/oauth/callback", s.handleOAuthCallback)

	if d.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(d.StaticDir)))
	}
	return r
}
