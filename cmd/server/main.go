package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	emailPkg "registrar/internal/adapters/email"
	web "registrar/internal/adapters/http"
	"registrar/internal/adapters/http/middleware"
	"registrar/internal/adapters/identity"
	"registrar/internal/adapters/metrics"
	"registrar/internal/adapters/notify"
	"registrar/internal/adapters/storage"
	accountStore "registrar/internal/adapters/storage/account"
	activityStore "registrar/internal/adapters/storage/activity"
	settingsStore "registrar/internal/adapters/storage/accountsettings"
	outboxStore "registrar/internal/adapters/storage/outbox"
	registrationStore "registrar/internal/adapters/storage/registration"
	sessionStore "registrar/internal/adapters/storage/session"
	"registrar/internal/config"
	"registrar/internal/domain/linkage"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	setupLogging(cfg)
	slog.Info("server_starting", "version", version, "env", cfg.Env, "addr", cfg.Addr)

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database_ready", "path", cfg.DBPath, "schema_version", storage.LatestSchemaVersion())

	m := metrics.New()
	timedDB := storage.NewTimedDB(db, m, cfg.SlowQuery)

	stores := web.Stores{
		Registrations: registrationStore.NewSQLiteStore(timedDB),
		Sessions:      sessionStore.NewSQLiteStore(timedDB),
		Activity:      activityStore.NewSQLiteStore(timedDB),
		Outbox:        outboxStore.NewSQLiteStore(timedDB),
		Settings:      settingsStore.NewSQLiteStore(timedDB),
	}

	// Email: Resend when a key is configured, log-only otherwise
	var sender emailPkg.Sender = emailPkg.NewNoopSender()
	if cfg.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.ResendKey, cfg.EmailFrom)
	} else {
		slog.Warn("email_disabled", "reason", "REGISTRAR_RESEND_KEY not set")
	}

	ident := identity.NewService(accountStore.NewSQLiteStore(timedDB), identity.NewSessionStore(), sender, cfg.ResetURL)

	requests := middleware.NewRateLimiter(cfg.RequestsPerSecond, time.Second)
	probes := middleware.NewRateLimiter(cfg.ProbesPerMinute, time.Minute)
	go sweep(ctx, requests, probes)

	var oauth *identity.OAuthProvider
	if cfg.OAuth.Enabled() {
		oauth = identity.NewOAuthProvider(cfg.OAuth.Provider())
	}

	csrfKey := cfg.CSRFKey()
	if csrfKey == nil {
		csrfKey = randomBytes(32)
		slog.Warn("csrf_key_generated", "reason", "REGISTRAR_CSRF_KEY not set; sessions will not survive restart")
	}
	continuationSecret := []byte(cfg.ContinuationSecret)
	if len(continuationSecret) == 0 {
		continuationSecret = randomBytes(32)
	}

	var background sync.WaitGroup
	handler := web.NewRouter(web.Deps{
		Stores:         stores,
		Catalog:        catalog,
		Identity:       ident,
		Prober:         identity.DirectProber{Checker: ident, Limiter: probes},
		OAuth:          oauth,
		Continuations:  linkage.NewContinuationSigner(continuationSecret),
		Notifier:       notify.NewEmailNotifier(sender, cfg.AdminEmails, cfg.EmailReplyTo),
		Metrics:        m,
		AdminEmails:    cfg.AdminEmails,
		CSRFKey:        csrfKey,
		SecureCookies:  cfg.IsProduction(),
		TrustedOrigins: cfg.TrustedOrigins,
		Limiter:        requests,
		SlowRequest:    cfg.SlowRequest,
		StaticDir:      cfg.StaticDir,
		Background:     func(fn func()) { background.Go(fn) },
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Metrics stay off the public listener.
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 2)
	go func() {
		slog.Info("server_listening", "addr", cfg.Addr)
		errs <- srv.ListenAndServe()
	}()
	go func() {
		slog.Info("metrics_listening", "addr", cfg.MetricsAddr)
		errs <- metricsSrv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = errors.Join(serveErr, srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))

	// Notification sends outlive their requests; let them finish before the database closes.
	done := make(chan struct{})
	go func() {
		background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		slog.Warn("background_work_abandoned", "error", shutdownCtx.Err())
	}
	return err
}

func setupLogging(cfg config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// sweep drops idle rate-limit buckets until ctx ends.
func sweep(ctx context.Context, limiters ...*middleware.RateLimiter) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, l := range limiters {
				l.Sweep(10 * time.Minute)
			}
		}
	}
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
