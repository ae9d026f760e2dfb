// Package config loads service settings from REGISTRAR_* environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"registrar/internal/adapters/identity"
	"registrar/internal/domain/program"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config errors
var (
	ErrCSRFKey              = errors.New("REGISTRAR_CSRF_KEY must be 64 hex characters (32 bytes)")
	ErrMissingCSRFKey       = errors.New("REGISTRAR_CSRF_KEY is required in production")
	ErrMissingContinuation  = errors.New("REGISTRAR_CONTINUATION_SECRET is required in production")
	ErrMissingAdminEmails   = errors.New("REGISTRAR_ADMIN_EMAILS must list at least one staff email in production")
	ErrIncompleteOAuth      = errors.New("REGISTRAR_OAUTH_CLIENT_ID, _CLIENT_SECRET, _AUTH_URL, _TOKEN_URL, _USERINFO_URL and _REDIRECT_URL must be set together")
	ErrInvalidEnvironment   = errors.New("REGISTRAR_ENV must be development or production")
	ErrNonPositiveRateLimit = errors.New("rate limits must be positive")
)

// Config is the full service configuration.
type Config struct {
	Env      string `env:"REGISTRAR_ENV" envDefault:"development"`
	Addr     string `env:"REGISTRAR_ADDR" envDefault:":8080"`
	DBPath   string `env:"REGISTRAR_DB_PATH" envDefault:"registrar.db"`
	LogLevel string `env:"REGISTRAR_LOG_LEVEL" envDefault:"info"`

	// MetricsAddr serves /metrics on its own listener, loopback by default.
	MetricsAddr string `env:"REGISTRAR_METRICS_ADDR" envDefault:"127.0.0.1:9090"`

	StaticDir   string `env:"REGISTRAR_STATIC_DIR"`
	CatalogFile string `env:"REGISTRAR_CATALOG_FILE"`

	CSRFKeyHex         string   `env:"REGISTRAR_CSRF_KEY"`
	ContinuationSecret string   `env:"REGISTRAR_CONTINUATION_SECRET"`
	TrustedOrigins     []string `env:"REGISTRAR_TRUSTED_ORIGINS" envSeparator:"," envDefault:"localhost:8080,127.0.0.1:8080"`
	AdminEmails        []string `env:"REGISTRAR_ADMIN_EMAILS" envSeparator:","`

	ResendKey     string `env:"REGISTRAR_RESEND_KEY"`
	EmailFrom     string `env:"REGISTRAR_EMAIL_FROM" envDefault:"Registrations <noreply@example.org>"`
	EmailReplyTo  string `env:"REGISTRAR_EMAIL_REPLY_TO"`
	ResetURL      string `env:"REGISTRAR_RESET_URL" envDefault:"http://localhost:8080/reset-password"`

	OAuth OAuth `envPrefix:"REGISTRAR_OAUTH_"`

	RequestsPerSecond int           `env:"REGISTRAR_RATE_LIMIT" envDefault:"20"`
	ProbesPerMinute   int           `env:"REGISTRAR_PROBE_RATE_LIMIT" envDefault:"10"`
	SlowRequest       time.Duration `env:"REGISTRAR_SLOW_REQUEST" envDefault:"200ms"`
	SlowQuery         time.Duration `env:"REGISTRAR_SLOW_QUERY" envDefault:"50ms"`
	ShutdownTimeout   time.Duration `env:"REGISTRAR_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// OAuth holds the optional external identity provider.
type OAuth struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	AuthURL      string   `env:"AUTH_URL"`
	TokenURL     string   `env:"TOKEN_URL"`
	UserInfoURL  string   `env:"USERINFO_URL"`
	RedirectURL  string   `env:"REDIRECT_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// Enabled reports whether any provider setting is present.
func (o OAuth) Enabled() bool {
	return o.ClientID != "" || o.ClientSecret != "" || o.AuthURL != "" || o.TokenURL != "" || o.UserInfoURL != "" || o.RedirectURL != ""
}

// Provider returns the identity adapter configuration.
func (o OAuth) Provider() identity.OAuthConfig {
	return identity.OAuthConfig{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		AuthURL:      o.AuthURL,
		TokenURL:     o.TokenURL,
		UserInfoURL:  o.UserInfoURL,
		RedirectURL:  o.RedirectURL,
		Scopes:       o.Scopes,
	}
}

// Load reads an optional .env file, then the environment, and validates the result.
// Variables already set in the environment win over the file.
// PRE: dotenv may be empty to skip the file
// POST: Returns a validated Config or the first problem found
func Load(dotenv string) (Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c Config) Validate() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return ErrInvalidEnvironment
	}
	if c.CSRFKeyHex != "" {
		if key, err := hex.DecodeString(c.CSRFKeyHex); err != nil || len(key) != 32 {
			return ErrCSRFKey
		}
	}
	if c.IsProduction() {
		if c.CSRFKeyHex == "" {
			return ErrMissingCSRFKey
		}
		if c.ContinuationSecret == "" {
			return ErrMissingContinuation
		}
		if len(c.AdminEmails) == 0 {
			return ErrMissingAdminEmails
		}
	}
	if c.OAuth.Enabled() {
		o := c.OAuth
		if o.ClientID == "" || o.ClientSecret == "" || o.AuthURL == "" || o.TokenURL == "" || o.UserInfoURL == "" || o.RedirectURL == "" {
			return ErrIncompleteOAuth
		}
	}
	if c.RequestsPerSecond <= 0 || c.ProbesPerMinute <= 0 {
		return ErrNonPositiveRateLimit
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// CSRFKey returns the decoded CSRF key, or nil when none is configured.
// PRE: Validate passed
func (c Config) CSRFKey() []byte {
	if c.CSRFKeyHex == "" {
		return nil
	}
	key, _ := hex.DecodeString(c.CSRFKeyHex)
	return key
}

// Catalog returns the program catalog from CatalogFile, or the built-in defaults.
func (c Config) Catalog() (*program.Catalog, error) {
	if c.CatalogFile == "" {
		return program.DefaultCatalog(), nil
	}
	f, err := os.Open(c.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("open program catalog: %w", err)
	}
	defer f.Close()
	return program.LoadCatalog(f)
}
