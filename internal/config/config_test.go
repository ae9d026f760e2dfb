package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"registrar/internal/domain/program"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "REGISTRAR_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Env != EnvDevelopment {
		t.Errorf("addr, env = %q, %q, want :8080, development", cfg.Addr, cfg.Env)
	}
	if cfg.MetricsAddr != "127.0.0.1:9090" {
		t.Errorf("MetricsAddr = %q, want loopback 127.0.0.1:9090", cfg.MetricsAddr)
	}
	if cfg.SlowRequest != 200*time.Millisecond {
		t.Errorf("SlowRequest = %v, want 200ms", cfg.SlowRequest)
	}
	if len(cfg.TrustedOrigins) != 2 {
		t.Errorf("TrustedOrigins = %v, want two local origins", cfg.TrustedOrigins)
	}
	if cfg.CSRFKey() != nil {
		t.Error("CSRFKey should be nil when unset")
	}
	if cfg.OAuth.Enabled() {
		t.Error("OAuth should be disabled by default")
	}
}

func TestLoad_Lists(t *testing.T) {
	clearEnv(t)
	t.Setenv("REGISTRAR_ADMIN_EMAILS", "a@example.org,b@example.org")
	t.Setenv("REGISTRAR_OAUTH_SCOPES", "openid,email")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.AdminEmails) != 2 || cfg.AdminEmails[1] != "b@example.org" {
		t.Errorf("AdminEmails = %v", cfg.AdminEmails)
	}
	if len(cfg.OAuth.Scopes) != 2 {
		t.Errorf("Scopes = %v", cfg.OAuth.Scopes)
	}
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	key := strings.Repeat("ab", 32)
	tests := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"no csrf key", map[string]string{}, ErrMissingCSRFKey},
		{"no continuation secret", map[string]string{"REGISTRAR_CSRF_KEY": key}, ErrMissingContinuation},
		{"no admins", map[string]string{"REGISTRAR_CSRF_KEY": key, "REGISTRAR_CONTINUATION_SECRET": "s"}, ErrMissingAdminEmails},
		{"complete", map[string]string{"REGISTRAR_CSRF_KEY": key, "REGISTRAR_CONTINUATION_SECRET": "s", "REGISTRAR_ADMIN_EMAILS": "a@example.org"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("REGISTRAR_ENV", "Production")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if err == nil && len(cfg.CSRFKey()) != 32 {
				t.Errorf("CSRFKey len = %d, want 32", len(cfg.CSRFKey()))
			}
		})
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  error
	}{
		{"short csrf key", "REGISTRAR_CSRF_KEY", "abcd", ErrCSRFKey},
		{"unknown env", "REGISTRAR_ENV", "staging", ErrInvalidEnvironment},
		{"partial oauth", "REGISTRAR_OAUTH_CLIENT_ID", "id", ErrIncompleteOAuth},
		{"zero rate", "REGISTRAR_RATE_LIMIT", "0", ErrNonPositiveRateLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(""); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoad_DotenvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("REGISTRAR_ADDR=:9090\nREGISTRAR_DB_PATH=from-file.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// The environment wins over the file.
	t.Setenv("REGISTRAR_DB_PATH", "from-env.db")
	t.Cleanup(func() { os.Unsetenv("REGISTRAR_ADDR") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.DBPath != "from-env.db" {
		t.Errorf("DBPath = %q, want from-env.db", cfg.DBPath)
	}
}

func TestLoad_MissingDotenvIgnored(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("Load: %v", err)
	}
}

func TestCatalog_DefaultWhenUnset(t *testing.T) {
	cat, err := Config{}.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if _, err := cat.Get(program.TypeWorkshop); err != nil {
		t.Errorf("default catalog missing workshop: %v", err)
	}
}

func TestCatalog_MissingFile(t *testing.T) {
	cfg := Config{CatalogFile: filepath.Join(t.TempDir(), "nope.json")}
	if _, err := cfg.Catalog(); err == nil {
		t.Error("expected error for missing catalog file")
	}
}
