package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `{
	"server": {"addr": ":8080"},
	"auth": {"jwt_secret": "0123456789abcdef0123456789abcdef"},
	"storage": {"driver": "sqlite", "dsn": ":memory:"}
}`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Storage.Driver)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Auth.JWTExpiry.Duration; got != 24*time.Hour {
		t.Errorf("jwt_expiry = %v, want 24h", got)
	}
	if cfg.Messaging.MaxSessionsPerUser != 10 {
		t.Errorf("max_sessions_per_user = %d, want 10", cfg.Messaging.MaxSessionsPerUser)
	}
	if cfg.Messaging.MaxContentBytes != 1000 {
		t.Errorf("max_content_bytes = %d, want 1000", cfg.Messaging.MaxContentBytes)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging.format = %q, want json", cfg.Logging.Format)
	}
	if cfg.RateLimit.RequestsPerSecond != 10 {
		t.Errorf("requests_per_second = %v, want 10", cfg.RateLimit.RequestsPerSecond)
	}
}

func TestLoad_MissingAddr(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"auth": {"jwt_secret": "0123456789abcdef0123456789abcdef"}
	}`))
	if err == nil {
		t.Fatal("expected error for missing server.addr")
	}
}

func TestLoad_ShortSecret(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"server": {"addr": ":8080"},
		"auth": {"jwt_secret": "short"}
	}`))
	if err == nil {
		t.Fatal("expected error for short jwt_secret")
	}
}

func TestLoad_WeakSecret(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"server": {"addr": ":8080"},
		"auth": {"jwt_secret": "local-dev-secret-for-testing-only-32chars!"}
	}`))
	if err == nil {
		t.Fatal("expected error for weak jwt_secret")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COURIER_JWT_SECRET", "fedcba9876543210fedcba9876543210")
	t.Setenv("COURIER_DSN", "postgres://courier@localhost/courier")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.JWTSecret != "fedcba9876543210fedcba9876543210" {
		t.Errorf("jwt_secret not overridden from env")
	}
	if cfg.Storage.DSN != "postgres://courier@localhost/courier" {
		t.Errorf("dsn not overridden from env")
	}
}

func TestLoad_DurationFormats(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"server": {"addr": ":8080"},
		"auth": {"jwt_secret": "0123456789abcdef0123456789abcdef", "jwt_expiry": "2h"},
		"storage": {"dsn": ":memory:"}
	}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Auth.JWTExpiry.Duration; got != 2*time.Hour {
		t.Errorf("jwt_expiry = %v, want 2h", got)
	}
}

func TestGenerateRandomSecret(t *testing.T) {
	a, err := GenerateRandomSecret()
	if err != nil {
		t.Fatalf("GenerateRandomSecret: %v", err)
	}
	b, err := GenerateRandomSecret()
	if err != nil {
		t.Fatalf("GenerateRandomSecret: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("secret length = %d, want 64", len(a))
	}
	if a == b {
		t.Error("two generated secrets are identical")
	}
}

func TestLoad_OIDCRequiresIssuer(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"server": {"addr": ":8080"},
		"auth": {"provider": "oidc"}
	}`))
	if err == nil {
		t.Fatal("expected error for oidc provider without issuer")
	}
}
