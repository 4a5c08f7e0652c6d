package wizard

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/courier-chat/courier/internal/config"
	"github.com/courier-chat/courier/pkg/cli"
)

func TestWizard_SQLite(t *testing.T) {
	// Simulate user input: default address, admin account, sqlite storage.
	input := strings.Join([]string{
		"",            // listen address (default :8080)
		"root",        // admin username
		"secret-pass", // admin password
		"1",           // driver: sqlite
		"",            // sqlite path (default courier.db)
	}, "\n") + "\n"

	out := &bytes.Buffer{}
	p := &cli.Prompter{In: strings.NewReader(input), Out: out}

	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "config.json")

	w := New(p)
	if err := w.Run(outputPath); err != nil {
		t.Fatalf("wizard.Run() error: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("server.addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		t.Errorf("jwt_secret is too short: %d chars", len(cfg.Auth.JWTSecret))
	}
	if cfg.Auth.InitialAdmin == nil || cfg.Auth.InitialAdmin.Username != "root" {
		t.Errorf("initial_admin = %+v, want username root", cfg.Auth.InitialAdmin)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "courier.db" {
		t.Errorf("storage = %+v, want sqlite/courier.db", cfg.Storage)
	}
}

func TestWizard_Defaults(t *testing.T) {
	t.Setenv("COURIER_ADDR", ":9090")
	t.Setenv("COURIER_ADMIN_USER", "ops")
	t.Setenv("COURIER_ADMIN_PASSWORD", "super-secret-pass")
	t.Setenv("COURIER_STORAGE_DRIVER", "sqlite")
	t.Setenv("COURIER_DSN", "/tmp/courier-test.db")

	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "config.json")

	out := &bytes.Buffer{}
	w := New(&cli.Prompter{In: strings.NewReader(""), Out: out})
	if err := w.RunDefaults(outputPath); err != nil {
		t.Fatalf("wizard.RunDefaults() error: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("server.addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Auth.InitialAdmin == nil || cfg.Auth.InitialAdmin.Password != "super-secret-pass" {
		t.Error("expected admin password from environment")
	}
	if cfg.Storage.DSN != "/tmp/courier-test.db" {
		t.Errorf("storage.dsn = %q, want /tmp/courier-test.db", cfg.Storage.DSN)
	}
}

func TestWizard_DefaultsPostgresRequiresDSN(t *testing.T) {
	t.Setenv("COURIER_STORAGE_DRIVER", "postgres")
	t.Setenv("COURIER_DSN", "")

	out := &bytes.Buffer{}
	w := New(&cli.Prompter{In: strings.NewReader(""), Out: out})
	if err := w.RunDefaults(filepath.Join(t.TempDir(), "config.json")); err == nil {
		t.Fatal("expected error when postgres driver has no DSN")
	}
}
