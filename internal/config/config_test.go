package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  port: "9090"
database:
  url: postgres://file-user@filehost/credits
auth:
  jwt_secret: file-secret
provider:
  processing_timeout_minutes: 30
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://env-user@envhost/credits")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("port: got %s, want 9090", cfg.Server.Port)
	}
	// Environment beats file.
	if cfg.Database.URL != "postgres://env-user@envhost/credits" {
		t.Errorf("database url: got %s", cfg.Database.URL)
	}
	// Empty env var does not clobber the file value.
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Errorf("jwt secret: got %s, want file-secret", cfg.Auth.JWTSecret)
	}
	if cfg.ProcessingTimeout() != 30*time.Minute {
		t.Errorf("processing timeout: got %v, want 30m", cfg.ProcessingTimeout())
	}
	if cfg.Addr() != "0.0.0.0:9090" {
		t.Errorf("addr: got %s, want 0.0.0.0:9090", cfg.Addr())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("default port: got %s, want 8080", cfg.Server.Port)
	}
	if cfg.Database.URL == "" {
		t.Error("default database url should be set")
	}
	if cfg.ReconcileInterval() != 5*time.Minute {
		t.Errorf("default reconcile interval: got %v, want 5m", cfg.ReconcileInterval())
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not: a map"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
