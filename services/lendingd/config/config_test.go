package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
environment: prod
auth:
  api_tokens:
    - " token-one "
    - " "
    - "token-two"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":6000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if len(cfg.Auth.APITokens) != 2 {
		t.Fatalf("expected 2 trimmed api tokens, got %d", len(cfg.Auth.APITokens))
	}
	if cfg.RateLimit.RequestsPerMinute != 600 || cfg.RateLimit.Burst != 60 {
		t.Fatalf("rate limit defaults not applied: %+v", cfg.RateLimit)
	}
}

func TestLoadConfigRequiresTokensOutsideDev(t *testing.T) {
	path := writeConfig(t, `
listen: ":6000"
environment: prod
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for tokenless prod config")
	}
}

func TestLoadConfigDevAllowsOpenAuth(t *testing.T) {
	path := writeConfig(t, `
environment: dev
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":8660" {
		t.Fatalf("default listen address: %q", cfg.ListenAddress)
	}
}

func TestLoadConfigIndexerDriver(t *testing.T) {
	path := writeConfig(t, `
environment: dev
indexer:
  driver: " SQLite "
  dsn: "file::memory:"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Indexer.Driver != "sqlite" {
		t.Fatalf("driver not normalized: %q", cfg.Indexer.Driver)
	}

	bad := writeConfig(t, `
environment: dev
indexer:
  driver: mongo
  dsn: "mongodb://localhost"
`)
	if _, err := Load(bad); err == nil {
		t.Fatal("expected error for unsupported indexer driver")
	}
}

func TestLoadConfigMissingPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
