package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "0.0.0.0"
  port: 9999
gemini:
  model: "gemini-1.5-pro"
  cache_capacity: 50
  quota_default_backoff: 5s
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Gemini.Model != "gemini-1.5-pro" {
		t.Errorf("expected model gemini-1.5-pro, got %s", cfg.Gemini.Model)
	}
	if cfg.Gemini.CacheCapacity != 50 {
		t.Errorf("expected cache capacity 50, got %d", cfg.Gemini.CacheCapacity)
	}
	if cfg.Gemini.QuotaDefaultBackoff.Std() != 5*time.Second {
		t.Errorf("expected 5s quota backoff, got %s", cfg.Gemini.QuotaDefaultBackoff)
	}
}

func TestLoadFile_RejectsBadDuration(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-config-dur-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString("agent:\n  duplicate_window: soonish\n"); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_PORT", "7777")
	defer os.Unsetenv("TEST_PORT")

	tmpFile, err := os.CreateTemp("", "test-config-env-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: ${TEST_PORT}
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
}

func TestLoader_DefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(dir, slog.Default())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := l.Config()
	if cfg.Gemini.CacheCapacity != 200 {
		t.Errorf("expected default cache capacity 200, got %d", cfg.Gemini.CacheCapacity)
	}
	if cfg.Agent.DuplicateWindow.Std() != 15*time.Second {
		t.Errorf("expected default duplicate window 15s, got %s", cfg.Agent.DuplicateWindow)
	}
}

func TestLoader_LoadsGatewayYAML(t *testing.T) {
	dir := t.TempDir()
	content := `
gemini:
  api_key: "test-key"
  fallback_model: "gemini-1.5-flash-8b"
agent:
  context_turns: 4
`
	if err := os.WriteFile(filepath.Join(dir, "gateway.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir, slog.Default())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := l.Config()
	if cfg.Gemini.APIKey != "test-key" {
		t.Errorf("expected api key from file, got %q", cfg.Gemini.APIKey)
	}
	if cfg.Agent.ContextTurns != 4 {
		t.Errorf("expected 4 context turns, got %d", cfg.Agent.ContextTurns)
	}
	// Untouched sections keep defaults.
	if cfg.Server.Port != 5000 {
		t.Errorf("expected default port 5000, got %d", cfg.Server.Port)
	}
}
