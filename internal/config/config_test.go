package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "debug: true\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.AuthDir != DefaultAuthDir {
		t.Errorf("expected default auth dir %q, got %q", DefaultAuthDir, cfg.AuthDir)
	}
	if !cfg.Debug {
		t.Error("expected debug to be true")
	}
	expected := []string{"gpt-5", "gpt-5.2", "gpt-5.3-codex", "gpt-5.2-codex"}
	if !reflect.DeepEqual(cfg.AllowedModels, expected) {
		t.Errorf("expected default allowlist %v, got %v", expected, cfg.AllowedModels)
	}
}

func TestLoadConfigReadsValues(t *testing.T) {
	path := writeConfigFile(t, `
port: 9000
auth-dir: "/var/lib/codexbridge"
allowed-models:
  - gpt-5.2
  - gpt-5.2
  - " gpt-5 "
api-keys:
  - sk-test-1
proxy-url: "socks5://127.0.0.1:1080"
disable-browser-fingerprint: true
request-log: true
streaming:
  keepalive-seconds: 15
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.AuthDir != "/var/lib/codexbridge" {
		t.Errorf("unexpected auth dir: %q", cfg.AuthDir)
	}
	expected := []string{"gpt-5.2", "gpt-5"}
	if !reflect.DeepEqual(cfg.AllowedModels, expected) {
		t.Errorf("expected deduplicated allowlist %v, got %v", expected, cfg.AllowedModels)
	}
	if len(cfg.APIKeys) != 1 || cfg.APIKeys[0] != "sk-test-1" {
		t.Errorf("unexpected api keys: %v", cfg.APIKeys)
	}
	if !cfg.DisableBrowserFingerprint {
		t.Error("expected disable-browser-fingerprint to be true")
	}
	if !cfg.RequestLog {
		t.Error("expected request-log to be true")
	}
	if cfg.Streaming.KeepAliveSeconds != 15 {
		t.Errorf("expected keepalive 15, got %d", cfg.Streaming.KeepAliveSeconds)
	}
}

func TestLoadConfigEnvOverridesAllowlist(t *testing.T) {
	t.Setenv("ALLOWED_MODELS", " gpt-5.2 , custom-model ,, gpt-5.2 ")

	path := writeConfigFile(t, "allowed-models:\n  - gpt-5\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"gpt-5.2", "custom-model"}
	if !reflect.DeepEqual(cfg.AllowedModels, expected) {
		t.Errorf("expected env allowlist %v, got %v", expected, cfg.AllowedModels)
	}
}

func TestLoadConfigEnvBlankFallsBack(t *testing.T) {
	t.Setenv("ALLOWED_MODELS", "  ,  ")

	path := writeConfigFile(t, "allowed-models:\n  - gpt-5\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"gpt-5"}
	if !reflect.DeepEqual(cfg.AllowedModels, expected) {
		t.Errorf("expected configured allowlist %v, got %v", expected, cfg.AllowedModels)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := LoadConfig(missing); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
