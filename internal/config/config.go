// Package config provides configuration management for the CodexBridge server.
// It handles loading and parsing YAML configuration files, and provides structured
// access to application settings including server port, credential directory,
// the model allowlist, debug settings, proxy configuration, and API keys.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the listen port used when the configuration does not set one.
const DefaultPort = 8080

// DefaultAuthDir is the credential directory used when the configuration does
// not set one. It matches the location the Codex CLI writes its auth.json to.
const DefaultAuthDir = "~/.codex"

// defaultAllowedModels is the model allowlist applied when neither the
// configuration file nor the ALLOWED_MODELS environment variable provides one.
var defaultAllowedModels = []string{
	"gpt-5",
	"gpt-5.2",
	"gpt-5.3-codex",
	"gpt-5.2-codex",
}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Port is the network port on which the HTTP server listens.
	Port int `yaml:"port" json:"port"`

	// AuthDir is the directory scanned for credential JSON files.
	// A leading tilde is expanded to the user's home directory.
	AuthDir string `yaml:"auth-dir" json:"auth-dir"`

	// AllowedModels lists the base model identifiers this proxy will serve.
	// The ALLOWED_MODELS environment variable overrides this list.
	AllowedModels []string `yaml:"allowed-models" json:"allowed-models"`

	// APIKeys is a list of keys for authenticating clients to this proxy server.
	// An empty list disables inbound authentication.
	APIKeys []string `yaml:"api-keys" json:"api-keys"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// DisableBrowserFingerprint switches upstream requests from the browser
	// TLS fingerprint transport to a plain HTTP client. Required for http/https
	// proxies, which the fingerprint transport's dialer does not support.
	DisableBrowserFingerprint bool `yaml:"disable-browser-fingerprint,omitempty" json:"disable-browser-fingerprint,omitempty"`

	// RequestLog enables or disables detailed request logging functionality.
	RequestLog bool `yaml:"request-log" json:"request-log"`

	// LoggingToFile redirects application logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsMaxTotalSizeMB caps the total size of the logs directory in megabytes.
	// <= 0 disables the background cleaner.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb,omitempty" json:"logs-max-total-size-mb,omitempty"`

	// ErrorLogsMaxFiles limits the number of error log files retained when
	// request logging is disabled. <= 0 disables the cleanup.
	ErrorLogsMaxFiles int `yaml:"error-logs-max-files,omitempty" json:"error-logs-max-files,omitempty"`

	// Debug enables verbose logging when set to true.
	Debug bool `yaml:"debug" json:"debug"`

	// Streaming configures server-side streaming behavior.
	Streaming StreamingConfig `yaml:"streaming" json:"streaming"`
}

// StreamingConfig holds server streaming behavior configuration.
type StreamingConfig struct {
	// KeepAliveSeconds controls how often the server emits SSE heartbeats
	// (": keep-alive\n\n") while waiting for upstream data.
	// <= 0 disables keep-alives. Default is 0.
	KeepAliveSeconds int `yaml:"keepalive-seconds,omitempty" json:"keepalive-seconds,omitempty"`
}

// LoadConfig reads a YAML configuration file from the given path, applies
// defaults and the ALLOWED_MODELS environment override, and returns the
// resulting Config.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", configFile, err)
	}

	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", configFile, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if strings.TrimSpace(c.AuthDir) == "" {
		c.AuthDir = DefaultAuthDir
	}
	c.AllowedModels = resolveAllowedModels(c.AllowedModels)
}

// resolveAllowedModels determines the effective model allowlist. The
// ALLOWED_MODELS environment variable takes precedence over the configured
// list; both fall back to the built-in defaults when empty.
func resolveAllowedModels(configured []string) []string {
	if fromEnv := splitModelList(os.Getenv("ALLOWED_MODELS")); len(fromEnv) > 0 {
		return fromEnv
	}
	if normalized := normalizeModelList(configured); len(normalized) > 0 {
		return normalized
	}
	out := make([]string, len(defaultAllowedModels))
	copy(out, defaultAllowedModels)
	return out
}

// splitModelList parses a comma-separated model list, trimming whitespace and
// dropping empty entries.
func splitModelList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return normalizeModelList(strings.Split(raw, ","))
}

// normalizeModelList trims each entry and removes empties and duplicates while
// preserving order.
func normalizeModelList(models []string) []string {
	if len(models) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(models))
	out := make([]string, 0, len(models))
	for _, model := range models {
		trimmed := strings.TrimSpace(model)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
