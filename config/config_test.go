// Package config provides configuration management for the followup CLI.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies default configuration values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.LookbackWindow != DefaultLookbackWindow {
		t.Errorf("LookbackWindow = %v, want %v", cfg.LookbackWindow, DefaultLookbackWindow)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, DefaultPollInterval)
	}
	if cfg.PollMaxWait != DefaultPollMaxWait {
		t.Errorf("PollMaxWait = %v, want %v", cfg.PollMaxWait, DefaultPollMaxWait)
	}
	if cfg.MinNotesChars != DefaultMinNotesChars {
		t.Errorf("MinNotesChars = %v, want %v", cfg.MinNotesChars, DefaultMinNotesChars)
	}
	if cfg.AbandonAfterAttempts != DefaultAbandonAfter {
		t.Errorf("AbandonAfterAttempts = %v, want %v", cfg.AbandonAfterAttempts, DefaultAbandonAfter)
	}
	if cfg.DefaultSubject != DefaultSubject {
		t.Errorf("DefaultSubject = %v, want %v", cfg.DefaultSubject, DefaultSubject)
	}
	if cfg.SourceDir != "" {
		t.Errorf("SourceDir = %v, want empty (no sensible default)", cfg.SourceDir)
	}
}

// TestDefaultConstants verifies default constant values.
func TestDefaultConstants(t *testing.T) {
	if DefaultLookbackWindow != 8*time.Hour {
		t.Errorf("DefaultLookbackWindow = %v, want 8h", DefaultLookbackWindow)
	}
	if DefaultPollInterval != 30*time.Second {
		t.Errorf("DefaultPollInterval = %v, want 30s", DefaultPollInterval)
	}
	if DefaultPollMaxWait != 5*time.Minute {
		t.Errorf("DefaultPollMaxWait = %v, want 5m", DefaultPollMaxWait)
	}
	if DefaultSubject != "re: our call today" {
		t.Errorf("DefaultSubject = %q", DefaultSubject)
	}
	if DefaultConfigDir != ".followup" {
		t.Errorf("DefaultConfigDir = %v, want .followup", DefaultConfigDir)
	}
	if DefaultConfigFile != "config.yaml" {
		t.Errorf("DefaultConfigFile = %v, want config.yaml", DefaultConfigFile)
	}
}

// TestLoad_FromFile verifies file values override defaults.
func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	content := `internal_domains:
  - co.com
  - co.example
self_address: me@co.com
sender_name: Jamie
source_dir: /var/cache/notes
lookback_window: 12h
poll_interval: 1m
poll_max_wait: 10m
abandon_after_attempts: 5
endpoints:
  notes: http://localhost:8081
  mail_store: http://localhost:8082
  generation: http://localhost:8083
log_level: debug
`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FOLLOWUP_CONFIG_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.InternalDomains) != 2 || cfg.InternalDomains[0] != "co.com" {
		t.Errorf("InternalDomains = %v", cfg.InternalDomains)
	}
	if cfg.SelfAddress != "me@co.com" {
		t.Errorf("SelfAddress = %v", cfg.SelfAddress)
	}
	if cfg.LookbackWindow != 12*time.Hour {
		t.Errorf("LookbackWindow = %v, want 12h", cfg.LookbackWindow)
	}
	if cfg.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", cfg.PollInterval)
	}
	if cfg.AbandonAfterAttempts != 5 {
		t.Errorf("AbandonAfterAttempts = %v, want 5", cfg.AbandonAfterAttempts)
	}
	if cfg.Endpoints.Notes != "http://localhost:8081" {
		t.Errorf("Endpoints.Notes = %v", cfg.Endpoints.Notes)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	// StateDir defaults to the config directory when unset.
	if cfg.StateDir != dir {
		t.Errorf("StateDir = %v, want %v", cfg.StateDir, dir)
	}
	// Untouched keys keep their defaults.
	if cfg.MinNotesChars != DefaultMinNotesChars {
		t.Errorf("MinNotesChars = %v, want default", cfg.MinNotesChars)
	}
}

// TestLoad_EnvOverridesFile verifies environment variables take precedence.
func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	content := `internal_domains: [co.com]
self_address: me@co.com
source_dir: /from/file
lookback_window: 12h
`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FOLLOWUP_CONFIG_DIR", dir)
	t.Setenv("FOLLOWUP_SOURCE_DIR", "/from/env")
	t.Setenv("FOLLOWUP_LOOKBACK_WINDOW", "4h")
	t.Setenv("FOLLOWUP_INTERNAL_DOMAINS", "a.com, b.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SourceDir != "/from/env" {
		t.Errorf("SourceDir = %v, want env override", cfg.SourceDir)
	}
	if cfg.LookbackWindow != 4*time.Hour {
		t.Errorf("LookbackWindow = %v, want 4h", cfg.LookbackWindow)
	}
	if len(cfg.InternalDomains) != 2 || cfg.InternalDomains[1] != "b.com" {
		t.Errorf("InternalDomains = %v, want [a.com b.com]", cfg.InternalDomains)
	}
}

// TestLoad_MissingFileUsesDefaults verifies a missing config file is fine as
// long as the required keys arrive via environment.
func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("FOLLOWUP_CONFIG_DIR", t.TempDir())
	t.Setenv("FOLLOWUP_INTERNAL_DOMAINS", "co.com")
	t.Setenv("FOLLOWUP_SELF_ADDRESS", "me@co.com")
	t.Setenv("FOLLOWUP_SOURCE_DIR", "/var/cache/notes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want default", cfg.PollInterval)
	}
}

// TestConfig_Validate verifies configuration validation.
func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.InternalDomains = []string{"co.com"}
		cfg.SelfAddress = "me@co.com"
		cfg.SourceDir = "/var/cache/notes"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no internal domains", func(c *Config) { c.InternalDomains = nil }, true},
		{"no self address", func(c *Config) { c.SelfAddress = "" }, true},
		{"no source dir", func(c *Config) { c.SourceDir = "" }, true},
		{"zero lookback", func(c *Config) { c.LookbackWindow = 0 }, true},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"max wait below interval", func(c *Config) { c.PollMaxWait = c.PollInterval - time.Second }, true},
		{"zero min notes", func(c *Config) { c.MinNotesChars = 0 }, true},
		{"zero abandon cutoff", func(c *Config) { c.AbandonAfterAttempts = 0 }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

// TestIsInternalDomain verifies case-insensitive domain membership.
func TestIsInternalDomain(t *testing.T) {
	cfg := &Config{InternalDomains: []string{"co.com", "co.example"}}

	tests := []struct {
		domain string
		want   bool
	}{
		{"co.com", true},
		{"CO.COM", true},
		{"co.example", true},
		{"other.com", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := cfg.IsInternalDomain(tc.domain); got != tc.want {
			t.Errorf("IsInternalDomain(%q) = %v, want %v", tc.domain, got, tc.want)
		}
	}
}

// TestStatePath verifies state file path construction.
func TestStatePath(t *testing.T) {
	cfg := &Config{StateDir: "/var/lib/followup"}
	if got := cfg.StatePath("state.db"); got != filepath.Join("/var/lib/followup", "state.db") {
		t.Errorf("StatePath = %v", got)
	}
}
