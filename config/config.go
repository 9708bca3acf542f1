// Package config provides configuration management for the followup CLI.
// It supports loading configuration from a YAML file and environment
// variables into a single immutable struct that is constructed once at
// process start and passed into each component. No component reads
// configuration ambiently.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultConfigDir  = ".followup"
	DefaultConfigFile = "config.yaml"

	DefaultLookbackWindow      = 8 * time.Hour
	DefaultPollInterval        = 30 * time.Second
	DefaultPollMaxWait         = 5 * time.Minute
	DefaultMinNotesChars       = 50
	DefaultContextLookback     = 90 * 24 * time.Hour
	DefaultContextMaxMessages  = 10
	DefaultAbandonAfter        = 20
	DefaultCollaboratorTimeout = 30 * time.Second
	DefaultSubject             = "re: our call today"
)

// Endpoints holds the collaborator base URLs.
type Endpoints struct {
	// Notes is the base URL of the transcript/notes retrieval API.
	Notes string `yaml:"notes"`

	// MailStore is the base URL of the mail-store API.
	MailStore string `yaml:"mail_store"`

	// Generation is the base URL of the text-generation API.
	Generation string `yaml:"generation"`
}

// Config holds the followup pipeline configuration. The struct is built once
// by Load and treated as immutable afterwards.
type Config struct {
	// InternalDomains are the email domains considered internal for
	// attendee role classification.
	InternalDomains []string `yaml:"internal_domains"`

	// SelfAddress is the operator's own email address. It is excluded from
	// draft recipients and designates the "self" transcript channel owner.
	SelfAddress string `yaml:"self_address"`

	// SenderName is the fallback first name used to sign drafts when the
	// mail store does not report a display name.
	SenderName string `yaml:"sender_name"`

	// SourceDir is the directory holding the versioned metadata cache files.
	SourceDir string `yaml:"source_dir"`

	// StateDir holds the state database, lock marker, event log, status
	// snapshot, and run log.
	StateDir string `yaml:"state_dir"`

	// LookbackWindow is how far back from now a meeting's end time may be
	// for the meeting to be considered.
	LookbackWindow time.Duration `yaml:"lookback_window"`

	// PollInterval is the sleep between readiness polls within a run.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollMaxWait is the wall-clock ceiling on readiness polling per run.
	PollMaxWait time.Duration `yaml:"poll_max_wait"`

	// MinNotesChars is the minimum notes length to consider content ready.
	MinNotesChars int `yaml:"min_notes_chars"`

	// ContextLookback bounds how far back prior correspondence is gathered.
	ContextLookback time.Duration `yaml:"context_lookback"`

	// ContextMaxMessages caps prior messages fetched per contact.
	ContextMaxMessages int `yaml:"context_max_messages"`

	// AbandonAfterAttempts is the deferral cutoff: a meeting deferred this
	// many times is abandoned instead of retried forever.
	AbandonAfterAttempts int `yaml:"abandon_after_attempts"`

	// CollaboratorTimeout is the per-request timeout for collaborator calls.
	CollaboratorTimeout time.Duration `yaml:"collaborator_timeout"`

	// DefaultSubject is the subject used when no prior context exists.
	DefaultSubject string `yaml:"default_subject"`

	// Endpoints holds the collaborator base URLs.
	Endpoints Endpoints `yaml:"endpoints"`

	// LogLevel sets the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogJSON enables JSON log output (used for unattended runs).
	LogJSON bool `yaml:"log_json"`
}

// ConfigDir returns the configuration directory path.
// Uses $FOLLOWUP_CONFIG_DIR if set, otherwise ~/.followup
func ConfigDir() (string, error) {
	if dir := os.Getenv("FOLLOWUP_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// DefaultConfig returns a Config with default values. SourceDir has no
// sensible default and must come from the file or environment.
func DefaultConfig() *Config {
	return &Config{
		LookbackWindow:       DefaultLookbackWindow,
		PollInterval:         DefaultPollInterval,
		PollMaxWait:          DefaultPollMaxWait,
		MinNotesChars:        DefaultMinNotesChars,
		ContextLookback:      DefaultContextLookback,
		ContextMaxMessages:   DefaultContextMaxMessages,
		AbandonAfterAttempts: DefaultAbandonAfter,
		CollaboratorTimeout:  DefaultCollaboratorTimeout,
		DefaultSubject:       DefaultSubject,
		LogLevel:             "info",
	}
}

// Load loads the configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.followup/config.yaml or $FOLLOWUP_CONFIG_DIR/config.yaml)
// 3. FOLLOWUP_* environment variables
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if cfg.StateDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.StateDir = dir
	}
	cfg.StateDir = expandPath(cfg.StateDir)
	cfg.SourceDir = expandPath(cfg.SourceDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// We need a temp struct for unmarshaling durations as strings.
	type configFile struct {
		InternalDomains      []string  `yaml:"internal_domains"`
		SelfAddress          string    `yaml:"self_address"`
		SenderName           string    `yaml:"sender_name"`
		SourceDir            string    `yaml:"source_dir"`
		StateDir             string    `yaml:"state_dir"`
		LookbackWindow       string    `yaml:"lookback_window"`
		PollInterval         string    `yaml:"poll_interval"`
		PollMaxWait          string    `yaml:"poll_max_wait"`
		MinNotesChars        int       `yaml:"min_notes_chars"`
		ContextLookback      string    `yaml:"context_lookback"`
		ContextMaxMessages   int       `yaml:"context_max_messages"`
		AbandonAfterAttempts int       `yaml:"abandon_after_attempts"`
		CollaboratorTimeout  string    `yaml:"collaborator_timeout"`
		DefaultSubject       string    `yaml:"default_subject"`
		Endpoints            Endpoints `yaml:"endpoints"`
		LogLevel             string    `yaml:"log_level"`
		LogJSON              bool      `yaml:"log_json"`
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if len(fileCfg.InternalDomains) > 0 {
		cfg.InternalDomains = fileCfg.InternalDomains
	}
	if fileCfg.SelfAddress != "" {
		cfg.SelfAddress = fileCfg.SelfAddress
	}
	if fileCfg.SenderName != "" {
		cfg.SenderName = fileCfg.SenderName
	}
	if fileCfg.SourceDir != "" {
		cfg.SourceDir = fileCfg.SourceDir
	}
	if fileCfg.StateDir != "" {
		cfg.StateDir = fileCfg.StateDir
	}
	if err := setDuration(&cfg.LookbackWindow, fileCfg.LookbackWindow, "lookback_window"); err != nil {
		return err
	}
	if err := setDuration(&cfg.PollInterval, fileCfg.PollInterval, "poll_interval"); err != nil {
		return err
	}
	if err := setDuration(&cfg.PollMaxWait, fileCfg.PollMaxWait, "poll_max_wait"); err != nil {
		return err
	}
	if err := setDuration(&cfg.ContextLookback, fileCfg.ContextLookback, "context_lookback"); err != nil {
		return err
	}
	if err := setDuration(&cfg.CollaboratorTimeout, fileCfg.CollaboratorTimeout, "collaborator_timeout"); err != nil {
		return err
	}
	if fileCfg.MinNotesChars > 0 {
		cfg.MinNotesChars = fileCfg.MinNotesChars
	}
	if fileCfg.ContextMaxMessages > 0 {
		cfg.ContextMaxMessages = fileCfg.ContextMaxMessages
	}
	if fileCfg.AbandonAfterAttempts > 0 {
		cfg.AbandonAfterAttempts = fileCfg.AbandonAfterAttempts
	}
	if fileCfg.DefaultSubject != "" {
		cfg.DefaultSubject = fileCfg.DefaultSubject
	}
	if fileCfg.Endpoints.Notes != "" {
		cfg.Endpoints.Notes = fileCfg.Endpoints.Notes
	}
	if fileCfg.Endpoints.MailStore != "" {
		cfg.Endpoints.MailStore = fileCfg.Endpoints.MailStore
	}
	if fileCfg.Endpoints.Generation != "" {
		cfg.Endpoints.Generation = fileCfg.Endpoints.Generation
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	cfg.LogJSON = fileCfg.LogJSON

	return nil
}

// setDuration parses a non-empty duration string into dst.
func setDuration(dst *time.Duration, val, key string) error {
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = d
	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("FOLLOWUP_INTERNAL_DOMAINS"); v != "" {
		parts := strings.Split(v, ",")
		domains := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				domains = append(domains, p)
			}
		}
		cfg.InternalDomains = domains
	}

	if v := os.Getenv("FOLLOWUP_SELF_ADDRESS"); v != "" {
		cfg.SelfAddress = v
	}

	if v := os.Getenv("FOLLOWUP_SENDER_NAME"); v != "" {
		cfg.SenderName = v
	}

	if v := os.Getenv("FOLLOWUP_SOURCE_DIR"); v != "" {
		cfg.SourceDir = v
	}

	if v := os.Getenv("FOLLOWUP_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}

	if v := os.Getenv("FOLLOWUP_LOOKBACK_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LookbackWindow = d
		}
	}

	if v := os.Getenv("FOLLOWUP_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}

	if v := os.Getenv("FOLLOWUP_POLL_MAX_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollMaxWait = d
		}
	}

	if v := os.Getenv("FOLLOWUP_MIN_NOTES_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MinNotesChars = n
		}
	}

	if v := os.Getenv("FOLLOWUP_ABANDON_AFTER_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AbandonAfterAttempts = n
		}
	}

	if v := os.Getenv("FOLLOWUP_NOTES_ENDPOINT"); v != "" {
		cfg.Endpoints.Notes = v
	}

	if v := os.Getenv("FOLLOWUP_MAIL_STORE_ENDPOINT"); v != "" {
		cfg.Endpoints.MailStore = v
	}

	if v := os.Getenv("FOLLOWUP_GENERATION_ENDPOINT"); v != "" {
		cfg.Endpoints.Generation = v
	}

	if v := os.Getenv("FOLLOWUP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("FOLLOWUP_LOG_JSON"); v == "true" || v == "1" {
		cfg.LogJSON = true
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if len(c.InternalDomains) == 0 {
		return fmt.Errorf("internal_domains is required")
	}
	if c.SelfAddress == "" {
		return fmt.Errorf("self_address is required")
	}
	if c.SourceDir == "" {
		return fmt.Errorf("source_dir is required")
	}
	if c.LookbackWindow <= 0 {
		return fmt.Errorf("lookback_window must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.PollMaxWait < c.PollInterval {
		return fmt.Errorf("poll_max_wait must be at least poll_interval")
	}
	if c.MinNotesChars <= 0 {
		return fmt.Errorf("min_notes_chars must be positive")
	}
	if c.AbandonAfterAttempts <= 0 {
		return fmt.Errorf("abandon_after_attempts must be positive")
	}
	return nil
}

// IsInternalDomain reports whether the given email domain is in the
// configured internal-domain set. Comparison is case-insensitive.
func (c *Config) IsInternalDomain(domain string) bool {
	for _, d := range c.InternalDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return original if home dir lookup fails.
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// StatePath returns the path of a file inside the state directory.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.StateDir, name)
}
