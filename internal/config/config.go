// Package config provides configuration loading and structs for the Findify server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Content ContentConfig `yaml:"content"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SessionConfig holds the paging and timing rules of a search session.
type SessionConfig struct {
	PageSize    int            `yaml:"page_size"`
	MaxPages    int            `yaml:"max_pages"`
	Latency     *time.Duration `yaml:"latency"`
	MaxSessions int            `yaml:"max_sessions"`
}

// LatencyOrDefault returns the simulated latency; defaults to one second when unset.
// An explicit 0 disables the delay.
func (s *SessionConfig) LatencyOrDefault() time.Duration {
	if s.Latency != nil {
		return *s.Latency
	}
	return DefaultLatency
}

// ContentConfig points at an optional YAML file overriding the built-in vocabularies.
type ContentConfig struct {
	Path  string `yaml:"path"`
	Watch *bool  `yaml:"watch"`
}

// WatchOrDefault returns whether to reload the content file on change; defaults to true.
func (c *ContentConfig) WatchOrDefault() bool {
	if c.Watch != nil {
		return *c.Watch
	}
	return true
}

// StorageConfig holds the transcript archive settings.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	Archive      *bool  `yaml:"archive"`
}

// ArchiveOrDefault returns whether closed sessions are archived; defaults to true.
func (s *StorageConfig) ArchiveOrDefault() bool {
	if s.Archive != nil {
		return *s.Archive
	}
	return true
}

// LoggingConfig holds optional log file rotation settings. Logs always go to stderr;
// when File is set they are also written to a rotated file.
type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Content.Path != "" {
		cfg.Content.Path = expandPath(cfg.Content.Path, configDir)
	}
	if cfg.Logging.File != "" {
		cfg.Logging.File = expandPath(cfg.Logging.File, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects settings the session controller cannot honor.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Session.PageSize < 1 {
		return fmt.Errorf("session.page_size must be >= 1, got %d", c.Session.PageSize)
	}
	if c.Session.MaxPages < 1 {
		return fmt.Errorf("session.max_pages must be >= 1, got %d", c.Session.MaxPages)
	}
	if c.Session.LatencyOrDefault() < 0 {
		return fmt.Errorf("session.latency cannot be negative")
	}
	if c.Session.MaxSessions < 1 {
		return fmt.Errorf("session.max_sessions must be >= 1, got %d", c.Session.MaxSessions)
	}
	return nil
}

// Save writes the config to path. Used by "findify init".
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
