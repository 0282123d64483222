// Package config loads and validates the service configuration file.
// Runtime-tunable knobs (strategy, retry budget, cooldowns) live in the
// settings file instead, which reloads without a restart; everything
// here requires one.
package config

import (
	"fmt"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Storage  StorageConfig  `yaml:"storage"`
	Settings SettingsConfig `yaml:"settings"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sync     SyncConfig     `yaml:"sync"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	// ListenAddr is the host:port to bind. Default: ":8080".
	ListenAddr string `yaml:"listenAddr"`

	// ReadTimeout bounds reading an inbound request. Default: 30s.
	ReadTimeout time.Duration `yaml:"readTimeout"`

	// WriteTimeout bounds writing a response. Default: 180s, sized
	// for slow completion responses.
	WriteTimeout time.Duration `yaml:"writeTimeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// UpstreamConfig configures the outbound API clients.
type UpstreamConfig struct {
	// BaseURL is the chat completion API root. Required.
	BaseURL string `yaml:"baseUrl"`

	// AccountBaseURL is the account/usage API root for the token
	// pool. Defaults to BaseURL.
	AccountBaseURL string `yaml:"accountBaseUrl"`

	// Timeout is the per-request deadline. Default: 120s.
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig configures the databases.
type StorageConfig struct {
	// CredentialDB is the credential store path. Default:
	// "keywheel.db".
	CredentialDB string `yaml:"credentialDb"`

	// HistoryDB is the dispatch log path. Empty disables the log.
	HistoryDB string `yaml:"historyDb"`

	// HistoryRetention is how long dispatch log entries are kept.
	// Default: 168h.
	HistoryRetention time.Duration `yaml:"historyRetention"`
}

// SettingsConfig locates the runtime settings file.
type SettingsConfig struct {
	// File is the settings YAML path. Empty uses built-in defaults
	// with no hot reload.
	File string `yaml:"file"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error". Default: "info".
	Level string `yaml:"level"`

	// Format is "json" or "text". Default: "json".
	Format string `yaml:"format"`

	// RedactSecrets scrubs credential material from log output.
	// Default: true.
	RedactSecrets *bool `yaml:"redactSecrets"`
}

// SyncConfig configures the token pool usage sync.
type SyncConfig struct {
	// Enabled turns the background sync on.
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression. Default: "*/15 * * * *".
	Schedule string `yaml:"schedule"`

	// Profiles are the profiles to sync each run. Default:
	// ["default"].
	Profiles []string `yaml:"profiles"`
}

// Default returns the configuration defaults applied before the file
// is read.
func Default() Config {
	redact := true
	return Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    180 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Upstream: UpstreamConfig{
			Timeout: 120 * time.Second,
		},
		Storage: StorageConfig{
			CredentialDB:     "keywheel.db",
			HistoryRetention: 168 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			RedactSecrets: &redact,
		},
		Sync: SyncConfig{
			Schedule: "*/15 * * * *",
			Profiles: []string{"default"},
		},
	}
}

// Validate checks invariants that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listenAddr cannot be empty")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.baseUrl is required")
	}
	if c.Storage.CredentialDB == "" {
		return fmt.Errorf("storage.credentialDb cannot be empty")
	}
	if c.Storage.HistoryRetention < 0 {
		return fmt.Errorf("storage.historyRetention cannot be negative")
	}
	if c.Sync.Enabled && len(c.Sync.Profiles) == 0 {
		return fmt.Errorf("sync.profiles cannot be empty when sync is enabled")
	}
	return nil
}

// RedactSecrets resolves the logging redaction flag with its default.
func (c *Config) RedactSecrets() bool {
	if c.Logging.RedactSecrets == nil {
		return true
	}
	return *c.Logging.RedactSecrets
}
