// Package config provides configuration management for Engram.
// It loads settings from environment variables with the ENGRAM_ prefix,
// provides sensible defaults for all options, and optionally overlays a
// YAML file (the file wins over the environment, so a config file edited
// at runtime is authoritative).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quietlabs/engram/internal/cloudsync"
)

// Config holds all settings for the Engram daemon and CLI.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Security SecurityConfig `yaml:"security"`
	Sync     SyncConfig     `yaml:"sync"`
	User     UserConfig     `yaml:"user"`
}

// StorageConfig contains database and retention configuration.
type StorageConfig struct {
	// Engine is the storage backend: sqlite or postgres (default: sqlite).
	Engine string `yaml:"engine"`

	// DataPath is the directory holding the database and key file
	// (default: ./data).
	DataPath string `yaml:"data_path"`

	// PostgresDSN is the connection string when Engine is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`

	// RetentionDays is how long non-permanent memories are kept
	// (default: 365).
	RetentionDays int `yaml:"retention_days"`
}

// SecurityConfig contains encryption settings.
type SecurityConfig struct {
	// EncryptionEnabled encrypts memory content at rest (default: true).
	EncryptionEnabled bool `yaml:"encryption_enabled"`

	// CompressionEnabled is advisory; recorded for replicas that compress
	// before upload (default: false).
	CompressionEnabled bool `yaml:"compression_enabled"`
}

// SyncConfig contains cloud sync settings.
type SyncConfig struct {
	// Enabled turns the background sync loop on (default: false).
	Enabled bool `yaml:"enabled"`

	// IntervalMinutes between sync rounds (default: 30).
	IntervalMinutes int `yaml:"interval_minutes"`

	// ConflictStrategy picks winners when both sides changed
	// (default: last_modified_wins).
	ConflictStrategy string `yaml:"conflict_strategy"`

	// Dir is the replica directory for the built-in directory transport.
	Dir string `yaml:"dir"`
}

// UserConfig contains user-specific settings.
type UserConfig struct {
	// UserID identifies whose context this instance tracks
	// (default: "default").
	UserID string `yaml:"user_id"`
}

// Load builds the configuration from environment variables, then overlays
// the YAML file at path when it exists. An empty path falls back to
// ENGRAM_CONFIG; no file at all is not an error.
func Load(path string) (*Config, error) {
	cfg := buildBaseConfig()

	if path == "" {
		path = os.Getenv("ENGRAM_CONFIG")
	}
	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabasePath is where the sqlite backend keeps its database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataPath, "engram.db")
}

// KeyPath is where the master key file lives.
func (c *Config) KeyPath() string {
	return filepath.Join(c.Storage.DataPath, "master.key")
}

// SyncInterval returns the configured interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// overlayFile applies the YAML file on top of the current values. Only keys
// present in the file change; everything else keeps its env/default value.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyString(&c.Storage.Engine, f.Storage.Engine)
	applyString(&c.Storage.DataPath, f.Storage.DataPath)
	applyString(&c.Storage.PostgresDSN, f.Storage.PostgresDSN)
	applyInt(&c.Storage.RetentionDays, f.Storage.RetentionDays)
	applyBool(&c.Security.EncryptionEnabled, f.Security.EncryptionEnabled)
	applyBool(&c.Security.CompressionEnabled, f.Security.CompressionEnabled)
	applyBool(&c.Sync.Enabled, f.Sync.Enabled)
	applyInt(&c.Sync.IntervalMinutes, f.Sync.IntervalMinutes)
	applyString(&c.Sync.ConflictStrategy, f.Sync.ConflictStrategy)
	applyString(&c.Sync.Dir, f.Sync.Dir)
	applyString(&c.User.UserID, f.User.UserID)

	return nil
}

func (c *Config) validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires a DSN")
	}
	if c.Storage.RetentionDays < 1 {
		return fmt.Errorf("config: retention_days must be positive, got %d", c.Storage.RetentionDays)
	}
	if c.Sync.IntervalMinutes < 1 {
		return fmt.Errorf("config: sync interval_minutes must be positive, got %d", c.Sync.IntervalMinutes)
	}
	if !cloudsync.Strategy(c.Sync.ConflictStrategy).Valid() {
		return fmt.Errorf("config: unknown conflict strategy %q", c.Sync.ConflictStrategy)
	}
	if c.Sync.Enabled && c.Sync.Dir == "" {
		return fmt.Errorf("config: sync requires a replica directory")
	}
	return nil
}

// fileConfig mirrors Config with pointer fields so absent YAML keys are
// distinguishable from zero values.
type fileConfig struct {
	Storage struct {
		Engine        *string `yaml:"engine"`
		DataPath      *string `yaml:"data_path"`
		PostgresDSN   *string `yaml:"postgres_dsn"`
		RetentionDays *int    `yaml:"retention_days"`
	} `yaml:"storage"`
	Security struct {
		EncryptionEnabled  *bool `yaml:"encryption_enabled"`
		CompressionEnabled *bool `yaml:"compression_enabled"`
	} `yaml:"security"`
	Sync struct {
		Enabled          *bool   `yaml:"enabled"`
		IntervalMinutes  *int    `yaml:"interval_minutes"`
		ConflictStrategy *string `yaml:"conflict_strategy"`
		Dir              *string `yaml:"dir"`
	} `yaml:"sync"`
	User struct {
		UserID *string `yaml:"user_id"`
	} `yaml:"user"`
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func applyBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:        getEnv("ENGRAM_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("ENGRAM_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("ENGRAM_POSTGRES_DSN", ""),
			RetentionDays: getEnvInt("ENGRAM_RETENTION_DAYS", 365),
		},
		Security: SecurityConfig{
			EncryptionEnabled:  getEnvBool("ENGRAM_ENCRYPTION_ENABLED", true),
			CompressionEnabled: getEnvBool("ENGRAM_COMPRESSION_ENABLED", false),
		},
		Sync: SyncConfig{
			Enabled:          getEnvBool("ENGRAM_SYNC_ENABLED", false),
			IntervalMinutes:  getEnvInt("ENGRAM_SYNC_INTERVAL_MINUTES", 30),
			ConflictStrategy: getEnv("ENGRAM_CONFLICT_STRATEGY", string(cloudsync.LastModifiedWins)),
			Dir:              getEnv("ENGRAM_SYNC_DIR", ""),
		},
		User: UserConfig{
			UserID: getEnv("ENGRAM_USER_ID", "default"),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no" as
// false (case-insensitive). If the environment variable exists but cannot be
// parsed as a boolean, it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
