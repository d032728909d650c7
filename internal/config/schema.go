package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version int           `yaml:"version"`
	Storage StorageConfig `yaml:"storage"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Server  ServerConfig  `yaml:"server"`
	Roles   RolesConfig   `yaml:"roles"`
}

// StorageConfig selects and configures the backing store
type StorageConfig struct {
	Driver Driver `yaml:"driver"`
	// Address is a data directory for sqlite (or ":memory:") and a uri
	// for mongo
	Address  string `yaml:"address"`
	PoolSize int    `yaml:"pool_size"`
	Database string `yaml:"database,omitempty"` // authentication database
	Username string `yaml:"username,omitempty"`
	// PasswordEnv names the environment variable holding the password
	PasswordEnv string    `yaml:"password_env,omitempty"`
	Timeout     *Duration `yaml:"timeout,omitempty"`
}

// LedgerConfig holds revision history settings
type LedgerConfig struct {
	// SnapshotCache bounds the revision index cache. Unset means
	// DefaultSnapshotCache; zero disables the cache.
	SnapshotCache *int   `yaml:"snapshot_cache,omitempty"`
	SceneSuffix   string `yaml:"scene_suffix"`
	HistorySuffix string `yaml:"history_suffix"`
}

// Snapshots returns the configured cache size, or the default when unset
func (l LedgerConfig) Snapshots() int {
	if l.SnapshotCache == nil {
		return DefaultSnapshotCache
	}
	return *l.SnapshotCache
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// RolesConfig points at the role definitions file
type RolesConfig struct {
	File  string `yaml:"file,omitempty"`
	Watch bool   `yaml:"watch"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
