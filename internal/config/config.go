// Package config provides configuration management for scenerepo.
//
// Config file locations (priority order):
//  1. $SCENEREPO_CONFIG
//  2. ./scenerepo.yaml
//  3. $XDG_CONFIG_HOME/scenerepo/config.yaml
//  4. ~/.config/scenerepo/config.yaml
//  5. /etc/scenerepo/config.yaml
//
// Passwords are never stored in the file; storage.password_env names the
// environment variable that holds one.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"scenerepo/internal/acl"
	"scenerepo/internal/storage"
)

// Defaults
const (
	DefaultDataDir       = "./data"
	DefaultServerAddr    = ":8080"
	DefaultSnapshotCache = 64
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Address == "" && c.Storage.Driver == DriverSQLite {
		c.Storage.Address = DefaultDataDir
	}
	if c.Storage.PoolSize <= 0 {
		c.Storage.PoolSize = storage.DefaultPoolSize
	}
	if c.Storage.Username != "" && c.Storage.Database == "" {
		c.Storage.Database = "admin"
	}
	if c.Ledger.SnapshotCache == nil {
		size := DefaultSnapshotCache
		c.Ledger.SnapshotCache = &size
	}
	if c.Ledger.SceneSuffix == "" {
		c.Ledger.SceneSuffix = acl.SuffixScene
	}
	if c.Ledger.HistorySuffix == "" {
		c.Ledger.HistorySuffix = acl.SuffixHistory
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
}

// Validate reports settings that cannot work
func (c *Config) Validate() error {
	var errs []error
	if !c.Storage.Driver.Valid() {
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == DriverMongo && c.Storage.Address == "" {
		errs = append(errs, errors.New("storage.address: mongo driver needs a uri"))
	}
	if c.Ledger.Snapshots() < 0 {
		errs = append(errs, errors.New("ledger.snapshot_cache: must not be negative"))
	}
	if c.Ledger.SceneSuffix == c.Ledger.HistorySuffix {
		errs = append(errs, errors.New("ledger: scene and history suffixes must differ"))
	}
	if c.Roles.Watch && c.Roles.File == "" {
		errs = append(errs, errors.New("roles.watch: needs roles.file"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Password reads the storage password from the configured environment
// variable
func (s StorageConfig) Password() string {
	if s.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(s.PasswordEnv)
}

// HandlerConfig converts the storage section for storage.Open
func (s StorageConfig) HandlerConfig() storage.Config {
	var timeout time.Duration
	if s.Timeout != nil {
		timeout = s.Timeout.Duration()
	}
	return storage.Config{
		Database: s.Database,
		Username: s.Username,
		Password: s.Password(),
		PoolSize: s.PoolSize,
		Timeout:  timeout,
	}
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Storage: %s at %s (pool %d)\n", c.Storage.Driver, c.Storage.Address, c.Storage.PoolSize)
	fmt.Fprintf(&b, "Ledger: %s/%s, %d snapshots cached\n", c.Ledger.SceneSuffix, c.Ledger.HistorySuffix, c.Ledger.Snapshots())
	fmt.Fprintf(&b, "Server: %s", c.Server.Addr)
	if c.Roles.File != "" {
		fmt.Fprintf(&b, "\nRoles: %s (watch=%v)", c.Roles.File, c.Roles.Watch)
	}
	return b.String()
}
