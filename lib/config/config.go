// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Duration is a time.Duration that unmarshals from a YAML string
// such as "10m" or "1h30m".
type Duration time.Duration

// UnmarshalYAML parses the standard duration string forms.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for the registry service.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Publish configures the publish coordinator.
	Publish PublishConfig `yaml:"publish"`

	// Ranking configures the ranking engine.
	Ranking RankingConfig `yaml:"ranking"`

	// Downloads configures download accounting.
	Downloads DownloadsConfig `yaml:"downloads"`

	// Publishers maps principal IDs to the glob patterns of package
	// names they may publish. A principal absent from this map
	// cannot publish. Identity is established by the transport; this
	// map only scopes what an identified principal may do.
	Publishers map[string][]string `yaml:"publishers"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Publish   *PublishConfig   `yaml:"publish,omitempty"`
	Ranking   *RankingConfig   `yaml:"ranking,omitempty"`
	Downloads *DownloadsConfig `yaml:"downloads,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for registry data.
	Root string `yaml:"root"`

	// Socket is the Unix socket path the service listens on.
	Socket string `yaml:"socket"`

	// Database is the SQLite metadata database path.
	Database string `yaml:"database"`

	// Blobs is the content store root directory.
	Blobs string `yaml:"blobs"`
}

// PublishConfig configures the publish coordinator.
type PublishConfig struct {
	// PendingStaleness is how old a pending version row must be
	// before another publisher may reclaim it.
	PendingStaleness Duration `yaml:"pending_staleness"`

	// StorageTimeout bounds each external-store round-trip.
	StorageTimeout Duration `yaml:"storage_timeout"`

	// RetryAttempts and RetryInitialDelay shape the backoff applied
	// to transient blob-store failures.
	RetryAttempts     int      `yaml:"retry_attempts"`
	RetryInitialDelay Duration `yaml:"retry_initial_delay"`

	// OrphanGrace is how long a blob must remain unreferenced
	// before the sweep deletes it.
	OrphanGrace Duration `yaml:"orphan_grace"`

	// SweepInterval is the period of the background sweep loop.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// RankingConfig configures the ranking engine.
type RankingConfig struct {
	// WindowWidth and WindowCount define the trending comparison:
	// the most recent WindowCount buckets of WindowWidth against the
	// preceding WindowCount.
	WindowWidth Duration `yaml:"window_width"`
	WindowCount int      `yaml:"window_count"`

	// RecomputeInterval is the period of the aggregate replay loop.
	RecomputeInterval Duration `yaml:"recompute_interval"`

	// View cache TTLs.
	PopularTTL  Duration `yaml:"popular_ttl"`
	RecentTTL   Duration `yaml:"recent_ttl"`
	TrendingTTL Duration `yaml:"trending_ttl"`
}

// DownloadsConfig configures download accounting.
type DownloadsConfig struct {
	// BucketWidth is the deduplication bucket: at most one counted
	// download per (package, version, fingerprint) per bucket.
	BucketWidth Duration `yaml:"bucket_width"`

	// QueueSize bounds the accounting worker's queue. Events beyond
	// it are dropped, never blocking the download response.
	QueueSize int `yaml:"queue_size"`

	// RetryAttempts and RetryDelay shape best-effort retries of
	// transient write failures.
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryDelay    Duration `yaml:"retry_delay"`
}

// Default returns the default configuration for development.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:     "${HOME}/.agenthub",
			Socket:   "${AGENTHUB_ROOT}/registry.sock",
			Database: "${AGENTHUB_ROOT}/registry.db",
			Blobs:    "${AGENTHUB_ROOT}/blobs",
		},
		Publish: PublishConfig{
			PendingStaleness:  Duration(10 * time.Minute),
			StorageTimeout:    Duration(30 * time.Second),
			RetryAttempts:     3,
			RetryInitialDelay: Duration(100 * time.Millisecond),
			OrphanGrace:       Duration(24 * time.Hour),
			SweepInterval:     Duration(5 * time.Minute),
		},
		Ranking: RankingConfig{
			WindowWidth:       Duration(time.Hour),
			WindowCount:       24,
			RecomputeInterval: Duration(5 * time.Minute),
			PopularTTL:        Duration(time.Hour),
			RecentTTL:         Duration(5 * time.Minute),
			TrendingTTL:       Duration(30 * time.Minute),
		},
		Downloads: DownloadsConfig{
			BucketWidth:   Duration(time.Hour),
			QueueSize:     256,
			RetryAttempts: 3,
			RetryDelay:    Duration(100 * time.Millisecond),
		},
	}
}

// Load loads configuration from the AGENTHUB_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if AGENTHUB_CONFIG is not set,
// this fails. This ensures deterministic, auditable configuration with
// no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("AGENTHUB_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("AGENTHUB_CONFIG environment variable not set; " +
			"set it to the path of your agenthub.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values. The only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}
	if overrides.Paths != nil {
		c.Paths = *overrides.Paths
	}
	if overrides.Publish != nil {
		c.Publish = *overrides.Publish
	}
	if overrides.Ranking != nil {
		c.Ranking = *overrides.Ranking
	}
	if overrides.Downloads != nil {
		c.Downloads = *overrides.Downloads
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"AGENTHUB_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["AGENTHUB_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Socket = expandVars(c.Paths.Socket, vars)
	c.Paths.Database = expandVars(c.Paths.Database, vars)
	c.Paths.Blobs = expandVars(c.Paths.Blobs, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.Socket == "" {
		errs = append(errs, fmt.Errorf("paths.socket is required"))
	}
	if c.Paths.Database == "" {
		errs = append(errs, fmt.Errorf("paths.database is required"))
	}
	if c.Paths.Blobs == "" {
		errs = append(errs, fmt.Errorf("paths.blobs is required"))
	}
	if c.Publish.PendingStaleness <= 0 {
		errs = append(errs, fmt.Errorf("publish.pending_staleness must be positive"))
	}
	if c.Publish.OrphanGrace <= 0 {
		errs = append(errs, fmt.Errorf("publish.orphan_grace must be positive"))
	}
	if c.Ranking.WindowWidth <= 0 {
		errs = append(errs, fmt.Errorf("ranking.window_width must be positive"))
	}
	if c.Ranking.WindowCount <= 0 {
		errs = append(errs, fmt.Errorf("ranking.window_count must be positive"))
	}
	if c.Downloads.BucketWidth <= 0 {
		errs = append(errs, fmt.Errorf("downloads.bucket_width must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the data directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, dir := range []string{c.Paths.Root, c.Paths.Blobs} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
