// Package config loads novels settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Platform PlatformConfig `yaml:"platform" envPrefix:"PLATFORM_"`
	Cache    CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
	Store    StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Download DownloadConfig `yaml:"download" envPrefix:"DOWNLOAD_"`
	Sync     SyncConfig     `yaml:"sync" envPrefix:"SYNC_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOG_"`
}

// PlatformConfig points at the web-novel platform the reader talks to.
type PlatformConfig struct {
	Origin    string `yaml:"origin" env:"ORIGIN"`
	APIPrefix string `yaml:"api_prefix" env:"API_PREFIX"`
}

// CacheConfig holds the request cache settings. Bumping Version retires
// every partition of the previous version on the next activation.
type CacheConfig struct {
	Path         string   `yaml:"path" env:"PATH"`
	Prefix       string   `yaml:"prefix" env:"PREFIX"`
	Version      string   `yaml:"version" env:"VERSION"`
	OfflineShell string   `yaml:"offline_shell" env:"OFFLINE_SHELL"`
	Manifest     []string `yaml:"manifest" env:"MANIFEST" envSeparator:","`
	CDNHosts     []string `yaml:"cdn_hosts" env:"CDN_HOSTS" envSeparator:","`
}

type StoreConfig struct {
	Path       string `yaml:"path" env:"PATH"`
	QuotaBytes int64  `yaml:"quota_bytes" env:"QUOTA_BYTES"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type DownloadConfig struct {
	Concurrency int           `yaml:"concurrency" env:"CONCURRENCY"`
	Interval    time.Duration `yaml:"-" env:"INTERVAL"`

	IntervalRaw string `yaml:"interval"`
}

// SyncConfig controls how often serve checks whether the platform came
// back, to push progress saved while offline.
type SyncConfig struct {
	ProbeInterval time.Duration `yaml:"-" env:"PROBE_INTERVAL"`

	ProbeIntervalRaw string `yaml:"probe_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// EnvPrefix is prepended to every environment override, e.g.
// NOVELS_PLATFORM_ORIGIN.
const EnvPrefix = "NOVELS_"

// Default returns the configuration used when no file exists.
func Default() *Config {
	dir := DataDir()
	return &Config{
		Platform: PlatformConfig{
			Origin:    "http://localhost:3000",
			APIPrefix: "/api/",
		},
		Cache: CacheConfig{
			Path:         filepath.Join(dir, "cache.db"),
			Prefix:       "novels",
			Version:      "v1",
			OfflineShell: "/offline.html",
			Manifest:     []string{"/", "/offline.html", "/manifest.json"},
		},
		Store: StoreConfig{
			Path:       filepath.Join(dir, "offline.duckdb"),
			QuotaBytes: 512 << 20,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Download: DownloadConfig{
			Concurrency: 3,
			Interval:    500 * time.Millisecond,
		},
		Sync: SyncConfig{
			ProbeInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DataDir is where the databases live by default.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "novels")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".novels"
	}
	return filepath.Join(home, ".local", "share", "novels")
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "novels", "config.yaml")
	}
	return "config.yaml"
}

// Load reads path over the defaults, applies NOVELS_* environment
// overrides and validates the result. A missing file is not an error.
// ${VAR_NAME} references in the file are expanded.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(raw))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or with
// nothing when it is unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	if cfg.Download.IntervalRaw != "" {
		d, err := time.ParseDuration(cfg.Download.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing download.interval %q: %w", cfg.Download.IntervalRaw, err)
		}
		cfg.Download.Interval = d
	}
	if cfg.Sync.ProbeIntervalRaw != "" {
		d, err := time.ParseDuration(cfg.Sync.ProbeIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sync.probe_interval %q: %w", cfg.Sync.ProbeIntervalRaw, err)
		}
		cfg.Sync.ProbeInterval = d
	}
	return nil
}

// Validate returns the first problem found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Platform.Origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("platform.origin must be an absolute http(s) URL, got %q", c.Platform.Origin)
	}
	if c.Platform.APIPrefix != "" && !strings.HasPrefix(c.Platform.APIPrefix, "/") {
		return fmt.Errorf("platform.api_prefix must start with /")
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required")
	}
	if c.Cache.Prefix == "" || c.Cache.Version == "" {
		return fmt.Errorf("cache.prefix and cache.version are required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.QuotaBytes < 0 {
		return fmt.Errorf("store.quota_bytes must not be negative")
	}
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("download.concurrency must be at least 1")
	}
	if c.Download.Interval < 0 {
		return fmt.Errorf("download.interval must not be negative")
	}
	if c.Sync.ProbeInterval <= 0 {
		return fmt.Errorf("sync.probe_interval must be positive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// Origin returns the platform origin without a trailing slash.
func (c *Config) Origin() string {
	return strings.TrimRight(c.Platform.Origin, "/")
}
