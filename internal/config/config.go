// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads multilogin configuration from a YAML file with
// command-line flag overrides.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/multilogin/internal/failure"
	"github.com/holomush/multilogin/internal/logging"
	"github.com/holomush/multilogin/internal/pipeline"
	"github.com/holomush/multilogin/internal/store"
	"github.com/holomush/multilogin/internal/xdg"
)

// DatabaseURLEnv supplies database.url when the file leaves it empty.
const DatabaseURLEnv = "DATABASE_URL"

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Bounds for the outbound HTTP client timeout.
const (
	MinHTTPTimeout = 3 * time.Second
	MaxHTTPTimeout = 5 * time.Second
)

// Config is the full service configuration.
type Config struct {
	LogFormat   string `koanf:"log_format"`
	LogLevel    string `koanf:"log_level"`
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	// AdminLocks exposes the lock override routes on the session server.
	AdminLocks bool `koanf:"admin_locks"`

	AllowUnverified     bool          `koanf:"allow_unverified"`
	HTTPTimeout         time.Duration `koanf:"http_timeout"`
	PerAuthorityTimeout time.Duration `koanf:"per_authority_timeout"`
	DiscoveryTimeout    time.Duration `koanf:"discovery_timeout"`
	MaxConcurrent       int           `koanf:"max_concurrent"`

	Official OfficialConfig  `koanf:"official"`
	Database DatabaseConfig  `koanf:"database"`
	Cache    CacheConfig     `koanf:"cache"`
	Failures FailuresConfig  `koanf:"failures"`
	Pipeline []ProviderEntry `koanf:"pipeline"`
}

// OfficialConfig locates the upstream the OFFICIAL authority forwards to.
type OfficialConfig struct {
	SessionURL string `koanf:"session_url"`
}

// DatabaseConfig selects the identity store backend.
type DatabaseConfig struct {
	Type        string `koanf:"type"`
	Path        string `koanf:"path"`
	URL         string `koanf:"url"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

// CacheConfig selects the federated property cache.
type CacheConfig struct {
	Type     string `koanf:"type"`
	RedisURL string `koanf:"redis_url"`
}

// FailuresConfig bounds the failure recorder.
type FailuresConfig struct {
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// ProviderEntry is one configured authority. Enabled defaults to true.
type ProviderEntry struct {
	Type     string `koanf:"type"`
	Label    string `koanf:"label"`
	Endpoint string `koanf:"endpoint"`
	Enabled  *bool  `koanf:"enabled"`
}

// IsEnabled reports whether the entry takes part in the chain.
func (e ProviderEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		LogFormat:   "json",
		LogLevel:    "info",
		ListenAddr:  "127.0.0.1:25590",
		MetricsAddr: "127.0.0.1:9100",
		HTTPTimeout: 5 * time.Second,
		Official: OfficialConfig{
			SessionURL: "https://sessionserver.mojang.com",
		},
		Database: DatabaseConfig{
			Type:        string(store.BackendSQLite),
			Path:        xdg.DefaultDatabasePath(),
			AutoMigrate: true,
		},
		Cache: CacheConfig{Type: CacheMemory},
		Failures: FailuresConfig{
			TTL:        failure.DefaultTTL,
			MaxEntries: failure.DefaultMaxEntries,
		},
	}
}

func defaultPipeline() []ProviderEntry {
	return []ProviderEntry{{Type: string(pipeline.ProviderOfficial), Label: "OFFICIAL"}}
}

// Load reads path, applies changed flags from flags and validates the
// result. An empty path reads the default config file if it exists.
// Flag names map to keys by replacing '-' with '_' and keeping '.' as the
// section separator, so --database.type overrides database.type.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	readFile := true
	if path == "" {
		path = xdg.DefaultConfigFile()
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			readFile = false
		}
	}
	if readFile {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}
	if len(cfg.Pipeline) == 0 {
		cfg.Pipeline = defaultPipeline()
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv(DatabaseURLEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// flagKey maps changed flags to config keys. Unchanged flags are skipped so
// file values and defaults win over flag defaults.
func flagKey(flags *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		if !f.Changed || f.Name == "config" {
			return "", nil
		}
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", c.LogLevel, "unknown log level")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", c.LogFormat, "log_format must be 'json' or 'text'")
	}
	if c.ListenAddr == "" {
		return invalid("listen_addr", "", "listen_addr is required")
	}
	if c.HTTPTimeout < MinHTTPTimeout || c.HTTPTimeout > MaxHTTPTimeout {
		return invalid("http_timeout", c.HTTPTimeout.String(),
			"http_timeout must be between "+MinHTTPTimeout.String()+" and "+MaxHTTPTimeout.String())
	}
	if c.PerAuthorityTimeout < 0 || c.DiscoveryTimeout < 0 {
		return invalid("per_authority_timeout", c.PerAuthorityTimeout.String(), "timeouts cannot be negative")
	}
	if c.MaxConcurrent < 0 {
		return invalid("max_concurrent", c.MaxConcurrent, "max_concurrent cannot be negative")
	}
	if c.Failures.TTL <= 0 || c.Failures.MaxEntries <= 0 {
		return invalid("failures", c.Failures, "failures.ttl and failures.max_entries must be positive")
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validatePipeline()
}

func (c *Config) validateDatabase() error {
	switch store.Backend(c.Database.Type) {
	case store.BackendMemory:
		return nil
	case store.BackendSQLite:
		if c.Database.Path == "" {
			return invalid("database.path", "", "database.path is required for sqlite")
		}
		return nil
	case store.BackendPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "", "database.url or "+DatabaseURLEnv+" is required for postgres")
		}
		return nil
	}
	return invalid("database.type", c.Database.Type, "database.type must be sqlite, postgres or memory")
}

func (c *Config) validateCache() error {
	switch c.Cache.Type {
	case CacheMemory:
		return nil
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return invalid("cache.redis_url", "", "cache.redis_url is required for redis")
		}
		return nil
	}
	return invalid("cache.type", c.Cache.Type, "cache.type must be memory or redis")
}

func (c *Config) validatePipeline() error {
	seen := make(map[string]struct{}, len(c.Pipeline))
	enabled := 0
	for _, e := range c.Pipeline {
		switch {
		case e.Label == "":
			return invalid("pipeline.label", "", "every authority needs a label")
		case e.Label == pipeline.UnverifiedLabel:
			return invalid("pipeline.label", e.Label, "authority label is reserved")
		}
		if _, dup := seen[e.Label]; dup {
			return invalid("pipeline.label", e.Label, "duplicate authority label")
		}
		seen[e.Label] = struct{}{}

		typ, err := pipeline.ParseProviderType(e.Type)
		if err != nil {
			return invalid("pipeline.type", e.Type, "authority type must be OFFICIAL or FEDERATED")
		}
		switch typ {
		case pipeline.ProviderOfficial:
			if c.Official.SessionURL == "" && e.IsEnabled() {
				return invalid("official.session_url", "", "official.session_url is required for OFFICIAL")
			}
		case pipeline.ProviderFederated:
			if err := checkEndpoint(e); err != nil {
				return err
			}
		}
		if e.IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		return invalid("pipeline", len(c.Pipeline), "at least one authority must be enabled")
	}
	return nil
}

func checkEndpoint(e ProviderEntry) error {
	u, err := url.Parse(e.Endpoint)
	if err != nil || e.Endpoint == "" || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("pipeline.endpoint", e.Endpoint, "federated authority "+e.Label+" needs an http(s) endpoint")
	}
	return nil
}

func invalid(field string, value any, msg string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).With("value", value).Errorf("%s", msg)
}

// Providers converts the pipeline entries for pipeline.Build.
func (c *Config) Providers() []pipeline.ProviderConfig {
	out := make([]pipeline.ProviderConfig, 0, len(c.Pipeline))
	for i, e := range c.Pipeline {
		typ, err := pipeline.ParseProviderType(e.Type)
		if err != nil {
			// Unvalidated input; pipeline.Build reports it.
			typ = pipeline.ProviderType(e.Type)
		}
		out = append(out, pipeline.ProviderConfig{
			Type:     typ,
			Label:    e.Label,
			Endpoint: e.Endpoint,
			Enabled:  e.IsEnabled(),
			Order:    i,
		})
	}
	return out
}

// Store returns the identity backend selection.
func (c *Config) Store() store.Config {
	return store.Config{
		Type:        store.Backend(c.Database.Type),
		Path:        c.Database.Path,
		URL:         c.Database.URL,
		AutoMigrate: c.Database.AutoMigrate,
	}
}

// PipelineOptions returns the pipeline tuning options.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		AllowUnverified:     c.AllowUnverified,
		PerAuthorityTimeout: c.PerAuthorityTimeout,
		DiscoveryTimeout:    c.DiscoveryTimeout,
		MaxConcurrent:       c.MaxConcurrent,
	}
}
