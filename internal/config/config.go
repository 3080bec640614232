package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/psantana5/timinghooks/pkg/logging"
	"github.com/psantana5/timinghooks/pkg/store"
	"github.com/psantana5/timinghooks/pkg/tls"
	"github.com/psantana5/timinghooks/pkg/tracing"
)

// EnvPrefix prefixes every environment variable, e.g. TIMINGHOOKS_SERVER_ADDR
const EnvPrefix = "TIMINGHOOKS"

// Config holds all timinghooks configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	// LogFile makes serve also write to /var/log/timinghooks/collector.log
	LogFile bool `mapstructure:"log_file" yaml:"log_file"`

	// CollectorURL is where push and snapshots commands send requests.
	CollectorURL string `mapstructure:"collector_url" yaml:"collector_url"`
	// APIKey is sent by clients and, unless server.api_key_hash is set,
	// required by the server.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	TLS     TLSConfig     `mapstructure:"tls" yaml:"tls"`
}

// ServerConfig configures the collector started by `serve`
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	APIKeyHash      string        `mapstructure:"api_key_hash" yaml:"api_key_hash"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst       int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	// TrustProxy rate limits by X-Forwarded-For instead of the peer address
	TrustProxy      bool          `mapstructure:"trust_proxy" yaml:"trust_proxy"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StoreConfig selects the snapshot backend
type StoreConfig struct {
	Type         string `mapstructure:"type" yaml:"type"`
	DSN          string `mapstructure:"dsn" yaml:"dsn"`
	Path         string `mapstructure:"path" yaml:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`

	// Retention deletes snapshots older than this, 0 keeps them forever
	Retention      time.Duration `mapstructure:"retention" yaml:"retention"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	VacuumInterval time.Duration `mapstructure:"vacuum_interval" yaml:"vacuum_interval"`
}

// TracingConfig configures OTLP export of interval and request spans
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// TLSConfig names certificate files for the server or the client
type TLSConfig struct {
	Cert string `mapstructure:"cert" yaml:"cert"`
	Key  string `mapstructure:"key" yaml:"key"`
	CA   string `mapstructure:"ca" yaml:"ca"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		CollectorURL: "http://localhost:9464",
		Server: ServerConfig{
			Addr:            ":9464",
			RateLimit:       50,
			RateBurst:       100,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Type:           "memory",
			MaxOpenConns:   25,
			MaxIdleConns:   5,
			SweepInterval:  time.Hour,
			VacuumInterval: 24 * time.Hour,
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4318",
			Environment: "development",
		},
	}
}

// SetDefaults registers every key with its default so that environment
// variables are picked up for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("collector_url", d.CollectorURL)
	v.SetDefault("api_key", d.APIKey)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.api_key_hash", d.Server.APIKeyHash)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)
	v.SetDefault("server.trust_proxy", d.Server.TrustProxy)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("store.type", d.Store.Type)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.max_open_conns", d.Store.MaxOpenConns)
	v.SetDefault("store.max_idle_conns", d.Store.MaxIdleConns)
	v.SetDefault("store.retention", d.Store.Retention)
	v.SetDefault("store.sweep_interval", d.Store.SweepInterval)
	v.SetDefault("store.vacuum_interval", d.Store.VacuumInterval)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.environment", d.Tracing.Environment)

	v.SetDefault("tls.cert", "")
	v.SetDefault("tls.key", "")
	v.SetDefault("tls.ca", "")
}

// BindEnv enables TIMINGHOOKS_* environment variables on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// DATABASE_DSN is what the store tests and most deployments already set
	v.BindEnv("store.dsn", EnvPrefix+"_STORE_DSN", "DATABASE_DSN")
}

// Load decodes and validates the configuration held by v. Callers read the
// config file into v first; Load itself never touches the filesystem.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	BindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later and far from
// their source.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (want text or json)", c.LogFormat)
	}
	switch c.Store.Type {
	case "memory", "sqlite", "postgres", "postgresql", "badger":
	default:
		return fmt.Errorf("invalid store.type %q", c.Store.Type)
	}
	if (c.Store.Type == "postgres" || c.Store.Type == "postgresql") && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for the postgres store")
	}
	if c.Store.Retention < 0 {
		return fmt.Errorf("store.retention must not be negative")
	}
	if c.Store.Retention > 0 && c.Store.SweepInterval <= 0 {
		return fmt.Errorf("store.sweep_interval must be positive when retention is set")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return fmt.Errorf("tls.cert and tls.key must be set together")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	return nil
}

// Logger builds the logger described by the log settings
func (c *Config) Logger() *logging.Logger {
	return logging.NewLogger(logging.ParseLevel(c.LogLevel), strings.EqualFold(c.LogFormat, "json"))
}

// FileLogger builds the logger for a long-running component, writing to a
// log file as well when log_file is set. Callers close it on exit.
func (c *Config) FileLogger(component string) (*logging.Logger, error) {
	if !c.LogFile {
		return c.Logger(), nil
	}
	return logging.NewFileLogger(component, logging.ParseLevel(c.LogLevel), strings.EqualFold(c.LogFormat, "json"))
}

// StoreConfig converts the store section for store.NewStore
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Type:         c.Store.Type,
		DSN:          c.Store.DSN,
		Path:         c.Store.Path,
		MaxOpenConns: c.Store.MaxOpenConns,
		MaxIdleConns: c.Store.MaxIdleConns,
	}
}

// RetentionConfig converts the retention settings for store.NewRetention
func (c *Config) RetentionConfig() store.RetentionConfig {
	return store.RetentionConfig{
		MaxAge:         c.Store.Retention,
		Interval:       c.Store.SweepInterval,
		VacuumInterval: c.Store.VacuumInterval,
	}
}

// TracingConfig converts the tracing section for tracing.InitTracer
func (c *Config) TracingConfig(version string) tracing.Config {
	return tracing.Config{
		ServiceName:    "timinghooks",
		ServiceVersion: version,
		Environment:    c.Tracing.Environment,
		OTLPEndpoint:   c.Tracing.Endpoint,
		Enabled:        c.Tracing.Enabled,
	}
}

// TLSFiles converts the tls section
func (c *Config) TLSFiles() tls.Files {
	return tls.Files{CertFile: c.TLS.Cert, KeyFile: c.TLS.Key, CAFile: c.TLS.CA}
}

// Redacted returns a copy safe to print, with secrets masked
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.APIKey != "" {
		cp.APIKey = "********"
	}
	if cp.Server.APIKeyHash != "" {
		cp.Server.APIKeyHash = "********"
	}
	if cp.Store.DSN != "" {
		cp.Store.DSN = "********"
	}
	return &cp
}
