// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Console       ConsoleConfig       `yaml:"console"`
	Store         StoreConfig         `yaml:"store"`
	Capability    CapabilityConfig    `yaml:"capability"`
	Dedupe        DedupeConfig        `yaml:"dedupe"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// IdentityConfig describes how interaction requests are authenticated.
// Tokens are verified against a JWKS endpoint, or against a shared HMAC
// secret read from HMACSecretEnv when no JWKS URL is configured.
type IdentityConfig struct {
	Issuer        string            `yaml:"issuer"`
	Audience      string            `yaml:"audience"`
	JWKSURL       string            `yaml:"jwks_url"`
	JWKSCacheTTL  time.Duration     `yaml:"jwks_cache_ttl"`
	HMACSecretEnv string            `yaml:"hmac_secret_env"`
	Algorithms    []string          `yaml:"algorithms"`
	ClaimPaths    map[string]string `yaml:"claim_paths"`
}

// HMACSecret returns the shared secret, or nil when none is configured.
func (c IdentityConfig) HMACSecret() []byte {
	if c.HMACSecretEnv == "" {
		return nil
	}
	if v := os.Getenv(c.HMACSecretEnv); v != "" {
		return []byte(v)
	}
	return nil
}

// ConsoleConfig describes the admin dashboard.
type ConsoleConfig struct {
	Dashboard     string `yaml:"dashboard"`
	PageSize      int    `yaml:"page_size"`
	ProposalsRule string `yaml:"proposals_rule"`
}

// StoreConfig describes persistence settings.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	DSNEnv   string `yaml:"dsn_env"`
	MaxConns int32  `yaml:"max_conns"`
}

// ResolveDSN returns the DSN from DSNEnv when set, otherwise DSN.
func (c StoreConfig) ResolveDSN() string {
	if c.DSNEnv != "" {
		if v := os.Getenv(c.DSNEnv); v != "" {
			return v
		}
	}
	return c.DSN
}

// CapabilityConfig describes authorization settings.
type CapabilityConfig struct {
	Evaluator        string      `yaml:"evaluator"`
	StaticPolicyFile string      `yaml:"static_policy_file"`
	Cache            CacheConfig `yaml:"cache"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// DedupeConfig describes redelivery protection.
type DedupeConfig struct {
	Enabled bool          `yaml:"enabled"`
	Driver  string        `yaml:"driver"`
	AddrEnv string        `yaml:"addr_env"`
	DB      int           `yaml:"db"`
	TTL     time.Duration `yaml:"ttl"`
}

// Addr returns the Redis address from AddrEnv.
func (c DedupeConfig) Addr() string {
	if c.AddrEnv == "" {
		return ""
	}
	return os.Getenv(c.AddrEnv)
}

// RateLimitConfig describes per-subject rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level"`
	// LogFile redirects logs from stdout to a file.
	LogFile string        `yaml:"log_file"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MaxPageSize bounds console.page_size. A select menu holds at most 25
// options and every listed entry may become one.
const MaxPageSize = 25

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			HandlerTimeout:  3 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    64 << 10,
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
			ClaimPaths: map[string]string{
				"subject_id":   "sub",
				"tenant_id":    "guild_id",
				"display_name": "name",
				"roles":        "roles",
			},
		},
		Console: ConsoleConfig{
			Dashboard: "admin",
			PageSize:  5,
		},
		Store: StoreConfig{
			Driver:   "memory",
			MaxConns: 10,
		},
		Capability: CapabilityConfig{
			Evaluator:        "static",
			StaticPolicyFile: "policies.yaml",
			Cache: CacheConfig{
				TTL: 5 * time.Minute,
			},
		},
		Dedupe: DedupeConfig{
			Enabled: true,
			Driver:  "memory",
			TTL:     15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates the result. An empty path loads Defaults with overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Console.Dashboard == "" || strings.ContainsAny(c.Console.Dashboard, ":%") {
		errs = append(errs, "console.dashboard must be non-empty and free of ':' and '%'")
	}
	if c.Console.PageSize < 1 || c.Console.PageSize > MaxPageSize {
		errs = append(errs, fmt.Sprintf("console.page_size must be between 1 and %d", MaxPageSize))
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.ResolveDSN() == "" {
			errs = append(errs, "store.dsn or store.dsn_env is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, postgres, sqlite", c.Store.Driver))
	}
	if c.Capability.Evaluator != "static" {
		errs = append(errs, fmt.Sprintf("capability.evaluator %q is not supported", c.Capability.Evaluator))
	} else if c.Capability.StaticPolicyFile == "" {
		errs = append(errs, "capability.static_policy_file is required")
	}
	if c.Dedupe.Enabled {
		switch c.Dedupe.Driver {
		case "memory":
		case "redis":
			if c.Dedupe.AddrEnv == "" {
				errs = append(errs, "dedupe.addr_env is required for redis")
			}
		default:
			errs = append(errs, fmt.Sprintf("dedupe.driver %q is not one of memory, redis", c.Dedupe.Driver))
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1) {
		errs = append(errs, "rate_limit.requests_per_second and rate_limit.burst must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateServer additionally checks what the HTTP server needs to
// authenticate interactions.
func (c *Config) ValidateServer() error {
	var errs []string
	if err := c.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Identity.Issuer == "" {
		errs = append(errs, "identity.issuer is required")
	}
	if c.Identity.Audience == "" {
		errs = append(errs, "identity.audience is required")
	}
	if c.Identity.JWKSURL == "" && c.Identity.HMACSecret() == nil {
		errs = append(errs, "identity.jwks_url or a secret in identity.hmac_secret_env is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads GOVCONSOLE_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOVCONSOLE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GOVCONSOLE_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("GOVCONSOLE_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("GOVCONSOLE_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("GOVCONSOLE_CONSOLE_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Console.PageSize = n
		}
	}
	if v := os.Getenv("GOVCONSOLE_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("GOVCONSOLE_DEDUPE_DRIVER"); v != "" {
		cfg.Dedupe.Driver = v
	}
	if v := os.Getenv("GOVCONSOLE_CAPABILITY_POLICY_FILE"); v != "" {
		cfg.Capability.StaticPolicyFile = v
	}
	if v := os.Getenv("GOVCONSOLE_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
