// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	API           APIConfig           `yaml:"api"`
	Auth          AuthConfig          `yaml:"auth"`
	Cache         CacheConfig         `yaml:"cache"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	UI            UIConfig            `yaml:"ui"`
	DevBackend    DevBackendConfig    `yaml:"dev_backend"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// APIConfig describes the REST backend.
type APIConfig struct {
	BaseURL        string               `yaml:"base_url"`
	TenantID       string               `yaml:"tenant_id"`
	TenantHeader   string               `yaml:"tenant_header"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig describes circuit breaker settings for the backend.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// AuthConfig describes where credentials live and how they are refreshed.
type AuthConfig struct {
	TokenFile   string `yaml:"token_file"`
	RefreshPath string `yaml:"refresh_path"`
	LoginPath   string `yaml:"login_path"`
	LogoutPath  string `yaml:"logout_path"`
	MePath      string `yaml:"me_path"`
}

// CacheConfig describes query cache settings.
type CacheConfig struct {
	StaleTime  time.Duration `yaml:"stale_time"`
	GCTime     time.Duration `yaml:"gc_time"`
	MaxEntries int           `yaml:"max_entries"`
}

// DefinitionsConfig describes where to find resource definition YAML files.
// The embedded defaults are always loaded first.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories"`
}

// UIConfig describes terminal presentation settings.
type UIConfig struct {
	PageSize int    `yaml:"page_size"`
	Output   string `yaml:"output"`
	Color    bool   `yaml:"color"`
}

// DevBackendConfig describes the in-memory development backend.
type DevBackendConfig struct {
	Addr            string        `yaml:"addr"`
	SigningKey      string        `yaml:"signing_key"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Seed            bool          `yaml:"seed"`
	RedisAddr       string        `yaml:"redis_addr"`
	ReplayTTL       time.Duration `yaml:"replay_ttl"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string        `yaml:"log_level"`
	LogEncoding string        `yaml:"log_encoding"`
	LogOutput   string        `yaml:"log_output"`
	Tracing     TracingConfig `yaml:"tracing"`
	Metrics     MetricsConfig `yaml:"metrics"`
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

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:      "http://localhost:5252/api",
			TenantID:     "default",
			TenantHeader: "X-Tenant-Id",
			Timeout:      30 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				SuccessThreshold: 1,
				Timeout:          30 * time.Second,
			},
		},
		Auth: AuthConfig{
			TokenFile:   defaultTokenFile(),
			RefreshPath: "/auth/refresh",
			LoginPath:   "/auth/login",
			LogoutPath:  "/auth/logout",
			MePath:      "/auth/me",
		},
		Cache: CacheConfig{
			StaleTime:  5 * time.Minute,
			GCTime:     10 * time.Minute,
			MaxEntries: 500,
		},
		UI: UIConfig{
			PageSize: 10,
			Output:   "table",
			Color:    true,
		},
		DevBackend: DevBackendConfig{
			Addr:            "127.0.0.1:5252",
			SigningKey:      "dev-signing-key",
			AccessTokenTTL:  15 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			Seed:            true,
			ReplayTTL:       24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "warn",
			LogEncoding: "console",
			LogOutput:   "stderr",
			Tracing: TracingConfig{
				Exporter:     "stdout",
				SamplingRate: 1.0,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// defaultTokenFile places credentials under the user config directory.
func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".console-tokens.json"
	}
	return filepath.Join(dir, "console", "tokens.json")
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields. An empty path uses the defaults alone.
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

var validOutputs = map[string]bool{"table": true, "json": true}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.API.BaseURL == "" {
		errs = append(errs, "api.base_url is required")
	} else if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		errs = append(errs, "api.base_url must be an http(s) URL")
	}
	if c.API.TenantID == "" {
		errs = append(errs, "api.tenant_id is required")
	}
	if c.API.TenantHeader == "" {
		errs = append(errs, "api.tenant_header is required")
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, "api.timeout must be positive")
	}
	if c.Auth.RefreshPath == "" {
		errs = append(errs, "auth.refresh_path is required")
	}
	if c.Cache.StaleTime < 0 {
		errs = append(errs, "cache.stale_time must not be negative")
	}
	if c.Cache.MaxEntries < 1 {
		errs = append(errs, "cache.max_entries must be at least 1")
	}
	if c.UI.PageSize < 1 {
		errs = append(errs, "ui.page_size must be at least 1")
	}
	if !validOutputs[c.UI.Output] {
		errs = append(errs, fmt.Sprintf("ui.output %q is not one of table, json", c.UI.Output))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads CONSOLE_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONSOLE_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("CONSOLE_API_TENANT_ID"); v != "" {
		cfg.API.TenantID = v
	}
	if v := os.Getenv("CONSOLE_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.Timeout = d
		}
	}
	if v := os.Getenv("CONSOLE_AUTH_TOKEN_FILE"); v != "" {
		cfg.Auth.TokenFile = v
	}
	if v := os.Getenv("CONSOLE_CACHE_STALE_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.StaleTime = d
		}
	}
	if v := os.Getenv("CONSOLE_UI_PAGE_SIZE"); v != "" {
		var size int
		if _, err := fmt.Sscanf(v, "%d", &size); err == nil {
			cfg.UI.PageSize = size
		}
	}
	if v := os.Getenv("CONSOLE_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("CONSOLE_DEV_BACKEND_ADDR"); v != "" {
		cfg.DevBackend.Addr = v
	}
	if v := os.Getenv("CONSOLE_DEV_BACKEND_REDIS_ADDR"); v != "" {
		cfg.DevBackend.RedisAddr = v
	}
}
