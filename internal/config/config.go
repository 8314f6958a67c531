// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/rovshanmuradov/solana-rpcmux/internal/opclass"
)

// EndpointConfig describes one upstream RPC provider.
type EndpointConfig struct {
	Name      string   `mapstructure:"name"`
	URL       string   `mapstructure:"url"`
	Classes   []string `mapstructure:"classes"`
	Priority  int      `mapstructure:"priority"`
	Weight    float64  `mapstructure:"weight"`
	RateLimit float64  `mapstructure:"rate_limit"`
}

// ThrottleConfig bounds the global upstream request rate.
type ThrottleConfig struct {
	MaxPerSecond int `mapstructure:"max_per_second"`
	MaxPerMinute int `mapstructure:"max_per_minute"`
	TickMs       int `mapstructure:"tick_ms"`
	JitterMs     int `mapstructure:"jitter_ms"`
	MaxWaitMs    int `mapstructure:"max_wait_ms"`
}

// CacheConfig controls the two-tier response cache.
type CacheConfig struct {
	Dir            string         `mapstructure:"dir"`
	MemoryEntries  int            `mapstructure:"memory_entries"`
	RetentionHours int            `mapstructure:"retention_hours"`
	TTLOverrides   map[string]int `mapstructure:"ttl_overrides"` // class -> seconds
}

// HealthConfig controls periodic endpoint probing.
type HealthConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	TimeoutSeconds  int `mapstructure:"timeout_seconds"`
}

// CooldownConfig controls when failing endpoints are benched.
type CooldownConfig struct {
	Threshold   int `mapstructure:"threshold"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// DispatchConfig tunes per-call execution and failover.
type DispatchConfig struct {
	ExecTimeoutMs int `mapstructure:"exec_timeout_ms"`
	RetryDelayMs  int `mapstructure:"retry_delay_ms"`
	Retries       int `mapstructure:"retries"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// LoggingConfig controls log level and file output.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type Config struct {
	Endpoints []EndpointConfig `mapstructure:"endpoints"`
	Throttle  ThrottleConfig   `mapstructure:"throttle"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Health    HealthConfig     `mapstructure:"health"`
	Cooldown  CooldownConfig   `mapstructure:"cooldown"`
	Dispatch  DispatchConfig   `mapstructure:"dispatch"`
	Server    ServerConfig     `mapstructure:"server"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

const (
	DefaultMaxPerSecond   = 50
	DefaultMaxPerMinute   = 2000
	DefaultTickMs         = 50
	DefaultMaxWaitMs      = 10000
	DefaultMemoryEntries  = 4096
	DefaultRetentionHours = 24
	DefaultHealthInterval = 30
	DefaultHealthTimeout  = 5
	DefaultThreshold      = 3
	DefaultBaseDelayMs    = 2000
	DefaultMaxDelayMs     = 60000
	DefaultExecTimeoutMs  = 15000
	DefaultRetryDelayMs   = 200
	DefaultRetries        = 2
	DefaultListen         = "127.0.0.1:8091"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"throttle.max_per_second":  DefaultMaxPerSecond,
		"throttle.max_per_minute":  DefaultMaxPerMinute,
		"throttle.tick_ms":         DefaultTickMs,
		"throttle.max_wait_ms":     DefaultMaxWaitMs,
		"cache.dir":                "cache",
		"cache.memory_entries":     DefaultMemoryEntries,
		"cache.retention_hours":    DefaultRetentionHours,
		"health.interval_seconds":  DefaultHealthInterval,
		"health.timeout_seconds":   DefaultHealthTimeout,
		"cooldown.threshold":       DefaultThreshold,
		"cooldown.base_delay_ms":   DefaultBaseDelayMs,
		"cooldown.max_delay_ms":    DefaultMaxDelayMs,
		"dispatch.exec_timeout_ms": DefaultExecTimeoutMs,
		"dispatch.retry_delay_ms":  DefaultRetryDelayMs,
		"dispatch.retries":         DefaultRetries,
		"server.enabled":           true,
		"server.listen":            DefaultListen,
		"logging.level":            "info",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if len(cfg.Endpoints) == 0 {
		return errors.New("endpoints list is empty")
	}

	seen := make(map[string]bool, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoint %d has no name", i)
		}
		if seen[ep.Name] {
			return fmt.Errorf("duplicate endpoint name %q", ep.Name)
		}
		seen[ep.Name] = true

		if err := validateURLWithCache(ep.URL, "http"); err != nil {
			return fmt.Errorf("endpoint %q: invalid RPC URL", ep.Name)
		}
		if len(ep.Classes) == 0 {
			return fmt.Errorf("endpoint %q has no operation classes", ep.Name)
		}
		for _, class := range ep.Classes {
			if _, err := opclass.Parse(class); err != nil {
				return fmt.Errorf("endpoint %q: %w", ep.Name, err)
			}
		}
		if ep.Weight < 0 {
			return fmt.Errorf("endpoint %q: negative weight", ep.Name)
		}
		if ep.RateLimit < 0 {
			return fmt.Errorf("endpoint %q: negative rate_limit", ep.Name)
		}
	}

	if err := validateNumericParams(cfg); err != nil {
		return err
	}

	for class, seconds := range cfg.Cache.TTLOverrides {
		c, err := opclass.Parse(class)
		if err != nil {
			return fmt.Errorf("ttl_overrides: %w", err)
		}
		if seconds < 0 {
			return fmt.Errorf("ttl_overrides: negative TTL for %q", class)
		}
		if c == opclass.SubmitTransaction && seconds > 0 {
			return errors.New("ttl_overrides: submit-transaction results cannot be cached")
		}
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", cfg.Logging.Level)
	}

	if cfg.Server.Enabled && cfg.Server.Listen == "" {
		return errors.New("server enabled but listen address is empty")
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.Throttle.MaxPerSecond <= 0 {
		return errors.New("invalid throttle.max_per_second")
	}
	if cfg.Throttle.MaxPerMinute <= 0 {
		return errors.New("invalid throttle.max_per_minute")
	}
	if cfg.Throttle.TickMs <= 0 {
		return errors.New("invalid throttle.tick_ms")
	}
	if cfg.Throttle.JitterMs < 0 {
		return errors.New("invalid throttle.jitter_ms")
	}
	if cfg.Throttle.MaxWaitMs < 0 {
		return errors.New("invalid throttle.max_wait_ms")
	}
	if cfg.Cache.Dir == "" {
		return errors.New("cache.dir is empty")
	}
	if cfg.Cache.RetentionHours <= 0 {
		return errors.New("invalid cache.retention_hours")
	}
	if cfg.Health.IntervalSeconds <= 0 {
		return errors.New("invalid health.interval_seconds")
	}
	if cfg.Health.TimeoutSeconds <= 0 || cfg.Health.TimeoutSeconds >= cfg.Health.IntervalSeconds {
		return errors.New("health.timeout_seconds must be positive and below the interval")
	}
	if cfg.Cooldown.Threshold <= 0 {
		return errors.New("invalid cooldown.threshold")
	}
	if cfg.Cooldown.BaseDelayMs <= 0 {
		return errors.New("invalid cooldown.base_delay_ms")
	}
	if cfg.Cooldown.MaxDelayMs < cfg.Cooldown.BaseDelayMs {
		return errors.New("cooldown.max_delay_ms below base delay")
	}
	if cfg.Dispatch.ExecTimeoutMs <= 0 {
		return errors.New("invalid dispatch.exec_timeout_ms")
	}
	if cfg.Dispatch.RetryDelayMs < 0 {
		return errors.New("invalid dispatch.retry_delay_ms")
	}
	if cfg.Dispatch.Retries < 0 {
		return errors.New("invalid dispatch.retries")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("RPCMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A comma-separated URL list replaces the whole endpoint set, each URL
	// serving every class at equal priority. Meant for quick deployments.
	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		classes := make([]string, 0, len(opclass.All()))
		for _, c := range opclass.All() {
			classes = append(classes, string(c))
		}
		var endpoints []EndpointConfig
		for i, raw := range strings.Split(envRPCList, ",") {
			clean := strings.TrimSpace(raw)
			if clean == "" {
				continue
			}
			endpoints = append(endpoints, EndpointConfig{
				Name:     fmt.Sprintf("rpc-%d", i+1),
				URL:      clean,
				Classes:  classes,
				Priority: 1,
				Weight:   1,
			})
		}
		if len(endpoints) > 0 {
			cfg.Endpoints = endpoints
		}
	}

	if envLevel := v.GetString("LOG_LEVEL"); envLevel != "" {
		cfg.Logging.Level = envLevel
	}
	if envDir := v.GetString("CACHE_DIR"); envDir != "" {
		cfg.Cache.Dir = envDir
	}
	return nil
}
