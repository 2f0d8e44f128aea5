// SPDX-License-Identifier: MIT

// Package config resolves adapter configuration from environment variables and
// an optional YAML file. Configuration is resolved once at startup into a
// Config value; dynamic changes go through the Holder's explicit Reload.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names. The OMNILINK_* forms are the legacy fallbacks.
const (
	EnvEnabled         = "OMNIPORT_ENABLED"
	EnvEnabledFallback = "OMNILINK_ENABLED"
	EnvBaseURL         = "OMNIPORT_BASE_URL"
	EnvBaseURLFallback = "OMNILINK_BASE_URL"

	EnvBreakerThreshold = "OMNIPORT_BREAKER_THRESHOLD"
	EnvBreakerCooldown  = "OMNIPORT_BREAKER_COOLDOWN_MS"
	EnvDedupeTTL        = "OMNIPORT_DEDUPE_TTL_MS"
	EnvRequestTimeout   = "OMNIPORT_TIMEOUT_MS"
	EnvMaxAttempts      = "OMNIPORT_MAX_ATTEMPTS"
	EnvRateLimit        = "OMNIPORT_RATE_LIMIT"
	EnvRateBurst        = "OMNIPORT_RATE_BURST"
	EnvListenAddr       = "OMNIPORT_LISTEN"
)

// Defaults for the resilience tunables. These are observed operational
// defaults, not correctness requirements; any finite, consistent values work.
const (
	DefaultBreakerThreshold = 3
	DefaultBreakerCooldown  = 30 * time.Second
	DefaultDedupeTTL        = 60 * time.Second
	DefaultRequestTimeout   = 10 * time.Second
	DefaultMaxAttempts      = 3
	DefaultRateLimit        = 0.0 // outbound requests per second, 0 = unlimited
	DefaultRateBurst        = 1
	DefaultListenAddr       = ":8088"
)

// Config holds the resolved adapter configuration.
type Config struct {
	// Enabled is the kill switch; false short-circuits every request.
	Enabled bool
	// BaseURL is the remote service base target.
	BaseURL string

	BreakerThreshold int
	BreakerCooldown  time.Duration
	DedupeTTL        time.Duration
	RequestTimeout   time.Duration
	MaxAttempts      int

	// RateLimit caps outbound requests per second; 0 disables the cap.
	RateLimit float64
	// RateBurst is the outbound burst size when RateLimit is set.
	RateBurst int

	// ListenAddr is the daemon's HTTP listen address.
	ListenAddr string
}

// FromEnv resolves configuration from environment variables only.
func FromEnv() Config {
	return Config{
		Enabled:          ParseBoolFallback(EnvEnabled, EnvEnabledFallback, false),
		BaseURL:          ParseStringFallback(EnvBaseURL, EnvBaseURLFallback, ""),
		BreakerThreshold: ParseInt(EnvBreakerThreshold, DefaultBreakerThreshold),
		BreakerCooldown:  ParseDurationMS(EnvBreakerCooldown, DefaultBreakerCooldown),
		DedupeTTL:        ParseDurationMS(EnvDedupeTTL, DefaultDedupeTTL),
		RequestTimeout:   ParseDurationMS(EnvRequestTimeout, DefaultRequestTimeout),
		MaxAttempts:      ParseInt(EnvMaxAttempts, DefaultMaxAttempts),
		RateLimit:        ParseFloat(EnvRateLimit, DefaultRateLimit),
		RateBurst:        ParseInt(EnvRateBurst, DefaultRateBurst),
		ListenAddr:       ParseString(EnvListenAddr, DefaultListenAddr),
	}
}

// Load resolves configuration from an optional YAML file with environment
// variables taking precedence. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Config{
		BreakerThreshold: DefaultBreakerThreshold,
		BreakerCooldown:  DefaultBreakerCooldown,
		DedupeTTL:        DefaultDedupeTTL,
		RequestTimeout:   DefaultRequestTimeout,
		MaxAttempts:      DefaultMaxAttempts,
		RateLimit:        DefaultRateLimit,
		RateBurst:        DefaultRateBurst,
		ListenAddr:       DefaultListenAddr,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		file.apply(&cfg)
	}

	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig mirrors Config with pointer fields so absent keys do not
// clobber defaults, and durations expressed as milliseconds.
type fileConfig struct {
	Enabled           *bool    `yaml:"enabled"`
	BaseURL           *string  `yaml:"base_url"`
	BreakerThreshold  *int     `yaml:"breaker_threshold"`
	BreakerCooldownMS *int     `yaml:"breaker_cooldown_ms"`
	DedupeTTLMS       *int     `yaml:"dedupe_ttl_ms"`
	RequestTimeoutMS  *int     `yaml:"request_timeout_ms"`
	MaxAttempts       *int     `yaml:"max_attempts"`
	RateLimit         *float64 `yaml:"rate_limit"`
	RateBurst         *int     `yaml:"rate_burst"`
	ListenAddr        *string  `yaml:"listen"`
}

func (f *fileConfig) apply(cfg *Config) {
	if f.Enabled != nil {
		cfg.Enabled = *f.Enabled
	}
	if f.BaseURL != nil {
		cfg.BaseURL = *f.BaseURL
	}
	if f.BreakerThreshold != nil {
		cfg.BreakerThreshold = *f.BreakerThreshold
	}
	if f.BreakerCooldownMS != nil {
		cfg.BreakerCooldown = time.Duration(*f.BreakerCooldownMS) * time.Millisecond
	}
	if f.DedupeTTLMS != nil {
		cfg.DedupeTTL = time.Duration(*f.DedupeTTLMS) * time.Millisecond
	}
	if f.RequestTimeoutMS != nil {
		cfg.RequestTimeout = time.Duration(*f.RequestTimeoutMS) * time.Millisecond
	}
	if f.MaxAttempts != nil {
		cfg.MaxAttempts = *f.MaxAttempts
	}
	if f.RateLimit != nil {
		cfg.RateLimit = *f.RateLimit
	}
	if f.RateBurst != nil {
		cfg.RateBurst = *f.RateBurst
	}
	if f.ListenAddr != nil {
		cfg.ListenAddr = *f.ListenAddr
	}
}

func mergeEnv(cfg *Config) {
	cfg.Enabled = ParseBoolFallback(EnvEnabled, EnvEnabledFallback, cfg.Enabled)
	cfg.BaseURL = ParseStringFallback(EnvBaseURL, EnvBaseURLFallback, cfg.BaseURL)
	cfg.BreakerThreshold = ParseInt(EnvBreakerThreshold, cfg.BreakerThreshold)
	cfg.BreakerCooldown = ParseDurationMS(EnvBreakerCooldown, cfg.BreakerCooldown)
	cfg.DedupeTTL = ParseDurationMS(EnvDedupeTTL, cfg.DedupeTTL)
	cfg.RequestTimeout = ParseDurationMS(EnvRequestTimeout, cfg.RequestTimeout)
	cfg.MaxAttempts = ParseInt(EnvMaxAttempts, cfg.MaxAttempts)
	cfg.RateLimit = ParseFloat(EnvRateLimit, cfg.RateLimit)
	cfg.RateBurst = ParseInt(EnvRateBurst, cfg.RateBurst)
	cfg.ListenAddr = ParseString(EnvListenAddr, cfg.ListenAddr)
}

// Validate checks a resolved configuration for internal consistency.
// A disabled adapter is always valid; an enabled one needs a usable base URL.
func Validate(cfg Config) error {
	if cfg.Enabled {
		if cfg.BaseURL == "" {
			return fmt.Errorf("%s is required when the adapter is enabled", EnvBaseURL)
		}
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base URL %q", cfg.BaseURL)
		}
	}
	if cfg.BreakerThreshold <= 0 {
		return fmt.Errorf("breaker threshold must be positive, got %d", cfg.BreakerThreshold)
	}
	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.BreakerCooldown <= 0 || cfg.DedupeTTL <= 0 || cfg.RequestTimeout <= 0 {
		return fmt.Errorf("durations must be positive")
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %g", cfg.RateLimit)
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when a rate limit is set, got %d", cfg.RateBurst)
	}
	return nil
}
