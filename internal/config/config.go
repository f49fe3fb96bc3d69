// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package config

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level Ballast configuration.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Recovery RecoveryConfig `mapstructure:"recovery"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServiceConfig describes the local model service Ballast protects.
type ServiceConfig struct {
	// Name keys circuit-breaker state and log fields for the service.
	Name            string        `mapstructure:"name"`
	BaseURL         string        `mapstructure:"base_url"`
	DefaultModel    string        `mapstructure:"default_model"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`
}

// MonitorConfig controls the background health monitor.
type MonitorConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
	LatencyThreshold   time.Duration `mapstructure:"latency_threshold"`
	MemoryThreshold    float64       `mapstructure:"memory_threshold"`
	ErrorRateThreshold float64       `mapstructure:"error_rate_threshold"`
	ErrorWindow        time.Duration `mapstructure:"error_window"`
	// FailedAfter is the number of consecutive exhausted recovery
	// attempts after which the monitor reports the service as failed.
	FailedAfter int `mapstructure:"failed_after"`
}

// BreakerConfig controls circuit-breaker tripping.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// CacheConfig controls the fallback cache.
type CacheConfig struct {
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// FallbackConfig controls degraded-result production.
type FallbackConfig struct {
	// PlaybookPath optionally overrides the embedded degradation
	// playbook with a YAML file.
	PlaybookPath string `mapstructure:"playbook_path"`
}

// RecoveryConfig controls the recovery orchestrator.
type RecoveryConfig struct {
	WaitBudget   time.Duration `mapstructure:"wait_budget"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StepTimeout  time.Duration `mapstructure:"step_timeout"`
	WarmupModels []string      `mapstructure:"warmup_models"`
	ProcessName  string        `mapstructure:"process_name"`
	StartCommand []string      `mapstructure:"start_command"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix BALLAST_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("service.name", "model_service")
	v.SetDefault("service.base_url", "http://localhost:11434")
	v.SetDefault("service.default_model", "llama3.2")
	v.SetDefault("service.request_timeout", 10*time.Second)
	v.SetDefault("service.generate_timeout", 2*time.Minute)
	v.SetDefault("monitor.interval", 30*time.Second)
	v.SetDefault("monitor.probe_timeout", 5*time.Second)
	v.SetDefault("monitor.latency_threshold", 2*time.Second)
	v.SetDefault("monitor.memory_threshold", 90.0)
	v.SetDefault("monitor.error_rate_threshold", 0.5)
	v.SetDefault("monitor.error_window", 5*time.Minute)
	v.SetDefault("monitor.failed_after", 3)
	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.cooldown", 5*time.Minute)
	v.SetDefault("cache.default_ttl", time.Hour)
	v.SetDefault("cache.sweep_interval", 10*time.Minute)
	v.SetDefault("fallback.playbook_path", "")
	v.SetDefault("recovery.wait_budget", 60*time.Second)
	v.SetDefault("recovery.poll_interval", 2*time.Second)
	v.SetDefault("recovery.step_timeout", 15*time.Second)
	v.SetDefault("recovery.warmup_models", []string{"llama3.2", "llama3.2:1b"})
	v.SetDefault("recovery.process_name", "ollama")
	v.SetDefault("recovery.start_command", []string{"ollama", "serve"})
	v.SetDefault("server.listen", "127.0.0.1:18799")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Environment
	v.SetEnvPrefix("BALLAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ballasterr.Errorf(ballasterr.CategoryValidation, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ballasterr.Errorf(ballasterr.CategoryValidation, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ballasterr.Errorf(ballasterr.CategoryValidation, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateService()...)
	errs = append(errs, c.validateMonitor()...)
	errs = append(errs, c.validateBreaker()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateRecovery()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateService() []error {
	var errs []error

	if c.Service.Name == "" {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation, "config: service.name must not be empty"))
	}

	if c.Service.BaseURL == "" {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation, "config: service.base_url must not be empty"))
	} else if u, err := url.Parse(c.Service.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: service.base_url must be an absolute URL, got %q",
			c.Service.BaseURL,
		))
	}

	if c.Service.DefaultModel == "" {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation, "config: service.default_model must not be empty"))
	}

	if c.Service.RequestTimeout <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: service.request_timeout must be greater than 0, got %s",
			c.Service.RequestTimeout,
		))
	}

	if c.Service.GenerateTimeout <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: service.generate_timeout must be greater than 0, got %s",
			c.Service.GenerateTimeout,
		))
	}

	return errs
}

func (c *Config) validateMonitor() []error {
	var errs []error

	if c.Monitor.Interval <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: monitor.interval must be greater than 0, got %s",
			c.Monitor.Interval,
		))
	}

	if c.Monitor.ProbeTimeout <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: monitor.probe_timeout must be greater than 0, got %s",
			c.Monitor.ProbeTimeout,
		))
	}

	if c.Monitor.LatencyThreshold <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: monitor.latency_threshold must be greater than 0, got %s",
			c.Monitor.LatencyThreshold,
		))
	}

	if c.Monitor.MemoryThreshold <= 0 || c.Monitor.MemoryThreshold > 100 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: monitor.memory_threshold must be a percentage between 0 and 100, got %g",
			c.Monitor.MemoryThreshold,
		))
	}

	if c.Monitor.ErrorRateThreshold <= 0 || c.Monitor.ErrorRateThreshold > 1 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: monitor.error_rate_threshold must be between 0 and 1, got %g",
			c.Monitor.ErrorRateThreshold,
		))
	}

	if c.Monitor.ErrorWindow <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: monitor.error_window must be greater than 0, got %s",
			c.Monitor.ErrorWindow,
		))
	}

	if c.Monitor.FailedAfter <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: monitor.failed_after must be greater than 0, got %d",
			c.Monitor.FailedAfter,
		))
	}

	return errs
}

func (c *Config) validateBreaker() []error {
	var errs []error

	if c.Breaker.FailureThreshold <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: breaker.failure_threshold must be greater than 0, got %d",
			c.Breaker.FailureThreshold,
		))
	}

	if c.Breaker.Cooldown <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: breaker.cooldown must be greater than 0, got %s",
			c.Breaker.Cooldown,
		))
	}

	return errs
}

func (c *Config) validateCache() []error {
	var errs []error

	if c.Cache.DefaultTTL <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: cache.default_ttl must be greater than 0, got %s",
			c.Cache.DefaultTTL,
		))
	}

	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: cache.sweep_interval must be greater than 0, got %s",
			c.Cache.SweepInterval,
		))
	}

	return errs
}

func (c *Config) validateRecovery() []error {
	var errs []error

	if c.Recovery.WaitBudget <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: recovery.wait_budget must be greater than 0, got %s",
			c.Recovery.WaitBudget,
		))
	}

	if c.Recovery.PollInterval <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: recovery.poll_interval must be greater than 0, got %s",
			c.Recovery.PollInterval,
		))
	} else if c.Recovery.WaitBudget > 0 && c.Recovery.PollInterval >= c.Recovery.WaitBudget {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: recovery.poll_interval %s must be shorter than recovery.wait_budget %s",
			c.Recovery.PollInterval, c.Recovery.WaitBudget,
		))
	}

	if c.Recovery.StepTimeout <= 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: recovery.step_timeout must be greater than 0, got %s",
			c.Recovery.StepTimeout,
		))
	}

	if c.Recovery.ProcessName == "" {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation, "config: recovery.process_name must not be empty"))
	}

	if len(c.Recovery.StartCommand) == 0 {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation, "config: recovery.start_command must not be empty"))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation, "config: server.listen must not be empty"))
	} else {
		host, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else {
			_ = host // host can be empty (e.g., ":8080"), which is valid
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
					"config: server.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
					"config: server.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: logging.level must be one of [debug, info, warn, error], got %q",
			c.Logging.Level,
		))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, ballasterr.Errorf(ballasterr.CategoryValidation,
			"config: logging.format must be one of [text, json], got %q",
			c.Logging.Format,
		))
	}

	return errs
}
