// Package config centralises runtime configuration for tang-go pools.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pimeys/tang-go/errs"
)

// PoolSettings controls sizing and lifecycle policy for one pool.
type PoolSettings struct {
	MaxSize     int
	MinIdle     int
	ConnTimeout time.Duration
	WaitTimeout time.Duration
	IdleTimeout time.Duration
	MaxLifetime time.Duration
	ReaperRate  time.Duration
	DialRate    float64 // connection creations per second; 0 disables throttling
	DialBurst   int
}

// SpawnerSettings sizes the worker group that runs connection creation.
type SpawnerSettings struct {
	Workers int
	Queue   int
}

// TelemetryConfig configures the OTLP metrics exporter.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// LoggingConfig selects the zap logger profile.
type LoggingConfig struct {
	Level       string
	Development bool
}

// AppConfig is the unified configuration tree loaded from defaults, YAML, and
// environment overrides, in that precedence order.
type AppConfig struct {
	Pool      PoolSettings
	Spawner   SpawnerSettings
	Telemetry TelemetryConfig
	Logging   LoggingConfig
}

// Default returns the baseline configuration.
func Default() AppConfig {
	return AppConfig{
		Pool: PoolSettings{
			MaxSize:     8,
			MinIdle:     2,
			ConnTimeout: 5 * time.Second,
			WaitTimeout: 30 * time.Second,
			IdleTimeout: 10 * time.Minute,
			MaxLifetime: 30 * time.Minute,
			ReaperRate:  15 * time.Second,
			DialRate:    0,
			DialBurst:   1,
		},
		Spawner: SpawnerSettings{
			Workers: 4,
			Queue:   16,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  "tang-pool",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Development: false,
		},
	}
}

type appConfigYAML struct {
	Pool      poolSettingsYAML    `yaml:"pool"`
	Spawner   spawnerSettingsYAML `yaml:"spawner"`
	Telemetry telemetryYAML       `yaml:"telemetry"`
	Logging   loggingYAML         `yaml:"logging"`
}

type poolSettingsYAML struct {
	MaxSize     int     `yaml:"max_size"`
	MinIdle     int     `yaml:"min_idle"`
	ConnTimeout string  `yaml:"conn_timeout"`
	WaitTimeout string  `yaml:"wait_timeout"`
	IdleTimeout string  `yaml:"idle_timeout"`
	MaxLifetime string  `yaml:"max_lifetime"`
	ReaperRate  string  `yaml:"reaper_rate"`
	DialRate    float64 `yaml:"dial_rate"`
	DialBurst   int     `yaml:"dial_burst"`
}

type spawnerSettingsYAML struct {
	Workers int `yaml:"workers"`
	Queue   int `yaml:"queue"`
}

type telemetryYAML struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

type loggingYAML struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load builds the configuration with precedence: defaults → YAML → env vars.
// A missing file at configPath is not an error; an empty path skips the YAML
// step entirely.
func Load(configPath string) (AppConfig, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadYAML(configPath); err != nil {
			return AppConfig{}, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) loadYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var doc appConfigYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if doc.Pool.MaxSize > 0 {
		c.Pool.MaxSize = doc.Pool.MaxSize
	}
	if doc.Pool.MinIdle > 0 {
		c.Pool.MinIdle = doc.Pool.MinIdle
	}
	if err := overrideDuration(&c.Pool.ConnTimeout, doc.Pool.ConnTimeout); err != nil {
		return fmt.Errorf("config %s: conn_timeout: %w", path, err)
	}
	if err := overrideDuration(&c.Pool.WaitTimeout, doc.Pool.WaitTimeout); err != nil {
		return fmt.Errorf("config %s: wait_timeout: %w", path, err)
	}
	if err := overrideDuration(&c.Pool.IdleTimeout, doc.Pool.IdleTimeout); err != nil {
		return fmt.Errorf("config %s: idle_timeout: %w", path, err)
	}
	if err := overrideDuration(&c.Pool.MaxLifetime, doc.Pool.MaxLifetime); err != nil {
		return fmt.Errorf("config %s: max_lifetime: %w", path, err)
	}
	if err := overrideDuration(&c.Pool.ReaperRate, doc.Pool.ReaperRate); err != nil {
		return fmt.Errorf("config %s: reaper_rate: %w", path, err)
	}
	if doc.Pool.DialRate > 0 {
		c.Pool.DialRate = doc.Pool.DialRate
	}
	if doc.Pool.DialBurst > 0 {
		c.Pool.DialBurst = doc.Pool.DialBurst
	}
	if doc.Spawner.Workers > 0 {
		c.Spawner.Workers = doc.Spawner.Workers
	}
	if doc.Spawner.Queue > 0 {
		c.Spawner.Queue = doc.Spawner.Queue
	}
	if v := strings.TrimSpace(doc.Telemetry.OTLPEndpoint); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(doc.Telemetry.ServiceName); v != "" {
		c.Telemetry.ServiceName = v
	}
	if v := strings.TrimSpace(doc.Logging.Level); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if doc.Logging.Development {
		c.Logging.Development = true
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("TANG_POOL_MAX_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pool.MaxSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TANG_POOL_MIN_IDLE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Pool.MinIdle = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TANG_POOL_CONN_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			c.Pool.ConnTimeout = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("TANG_POOL_WAIT_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			c.Pool.WaitTimeout = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("TANG_POOL_REAPER_RATE")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			c.Pool.ReaperRate = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("TANG_OTLP_ENDPOINT")); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("TANG_LOG_LEVEL")); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Validate rejects configurations the pool cannot run with.
func (c AppConfig) Validate() error {
	if c.Pool.MaxSize <= 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("pool max_size must be positive"))
	}
	if c.Pool.MinIdle < 0 || c.Pool.MinIdle > c.Pool.MaxSize {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("pool min_idle %d out of range [0, %d]", c.Pool.MinIdle, c.Pool.MaxSize)))
	}
	if c.Pool.ConnTimeout <= 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("pool conn_timeout must be positive"))
	}
	if c.Pool.ReaperRate <= 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("pool reaper_rate must be positive"))
	}
	if c.Spawner.Workers <= 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("spawner workers must be positive"))
	}
	return nil
}

func overrideDuration(dst *time.Duration, raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	dur, err := time.ParseDuration(trimmed)
	if err != nil {
		return err
	}
	*dst = dur
	return nil
}
