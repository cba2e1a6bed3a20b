package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultAddr         = "0.0.0.0:8000"
	DefaultModel        = "models/gemma.gguf"
	DefaultWorkers      = 2
	DefaultCtxSize      = 2048
	DefaultMaxTokens    = 1024
	DefaultIdleMS       = 2000
	DefaultFirstOutput  = 30
	DefaultMaxBodyBytes = 1 << 20
)

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		Addr:                      DefaultAddr,
		Model:                     DefaultModel,
		Workers:                   DefaultWorkers,
		CtxSize:                   DefaultCtxSize,
		GPULayers:                 -1,
		MaxTokens:                 DefaultMaxTokens,
		IdleTimeoutMS:             DefaultIdleMS,
		FirstOutputTimeoutSeconds: DefaultFirstOutput,
		LogLevel:                  "info",
		LogFormat:                 "console",
		MaxBodyBytes:              DefaultMaxBodyBytes,
	}
}

// ApplyDefaults fills zero fields from Default. GPULayers, timeouts that may
// legitimately be zero, and optional paths are left alone.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.CtxSize <= 0 {
		c.CtxSize = d.CtxSize
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.IdleTimeoutMS <= 0 {
		c.IdleTimeoutMS = d.IdleTimeoutMS
	}
	if c.FirstOutputTimeoutSeconds <= 0 {
		c.FirstOutputTimeoutSeconds = d.FirstOutputTimeoutSeconds
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.CtxSize < 0 {
		errs = append(errs, fmt.Errorf("ctx_size must be >= 0, got %d", c.CtxSize))
	}
	if c.RateLimitQPS < 0 {
		errs = append(errs, fmt.Errorf("rate_limit_qps must be >= 0, got %g", c.RateLimitQPS))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be console or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// EffectiveGPULayers resolves GPULayers, deriving it from the VRAM budget when negative.
func (c Config) EffectiveGPULayers() int {
	if c.GPULayers >= 0 {
		return c.GPULayers
	}
	return GPULayersForVRAM(c.VRAMBudgetMB)
}

// GPULayersForVRAM maps a VRAM budget in MB to a layer offload count.
func GPULayersForVRAM(mb int) int {
	switch {
	case mb < 8000:
		return 0
	case mb < 12000:
		return 20
	case mb < 20000:
		return 35
	default:
		return 50
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// ReadyTimeout is zero when unset, which lets the worker pick a default.
func (c Config) ReadyTimeout() time.Duration { return seconds(c.ReadyTimeoutSeconds) }

func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMS) * time.Millisecond
}

func (c Config) FirstOutputTimeout() time.Duration { return seconds(c.FirstOutputTimeoutSeconds) }

func (c Config) AcquireTimeout() time.Duration { return seconds(c.AcquireTimeoutSeconds) }
