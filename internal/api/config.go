// Package api provides the HTTP control surface of the audio engine. A UI
// or companion process polls the status routes and drives loading,
// transport and selection through the rest.
package api

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tphakala/automarker/internal/conf"
	"github.com/tphakala/automarker/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultBodyLimit       = "64K"
	DefaultMetricsPath     = "/metrics"

	// load requests per second and burst allowed per client
	DefaultLoadRate  = 2.0
	DefaultLoadBurst = 4

	// MaxWaveformBuckets bounds a single waveform request.
	MaxWaveformBuckets = 16384
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // e.g. "64K"

	// LoadRate is the sustained rate of POST /load per client IP, 0 disables
	// the limit. LoadBurst is the number of loads allowed at once.
	LoadRate  float64
	LoadBurst int

	MetricsEnabled bool
	MetricsPath    string
}

// DefaultConfig returns a Config listening on listen with default limits.
func DefaultConfig(listen string) *Config {
	return &Config{
		Listen:          listen,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		LoadRate:        DefaultLoadRate,
		LoadBurst:       DefaultLoadBurst,
		MetricsPath:     DefaultMetricsPath,
	}
}

// ConfigFromSettings builds a Config from application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig(settings.Server.Listen)
	cfg.MetricsEnabled = settings.Metrics.Enabled
	cfg.LoadRate = settings.Server.LoadRate
	cfg.LoadBurst = settings.Server.LoadBurst
	if settings.Metrics.Path != "" {
		cfg.MetricsPath = settings.Metrics.Path
	}
	return cfg
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.MetricsEnabled && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("metrics path %q must start with '/'", c.MetricsPath)
	}
	if c.LoadRate < 0 {
		return fmt.Errorf("load rate %v must not be negative", c.LoadRate)
	}
	if c.LoadRate > 0 && c.LoadBurst < 1 {
		return fmt.Errorf("load burst %d must be at least 1 when the load rate is limited", c.LoadBurst)
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return nil
}
