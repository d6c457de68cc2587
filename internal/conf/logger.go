// Package conf provides configuration management for automarker.
package conf

import "github.com/tphakala/automarker/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched from the global logger on every call because the central
// logger is installed only after the settings have been loaded.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
