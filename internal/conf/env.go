// env.go - Environment variable configuration and validation for automarker
package conf

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "AUTOMARKER_DEBUG", validateEnvBool},

		// Decode format
		{"audio.samplerate", "AUTOMARKER_AUDIO_SAMPLERATE", validateEnvSampleRate},
		{"audio.channels", "AUTOMARKER_AUDIO_CHANNELS", validateEnvChannels},

		// Analysis
		{"analysis.mode", "AUTOMARKER_ANALYSIS_MODE", validateEnvAnalysisMode},
		{"analysis.threshold", "AUTOMARKER_ANALYSIS_THRESHOLD", validateEnvPositiveFloat},
		{"analysis.mininterval", "AUTOMARKER_ANALYSIS_MININTERVAL", validateEnvDuration},
		{"analysis.cache.enabled", "AUTOMARKER_ANALYSIS_CACHE_ENABLED", validateEnvBool},

		// Output and services
		{"playback.backend", "AUTOMARKER_PLAYBACK_BACKEND", validateEnvBackend},
		{"playback.device", "AUTOMARKER_PLAYBACK_DEVICE", nil},
		{"appwatch.enabled", "AUTOMARKER_APPWATCH_ENABLED", validateEnvBool},
		{"server.listen", "AUTOMARKER_SERVER_LISTEN", nil},
		{"metrics.enabled", "AUTOMARKER_METRICS_ENABLED", validateEnvBool},
		{"telemetry.enabled", "AUTOMARKER_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "AUTOMARKER_TELEMETRY_DSN", nil},
		{"logging.default_level", "AUTOMARKER_LOG_LEVEL", validateEnvLogLevel},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		envValue, isSet := os.LookupEnv(binding.EnvVar)

		// Validate before binding so a bad value never shadows the config file
		if isSet && binding.Validate != nil {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				continue
			}
		}

		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvSampleRate(value string) error {
	rate, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("sample rate must be an integer, got '%s'", value)
	}
	if rate < MinSampleRate || rate > MaxSampleRate {
		return fmt.Errorf("sample rate must be between %d and %d, got %d", MinSampleRate, MaxSampleRate, rate)
	}
	return nil
}

func validateEnvChannels(value string) error {
	ch, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("channel count must be an integer, got '%s'", value)
	}
	if ch < 1 || ch > MaxChannels {
		return fmt.Errorf("channel count must be between 1 and %d, got %d", MaxChannels, ch)
	}
	return nil
}

func validateEnvAnalysisMode(value string) error {
	if !slices.Contains(analysisModes, strings.ToLower(value)) {
		return fmt.Errorf("analysis mode must be one of %v", analysisModes)
	}
	return nil
}

func validateEnvPositiveFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number, got '%s'", value)
	}
	if f <= 0 {
		return fmt.Errorf("must be greater than zero, got %v", f)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration like 250ms, got '%s'", value)
	}
	if d < 0 {
		return fmt.Errorf("must not be negative, got %s", d)
	}
	return nil
}

func validateEnvBackend(value string) error {
	if !slices.Contains(playbackBackends, strings.ToLower(value)) {
		return fmt.Errorf("backend must be one of %v", playbackBackends)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	if !slices.Contains(logLevels, strings.ToLower(value)) {
		return fmt.Errorf("log level must be one of %v", logLevels)
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
