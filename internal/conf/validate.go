// conf/validate.go

package conf

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"
)

// Validation limits
const (
	MinSampleRate      = 8000
	MaxSampleRate      = 192000
	MaxChannels        = 8
	MinWindowSize      = 64
	MaxWindowSize      = 16384
	MinAppWatchPeriod  = 100 * time.Millisecond
	MaxPlaybackPeriods = 1 << 16
)

var (
	analysisModes    = []string{AnalysisModeStreaming, AnalysisModeBatch}
	playbackBackends = []string{BackendAuto, BackendALSA, BackendPulseAudio, BackendWASAPI, BackendCoreAudio, BackendNull}
	logLevels        = []string{"trace", "debug", "info", "warn", "error"}
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and aggregates
// every problem found into a single ValidationError.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateAudioSettings(&s.Audio) },
		func(s *Settings) error { return validateAnalysisSettings(&s.Analysis) },
		func(s *Settings) error { return validatePlaybackSettings(&s.Playback) },
		func(s *Settings) error { return validateAppWatchSettings(&s.AppWatch) },
		func(s *Settings) error { return validateServerSettings(&s.Server, &s.Metrics) },
		func(s *Settings) error { return validateTelemetrySettings(&s.Telemetry) },
		func(s *Settings) error { return validateLoggingSettings(s) },
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(settings *AudioSettings) error {
	var errs []string

	if settings.SampleRate < MinSampleRate || settings.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Sprintf("audio.samplerate must be between %d and %d", MinSampleRate, MaxSampleRate))
	}
	if settings.Channels < 1 || settings.Channels > MaxChannels {
		errs = append(errs, fmt.Sprintf("audio.channels must be between 1 and %d", MaxChannels))
	}
	if settings.MaxDuration < 0 {
		errs = append(errs, "audio.maxduration must not be negative")
	}

	return joinErrs("audio settings", errs)
}

func validateAnalysisSettings(settings *AnalysisSettings) error {
	var errs []string

	settings.Mode = strings.ToLower(settings.Mode)
	if !slices.Contains(analysisModes, settings.Mode) {
		errs = append(errs, fmt.Sprintf("analysis.mode must be one of %v", analysisModes))
	}
	if settings.ChunkFrames <= 0 {
		errs = append(errs, "analysis.chunkframes must be greater than zero")
	}
	ws := settings.WindowSize
	if ws < MinWindowSize || ws > MaxWindowSize || ws&(ws-1) != 0 {
		errs = append(errs, fmt.Sprintf("analysis.windowsize must be a power of two between %d and %d", MinWindowSize, MaxWindowSize))
	}
	if settings.HopSize <= 0 || settings.HopSize > ws {
		errs = append(errs, "analysis.hopsize must be between 1 and windowsize")
	}
	if settings.Threshold <= 0 {
		errs = append(errs, "analysis.threshold must be greater than zero")
	}
	if settings.MinInterval < 0 {
		errs = append(errs, "analysis.mininterval must not be negative")
	}
	if settings.Cache.Enabled && settings.Cache.TTL < 0 {
		errs = append(errs, "analysis.cache.ttl must not be negative")
	}

	return joinErrs("analysis settings", errs)
}

func validatePlaybackSettings(settings *PlaybackSettings) error {
	var errs []string

	settings.Backend = strings.ToLower(settings.Backend)
	if !slices.Contains(playbackBackends, settings.Backend) {
		errs = append(errs, fmt.Sprintf("playback.backend must be one of %v", playbackBackends))
	}
	if settings.PeriodFrames < 0 || settings.PeriodFrames > MaxPlaybackPeriods {
		errs = append(errs, fmt.Sprintf("playback.periodframes must be between 0 and %d", MaxPlaybackPeriods))
	}

	return joinErrs("playback settings", errs)
}

func validateAppWatchSettings(settings *AppWatchSettings) error {
	if settings.Enabled && settings.Interval < MinAppWatchPeriod {
		return fmt.Errorf("appwatch settings: interval must be at least %s", MinAppWatchPeriod)
	}
	return nil
}

func validateServerSettings(server *ServerSettings, metrics *MetricsSettings) error {
	var errs []string

	if _, _, err := net.SplitHostPort(server.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("server.listen %q is not a host:port address", server.Listen))
	}
	if server.LoadRate < 0 {
		errs = append(errs, "server.loadrate must not be negative")
	}
	if server.LoadRate > 0 && server.LoadBurst < 1 {
		errs = append(errs, "server.loadburst must be at least 1 when server.loadrate is set")
	}
	if metrics.Enabled && !strings.HasPrefix(metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with '/'")
	}

	return joinErrs("server settings", errs)
}

func validateTelemetrySettings(settings *TelemetrySettings) error {
	if settings.Enabled && settings.DSN == "" {
		return errors.New("telemetry settings: dsn is required when telemetry is enabled")
	}
	return nil
}

func validateLoggingSettings(settings *Settings) error {
	var errs []string

	check := func(key, level string) {
		if level != "" && !slices.Contains(logLevels, strings.ToLower(level)) {
			errs = append(errs, fmt.Sprintf("%s must be one of %v", key, logLevels))
		}
	}

	cfg := &settings.Logging
	check("logging.default_level", cfg.DefaultLevel)
	if cfg.Console != nil {
		check("logging.console.level", cfg.Console.Level)
	}
	if cfg.FileOutput != nil {
		check("logging.file_output.level", cfg.FileOutput.Level)
		if cfg.FileOutput.Enabled && cfg.FileOutput.Path == "" {
			errs = append(errs, "logging.file_output.path is required when file output is enabled")
		}
		if cfg.FileOutput.BufferSize < 0 {
			errs = append(errs, "logging.file_output.buffer_size must not be negative")
		}
		if cfg.FileOutput.FlushInterval < 0 {
			errs = append(errs, "logging.file_output.flush_interval must not be negative")
		}
	}
	for module, level := range cfg.ModuleLevels {
		check("logging.module_levels."+module, level)
	}

	// debug: true lowers the default and console levels unless trace is already set
	if settings.Debug && cfg.DefaultLevel != "trace" {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			cfg.Console.Level = "debug"
		}
	}

	return joinErrs("logging settings", errs)
}

func joinErrs(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %s", section, strings.Join(errs, "; "))
}
