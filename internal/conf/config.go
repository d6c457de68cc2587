// config.go: settings struct and the functions that load it through viper.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/automarker/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings contains application identity settings.
type MainSettings struct {
	Name string // instance name shown in status output
}

// AudioSettings describes the format every track is decoded into.
type AudioSettings struct {
	SampleRate  int           // target sample rate in Hz
	Channels    int           // target channel count, 1 = mono
	MaxDuration time.Duration // longest track accepted, 0 disables the guard
}

// AnalysisCacheSettings controls the beat analysis result cache.
type AnalysisCacheSettings struct {
	Enabled bool
	TTL     time.Duration // lifetime of a cached beat list
}

// AnalysisSettings configures the beat analyzer and its tracker.
type AnalysisSettings struct {
	Mode        string        // "streaming" or "batch"
	ChunkFrames int           // frames fed to the tracker per chunk
	WindowSize  int           // FFT window in frames, power of two
	HopSize     int           // frames between successive windows
	Threshold   float64       // flux threshold multiplier
	MinInterval time.Duration // minimum spacing between beats
	Cache       AnalysisCacheSettings
}

// PlaybackSettings configures the audio output device.
type PlaybackSettings struct {
	Backend      string // "auto", "alsa", "pulseaudio", "wasapi", "coreaudio" or "null"
	Device       string // device name substring, empty selects the system default
	PeriodFrames int    // device period size in frames, 0 lets the backend decide
}

// AppWatchSettings configures detection of the connected editing application.
type AppWatchSettings struct {
	Enabled  bool
	Interval time.Duration // process list polling interval
}

// ServerSettings configures the HTTP control surface.
type ServerSettings struct {
	Listen    string  // host:port for the control API
	LoadRate  float64 // load requests per second per client, 0 disables the limit
	LoadBurst int     // load requests accepted at once per client
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool
	Path    string
}

// TelemetrySettings configures Sentry error reporting.
type TelemetrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// Settings contains all configuration options for automarker.
type Settings struct {
	Debug bool

	Main      MainSettings
	Audio     AudioSettings
	Analysis  AnalysisSettings
	Playback  PlaybackSettings
	AppWatch  AppWatchSettings
	Server    ServerSettings
	Metrics   MetricsSettings
	Telemetry TelemetrySettings
	Logging   logger.LoggingConfig
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file from the default search paths and
// environment variables. A default config file is created when none exists.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	return unmarshalAndValidate()
}

// LoadFile reads settings from an explicit configuration file. Viper's
// global state is reset first, so it is safe to call repeatedly in tests.
func LoadFile(path string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	viper.Reset()
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	setDefaultConfig()
	applyEnvironment()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return unmarshalAndValidate()
}

// unmarshalAndValidate decodes viper's state into a new Settings and stores
// it as the current instance (caller must hold settingsMutex).
func unmarshalAndValidate() (*Settings, error) {
	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// function defined in defaults.go
	setDefaultConfig()
	applyEnvironment()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// applyEnvironment wires AUTOMARKER_* variables into viper. Invalid values
// are reported as warnings and the file or default value wins.
func applyEnvironment() {
	if err := configureEnvironmentVariables(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}
}

// createDefaultConfig writes the embedded default config into dir and reads it back
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, ConfigFileName)

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil { //nolint:gosec // config is not secret
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() (string, error) {
	data, err := fs.ReadFile(configFiles, ConfigFileName)
	if err != nil {
		return "", fmt.Errorf("error reading embedded config: %w", err)
	}
	return string(data), nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, loading it on first use.
// A load failure falls back to built-in defaults so callers always get a
// usable value.
func Setting() *Settings {
	once.Do(func() {
		if GetSettings() != nil {
			return
		}
		if _, err := Load(); err != nil {
			GetLogger().Error("failed to load settings, using defaults", logger.Error(err))
			settingsMutex.Lock()
			settingsInstance = Defaults()
			settingsMutex.Unlock()
		}
	})
	return GetSettings()
}

// Defaults returns settings populated only from built-in defaults.
func Defaults() *Settings {
	v := viper.New()
	setDefaults(v)

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		// defaults are static; a decode failure is a programming error
		panic(fmt.Sprintf("conf: invalid built-in defaults: %v", err))
	}
	return settings
}

// Describe returns a short human readable summary used by the CLI at startup.
func (s *Settings) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d Hz, %d ch, analysis=%s", s.Main.Name, s.Audio.SampleRate, s.Audio.Channels, s.Analysis.Mode)
	if s.Analysis.Cache.Enabled {
		fmt.Fprintf(&b, " (cache %s)", s.Analysis.Cache.TTL)
	}
	fmt.Fprintf(&b, ", backend=%s", s.Playback.Backend)
	return b.String()
}
