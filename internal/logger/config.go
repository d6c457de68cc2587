package logger

import "time"

// LoggingConfig represents logging configuration. It is decoded by viper, so
// every field carries a mapstructure tag next to the yaml one.
type LoggingConfig struct {
	DefaultLevel string `yaml:"default_level" mapstructure:"default_level" json:"default_level"`

	// "Local", "UTC", or an IANA timezone name
	Timezone   string         `yaml:"timezone" mapstructure:"timezone" json:"timezone"`
	Console    *ConsoleOutput `yaml:"console" mapstructure:"console" json:"console"`
	FileOutput *FileOutput    `yaml:"file_output" mapstructure:"file_output" json:"file_output"`

	// per-module output routing and levels
	ModuleOutputs map[string]ModuleOutput `yaml:"modules" mapstructure:"modules" json:"modules"`
	ModuleLevels  map[string]string       `yaml:"module_levels" mapstructure:"module_levels" json:"module_levels"`
}

// ConsoleOutput represents console logging configuration.
// Console output is human-readable text without timestamps; journald and
// terminals add their own.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Level   string `yaml:"level" mapstructure:"level" json:"level"`
}

// FileOutput represents file logging configuration.
// File output is JSON with RFC3339 timestamps.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Path    string `yaml:"path" mapstructure:"path" json:"path"`
	Level   string `yaml:"level" mapstructure:"level" json:"level"`

	// write buffer in bytes and background flush period for every log
	// file; zero keeps the writer defaults
	BufferSize    int           `yaml:"buffer_size" mapstructure:"buffer_size" json:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval" json:"flush_interval"`
}

// ModuleOutput routes a single module to a dedicated file
type ModuleOutput struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	FilePath    string `yaml:"file_path" mapstructure:"file_path" json:"file_path"`
	Level       string `yaml:"level" mapstructure:"level" json:"level"`
	ConsoleAlso bool   `yaml:"console_also" mapstructure:"console_also" json:"console_also"`
}

// Default values for logging configuration.
// These match the defaults in conf/defaults.go.
const (
	DefaultLogLevel       = "info"
	DefaultLogPath        = "logs/automarker.log"
	DefaultConsoleEnabled = true
	DefaultFileEnabled    = false
)

// applyConfigDefaults fills nil configuration sections so a config file
// without a logging block still produces console output.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}

	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}

	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{
			Enabled: DefaultConsoleEnabled,
			Level:   cfg.DefaultLevel,
		}
	}

	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{
			Enabled: DefaultFileEnabled,
			Path:    DefaultLogPath,
			Level:   cfg.DefaultLevel,
		}
	}

	if cfg.ModuleOutputs == nil {
		cfg.ModuleOutputs = make(map[string]ModuleOutput)
	}
}
