package conf

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes yaml into a temporary config file and returns its path.
func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoadFile_EmbeddedDefaults(t *testing.T) {
	data, err := getDefaultConfig()
	require.NoError(t, err)

	settings, err := LoadFile(writeConfig(t, data))
	require.NoError(t, err)

	assert.Equal(t, "automarker", settings.Main.Name)
	assert.Equal(t, 44100, settings.Audio.SampleRate)
	assert.Equal(t, 1, settings.Audio.Channels)
	assert.Equal(t, 2*time.Hour, settings.Audio.MaxDuration)
	assert.Equal(t, AnalysisModeStreaming, settings.Analysis.Mode)
	assert.Equal(t, 4096, settings.Analysis.ChunkFrames)
	assert.Equal(t, 1024, settings.Analysis.WindowSize)
	assert.Equal(t, 128, settings.Analysis.HopSize)
	assert.InDelta(t, 1.5, settings.Analysis.Threshold, 1e-9)
	assert.Equal(t, 250*time.Millisecond, settings.Analysis.MinInterval)
	assert.True(t, settings.Analysis.Cache.Enabled)
	assert.Equal(t, 24*time.Hour, settings.Analysis.Cache.TTL)
	assert.Equal(t, BackendAuto, settings.Playback.Backend)
	assert.Equal(t, time.Second, settings.AppWatch.Interval)
	assert.Equal(t, "127.0.0.1:8765", settings.Server.Listen)
	assert.InDelta(t, 2.0, settings.Server.LoadRate, 1e-9)
	assert.Equal(t, 4, settings.Server.LoadBurst)
	assert.Equal(t, "/metrics", settings.Metrics.Path)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	require.NotNil(t, settings.Logging.FileOutput)
	assert.Equal(t, "logs/automarker.log", settings.Logging.FileOutput.Path)
	assert.Equal(t, 32*1024, settings.Logging.FileOutput.BufferSize)
	assert.Equal(t, 5*time.Second, settings.Logging.FileOutput.FlushInterval)

	assert.Same(t, settings, GetSettings())
}

func TestLoadFile_PartialFileUsesDefaults(t *testing.T) {
	settings, err := LoadFile(writeConfig(t, `
audio:
  channels: 2
analysis:
  mode: BATCH
`))
	require.NoError(t, err)

	assert.Equal(t, 2, settings.Audio.Channels)
	assert.Equal(t, 44100, settings.Audio.SampleRate)
	assert.Equal(t, AnalysisModeBatch, settings.Analysis.Mode)
	assert.Equal(t, 1024, settings.Analysis.WindowSize)
}

func TestLoadFile_EnvironmentOverride(t *testing.T) {
	t.Setenv("AUTOMARKER_AUDIO_CHANNELS", "2")
	t.Setenv("AUTOMARKER_PLAYBACK_BACKEND", "null")
	t.Setenv("AUTOMARKER_ANALYSIS_MININTERVAL", "400ms")

	settings, err := LoadFile(writeConfig(t, "audio:\n  channels: 1\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, settings.Audio.Channels)
	assert.Equal(t, BackendNull, settings.Playback.Backend)
	assert.Equal(t, 400*time.Millisecond, settings.Analysis.MinInterval)
}

func TestLoadFile_InvalidEnvironmentIsIgnored(t *testing.T) {
	t.Setenv("AUTOMARKER_AUDIO_CHANNELS", "lots")

	settings, err := LoadFile(writeConfig(t, "audio:\n  channels: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, settings.Audio.Channels)
}

func TestLoadFile_ValidationFailure(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
audio:
  samplerate: 100
analysis:
  windowsize: 1000
playback:
  backend: jack
server:
  listen: "no-port"
`))
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 4)
	assert.Contains(t, err.Error(), "audio.samplerate")
	assert.Contains(t, err.Error(), "analysis.windowsize")
	assert.Contains(t, err.Error(), "playback.backend")
	assert.Contains(t, err.Error(), "server.listen")
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	settings := Defaults()

	require.NoError(t, ValidateSettings(settings))
	assert.Equal(t, 44100, settings.Audio.SampleRate)
	assert.Equal(t, 512, settings.Playback.PeriodFrames)
	assert.Contains(t, settings.Describe(), "analysis=streaming")
}

func TestValidateSettings_DebugLowersLogLevel(t *testing.T) {
	settings := Defaults()
	settings.Debug = true

	require.NoError(t, ValidateSettings(settings))
	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
	assert.Equal(t, "debug", settings.Logging.Console.Level)
}

func TestValidateSettings_Table(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"hop larger than window", func(s *Settings) { s.Analysis.HopSize = 4096 }, "analysis.hopsize"},
		{"zero chunk", func(s *Settings) { s.Analysis.ChunkFrames = 0 }, "analysis.chunkframes"},
		{"too many channels", func(s *Settings) { s.Audio.Channels = 9 }, "audio.channels"},
		{"fast app watch", func(s *Settings) { s.AppWatch.Interval = time.Millisecond }, "appwatch"},
		{"telemetry without dsn", func(s *Settings) { s.Telemetry.Enabled = true }, "dsn"},
		{"bad metrics path", func(s *Settings) { s.Metrics.Path = "metrics" }, "metrics.path"},
		{"load rate without burst", func(s *Settings) { s.Server.LoadBurst = 0 }, "server.loadburst"},
		{"bad module level", func(s *Settings) {
			s.Logging.ModuleLevels = map[string]string{"playback": "loud"}
		}, "logging.module_levels.playback"},
		{"negative flush interval", func(s *Settings) {
			s.Logging.FileOutput.FlushInterval = -time.Second
		}, "logging.file_output.flush_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := Defaults()
			tt.mutate(settings)

			err := ValidateSettings(settings)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvValidators(t *testing.T) {
	tests := []struct {
		name     string
		validate func(string) error
		value    string
		wantErr  bool
	}{
		{"bool ok", validateEnvBool, "true", false},
		{"bool bad", validateEnvBool, "maybe", true},
		{"rate ok", validateEnvSampleRate, "48000", false},
		{"rate low", validateEnvSampleRate, "10", true},
		{"channels ok", validateEnvChannels, "2", false},
		{"channels zero", validateEnvChannels, "0", true},
		{"mode ok", validateEnvAnalysisMode, "Batch", false},
		{"mode bad", validateEnvAnalysisMode, "offline", true},
		{"float ok", validateEnvPositiveFloat, "1.2", false},
		{"float negative", validateEnvPositiveFloat, "-1", true},
		{"duration ok", validateEnvDuration, "1s", false},
		{"duration bad", validateEnvDuration, "soon", true},
		{"backend ok", validateEnvBackend, "ALSA", false},
		{"backend bad", validateEnvBackend, "jack", true},
		{"level ok", validateEnvLogLevel, "warn", false},
		{"level bad", validateEnvLogLevel, "verbose", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetDefaultConfigPaths(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME only applies on linux")
	}

	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)
	userDir := filepath.Join(base, AppName)

	paths, err := GetDefaultConfigPaths()
	require.NoError(t, err)
	assert.Equal(t, []string{userDir, filepath.Join("/etc", AppName)}, paths)

	require.NoError(t, os.MkdirAll(userDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, ConfigFileName), []byte("debug: false\n"), 0o600))

	paths, err = GetDefaultConfigPaths()
	require.NoError(t, err)
	assert.Equal(t, []string{userDir}, paths)
}
