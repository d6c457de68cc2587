// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets default values on the global viper instance.
func setDefaultConfig() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "automarker")

	v.SetDefault("audio.samplerate", 44100)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.maxduration", 2*time.Hour)

	v.SetDefault("analysis.mode", AnalysisModeStreaming)
	v.SetDefault("analysis.chunkframes", 4096)
	v.SetDefault("analysis.windowsize", 1024)
	v.SetDefault("analysis.hopsize", 128)
	v.SetDefault("analysis.threshold", 1.5)
	v.SetDefault("analysis.mininterval", 250*time.Millisecond)
	v.SetDefault("analysis.cache.enabled", true)
	v.SetDefault("analysis.cache.ttl", 24*time.Hour)

	v.SetDefault("playback.backend", BackendAuto)
	v.SetDefault("playback.device", "")
	v.SetDefault("playback.periodframes", 512)

	v.SetDefault("appwatch.enabled", true)
	v.SetDefault("appwatch.interval", time.Second)

	v.SetDefault("server.listen", "127.0.0.1:8765")
	v.SetDefault("server.loadrate", 2.0)
	v.SetDefault("server.loadburst", 4)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/automarker.log")
	v.SetDefault("logging.file_output.level", "info")
	v.SetDefault("logging.file_output.buffer_size", 32*1024)
	v.SetDefault("logging.file_output.flush_interval", "5s")
}
