// conf/consts.go hard coded constants
package conf

const (
	AppName        = "automarker"
	ConfigFileName = "config.yaml"
	EnvPrefix      = "AUTOMARKER"

	// Analysis modes
	AnalysisModeStreaming = "streaming"
	AnalysisModeBatch     = "batch"

	// Playback backends understood by the malgo output
	BackendAuto       = "auto"
	BackendALSA       = "alsa"
	BackendPulseAudio = "pulseaudio"
	BackendWASAPI     = "wasapi"
	BackendCoreAudio  = "coreaudio"
	BackendNull       = "null"
)
