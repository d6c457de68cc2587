package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/automarker/cmd/analyze"
	"github.com/tphakala/automarker/cmd/formats"
	"github.com/tphakala/automarker/cmd/play"
	"github.com/tphakala/automarker/cmd/serve"
	"github.com/tphakala/automarker/cmd/version"
	"github.com/tphakala/automarker/internal/buildinfo"
	"github.com/tphakala/automarker/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "automarker",
		Short:        "Beat marker engine for audio tracks",
		Long:         "Decode an audio file, detect its beats and audition selections of it.",
		Version:      info.Version(),
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	versionCmd := version.Command(info)

	rootCmd.AddCommand(
		analyze.Command(settings),
		play.Command(settings),
		serve.Command(settings, info),
		formats.Command(),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		// flags are already written into settings, check the combined result
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	var configPath string
	flags := rootCmd.PersistentFlags()

	// Defaults come from the loaded settings, which already merge the
	// config file and the environment.

	// --config and --debug are consumed before the command tree is built,
	// they are declared here so cobra accepts them and lists them in help.
	flags.StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	flags.BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")

	flags.IntVar(&settings.Audio.SampleRate, "samplerate", settings.Audio.SampleRate, "Sample rate tracks are decoded to")
	flags.IntVar(&settings.Audio.Channels, "channels", settings.Audio.Channels, "Channel count tracks are decoded to")
	flags.StringVar(&settings.Analysis.Mode, "mode", settings.Analysis.Mode, "Beat analysis mode (streaming or batch)")
	flags.Float64Var(&settings.Analysis.Threshold, "threshold", settings.Analysis.Threshold, "Onset threshold multiplier")
	flags.StringVar(&settings.Playback.Backend, "backend", settings.Playback.Backend, "Audio backend (auto, alsa, pulseaudio, wasapi, coreaudio, null)")
	flags.StringVar(&settings.Playback.Device, "device", settings.Playback.Device, "Output device name or ID")

	if err := viper.BindPFlags(flags); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
