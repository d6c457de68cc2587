package play

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tphakala/automarker/internal/conf"
	"github.com/tphakala/automarker/internal/engine"
	"github.com/tphakala/automarker/internal/errors"
	"github.com/tphakala/automarker/internal/playback"
)

// ErrNoOutput is returned when the track loaded but no device could play it.
var ErrNoOutput = errors.NewStd("no audio output available")

// Options holds the play command flags.
type Options struct {
	From        time.Duration
	To          time.Duration
	Duration    time.Duration // stop after this long, 0 plays until interrupted
	Report      time.Duration // position report interval, 0 disables
	ListDevices bool
}

// Command creates a new command for auditioning a selection of a track.
func Command(settings *conf.Settings) *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "play [input]",
		Short: "Play a selection of an audio file in a loop",
		Long:  "Decode and analyze an audio file, then loop the selected range on the configured output device until interrupted.",
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.ListDevices {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ListDevices {
				return listDevices(cmd.OutOrStdout(), settings.Playback.Backend)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e := engine.New(engine.SettingsOptions(settings)...)
			defer e.Destroy()

			return Run(ctx, e, args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&opts.From, "from", 0, "Start of the selection")
	cmd.Flags().DurationVar(&opts.To, "to", 0, "End of the selection, 0 means end of track")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "Stop after this long, 0 plays until interrupted")
	cmd.Flags().DurationVar(&opts.Report, "report", time.Second, "Position report interval, 0 disables")
	cmd.Flags().BoolVar(&opts.ListDevices, "list-devices", false, "List the playback devices of the configured backend and exit")

	return cmd
}

// Run loads path on e and plays the requested selection until ctx is done
// or opts.Duration elapses.
func Run(ctx context.Context, e *engine.Engine, path string, opts Options, w io.Writer) error {
	if opts.To > 0 && opts.To < opts.From {
		return fmt.Errorf("selection end %s is before its start %s", opts.To, opts.From)
	}

	track, err := e.LoadAndWait(ctx, path)
	if err != nil {
		return err
	}

	perSecond := float64(track.Audio.SampleRate * track.Audio.Channels)
	start := uint64(opts.From.Seconds()*float64(track.Audio.SampleRate)) * uint64(track.Audio.Channels)
	end := e.SampleCount()
	if opts.To > 0 {
		end = uint64(opts.To.Seconds()*float64(track.Audio.SampleRate)) * uint64(track.Audio.Channels)
	}
	e.SetSelection(start, end)
	start, end = e.Selection()

	if !e.StartPlayback() {
		return ErrNoOutput
	}
	defer e.StopPlayback()

	fmt.Fprintf(w, "playing %s from %.3fs to %.3fs, %d beat(s) in selection\n",
		track.Path, float64(start)/perSecond, float64(end)/perSecond, len(e.MarkersInSelection()))

	var deadline <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	var report <-chan time.Time
	if opts.Report > 0 {
		ticker := time.NewTicker(opts.Report)
		defer ticker.Stop()
		report = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline:
			return nil
		case <-report:
			fmt.Fprintf(w, "%s  %8.3fs\n", e.TransportState(), e.PositionTime(e.DisplayPosition()).Seconds())
		}
	}
}

func listDevices(w io.Writer, backend string) error {
	devices, err := playback.ListDevices(backend)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "no playback devices found")
		return nil
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(devices)
}
