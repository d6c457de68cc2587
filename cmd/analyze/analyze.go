package analyze

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
)

// Options holds the analyze command flags.
type Options struct {
	From time.Duration
	To   time.Duration
	JSON bool
}

// Report is the analysis result printed by the command.
type Report struct {
	Path        string    `json:"path"`
	SampleRate  int       `json:"sample_rate"`
	Channels    int       `json:"channels"`
	Duration    float64   `json:"duration_seconds"`
	Beats       []float64 `json:"beats"`
	Markers     []float64 `json:"markers"`
	DecodeTime  float64   `json:"decode_seconds"`
	AnalyzeTime float64   `json:"analyze_seconds"`
}

// Command creates a new command for analyzing an audio file.
func Command(settings *conf.Settings) *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "analyze [input]",
		Short: "Detect beats in an audio file",
		Long:  "Decode an audio file, detect its beats and print them together with the markers inside the selected range.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e := engine.New(append(engine.SettingsOptions(settings), engine.WithOutputFactory(nil))...)
			defer e.Destroy()

			report, err := Run(ctx, e, args[0], opts)
			if err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), report, opts.JSON)
		},
	}

	cmd.Flags().DurationVar(&opts.From, "from", 0, "Start of the marker range")
	cmd.Flags().DurationVar(&opts.To, "to", 0, "End of the marker range, 0 means end of track")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the report as JSON")

	return cmd
}

// Run processes path on e, selects the requested range and collects the
// report.
func Run(ctx context.Context, e *engine.Engine, path string, opts Options) (*Report, error) {
	if opts.From < 0 || opts.To < 0 {
		return nil, fmt.Errorf("marker range must not be negative")
	}
	if opts.To > 0 && opts.To < opts.From {
		return nil, fmt.Errorf("marker range end %s is before its start %s", opts.To, opts.From)
	}

	track, err := e.LoadAndWait(ctx, path)
	if err != nil {
		return nil, err
	}

	rate := track.Audio.SampleRate
	ch := track.Audio.Channels
	start := positionOf(opts.From, rate, ch)
	end := e.SampleCount()
	if opts.To > 0 {
		end = positionOf(opts.To, rate, ch)
	}
	e.SetSelection(start, end)

	report := &Report{
		Path:        track.Path,
		SampleRate:  rate,
		Channels:    ch,
		Duration:    track.Audio.Duration().Seconds(),
		Beats:       make([]float64, 0, len(track.Beats)),
		Markers:     e.MarkersInSelection(),
		DecodeTime:  track.DecodeTime.Seconds(),
		AnalyzeTime: track.AnalyzeTime.Seconds(),
	}
	for _, b := range track.Beats {
		report.Beats = append(report.Beats, e.PositionTime(b).Seconds())
	}
	if report.Markers == nil {
		report.Markers = []float64{}
	}
	return report, nil
}

// Print writes report to w as text or JSON.
func Print(w io.Writer, report *Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "%s: %.3fs, %d Hz, %d channel(s)\n", report.Path, report.Duration, report.SampleRate, report.Channels)
	fmt.Fprintf(w, "decoded in %.3fs, analyzed in %.3fs\n\n", report.DecodeTime, report.AnalyzeTime)

	fmt.Fprintf(w, "beats (%d)\n", len(report.Beats))
	for i, b := range report.Beats {
		fmt.Fprintf(w, "%5d  %10.3f\n", i+1, b)
	}

	fmt.Fprintf(w, "\nmarkers in selection (%d)\n", len(report.Markers))
	for i, m := range report.Markers {
		fmt.Fprintf(w, "%5d  %10.3f\n", i+1, m)
	}
	return nil
}

// positionOf converts a time offset to an interleaved sample index.
func positionOf(d time.Duration, rate, channels int) uint64 {
	if d <= 0 || rate <= 0 || channels <= 0 {
		return 0
	}
	frames := uint64(d.Seconds() * float64(rate))
	return frames * uint64(channels)
}
