package engine

import (
	"github.com/tphakala/automarker/internal/analyzer"
	"github.com/tphakala/automarker/internal/beattrack"
	"github.com/tphakala/automarker/internal/conf"
	"github.com/tphakala/automarker/internal/decoder"
	"github.com/tphakala/automarker/internal/playback"
)

// SettingsOptions translates application settings into engine options:
// decode format and size guard, analyzer and tracker parameters, the
// analysis cache and the output device.
func SettingsOptions(s *conf.Settings) []Option {
	format := decoder.Format{SampleRate: s.Audio.SampleRate, Channels: s.Audio.Channels}

	var decOpts []decoder.Option
	if limit := maxSamples(s.Audio, format); limit > 0 {
		decOpts = append(decOpts, decoder.WithMaxSamples(limit))
	}

	tracker := beattrack.DefaultConfig(format.SampleRate)
	tracker.WindowSize = s.Analysis.WindowSize
	tracker.HopSize = s.Analysis.HopSize
	tracker.Threshold = s.Analysis.Threshold
	tracker.MinInterval = s.Analysis.MinInterval

	opts := []Option{
		WithFormat(format),
		WithDecoder(decoder.New(decOpts...)),
		WithAnalyzer(analyzer.New(analyzer.Config{
			Mode:        analyzer.Mode(s.Analysis.Mode),
			ChunkFrames: s.Analysis.ChunkFrames,
			Tracker:     tracker,
		})),
		WithOutputFactory(playback.NewMalgoOutput(playback.OutputConfig{
			Backend:      s.Playback.Backend,
			Device:       s.Playback.Device,
			PeriodFrames: s.Playback.PeriodFrames,
		})),
	}
	if s.Analysis.Cache.Enabled {
		opts = append(opts, WithCache(analyzer.NewCache(s.Analysis.Cache.TTL)))
	}
	return opts
}

// maxSamples is the decoded size of a track of the longest accepted
// duration, or 0 when the guard is disabled.
func maxSamples(a conf.AudioSettings, format decoder.Format) int {
	if a.MaxDuration <= 0 {
		return 0
	}
	return int(a.MaxDuration.Seconds()*float64(format.SampleRate)) * format.Channels
}
