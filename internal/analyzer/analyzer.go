// Package analyzer turns a decoded track into a sorted list of beat
// positions in the interleaved sample domain of that track.
package analyzer

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/automarker/internal/beattrack"
	"github.com/tphakala/automarker/internal/decoder"
	"github.com/tphakala/automarker/internal/errors"
	"github.com/tphakala/automarker/internal/logger"
)

// Mode selects how the tracker is driven.
type Mode string

const (
	// ModeStreaming feeds the track in chunks and checks for cancellation
	// between chunks.
	ModeStreaming Mode = "streaming"
	// ModeBatch hands the whole down-mixed track to beattrack.Detect.
	ModeBatch Mode = "batch"
)

// DefaultChunkFrames is the number of frames handed to the tracker at once.
const DefaultChunkFrames = 4096

// Sentinel errors.
var (
	ErrCancelled    = errors.NewStd("beat analysis cancelled")
	ErrAnalysisInit = errors.NewStd("beat analysis initialization failed")
)

// ProgressFunc receives the analyzed fraction of the track in [0, 1].
type ProgressFunc func(progress float64)

// Config parameterizes an Analyzer. Tracker.SampleRate is ignored; the
// rate of each analyzed track is used instead.
type Config struct {
	Mode        Mode
	ChunkFrames int
	Tracker     beattrack.Config
}

// DefaultConfig returns streaming analysis with the default tracker.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeStreaming,
		ChunkFrames: DefaultChunkFrames,
		Tracker:     beattrack.DefaultConfig(decoder.DefaultFormat.SampleRate),
	}
}

// Key returns a stable string of every parameter that affects the result.
func (c Config) Key() string {
	t := c.Tracker
	return fmt.Sprintf("%s/%d/%d/%d/%g/%g/%d/%s",
		c.Mode, c.ChunkFrames, t.WindowSize, t.HopSize, t.Threshold, t.Delta, t.History, t.MinInterval)
}

// Analyzer runs beat analysis over decoded audio.
type Analyzer struct {
	cfg Config
	log logger.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the analyzer logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Analyzer) { a.log = l }
}

// GetLogger returns the analyzer package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analyzer")
}

// New returns an Analyzer. Zero-valued fields of cfg take their defaults.
func New(cfg Config, opts ...Option) *Analyzer {
	if cfg.Mode == "" {
		cfg.Mode = ModeStreaming
	}
	if cfg.ChunkFrames <= 0 {
		cfg.ChunkFrames = DefaultChunkFrames
	}
	if cfg.Tracker.WindowSize == 0 {
		cfg.Tracker = beattrack.DefaultConfig(0)
	}

	a := &Analyzer{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = GetLogger()
	}
	return a
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze returns the ascending, de-duplicated beat positions of audio as
// interleaved sample indices. Each position is a multiple of the channel
// count and lies below len(audio.Samples). progress may be nil.
//
// A cancelled ctx discards partial results and returns an error wrapping
// ErrCancelled.
func (a *Analyzer) Analyze(ctx context.Context, audio *decoder.Audio, progress ProgressFunc) ([]uint64, error) {
	if audio == nil || audio.Channels <= 0 {
		return nil, a.initErr(errors.NewStd("no audio"))
	}

	tcfg := a.cfg.Tracker
	tcfg.SampleRate = audio.SampleRate
	if err := tcfg.Validate(); err != nil {
		return nil, a.initErr(err)
	}

	start := time.Now()

	var (
		raw []uint64
		err error
	)
	switch Mode(strings.ToLower(string(a.cfg.Mode))) {
	case ModeBatch:
		raw, err = a.batch(ctx, audio, tcfg, progress)
	case ModeStreaming:
		raw, err = a.streaming(ctx, audio, tcfg, progress)
	default:
		return nil, a.initErr(fmt.Errorf("unknown analysis mode %q", a.cfg.Mode))
	}
	if err != nil {
		return nil, err
	}

	beats := normalize(raw, tcfg.CenteringOffset(), audio.Channels, len(audio.Samples))

	a.log.Debug("beat analysis finished",
		logger.String("mode", string(a.cfg.Mode)),
		logger.Int("beats", len(beats)),
		logger.Int("frames", audio.Frames()),
		logger.Duration("elapsed", time.Since(start)))

	return beats, nil
}

// streaming feeds the track in ChunkFrames pieces. raw holds Beat.Sample
// values in mono frames.
func (a *Analyzer) streaming(ctx context.Context, audio *decoder.Audio, tcfg beattrack.Config, progress ProgressFunc) ([]uint64, error) {
	tr, err := beattrack.New(tcfg)
	if err != nil {
		return nil, a.initErr(err)
	}

	ch := audio.Channels
	frames := audio.Frames()
	chunk := a.cfg.ChunkFrames
	mono := make([]float32, chunk)
	var raw []uint64

	for start := 0; start < frames; start += chunk {
		end := min(start+chunk, frames)
		n := downmix(mono, audio.Samples[start*ch:end*ch], ch)

		for b := range tr.Process(mono[:n]) {
			raw = append(raw, b.Sample)
		}

		if err := ctx.Err(); err != nil {
			return nil, cancelledErr(err, end, frames)
		}
		if progress != nil {
			progress(float64(end) / float64(frames))
		}
	}

	return raw, nil
}

// batch runs the whole track through beattrack.Detect. Cancellation is
// observed only before and after the call.
func (a *Analyzer) batch(ctx context.Context, audio *decoder.Audio, tcfg beattrack.Config, progress ProgressFunc) ([]uint64, error) {
	frames := audio.Frames()
	if err := ctx.Err(); err != nil {
		return nil, cancelledErr(err, 0, frames)
	}

	mono := make([]float32, frames)
	downmix(mono, audio.Samples[:frames*audio.Channels], audio.Channels)

	raw, err := beattrack.Detect(mono, tcfg)
	if err != nil {
		return nil, a.initErr(err)
	}

	if err := ctx.Err(); err != nil {
		return nil, cancelledErr(err, frames, frames)
	}
	if progress != nil {
		progress(1)
	}
	return raw, nil
}

// normalize converts tracker output (mono window starts) to centred
// interleaved positions below total, sorted and de-duplicated.
func normalize(raw []uint64, centering, channels, total int) []uint64 {
	beats := make([]uint64, 0, len(raw))
	for _, s := range raw {
		pos := (s + uint64(centering)) * uint64(channels)
		if pos < uint64(total) {
			beats = append(beats, pos)
		}
	}
	slices.Sort(beats)
	return slices.Compact(beats)
}

// downmix averages interleaved frames of src into dst and returns the
// number of frames written.
func downmix(dst, src []float32, channels int) int {
	frames := len(src) / channels
	if channels == 1 {
		return copy(dst, src[:frames])
	}
	inv := 1 / float32(channels)
	for f := range frames {
		var sum float32
		for _, s := range src[f*channels : f*channels+channels] {
			sum += s
		}
		dst[f] = sum * inv
	}
	return frames
}

func (a *Analyzer) initErr(cause error) error {
	return errors.New(fmt.Errorf("%w: %w", ErrAnalysisInit, cause)).
		Component("analyzer").
		Category(errors.CategoryAudioAnalysis).
		Context("operation", "tracker_init").
		Context("mode", string(a.cfg.Mode)).
		Build()
}

func cancelledErr(cause error, done, total int) error {
	return errors.New(fmt.Errorf("%w: %w", ErrCancelled, cause)).
		Component("analyzer").
		Category(errors.CategoryCancellation).
		Context("frames_done", done).
		Context("frames_total", total).
		Build()
}
