package engine

import (
	"context"

	"github.com/tphakala/automarker/internal/analyzer"
	"github.com/tphakala/automarker/internal/decoder"
	"github.com/tphakala/automarker/internal/logger"
	"github.com/tphakala/automarker/internal/observability/metrics"
	"github.com/tphakala/automarker/internal/playback"
)

// Decoder reads a file into memory in the requested format.
type Decoder interface {
	Decode(ctx context.Context, path string, format decoder.Format) (*decoder.Audio, error)
}

// BeatAnalyzer detects beats in decoded audio.
type BeatAnalyzer interface {
	Analyze(ctx context.Context, audio *decoder.Audio, progress analyzer.ProgressFunc) ([]uint64, error)
	Config() analyzer.Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithDecoder replaces the default decoder.
func WithDecoder(d Decoder) Option {
	return func(e *Engine) { e.decoder = d }
}

// WithAnalyzer replaces the default streaming analyzer.
func WithAnalyzer(a BeatAnalyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

// WithCache enables the analysis result cache.
func WithCache(c *analyzer.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithOutputFactory sets how output devices are opened. A nil factory
// disables playback.
func WithOutputFactory(f playback.OutputFactory) Option {
	return func(e *Engine) {
		e.openOutput = f
		e.outputSet = true
	}
}

// WithMetrics records load and transport metrics into m.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithFormat sets the format every file is decoded into. Zero fields keep
// the source value.
func WithFormat(f decoder.Format) Option {
	return func(e *Engine) { e.format = f }
}
