// Package decoder turns an audio file on disk into a single interleaved
// float32 buffer in a caller-chosen format. It is the only place that knows
// about container and codec details; everything downstream of it works on
// Audio values.
package decoder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/automarker/internal/errors"
	"github.com/tphakala/automarker/internal/logger"
)

// DefaultMaxSamples bounds the size of a decoded buffer (1 GiB of float32).
const DefaultMaxSamples = 1 << 28

// Format is the desired output layout of a decode.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 44.1 kHz mono.
var DefaultFormat = Format{SampleRate: 44100, Channels: 1}

// Audio is a fully decoded track. It is immutable once returned.
type Audio struct {
	Samples    []float32 // interleaved, len is a multiple of Channels
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames.
func (a *Audio) Frames() int {
	if a == nil || a.Channels == 0 {
		return 0
	}
	return len(a.Samples) / a.Channels
}

// Duration returns the playback length.
func (a *Audio) Duration() time.Duration {
	if a == nil || a.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(a.Frames()) / float64(a.SampleRate) * float64(time.Second))
}

// SourceInfo describes a file as stored on disk.
type SourceInfo struct {
	Path       string
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int64 // 0 when the container does not say
}

// Duration returns the source length, or 0 when unknown.
func (si SourceInfo) Duration() time.Duration {
	if si.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(si.Frames) / float64(si.SampleRate) * float64(time.Second))
}

// Codec reads one container format. Decode calls emit with interleaved
// samples in the source layout reported by the returned SourceInfo; emit may
// be called any number of times and the slice is not retained.
type Codec interface {
	Name() string
	Extensions() []string
	Probe(r io.ReadSeeker) (SourceInfo, error)
	Decode(ctx context.Context, r io.ReadSeeker, emit func(info SourceInfo, samples []float32) error) error
}

// Decoder dispatches files to codecs by extension and converts their output.
type Decoder struct {
	mu         sync.RWMutex
	codecs     map[string]Codec
	maxSamples int
	log        logger.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxSamples sets the size guard. Values <= 0 restore the default.
func WithMaxSamples(n int) Option {
	return func(d *Decoder) {
		if n <= 0 {
			n = DefaultMaxSamples
		}
		d.maxSamples = n
	}
}

// WithCodec registers an additional codec, replacing any codec already
// registered for the same extensions.
func WithCodec(c Codec) Option {
	return func(d *Decoder) { d.register(c) }
}

// WithLogger sets the logger used for decode diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(d *Decoder) { d.log = l }
}

// GetLogger returns the decoder package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("decoder")
}

// New returns a Decoder with the WAV, FLAC, MP3 and Ogg Vorbis codecs.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		codecs:     make(map[string]Codec),
		maxSamples: DefaultMaxSamples,
	}
	for _, c := range []Codec{wavCodec{}, flacCodec{}, mp3Codec{}, vorbisCodec{}} {
		d.register(c)
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = GetLogger()
	}
	return d
}

func (d *Decoder) register(c Codec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ext := range c.Extensions() {
		d.codecs[strings.ToLower(ext)] = c
	}
}

func (d *Decoder) codecFor(path string) (Codec, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.codecs[extension(path)]
	return c, ok
}

// SupportedExtensions returns the registered extensions, sorted, with a
// leading dot.
func (d *Decoder) SupportedExtensions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	exts := make([]string, 0, len(d.codecs))
	for ext := range d.codecs {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Probe reads container metadata without decoding the audio.
func (d *Decoder) Probe(path string) (SourceInfo, error) {
	codec, f, err := d.open(path)
	if err != nil {
		return SourceInfo{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := codec.Probe(f)
	if err != nil {
		return SourceInfo{}, wrapErr(ErrDecodeFailed, errors.CategoryAudioDecode, path, "probe", err)
	}
	info.Path = path
	info.Codec = codec.Name()
	return info, nil
}

// Decode reads the whole file at path and returns it converted to format.
// Zero fields in format keep the source value.
func (d *Decoder) Decode(ctx context.Context, path string, format Format) (*Audio, error) {
	start := time.Now()

	codec, f, err := d.open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var (
		src     SourceInfo
		samples []float32
	)

	err = codec.Decode(ctx, f, func(info SourceInfo, chunk []float32) error {
		if src.Channels == 0 {
			src = info
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if estimateOutput(len(samples)+len(chunk), src, format) > d.maxSamples {
			return ErrAllocation
		}
		samples = append(samples, chunk...)
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, errors.New(err).
			Component("decoder").
			Category(errors.CategoryCancellation).
			Context("operation", "decode").
			Build()
	case errors.Is(err, ErrAllocation):
		return nil, wrapErr(ErrAllocation, errors.CategoryResource, path, "decode", nil)
	case errors.Is(err, ErrUnsupportedFormat):
		return nil, wrapErr(ErrUnsupportedFormat, errors.CategoryAudioDecode, path, "decode", err)
	default:
		return nil, wrapErr(ErrDecodeFailed, errors.CategoryAudioDecode, path, "decode", err)
	}

	if src.Channels <= 0 || src.SampleRate <= 0 || len(samples) < src.Channels {
		return nil, wrapErr(ErrDecodeFailed, errors.CategoryAudioDecode, path, "decode", errors.NewStd("no audio frames"))
	}

	// drop a trailing partial frame
	samples = samples[:len(samples)-len(samples)%src.Channels]

	out := &Audio{Samples: samples, Channels: src.Channels, SampleRate: src.SampleRate}
	convert(out, format)

	d.log.Debug("decoded audio file",
		logger.String("path", path),
		logger.String("codec", codec.Name()),
		logger.Int("source_rate", src.SampleRate),
		logger.Int("source_channels", src.Channels),
		logger.Int("frames", out.Frames()),
		logger.Duration("elapsed", time.Since(start)))

	return out, nil
}

// open resolves the codec and opens the file.
func (d *Decoder) open(path string) (Codec, *os.File, error) {
	codec, ok := d.codecFor(path)
	if !ok {
		return nil, nil, wrapErr(ErrUnsupportedFormat, errors.CategoryAudioDecode, path, "open", nil)
	}

	f, err := os.Open(path) //nolint:gosec // path is user-selected media
	if err != nil {
		return nil, nil, wrapErr(ErrFileNotFound, errors.CategoryFileIO, path, "open", err)
	}

	if fi, err := f.Stat(); err != nil || fi.IsDir() {
		_ = f.Close()
		if err == nil {
			err = errors.NewStd("is a directory")
		}
		return nil, nil, wrapErr(ErrFileNotFound, errors.CategoryFileIO, path, "open", err)
	}

	return codec, f, nil
}

// convert remixes and resamples a in place to the requested format.
func convert(a *Audio, format Format) {
	if format.Channels > 0 && format.Channels != a.Channels {
		a.Samples = remix(a.Samples, a.Channels, format.Channels)
		a.Channels = format.Channels
	}
	if format.SampleRate > 0 && format.SampleRate != a.SampleRate {
		a.Samples = resampleInterleaved(a.Samples, a.Channels, a.SampleRate, format.SampleRate)
		a.SampleRate = format.SampleRate
	}
}

// estimateOutput predicts the converted sample count for n source samples.
func estimateOutput(n int, src SourceInfo, format Format) int {
	if src.Channels <= 0 || src.SampleRate <= 0 {
		return n
	}
	frames := float64(n / src.Channels)
	ch := src.Channels
	if format.Channels > 0 {
		ch = format.Channels
	}
	if format.SampleRate > 0 {
		frames = frames * float64(format.SampleRate) / float64(src.SampleRate)
	}
	return int(frames) * ch
}

func extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

var (
	defaultDecoder     *Decoder
	defaultDecoderOnce sync.Once
)

// Default returns the shared Decoder with the built-in codecs.
func Default() *Decoder {
	defaultDecoderOnce.Do(func() { defaultDecoder = New() })
	return defaultDecoder
}

// Decode decodes path with the default decoder.
func Decode(ctx context.Context, path string, format Format) (*Audio, error) {
	return Default().Decode(ctx, path, format)
}

// Probe probes path with the default decoder.
func Probe(path string) (SourceInfo, error) {
	return Default().Probe(path)
}

// SupportedExtensions lists the extensions of the default decoder.
func SupportedExtensions() []string {
	return Default().SupportedExtensions()
}
