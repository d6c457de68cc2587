package decoder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/automarker/internal/errors"
	"github.com/tphakala/automarker/internal/testutil"
)

func TestDecode_WAVBitDepths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		bitDepth  int
		tolerance float64
	}{
		{"16-bit", 16, 1.0 / 16384},
		{"24-bit", 24, 1e-6},
		{"32-bit", 32, 1e-6},
	}

	src := testutil.Sine(2000, 1, 44100, 440, 0.5)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := testutil.WriteWAV(t, t.TempDir(), "tone.wav",
				testutil.WAVSpec{SampleRate: 44100, Channels: 1, BitDepth: tt.bitDepth}, src)

			got, err := New().Decode(context.Background(), path, DefaultFormat)
			require.NoError(t, err)

			assert.Equal(t, 1, got.Channels)
			assert.Equal(t, 44100, got.SampleRate)
			require.Len(t, got.Samples, len(src))
			for i := range src {
				require.InDelta(t, src[i], got.Samples[i], tt.tolerance, "sample %d", i)
			}
		})
	}
}

func TestDecode_StereoDownmix(t *testing.T) {
	t.Parallel()

	// left 0.5, right -0.25 on every frame
	src := make([]float32, 200)
	for i := 0; i < len(src); i += 2 {
		src[i], src[i+1] = 0.5, -0.25
	}
	path := testutil.WriteWAV(t, t.TempDir(), "stereo.wav", testutil.WAVSpec{SampleRate: 22050, Channels: 2}, src)

	got, err := Decode(context.Background(), path, Format{SampleRate: 22050, Channels: 1})
	require.NoError(t, err)

	require.Equal(t, 100, got.Frames())
	for _, s := range got.Samples {
		assert.InDelta(t, 0.125, s, 1e-3)
	}
}

func TestDecode_MonoUpmixKeepsRate(t *testing.T) {
	t.Parallel()

	src := testutil.Sine(500, 1, 8000, 100, 0.3)
	path := testutil.WriteWAV(t, t.TempDir(), "mono.wav", testutil.WAVSpec{SampleRate: 8000, Channels: 1}, src)

	// zero sample rate keeps the source rate
	got, err := Decode(context.Background(), path, Format{Channels: 2})
	require.NoError(t, err)

	assert.Equal(t, 8000, got.SampleRate)
	assert.Equal(t, 2, got.Channels)
	require.Equal(t, 500, got.Frames())
	for f := range got.Frames() {
		assert.Equal(t, got.Samples[2*f], got.Samples[2*f+1])
	}
}

func TestDecode_Resample(t *testing.T) {
	t.Parallel()

	src := testutil.Sine(48000, 2, 48000, 200, 0.5)
	path := testutil.WriteWAV(t, t.TempDir(), "hires.wav", testutil.WAVSpec{SampleRate: 48000, Channels: 2}, src)

	got, err := Decode(context.Background(), path, Format{SampleRate: 24000, Channels: 2})
	require.NoError(t, err)

	assert.Equal(t, 24000, got.SampleRate)
	assert.Equal(t, 24000, got.Frames())
	assert.InDelta(t, 1.0, got.Duration().Seconds(), 1e-3)
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not RIFF data"), 0o600))
	empty := testutil.WriteWAV(t, dir, "empty.wav", testutil.WAVSpec{SampleRate: 44100, Channels: 1}, nil)
	big := testutil.WriteWAV(t, dir, "big.wav", testutil.WAVSpec{SampleRate: 44100, Channels: 1}, testutil.Silence(50000, 1))

	tests := []struct {
		name     string
		dec      *Decoder
		path     string
		sentinel error
		category errors.ErrorCategory
	}{
		{"missing file", New(), filepath.Join(dir, "missing.wav"), ErrFileNotFound, errors.CategoryFileIO},
		{"directory", New(), filepath.Join(dir, "folder.wav"), ErrFileNotFound, errors.CategoryFileIO},
		{"unknown extension", New(), filepath.Join(dir, "track.xyz"), ErrUnsupportedFormat, errors.CategoryAudioDecode},
		{"corrupt wav", New(), garbage, ErrDecodeFailed, errors.CategoryAudioDecode},
		{"no frames", New(), empty, ErrDecodeFailed, errors.CategoryAudioDecode},
		{"size guard", New(WithMaxSamples(1000)), big, ErrAllocation, errors.CategoryResource},
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.wav"), 0o700))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			audio, err := tt.dec.Decode(context.Background(), tt.path, DefaultFormat)
			require.Error(t, err)
			assert.Nil(t, audio)
			require.ErrorIs(t, err, tt.sentinel)
			assert.True(t, errors.IsCategory(err, tt.category), "category of %v", err)
		})
	}
}

func TestDecode_ErrorCarriesFileContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	big := testutil.WriteWAV(t, dir, "Big.WAV", testutil.WAVSpec{SampleRate: 44100, Channels: 1}, testutil.Silence(50000, 1))

	_, err := New(WithMaxSamples(1000)).Decode(context.Background(), big, DefaultFormat)
	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)

	ctx := ee.GetContext()
	assert.Equal(t, "decode", ctx["operation"])
	assert.Equal(t, "absolute-path", ctx["file_type"])
	assert.Equal(t, "wav", ctx["file_extension"])
	assert.Equal(t, "small", ctx["file_size_category"])

	_, err = New().Decode(context.Background(), filepath.Join(dir, "missing.flac"), DefaultFormat)
	require.ErrorAs(t, err, &ee)
	ctx = ee.GetContext()
	assert.Equal(t, "flac", ctx["file_extension"])
	assert.NotContains(t, ctx, "file_size_category")
}

func TestDecode_Cancelled(t *testing.T) {
	t.Parallel()

	path := testutil.WriteWAV(t, t.TempDir(), "tone.wav",
		testutil.WAVSpec{SampleRate: 44100, Channels: 1}, testutil.Sine(44100, 1, 44100, 440, 0.5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Decode(ctx, path, DefaultFormat)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
}

func TestProbe(t *testing.T) {
	t.Parallel()

	path := testutil.WriteWAV(t, t.TempDir(), "probe.wav",
		testutil.WAVSpec{SampleRate: 32000, Channels: 2, BitDepth: 24}, testutil.Silence(16000, 2))

	info, err := Probe(path)
	require.NoError(t, err)

	assert.Equal(t, "wav", info.Codec)
	assert.Equal(t, path, info.Path)
	assert.Equal(t, 32000, info.SampleRate)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, 24, info.BitDepth)
	assert.InDelta(t, 16000, info.Frames, 1)
}

func TestSupportedExtensions(t *testing.T) {
	t.Parallel()

	exts := SupportedExtensions()
	assert.IsNonDecreasing(t, exts)
	for _, want := range []string{".flac", ".mp3", ".ogg", ".wav"} {
		assert.Contains(t, exts, want)
	}
}

type stubCodec struct{}

func (stubCodec) Name() string { return "stub" }

func (stubCodec) Extensions() []string { return []string{".STUB"} }

func (stubCodec) Probe(_ io.ReadSeeker) (SourceInfo, error) {
	return SourceInfo{SampleRate: 10, Channels: 1}, nil
}

func (stubCodec) Decode(_ context.Context, _ io.ReadSeeker, emit func(SourceInfo, []float32) error) error {
	return emit(SourceInfo{SampleRate: 10, Channels: 1}, []float32{0.1, 0.2, 0.3})
}

func TestWithCodec(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.stub")
	require.NoError(t, os.WriteFile(path, []byte{0}, 0o600))

	dec := New(WithCodec(stubCodec{}))
	assert.Contains(t, dec.SupportedExtensions(), ".stub")

	got, err := dec.Decode(context.Background(), path, Format{})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Samples)
}
