package testutil

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// ClickLength is the length in frames of each click written by ClickTrack.
const ClickLength = 256

// WAVSpec describes a fixture file.
type WAVSpec struct {
	SampleRate int
	Channels   int
	BitDepth   int // 8, 16, 24 or 32; defaults to 16
}

// WriteWAV encodes interleaved float samples in [-1, 1] as integer PCM into
// dir/name and returns the full path.
func WriteWAV(t testing.TB, dir, name string, spec WAVSpec, samples []float32) string {
	t.Helper()

	if spec.BitDepth == 0 {
		spec.BitDepth = 16
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	enc := wav.NewEncoder(f, spec.SampleRate, spec.BitDepth, spec.Channels, 1)

	maxVal := float64(int64(1)<<(spec.BitDepth-1) - 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(max(-1, min(1, s))) * maxVal)
		if spec.BitDepth == 8 {
			// 8-bit WAV is unsigned with a 128 midpoint
			v += 128
		}
		data[i] = int(v)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: spec.Channels, SampleRate: spec.SampleRate},
		Data:           data,
		SourceBitDepth: spec.BitDepth,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())

	return path
}

// Sine returns frames of an interleaved sine tone, identical on every channel.
func Sine(frames, channels, sampleRate int, freq, amplitude float64) []float32 {
	out := make([]float32, frames*channels)
	for i := range frames {
		v := float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		for c := range channels {
			out[i*channels+c] = v
		}
	}
	return out
}

// Silence returns frames of interleaved zero samples.
func Silence(frames, channels int) []float32 {
	return make([]float32, frames*channels)
}

// ClickTrack returns an interleaved buffer of the given length with a short
// decaying noise burst starting at each onset frame. The noise is seeded so
// fixtures are reproducible.
func ClickTrack(frames, channels int, onsets []int) []float32 {
	out := make([]float32, frames*channels)
	rng := rand.New(rand.NewPCG(42, 7)) //nolint:gosec // deterministic fixture noise

	for _, onset := range onsets {
		for i := range ClickLength {
			frame := onset + i
			if frame < 0 || frame >= frames {
				continue
			}
			env := math.Exp(-float64(i) / (ClickLength / 4))
			v := float32(0.9 * env * (rng.Float64()*2 - 1))
			for c := range channels {
				out[frame*channels+c] = v
			}
		}
	}
	return out
}
