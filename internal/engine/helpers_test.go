package engine

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/tphakala/automarker/internal/analyzer"
	"github.com/tphakala/automarker/internal/decoder"
	"github.com/tphakala/automarker/internal/logger"
	"github.com/tphakala/automarker/internal/playback"
	"github.com/tphakala/automarker/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

const testRate = 44100

// clickAudio returns a stereo click track with clicks at the given seconds.
func clickAudio(seconds float64, onsets ...float64) *decoder.Audio {
	frames := int(seconds * testRate)
	at := make([]int, len(onsets))
	for i, s := range onsets {
		at[i] = int(s * testRate)
	}
	return &decoder.Audio{
		Samples:    testutil.ClickTrack(frames, 2, at),
		Channels:   2,
		SampleRate: testRate,
	}
}

// rampAudio returns stereo audio whose samples equal their index.
func rampAudio(frames int) *decoder.Audio {
	s := make([]float32, frames*2)
	for i := range s {
		s[i] = float32(i)
	}
	return &decoder.Audio{Samples: s, Channels: 2, SampleRate: testRate}
}

// staticDecoder returns the same audio for every path.
type staticDecoder struct {
	audio *decoder.Audio
	calls atomic.Int32
}

func (d *staticDecoder) Decode(_ context.Context, _ string, _ decoder.Format) (*decoder.Audio, error) {
	d.calls.Add(1)
	return d.audio, nil
}

// gatedDecoder blocks on the paths listed in block until the load is
// cancelled, and decodes every other path to audio.
type gatedDecoder struct {
	audio   *decoder.Audio
	block   map[string]bool
	entered chan string
}

func newGatedDecoder(audio *decoder.Audio, block ...string) *gatedDecoder {
	d := &gatedDecoder{audio: audio, block: map[string]bool{}, entered: make(chan string, 8)}
	for _, p := range block {
		d.block[p] = true
	}
	return d
}

func (d *gatedDecoder) Decode(ctx context.Context, path string, _ decoder.Format) (*decoder.Audio, error) {
	if !d.block[path] {
		return d.audio, nil
	}
	d.entered <- path
	<-ctx.Done()
	return nil, ctx.Err()
}

// blockingAnalyzer reports some progress and then waits for cancellation.
type blockingAnalyzer struct {
	entered chan struct{}
}

func (a *blockingAnalyzer) Analyze(ctx context.Context, _ *decoder.Audio, progress analyzer.ProgressFunc) ([]uint64, error) {
	progress(0.25)
	close(a.entered)
	<-ctx.Done()
	return nil, analyzer.ErrCancelled
}

func (a *blockingAnalyzer) Config() analyzer.Config { return analyzer.DefaultConfig() }

// countingAnalyzer counts the calls that reach the real analyzer.
type countingAnalyzer struct {
	*analyzer.Analyzer
	calls atomic.Int32
}

func (a *countingAnalyzer) Analyze(ctx context.Context, audio *decoder.Audio, progress analyzer.ProgressFunc) ([]uint64, error) {
	a.calls.Add(1)
	return a.Analyzer.Analyze(ctx, audio, progress)
}

// fakeDevice is an output that is pulled by the test instead of a sound
// card.
type fakeDevice struct {
	src      playback.Source
	format   playback.Format
	latency  int
	startErr error

	mu     sync.Mutex
	starts int
	stops  int
	clears int
	closed bool
}

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.starts++
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	return nil
}

func (d *fakeDevice) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears++
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) LatencyFrames() int { return d.latency }

// pull runs one device period.
func (d *fakeDevice) pull(frames int) []float32 {
	out := make([]float32, frames*d.format.Channels)
	d.src.Fill(out, frames)
	return out
}

func (d *fakeDevice) counts() (starts, stops, clears int, closed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.stops, d.clears, d.closed
}

// fakeOutput records every device it opens.
type fakeOutput struct {
	err      error
	latency  int
	startErr error

	mu      sync.Mutex
	devices []*fakeDevice
}

func (o *fakeOutput) open(format playback.Format, src playback.Source) (playback.Device, error) {
	if o.err != nil {
		return nil, o.err
	}
	d := &fakeDevice{src: src, format: format, latency: o.latency, startErr: o.startErr}
	o.mu.Lock()
	o.devices = append(o.devices, d)
	o.mu.Unlock()
	return d, nil
}

func (o *fakeOutput) opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.devices)
}

func (o *fakeOutput) last() *fakeDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.devices) == 0 {
		return nil
	}
	return o.devices[len(o.devices)-1]
}

func newTestEngine(t *testing.T, out *fakeOutput, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil)),
		WithOutputFactory(out.open),
		WithFormat(decoder.Format{SampleRate: testRate, Channels: 2}),
	}
	e := New(append(base, opts...)...)
	t.Cleanup(e.Destroy)
	return e
}

func waitStatus(t *testing.T, e *Engine, want Status) {
	t.Helper()
	testutil.WaitFor(t, testutil.DefaultTestTimeout, func() bool {
		return e.Status() == want
	}, "engine never reached "+want.String())
}

// loadReady loads rampAudio and waits for completion.
func loadReady(t *testing.T, frames int) (*Engine, *fakeOutput) {
	t.Helper()
	out := &fakeOutput{}
	e := newTestEngine(t, out,
		WithDecoder(&staticDecoder{audio: rampAudio(frames)}),
		WithAnalyzer(analyzer.New(analyzer.DefaultConfig())))
	if err := e.Load("ramp.wav"); err != nil {
		t.Fatal(err)
	}
	waitStatus(t, e, StatusCompleted)
	return e, out
}
