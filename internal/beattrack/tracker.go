// Package beattrack detects rhythmic onsets in a mono sample stream using
// spectral flux.
//
// Every HopSize samples the tracker takes the last WindowSize samples,
// applies a Hann window and computes the magnitude spectrum. The flux of a
// frame is the mean positive magnitude change per bin relative to the
// previous frame. A frame is reported as a beat when its flux is a local
// maximum above an adaptive threshold (the mean of recent flux values scaled
// by Threshold, plus Delta) and at least MinInterval has passed since the
// previous beat.
//
// A beat is confirmed one frame after its peak, so Process yields beats
// with a latency of one hop.
package beattrack

import (
	"iter"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Beat is a detected onset.
type Beat struct {
	// Sample is the index, in input samples, of the first sample of the
	// analysis window in which the onset flux peaked. Add
	// Config.CenteringOffset to place it at the window centre.
	Sample uint64
	// Strength is the spectral flux of the peak frame.
	Strength float64
}

// Tracker is a streaming beat detector. It is not safe for concurrent use.
type Tracker struct {
	cfg     Config
	hann    []float64
	ring    []float64 // last WindowSize input samples, oldest at head
	head    int
	frame   []float64
	prevMag []float64

	history    []float64 // recent flux values, circular
	historyPos int
	historyLen int

	consumed uint64 // total samples ingested
	frames   int    // analysis frames computed

	// the frame before the current one, a peak candidate
	prevFlux      float64
	prevThreshold float64
	prevStart     uint64
	prevPrevFlux  float64

	minGap    uint64
	lastBeat  uint64
	haveBeats bool
}

// New returns a Tracker for cfg.
func New(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Tracker{
		cfg:     cfg,
		hann:    window.Hann(cfg.WindowSize),
		ring:    make([]float64, cfg.WindowSize),
		frame:   make([]float64, cfg.WindowSize),
		prevMag: make([]float64, cfg.WindowSize/2+1),
		history: make([]float64, cfg.History),
		minGap:  cfg.minIntervalSamples(),
	}, nil
}

// Config returns the tracker configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Consumed returns the number of samples ingested so far.
func (t *Tracker) Consumed() uint64 {
	return t.consumed
}

// Process returns a sequence of the beats confirmed while ingesting chunk.
//
// The chunk is ingested while the sequence is ranged over, and the sequence
// can be ranged over only once; later iterations yield nothing. If the
// consumer stops early the rest of the chunk is still ingested, but no more
// beats are yielded from it.
func (t *Tracker) Process(chunk []float32) iter.Seq[Beat] {
	used := false
	return func(yield func(Beat) bool) {
		if used {
			return
		}
		used = true

		emit := true
		for _, s := range chunk {
			b, ok := t.push(float64(s))
			if ok && emit && !yield(b) {
				emit = false
			}
		}
	}
}

// Reset clears all stream state while keeping the configuration.
func (t *Tracker) Reset() {
	clear(t.ring)
	clear(t.prevMag)
	clear(t.history)
	t.head, t.historyPos, t.historyLen = 0, 0, 0
	t.consumed, t.frames = 0, 0
	t.prevFlux, t.prevThreshold, t.prevStart, t.prevPrevFlux = 0, 0, 0, 0
	t.lastBeat, t.haveBeats = 0, false
}

// push ingests one sample and reports a beat when one is confirmed.
func (t *Tracker) push(s float64) (Beat, bool) {
	t.ring[t.head] = s
	t.head = (t.head + 1) % len(t.ring)
	t.consumed++

	w := uint64(t.cfg.WindowSize)
	if t.consumed < w || (t.consumed-w)%uint64(t.cfg.HopSize) != 0 {
		return Beat{}, false
	}

	return t.analyze(t.consumed - w)
}

// analyze computes the flux of the frame starting at start and checks
// whether the previous frame was a peak.
func (t *Tracker) analyze(start uint64) (Beat, bool) {
	for i := range t.frame {
		t.frame[i] = t.ring[(t.head+i)%len(t.ring)] * t.hann[i]
	}

	coeffs := fft.FFTReal(t.frame)

	var flux float64
	for k := range t.prevMag {
		mag := cmplx.Abs(coeffs[k])
		if d := mag - t.prevMag[k]; d > 0 {
			flux += d
		}
		t.prevMag[k] = mag
	}
	flux /= float64(len(t.prevMag))

	threshold := t.meanHistory()*t.cfg.Threshold + t.cfg.Delta
	t.pushHistory(flux)

	var (
		beat  Beat
		found bool
	)
	if t.frames > 0 &&
		t.prevFlux > t.prevPrevFlux &&
		t.prevFlux >= flux &&
		t.prevFlux > t.prevThreshold &&
		(!t.haveBeats || t.prevStart-t.lastBeat >= t.minGap) {
		beat = Beat{Sample: t.prevStart, Strength: t.prevFlux}
		found = true
		t.lastBeat = t.prevStart
		t.haveBeats = true
	}

	t.prevPrevFlux = t.prevFlux
	t.prevFlux = flux
	t.prevThreshold = threshold
	t.prevStart = start
	t.frames++

	return beat, found
}

func (t *Tracker) meanHistory() float64 {
	if t.historyLen == 0 {
		return 0
	}
	var sum float64
	for _, v := range t.history[:t.historyLen] {
		sum += v
	}
	return sum / float64(t.historyLen)
}

func (t *Tracker) pushHistory(v float64) {
	t.history[t.historyPos] = v
	t.historyPos = (t.historyPos + 1) % len(t.history)
	if t.historyLen < len(t.history) {
		t.historyLen++
	}
}

// Detect runs a fresh tracker over samples and returns the Beat.Sample
// value of every detected beat, in ascending order.
func Detect(samples []float32, cfg Config) ([]uint64, error) {
	t, err := New(cfg)
	if err != nil {
		return nil, err
	}

	var beats []uint64
	for b := range t.Process(samples) {
		beats = append(beats, b.Sample)
	}
	return beats, nil
}
