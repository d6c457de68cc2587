package beattrack

import (
	"fmt"
	"time"

	"github.com/tphakala/automarker/internal/errors"
)

// Defaults used by DefaultConfig.
const (
	DefaultWindowSize  = 1024
	DefaultHopSize     = 128
	DefaultThreshold   = 1.5
	DefaultDelta       = 0.01
	DefaultHistory     = 16
	DefaultMinInterval = 250 * time.Millisecond
)

// ErrInvalidConfig is wrapped by every configuration validation error.
var ErrInvalidConfig = errors.NewStd("invalid beat tracker configuration")

// Config parameterizes a Tracker.
type Config struct {
	SampleRate  int           // mono sample rate of the input
	WindowSize  int           // FFT size in samples, power of two
	HopSize     int           // samples between analysis frames
	Threshold   float64       // multiplier applied to the running mean flux
	Delta       float64       // absolute floor added to the adaptive threshold
	History     int           // number of past flux values in the running mean
	MinInterval time.Duration // refractory period after a beat
}

// DefaultConfig returns the standard configuration for sampleRate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:  sampleRate,
		WindowSize:  DefaultWindowSize,
		HopSize:     DefaultHopSize,
		Threshold:   DefaultThreshold,
		Delta:       DefaultDelta,
		History:     DefaultHistory,
		MinInterval: DefaultMinInterval,
	}
}

// CenteringOffset is the number of samples between Beat.Sample (the first
// sample of the analysis window) and the window centre, which is where a
// caller should place the beat on the timeline.
func (c Config) CenteringOffset() int {
	return c.WindowSize / 2
}

// minIntervalSamples converts MinInterval to samples at the configured rate.
func (c Config) minIntervalSamples() uint64 {
	return uint64(c.MinInterval.Seconds() * float64(c.SampleRate))
}

// Validate reports whether the configuration can drive a Tracker.
func (c Config) Validate() error {
	var problem string
	switch {
	case c.SampleRate <= 0:
		problem = fmt.Sprintf("sample rate must be positive, got %d", c.SampleRate)
	case c.WindowSize < 4 || c.WindowSize&(c.WindowSize-1) != 0:
		problem = fmt.Sprintf("window size must be a power of two >= 4, got %d", c.WindowSize)
	case c.HopSize <= 0 || c.HopSize > c.WindowSize:
		problem = fmt.Sprintf("hop size must be in [1, %d], got %d", c.WindowSize, c.HopSize)
	case c.Threshold <= 0:
		problem = fmt.Sprintf("threshold must be positive, got %v", c.Threshold)
	case c.Delta < 0:
		problem = fmt.Sprintf("delta must not be negative, got %v", c.Delta)
	case c.History <= 0:
		problem = fmt.Sprintf("history must be positive, got %d", c.History)
	case c.MinInterval < 0:
		problem = fmt.Sprintf("minimum interval must not be negative, got %s", c.MinInterval)
	default:
		return nil
	}

	return errors.New(fmt.Errorf("%w: %s", ErrInvalidConfig, problem)).
		Component("beattrack").
		Category(errors.CategoryValidation).
		Context("window_size", c.WindowSize).
		Context("hop_size", c.HopSize).
		Build()
}
