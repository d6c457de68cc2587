package playback

import (
	"github.com/tphakala/automarker/internal/errors"
	"github.com/tphakala/automarker/internal/logger"
)

// Format is the sample layout an output device is opened with. Samples are
// always float32.
type Format struct {
	SampleRate int
	Channels   int
}

// Source produces audio for a device. Fill is called on the device's
// real-time thread.
type Source interface {
	Fill(out []float32, frames int)
}

// Device is an open output stream bound to a Source.
type Device interface {
	// Start begins pulling from the source.
	Start() error
	// Stop pauses pulling. Buffered periods may still play.
	Stop() error
	// Clear drops audio already queued in the device so that the next
	// period comes from the current cursor.
	Clear() error
	// Close stops the device and releases it. After Close returns the
	// source is no longer called.
	Close() error
	// LatencyFrames is the number of frames between Fill and the speaker.
	LatencyFrames() int
}

// OutputFactory opens a device for format bound to src.
type OutputFactory func(format Format, src Source) (Device, error)

// Sentinel errors.
var (
	ErrOutputOpen     = errors.NewStd("audio output open failed")
	ErrUnknownBackend = errors.NewStd("unknown audio backend")
	ErrDeviceNotFound = errors.NewStd("audio output device not found")
)

// GetLogger returns the playback package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("playback")
}
