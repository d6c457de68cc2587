package engine

import (
	"fmt"
	"time"

	"github.com/tphakala/automarker/internal/decoder"
)

// Status is the coarse processing status shown to the user.
type Status int

const (
	StatusIdle Status = iota
	StatusDecoding
	StatusAnalyzing
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusDecoding:
		return "decoding"
	case StatusAnalyzing:
		return "analyzing"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for _, v := range []Status{StatusIdle, StatusDecoding, StatusAnalyzing, StatusCompleted} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Track is a fully processed file. It is immutable once published.
type Track struct {
	LoadID string
	Path   string
	Audio  *decoder.Audio
	Beats  []uint64 // ascending interleaved sample indices

	DecodeTime  time.Duration
	AnalyzeTime time.Duration
	CacheHit    bool
}

// ProcessingState is one of Idle, Decoding, Analyzing or Completed.
type ProcessingState interface {
	Status() Status
	isProcessingState()
}

// Idle means no track is loaded and no worker is running.
type Idle struct{}

// Decoding means the worker is reading Path.
type Decoding struct {
	Path string
}

// Analyzing means the worker is detecting beats; Progress is in [0, 1].
type Analyzing struct {
	Path     string
	Progress float64
}

// Completed holds the published track.
type Completed struct {
	Track *Track
}

func (Idle) Status() Status      { return StatusIdle }
func (Decoding) Status() Status  { return StatusDecoding }
func (Analyzing) Status() Status { return StatusAnalyzing }
func (Completed) Status() Status { return StatusCompleted }

func (Idle) isProcessingState()      {}
func (Decoding) isProcessingState()  {}
func (Analyzing) isProcessingState() {}
func (Completed) isProcessingState() {}
