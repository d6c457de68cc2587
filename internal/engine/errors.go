package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/automarker/internal/analyzer"
	"github.com/tphakala/automarker/internal/decoder"
	"github.com/tphakala/automarker/internal/errors"
)

// Load failures. LastError wraps exactly one of them.
var (
	ErrFileOpen     = errors.NewStd("failed to open audio file")
	ErrDecode       = errors.NewStd("failed to decode audio file")
	ErrAnalysisInit = errors.NewStd("failed to initialize beat analysis")
	ErrWorkerSpawn  = errors.NewStd("failed to start processing worker")
	ErrAllocation   = errors.NewStd("failed to allocate audio buffer")
)

type stage string

const (
	stageDecode  stage = "decode"
	stageAnalyze stage = "analyze"
)

// failure is the classified form of a worker error.
type failure struct {
	sentinel error
	kind     string
	category errors.ErrorCategory
	priority string
}

func classify(err error, st stage) failure {
	switch {
	case errors.Is(err, decoder.ErrFileNotFound):
		// a bad path is user input, not a fault
		return failure{ErrFileOpen, "file_open", errors.CategoryFileIO, errors.PriorityLow}
	case errors.Is(err, decoder.ErrAllocation):
		return failure{ErrAllocation, "allocation", errors.CategoryResource, errors.PriorityHigh}
	case errors.Is(err, decoder.ErrUnsupportedFormat), errors.Is(err, decoder.ErrDecodeFailed):
		return failure{ErrDecode, "decode", errors.CategoryAudioDecode, ""}
	case errors.Is(err, analyzer.ErrAnalysisInit):
		return failure{ErrAnalysisInit, "analysis_init", errors.CategoryAudioAnalysis, errors.PriorityHigh}
	case st == stageDecode:
		return failure{ErrDecode, "decode", errors.CategoryAudioDecode, ""}
	default:
		return failure{ErrAnalysisInit, "analysis_init", errors.CategoryAudioAnalysis, errors.PriorityHigh}
	}
}

// wrap builds the LastError value. elapsed is the time spent in st before
// it failed.
func (f failure) wrap(cause error, path, loadID string, st stage, elapsed time.Duration) error {
	return errors.New(fmt.Errorf("%w: %w", f.sentinel, cause)).
		Component("engine").
		Category(f.category).
		Priority(f.priority).
		Timing(string(st), elapsed).
		FileContext(path, 0).
		Context("load_id", loadID).
		Build()
}

// isCancellation reports whether err means the load was cancelled rather
// than failed.
func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, analyzer.ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.IsCategory(err, errors.CategoryCancellation)
}

func closedErr() error {
	return errors.New(fmt.Errorf("%w: engine destroyed", ErrWorkerSpawn)).
		Component("engine").
		Category(errors.CategoryWorker).
		Context("operation", "load").
		Build()
}
