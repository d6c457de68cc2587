// Package engine owns the lifecycle of a loaded track: it decodes and
// analyzes on a worker goroutine, publishes the result to the playback
// streamer, and exposes the selection and transport controls.
//
// State is split in two groups. ProcessingState, the track and LastError
// are guarded by a mutex and only change on the worker or inside Load,
// RequestStop, Cleanup and Destroy. The cursor, the selection bounds and
// the transport state live in playback.Transport atomics, because the audio
// callback reads them and must never wait on the mutex.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/automarker/internal/analyzer"
	"github.com/tphakala/automarker/internal/decoder"
	"github.com/tphakala/automarker/internal/logger"
	"github.com/tphakala/automarker/internal/observability/metrics"
	"github.com/tphakala/automarker/internal/playback"
)

// Engine is the audio state engine. The zero value is not usable; use New.
type Engine struct {
	// lifecycleMu serializes Load, RequestStop, Cleanup and Destroy.
	lifecycleMu sync.Mutex

	// mu guards the fields below it.
	mu      sync.Mutex
	state   ProcessingState
	lastErr error
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool

	// output is written under mu and read without it.
	output atomic.Pointer[outputRef]

	transport *playback.Transport
	streamer  *playback.Streamer

	decoder    Decoder
	analyzer   BeatAnalyzer
	cache      *analyzer.Cache
	openOutput playback.OutputFactory
	outputSet  bool
	metrics    *metrics.EngineMetrics
	format     decoder.Format
	log        logger.Logger
}

type outputRef struct {
	dev playback.Device
}

// GetLogger returns the engine package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("engine")
}

// New returns an idle Engine.
func New(opts ...Option) *Engine {
	transport := &playback.Transport{}
	e := &Engine{
		state:     Idle{},
		transport: transport,
		streamer:  playback.NewStreamer(transport),
		format:    decoder.DefaultFormat,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.decoder == nil {
		e.decoder = decoder.Default()
	}
	if e.analyzer == nil {
		e.analyzer = analyzer.New(analyzer.DefaultConfig())
	}
	if !e.outputSet {
		e.openOutput = playback.NewMalgoOutput(playback.OutputConfig{})
	}
	if e.log == nil {
		e.log = GetLogger()
	}
	e.metrics.ObserveStreamer(e.streamer.Stats)
	return e
}

// Load starts processing path in the background. A running worker is
// cancelled and joined first, and the current track is released. Progress
// is observed through Status and State.
//
// Load fails only on a destroyed engine.
func (e *Engine) Load(path string) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return closedErr()
	}

	e.stopWorker()
	e.teardown()

	loadID := uuid.NewString()
	ctx, cancel := context.WithCancel(logger.WithTraceID(context.Background(), loadID))
	done := make(chan struct{})

	e.mu.Lock()
	e.state = Decoding{Path: path}
	e.lastErr = nil
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	e.log.WithContext(ctx).Info("loading audio file",
		logger.String("path", path))

	go e.run(ctx, loadID, path, done)
	return nil
}

// RequestStop cancels any running worker, waits for it to exit, and
// releases the output and the track. The engine ends Idle. It is safe to
// call at any time.
func (e *Engine) RequestStop() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.stopWorker() {
		e.log.Debug("processing worker stopped")
	}
	e.teardown()
}

// Cleanup waits for a running worker to finish without cancelling it. The
// published track and output are kept.
func (e *Engine) Cleanup() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if done == nil {
		return
	}

	<-done
	cancel()

	e.mu.Lock()
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
}

// Wait blocks until the running worker exits or ctx is done. Unlike
// Cleanup it neither cancels nor releases the worker handle, so it may be
// called concurrently with the lifecycle operations.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadAndWait loads path and blocks until processing ends. If ctx is done
// first the worker is stopped and ctx's error is returned.
func (e *Engine) LoadAndWait(ctx context.Context, path string) (*Track, error) {
	if err := e.Load(path); err != nil {
		return nil, err
	}
	if err := e.Wait(ctx); err != nil {
		e.RequestStop()
		return nil, err
	}
	if track := e.Track(); track != nil {
		return track, nil
	}
	if err := e.LastError(); err != nil {
		return nil, err
	}
	// stopped by someone else
	return nil, context.Canceled
}

// Destroy stops everything and marks the engine unusable. Later Loads fail
// with ErrWorkerSpawn. Destroy is idempotent and safe without a prior Load.
func (e *Engine) Destroy() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.stopWorker()
	e.teardown()

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.log.Debug("engine destroyed")
}

// stopWorker cancels and joins the running worker. It reports whether a
// worker handle existed. Callers hold lifecycleMu.
func (e *Engine) stopWorker() bool {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if done == nil {
		return false
	}

	e.transport.SetStopRequested(true)
	cancel()
	<-done
	e.transport.SetStopRequested(false)

	e.mu.Lock()
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
	return true
}

// teardown closes the output, then unpublishes the buffer and drops the
// track. The worker must already be joined.
func (e *Engine) teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.transport.SetState(playback.Stopped)
	if ref := e.output.Swap(nil); ref != nil {
		if err := ref.dev.Close(); err != nil {
			e.log.Warn("failed to close audio output", logger.Error(err))
		}
	}
	e.streamer.Unpublish()
	e.transport.Reset(0)
	e.state = Idle{}
}

// run is the worker body: decode, analyze, publish.
func (e *Engine) run(ctx context.Context, loadID, path string, done chan<- struct{}) {
	defer close(done)

	log := e.log.WithContext(ctx)
	started := time.Now()

	audio, err := e.decoder.Decode(ctx, path, e.format)
	if err != nil {
		e.finishFailed(ctx, log, err, path, loadID, stageDecode, time.Since(started))
		return
	}
	decodeTime := time.Since(started)
	e.metrics.RecordStage(metrics.StageDecode, decodeTime)

	if ctx.Err() != nil {
		e.finishCancelled(log, path, stageDecode)
		return
	}

	e.setState(ctx, Analyzing{Path: path})

	analyzeStart := time.Now()
	beats, hit, err := e.analyze(ctx, log, path, audio)
	if err != nil {
		e.finishFailed(ctx, log, err, path, loadID, stageAnalyze, time.Since(analyzeStart))
		return
	}
	analyzeTime := time.Since(analyzeStart)
	if !hit {
		e.metrics.RecordStage(metrics.StageAnalyze, analyzeTime)
	}

	track := &Track{
		LoadID:      loadID,
		Path:        path,
		Audio:       audio,
		Beats:       beats,
		DecodeTime:  decodeTime,
		AnalyzeTime: analyzeTime,
		CacheHit:    hit,
	}

	if !e.publish(ctx, log, track) {
		e.finishCancelled(log, path, stageAnalyze)
		return
	}

	e.metrics.RecordStage(metrics.StageLoad, time.Since(started))
	e.metrics.RecordBeats(len(beats))
	e.metrics.RecordLoad(metrics.ResultCompleted)

	log.Info("audio file ready",
		logger.String("path", path),
		logger.Int("beats", len(beats)),
		logger.Int("channels", audio.Channels),
		logger.Int("sample_rate", audio.SampleRate),
		logger.Duration("duration", audio.Duration()),
		logger.Bool("cache_hit", hit),
		logger.Duration("elapsed", time.Since(started)))
}

// analyze returns the beats of audio, from the cache when possible.
func (e *Engine) analyze(ctx context.Context, log logger.Logger, path string, audio *decoder.Audio) ([]uint64, bool, error) {
	var key string
	if e.cache != nil {
		k, err := analyzer.Key(path, e.format, e.analyzer.Config())
		if err != nil {
			log.Debug("analysis cache key unavailable", logger.Error(err))
		} else {
			key = k
			if beats, ok := e.cache.Get(key); ok {
				e.metrics.RecordCacheLookup(true)
				e.setState(ctx, Analyzing{Path: path, Progress: 1})
				return beats, true, nil
			}
			e.metrics.RecordCacheLookup(false)
		}
	}

	beats, err := e.analyzer.Analyze(ctx, audio, func(p float64) {
		e.setState(ctx, Analyzing{Path: path, Progress: p})
	})
	if err != nil {
		return nil, false, err
	}

	if key != "" {
		e.cache.Set(key, beats)
	}
	return beats, false, nil
}

// publish makes track current and opens the output. It reports false when
// the load was cancelled before publication.
func (e *Engine) publish(ctx context.Context, log logger.Logger, track *Track) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}

	audio := track.Audio
	e.streamer.Publish(playback.NewBuffer(audio.Samples, audio.Channels, audio.SampleRate))
	e.transport.Reset(uint64(len(audio.Samples)))

	if e.openOutput != nil {
		dev, err := e.openOutput(playback.Format{SampleRate: audio.SampleRate, Channels: audio.Channels}, e.streamer)
		if err != nil {
			log.Warn("audio output unavailable, playback disabled", logger.Error(err))
		} else {
			e.output.Store(&outputRef{dev: dev})
		}
	}

	e.state = Completed{Track: track}
	return true
}

// setState replaces the processing state unless the load was cancelled.
func (e *Engine) setState(ctx context.Context, s ProcessingState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ctx.Err() == nil {
		e.state = s
	}
}

func (e *Engine) finishCancelled(log logger.Logger, path string, st stage) {
	e.mu.Lock()
	e.state = Idle{}
	e.mu.Unlock()

	e.metrics.RecordLoad(metrics.ResultCancelled)
	log.Info("audio processing cancelled",
		logger.String("path", path),
		logger.String("stage", string(st)))
}

func (e *Engine) finishFailed(ctx context.Context, log logger.Logger, err error, path, loadID string, st stage, elapsed time.Duration) {
	if isCancellation(ctx, err) {
		e.finishCancelled(log, path, st)
		return
	}

	f := classify(err, st)
	wrapped := f.wrap(err, path, loadID, st, elapsed)

	e.mu.Lock()
	e.state = Idle{}
	e.lastErr = wrapped
	e.mu.Unlock()

	e.metrics.RecordLoad(metrics.ResultFailed)
	e.metrics.RecordLoadError(f.kind)
	log.Error("audio processing failed",
		logger.String("path", path),
		logger.String("stage", string(st)),
		logger.String("kind", f.kind),
		logger.Error(err))
}

// State returns the current processing state.
func (e *Engine) State() ProcessingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns the coarse processing status.
func (e *Engine) Status() Status {
	return e.State().Status()
}

// Progress returns the analysis progress in [0, 1]; 1 once completed.
func (e *Engine) Progress() float64 {
	switch s := e.State().(type) {
	case Analyzing:
		return s.Progress
	case Completed:
		return 1
	default:
		return 0
	}
}

// LastError returns the error of the most recent failed load, or nil. It is
// cleared by the next Load; cancellation never sets it.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Track returns the published track, or nil.
func (e *Engine) Track() *Track {
	if c, ok := e.State().(Completed); ok {
		return c.Track
	}
	return nil
}

// Path returns the file being processed or loaded, or "".
func (e *Engine) Path() string {
	switch s := e.State().(type) {
	case Decoding:
		return s.Path
	case Analyzing:
		return s.Path
	case Completed:
		return s.Track.Path
	default:
		return ""
	}
}

// Beats returns the beat positions of the published track. The slice must
// not be modified.
func (e *Engine) Beats() []uint64 {
	if t := e.Track(); t != nil {
		return t.Beats
	}
	return nil
}

// StreamerStats returns the playback streamer counters.
func (e *Engine) StreamerStats() playback.Stats {
	return e.streamer.Stats()
}
