package engine

import (
	"github.com/tphakala/automarker/internal/logger"
	"github.com/tphakala/automarker/internal/playback"
)

// Selection and transport controls. None of these take the engine mutex;
// they read the published buffer and the output through atomic pointers
// and write playback.Transport atomics.

// SampleCount returns the number of interleaved samples of the published
// track, or 0.
func (e *Engine) SampleCount() uint64 {
	return e.streamer.Buffer().Len()
}

// Channels returns the channel count of the published track, or 0.
func (e *Engine) Channels() int {
	if b := e.streamer.Buffer(); b != nil {
		return b.Channels
	}
	return 0
}

// SampleRate returns the sample rate of the published track, or 0.
func (e *Engine) SampleRate() int {
	if b := e.streamer.Buffer(); b != nil {
		return b.SampleRate
	}
	return 0
}

// Selection returns the selection bounds as interleaved sample indices.
func (e *Engine) Selection() (start, end uint64) {
	return e.transport.Selection()
}

// SetSelectionStart moves the selection start to pos.
func (e *Engine) SetSelectionStart(pos uint64) {
	_, end := e.transport.Selection()
	e.SetSelection(pos, end)
}

// SetSelectionEnd moves the selection end to pos.
func (e *Engine) SetSelectionEnd(pos uint64) {
	start, _ := e.transport.Selection()
	e.SetSelection(start, pos)
}

// SetSelection sets both bounds. They are clamped to the track, aligned to
// whole frames and kept at least one frame apart. Without a track it does
// nothing.
func (e *Engine) SetSelection(start, end uint64) {
	buf := e.streamer.Buffer()
	if buf == nil || buf.Channels <= 0 {
		return
	}
	start, end = normalizeSelection(start, end, buf.Len(), uint64(buf.Channels))
	e.transport.SetSelection(start, end)
}

// normalizeSelection clamps both bounds to [0, total] on frame boundaries
// and guarantees start < end by pushing the end one frame past the start.
// A start at the very end of the track selects the last frame.
func normalizeSelection(start, end, total, ch uint64) (uint64, uint64) {
	if total < ch {
		return 0, total
	}
	start = min(start, total)
	end = min(end, total)
	start -= start % ch
	end -= end % ch

	if start < end {
		return start, end
	}

	end = start + ch
	if end > total {
		end = total
		start = total - ch
	}
	return start, end
}

// MarkIn moves the selection start to the cursor.
func (e *Engine) MarkIn() {
	e.SetSelectionStart(e.transport.Cursor())
}

// MarkOut moves the selection end to the cursor. A mark at or before the
// selection start yields a one-frame selection.
func (e *Engine) MarkOut() {
	e.SetSelectionEnd(e.transport.Cursor())
}

// PlaybackPosition returns the cursor.
func (e *Engine) PlaybackPosition() uint64 {
	return e.transport.Cursor()
}

// SetPlaybackPosition stores pos, clamped to the track length, as the
// cursor. Queued output is not dropped; use Seek for that.
func (e *Engine) SetPlaybackPosition(pos uint64) {
	e.transport.SetCursor(min(pos, e.SampleCount()))
}

// Seek moves the cursor to pos, clamped to the track length, and drops the
// audio the device has already queued so playback continues from pos.
func (e *Engine) Seek(pos uint64) {
	e.SetPlaybackPosition(pos)
	if dev := e.device(); dev != nil && e.transport.State() == playback.Playing {
		if err := dev.Clear(); err != nil {
			e.log.Warn("failed to clear audio output after seek", logger.Error(err))
		}
	}
}

// DisplayPosition is the cursor corrected for output latency, which is
// what the listener currently hears.
func (e *Engine) DisplayPosition() uint64 {
	cursor := e.transport.Cursor()
	dev := e.device()
	if dev == nil || e.transport.State() != playback.Playing {
		return cursor
	}
	lag := uint64(dev.LatencyFrames()) * uint64(max(e.Channels(), 1))
	if lag > cursor {
		return 0
	}
	return cursor - lag
}

// TransportState returns the transport mode.
func (e *Engine) TransportState() playback.State {
	return e.transport.State()
}

// PlaybackAvailable reports whether a track is published with an open
// output.
func (e *Engine) PlaybackAvailable() bool {
	return e.streamer.Buffer() != nil && e.device() != nil
}

// StartPlayback starts the transport. Starting from Stopped with the cursor
// at 0 begins at the selection start. It returns false when no track or no
// output is available.
func (e *Engine) StartPlayback() bool {
	dev := e.device()
	if e.streamer.Buffer() == nil || dev == nil {
		return false
	}

	prev := e.transport.State()
	if prev == playback.Playing {
		return true
	}
	if prev == playback.Stopped && e.transport.Cursor() == 0 {
		start, _ := e.transport.Selection()
		e.transport.SetCursor(start)
	}

	e.transport.SetState(playback.Playing)
	if err := dev.Start(); err != nil {
		e.transport.SetState(prev)
		e.log.Warn("failed to start audio output", logger.Error(err))
		return false
	}
	e.metrics.RecordTransport(prev.String(), playback.Playing.String())
	return true
}

// PausePlayback pauses a playing transport and keeps the cursor.
func (e *Engine) PausePlayback() {
	if !e.transport.CompareAndSwapState(playback.Playing, playback.Paused) {
		return
	}
	if dev := e.device(); dev != nil {
		if err := dev.Stop(); err != nil {
			e.log.Warn("failed to pause audio output", logger.Error(err))
		}
	}
	e.metrics.RecordTransport(playback.Playing.String(), playback.Paused.String())
}

// ResumePlayback continues a paused transport.
func (e *Engine) ResumePlayback() {
	dev := e.device()
	if dev == nil || !e.transport.CompareAndSwapState(playback.Paused, playback.Playing) {
		return
	}
	if err := dev.Start(); err != nil {
		e.transport.SetState(playback.Paused)
		e.log.Warn("failed to resume audio output", logger.Error(err))
		return
	}
	e.metrics.RecordTransport(playback.Paused.String(), playback.Playing.String())
}

// TogglePlayback behaves like a play/pause button and returns the new
// transport mode.
func (e *Engine) TogglePlayback() playback.State {
	switch e.transport.State() {
	case playback.Playing:
		e.PausePlayback()
	case playback.Paused:
		e.ResumePlayback()
	default:
		e.StartPlayback()
	}
	return e.transport.State()
}

// StopPlayback stops the transport and rewinds the cursor to 0.
func (e *Engine) StopPlayback() {
	prev := e.transport.SetState(playback.Stopped)
	if dev := e.device(); dev != nil && prev != playback.Stopped {
		if err := dev.Stop(); err != nil {
			e.log.Warn("failed to stop audio output", logger.Error(err))
		}
	}
	e.transport.SetCursor(0)
	e.metrics.RecordTransport(prev.String(), playback.Stopped.String())
}

// FollowPlayback reports whether views should track the cursor.
func (e *Engine) FollowPlayback() bool {
	return e.transport.FollowPlayback()
}

// SetFollowPlayback sets whether views should track the cursor.
func (e *Engine) SetFollowPlayback(v bool) {
	e.transport.SetFollowPlayback(v)
}

// StopRequested reports whether a worker stop is in progress.
func (e *Engine) StopRequested() bool {
	return e.transport.StopRequested()
}

func (e *Engine) device() playback.Device {
	if ref := e.output.Load(); ref != nil {
		return ref.dev
	}
	return nil
}
