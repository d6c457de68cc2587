// Package playback streams a published track to an audio output device.
//
// The Streamer's Fill method runs on the device's real-time callback. It
// reads only atomics and the immutable published Buffer; it never blocks,
// allocates or logs.
package playback

import "sync/atomic"

// Streamer loops the current selection of the published buffer.
type Streamer struct {
	transport *Transport
	buf       atomic.Pointer[Buffer]

	silentFills atomic.Uint64
	wraps       atomic.Uint64
	framesOut   atomic.Uint64
}

// NewStreamer returns a Streamer driven by t.
func NewStreamer(t *Transport) *Streamer {
	return &Streamer{transport: t}
}

// Transport returns the transport the streamer reads.
func (s *Streamer) Transport() *Transport { return s.transport }

// Publish makes b the buffer played by subsequent fills. b must not be
// modified afterwards.
func (s *Streamer) Publish(b *Buffer) { s.buf.Store(b) }

// Unpublish removes the buffer. The output device must be stopped first;
// a callback already running keeps the buffer it loaded.
func (s *Streamer) Unpublish() { s.buf.Store(nil) }

// Buffer returns the published buffer, or nil.
func (s *Streamer) Buffer() *Buffer { return s.buf.Load() }

// Fill writes frames interleaved frames into out.
//
// When nothing is published or the transport is not playing, out is zeroed.
// Otherwise samples are copied from the cursor; reaching the selection end
// wraps to the selection start as many times as needed. The new cursor is
// stored only if no one moved the cursor during the fill, so a concurrent
// seek is never overwritten.
func (s *Streamer) Fill(out []float32, frames int) {
	buf := s.buf.Load()
	if !buf.playable() || s.transport.State() != Playing || frames <= 0 {
		clear(out)
		s.silentFills.Add(1)
		return
	}

	ch := uint64(buf.Channels)
	total := uint64(len(buf.Samples))
	n := min(frames*buf.Channels, len(out))

	start, end := s.transport.Selection()
	start -= start % ch
	end -= end % ch
	end = min(end, total)
	if start >= end {
		start, end = 0, total
	}

	prev := s.transport.Cursor()
	pos := prev - prev%ch
	if pos >= end || pos >= total {
		pos = start
		s.wraps.Add(1)
	}

	written := 0
	for written < n {
		chunk := min(int(end-pos), n-written)
		copy(out[written:written+chunk], buf.Samples[pos:pos+uint64(chunk)])
		written += chunk
		pos += uint64(chunk)
		if pos >= end {
			pos = start
			s.wraps.Add(1)
		}
	}
	clear(out[n:])

	s.framesOut.Add(uint64(n) / ch)
	s.transport.CompareAndSwapCursor(prev, pos)
}

// Stats is a snapshot of the streamer counters.
type Stats struct {
	SilentFills uint64 `json:"silent_fills"`
	Wraps       uint64 `json:"wraps"`
	FramesOut   uint64 `json:"frames_out"`
}

// Stats returns the counters accumulated since the streamer was created.
func (s *Streamer) Stats() Stats {
	return Stats{
		SilentFills: s.silentFills.Load(),
		Wraps:       s.wraps.Load(),
		FramesOut:   s.framesOut.Load(),
	}
}
