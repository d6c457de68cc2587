package playback

import "sync/atomic"

// State is the transport mode.
type State int32

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Transport holds every field that the audio callback and the control side
// both touch. All positions are interleaved sample indices.
//
// Transport performs no validation; callers keep the selection ordered and
// inside the published buffer. The streamer tolerates a stale or
// inconsistent selection for one period.
type Transport struct {
	cursor   atomic.Uint64
	selStart atomic.Uint64
	selEnd   atomic.Uint64
	state    atomic.Int32

	stopRequested atomic.Bool
	follow        atomic.Bool
}

// Cursor returns the play position.
func (t *Transport) Cursor() uint64 { return t.cursor.Load() }

// SetCursor stores the play position.
func (t *Transport) SetCursor(pos uint64) { t.cursor.Store(pos) }

// CompareAndSwapCursor stores next only if the cursor still equals prev.
func (t *Transport) CompareAndSwapCursor(prev, next uint64) bool {
	return t.cursor.CompareAndSwap(prev, next)
}

// Selection returns the selection bounds. The two loads are not atomic as a
// pair.
func (t *Transport) Selection() (start, end uint64) {
	return t.selStart.Load(), t.selEnd.Load()
}

// SetSelection stores both bounds. The end is written first when the
// selection grows to the right so that readers are less likely to see
// start >= end.
func (t *Transport) SetSelection(start, end uint64) {
	if start >= t.selEnd.Load() {
		t.selEnd.Store(end)
		t.selStart.Store(start)
		return
	}
	t.selStart.Store(start)
	t.selEnd.Store(end)
}

// State returns the transport mode.
func (t *Transport) State() State { return State(t.state.Load()) }

// SetState stores the transport mode and returns the previous one.
func (t *Transport) SetState(s State) State {
	return State(t.state.Swap(int32(s)))
}

// CompareAndSwapState moves from prev to next if the mode is still prev.
func (t *Transport) CompareAndSwapState(prev, next State) bool {
	return t.state.CompareAndSwap(int32(prev), int32(next))
}

// StopRequested reports whether a stop of the processing worker is pending.
func (t *Transport) StopRequested() bool { return t.stopRequested.Load() }

// SetStopRequested sets or clears the pending stop flag.
func (t *Transport) SetStopRequested(v bool) { t.stopRequested.Store(v) }

// FollowPlayback reports whether the UI view should track the cursor.
func (t *Transport) FollowPlayback() bool { return t.follow.Load() }

// SetFollowPlayback sets the follow flag.
func (t *Transport) SetFollowPlayback(v bool) { t.follow.Store(v) }

// Reset stops the transport, rewinds the cursor and selects [0, total).
func (t *Transport) Reset(total uint64) {
	t.state.Store(int32(Stopped))
	t.cursor.Store(0)
	t.selStart.Store(0)
	t.selEnd.Store(total)
}
