package engine

import "time"

// MarkersInSelection returns the beats inside the selection as offsets in
// seconds from the selection start. Both bounds are inclusive.
func (e *Engine) MarkersInSelection() []float64 {
	buf := e.streamer.Buffer()
	beats := e.Beats()
	if buf == nil || len(beats) == 0 || buf.SampleRate <= 0 || buf.Channels <= 0 {
		return nil
	}

	start, end := e.transport.Selection()
	perSecond := float64(buf.SampleRate) * float64(buf.Channels)

	var markers []float64
	for _, b := range beats {
		if b < start {
			continue
		}
		if b > end {
			break
		}
		markers = append(markers, float64(b-start)/perSecond)
	}
	return markers
}

// PositionTime converts an interleaved sample index of the published track
// to a time offset.
func (e *Engine) PositionTime(pos uint64) time.Duration {
	buf := e.streamer.Buffer()
	if buf == nil || buf.SampleRate <= 0 || buf.Channels <= 0 {
		return 0
	}
	frames := pos / uint64(buf.Channels)
	return time.Duration(float64(frames) / float64(buf.SampleRate) * float64(time.Second))
}

// Peak is the sample range of one waveform bucket across all channels.
type Peak struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

// Waveform splits the interleaved range [from, to) of the published track
// into buckets of whole frames and returns the peak of each. The range is
// clamped to the track; an empty range or no track yields nil.
func (e *Engine) Waveform(from, to uint64, buckets int) []Peak {
	buf := e.streamer.Buffer()
	if buf == nil || buf.Channels <= 0 || buckets <= 0 {
		return nil
	}

	ch := uint64(buf.Channels)
	total := buf.Len()
	to = min(to, total)
	from = min(from, to)
	from -= from % ch
	to -= to % ch
	frames := (to - from) / ch
	if frames == 0 {
		return nil
	}
	buckets = int(min(uint64(buckets), frames))

	peaks := make([]Peak, buckets)
	for i := range peaks {
		lo := from + frames*uint64(i)/uint64(buckets)*ch
		hi := from + frames*uint64(i+1)/uint64(buckets)*ch
		p := Peak{Min: buf.Samples[lo], Max: buf.Samples[lo]}
		for _, s := range buf.Samples[lo:hi] {
			p.Min = min(p.Min, s)
			p.Max = max(p.Max, s)
		}
		peaks[i] = p
	}
	return peaks
}

// Snapshot is a consistent-enough view of the engine for status displays.
// Fields from the two state groups are read separately.
type Snapshot struct {
	Status          Status  `json:"status"`
	Path            string  `json:"path,omitempty"`
	Progress        float64 `json:"progress"`
	LastError       string  `json:"last_error,omitempty"`
	Transport       string  `json:"transport"`
	Position        uint64  `json:"position"`
	DisplayPosition uint64  `json:"display_position"`
	SelectionStart  uint64  `json:"selection_start"`
	SelectionEnd    uint64  `json:"selection_end"`
	SampleCount     uint64  `json:"sample_count"`
	Channels        int     `json:"channels"`
	SampleRate      int     `json:"sample_rate"`
	Beats           int     `json:"beats"`
	PlaybackReady   bool    `json:"playback_ready"`
	FollowPlayback  bool    `json:"follow_playback"`
}

// Snapshot collects the current status.
func (e *Engine) Snapshot() Snapshot {
	state := e.State()
	s := Snapshot{
		Status:          state.Status(),
		Path:            e.Path(),
		Progress:        e.Progress(),
		Transport:       e.transport.State().String(),
		Position:        e.transport.Cursor(),
		DisplayPosition: e.DisplayPosition(),
		SampleCount:     e.SampleCount(),
		Channels:        e.Channels(),
		SampleRate:      e.SampleRate(),
		PlaybackReady:   e.PlaybackAvailable(),
		FollowPlayback:  e.transport.FollowPlayback(),
	}
	s.SelectionStart, s.SelectionEnd = e.transport.Selection()
	if c, ok := state.(Completed); ok {
		s.Beats = len(c.Track.Beats)
	}
	if err := e.LastError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}
