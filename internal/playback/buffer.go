package playback

// Buffer is a published, read-only view of a decoded track.
type Buffer struct {
	Samples    []float32 // interleaved
	Channels   int
	SampleRate int
}

// NewBuffer returns a Buffer over samples. Trailing samples that do not
// form a whole frame are excluded.
func NewBuffer(samples []float32, channels, sampleRate int) *Buffer {
	if channels > 0 {
		samples = samples[:len(samples)-len(samples)%channels]
	}
	return &Buffer{Samples: samples, Channels: channels, SampleRate: sampleRate}
}

// Len returns the number of interleaved samples.
func (b *Buffer) Len() uint64 {
	if b == nil {
		return 0
	}
	return uint64(len(b.Samples))
}

// playable reports whether the buffer holds at least one whole frame.
func (b *Buffer) playable() bool {
	return b != nil && b.Channels > 0 && len(b.Samples) >= b.Channels
}
