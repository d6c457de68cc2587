package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkersInSelection(t *testing.T) {
	t.Parallel()

	audio := clickAudio(4, 0.5, 1.5, 2.5, 3.5)
	e := newTestEngine(t, &fakeOutput{}, WithDecoder(&staticDecoder{audio: audio}))
	require.NoError(t, e.Load("clicks.wav"))
	waitStatus(t, e, StatusCompleted)

	beats := e.Beats()
	require.Len(t, beats, 4)

	all := e.MarkersInSelection()
	require.Len(t, all, 4)
	assert.InDelta(t, float64(beats[0])/(testRate*2), all[0], 1e-9)

	// a selection from the second to the third beat keeps both, measured
	// from the selection start
	e.SetSelection(beats[1], beats[2])
	inner := e.MarkersInSelection()
	require.Len(t, inner, 2)
	assert.InDelta(t, 0, inner[0], 1e-9)
	assert.InDelta(t, float64(beats[2]-beats[1])/(testRate*2), inner[1], 1e-9)
	assert.InDelta(t, 1.0, inner[1], 0.03)
}

func TestMarkersInSelection_NoTrack(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeOutput{})
	assert.Nil(t, e.MarkersInSelection())
	assert.Nil(t, e.Waveform(0, 100, 10))
	assert.Zero(t, e.PositionTime(1000))
}

func TestWaveform(t *testing.T) {
	t.Parallel()

	e, _ := loadReady(t, 100) // samples 0..199

	peaks := e.Waveform(0, 200, 4)
	require.Len(t, peaks, 4)
	assert.Equal(t, Peak{Min: 0, Max: 49}, peaks[0])
	assert.Equal(t, Peak{Min: 150, Max: 199}, peaks[3])

	// more buckets than frames gives one bucket per frame
	few := e.Waveform(10, 16, 100)
	require.Len(t, few, 3)
	assert.Equal(t, Peak{Min: 10, Max: 11}, few[0])

	// range is clamped to the track
	assert.Len(t, e.Waveform(190, 10_000, 5), 5)
	assert.Nil(t, e.Waveform(50, 50, 5))
	assert.Nil(t, e.Waveform(0, 200, 0))
}

func TestPositionTime(t *testing.T) {
	t.Parallel()

	e, _ := loadReady(t, testRate)
	assert.Equal(t, "500ms", e.PositionTime(testRate).String())
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	e, _ := loadReady(t, 1000)
	e.SetSelection(100, 300)
	e.SetPlaybackPosition(150)

	s := e.Snapshot()
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, "ramp.wav", s.Path)
	assert.Equal(t, "stopped", s.Transport)
	assert.Equal(t, uint64(150), s.Position)
	assert.Equal(t, uint64(100), s.SelectionStart)
	assert.Equal(t, uint64(300), s.SelectionEnd)
	assert.Equal(t, uint64(2000), s.SampleCount)
	assert.Equal(t, 2, s.Channels)
	assert.True(t, s.PlaybackReady)
	assert.Empty(t, s.LastError)
}
