package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransport_Reset(t *testing.T) {
	t.Parallel()

	tr := &Transport{}
	tr.SetState(Playing)
	tr.SetCursor(42)
	tr.SetSelection(10, 20)

	tr.Reset(1000)
	assert.Equal(t, Stopped, tr.State())
	assert.Zero(t, tr.Cursor())
	start, end := tr.Selection()
	assert.Equal(t, uint64(0), start)
	assert.Equal(t, uint64(1000), end)
}

func TestTransport_SetSelectionBothDirections(t *testing.T) {
	t.Parallel()

	tr := &Transport{}
	tr.Reset(100)

	tr.SetSelection(150, 200)
	start, end := tr.Selection()
	assert.Equal(t, [2]uint64{150, 200}, [2]uint64{start, end})

	tr.SetSelection(10, 20)
	start, end = tr.Selection()
	assert.Equal(t, [2]uint64{10, 20}, [2]uint64{start, end})
}

func TestTransport_StateTransitions(t *testing.T) {
	t.Parallel()

	tr := &Transport{}
	assert.Equal(t, Stopped, tr.State())

	assert.Equal(t, Stopped, tr.SetState(Playing))
	assert.False(t, tr.CompareAndSwapState(Paused, Playing))
	assert.True(t, tr.CompareAndSwapState(Playing, Paused))
	assert.Equal(t, Paused, tr.State())
	assert.Equal(t, "paused", tr.State().String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestTransport_Flags(t *testing.T) {
	t.Parallel()

	tr := &Transport{}
	assert.False(t, tr.StopRequested())
	tr.SetStopRequested(true)
	assert.True(t, tr.StopRequested())

	assert.False(t, tr.FollowPlayback())
	tr.SetFollowPlayback(true)
	assert.True(t, tr.FollowPlayback())
}
