package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/automarker/internal/conf"
)

func TestBackendsFor(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", conf.BackendAuto, conf.BackendALSA, "PulseAudio", conf.BackendWASAPI, conf.BackendCoreAudio, conf.BackendNull} {
		_, err := backendsFor(name)
		assert.NoError(t, err, name)
	}

	one, err := backendsFor(conf.BackendNull)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = backendsFor("jack")
	require.ErrorIs(t, err, ErrUnknownBackend)
}

func TestSelectDevice(t *testing.T) {
	t.Parallel()

	entries := []deviceEntry{
		{name: "HDA Intel PCH, ALC892 Analog", id: ":0,0"},
		{name: "USB Audio Device", id: ":1,0", isDefault: true},
		{name: "HDMI Output", id: ":0,3"},
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 1},
		{"default", 1},
		{"HDMI Output", 2},
		{":0,0", 0},
		{"usb audio", 1},
	}
	for _, tt := range tests {
		got, err := selectDevice(entries, tt.query)
		require.NoError(t, err, tt.query)
		assert.Equal(t, tt.want, got, tt.query)
	}

	// no default flagged falls back to the first device
	got, err := selectDevice(entries[2:], "")
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	_, err = selectDevice(entries, "bluetooth")
	require.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = selectDevice(nil, "")
	require.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestHexToASCII(t *testing.T) {
	t.Parallel()

	s, err := hexToASCII("3a302c30")
	require.NoError(t, err)
	assert.Equal(t, ":0,0", s)

	_, err = hexToASCII("zz")
	assert.Error(t, err)
}
