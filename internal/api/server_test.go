package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/automarker/internal/appwatch"
	"github.com/tphakala/automarker/internal/engine"
	"github.com/tphakala/automarker/internal/errors"
	"github.com/tphakala/automarker/internal/logger"
	"github.com/tphakala/automarker/internal/observability"
	"github.com/tphakala/automarker/internal/playback"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

// fakeEngine records commands and reports a fixed track of total samples.
type fakeEngine struct {
	mu sync.Mutex

	total    uint64
	loadErr  error
	canPlay  bool
	loaded   []string
	stops    int
	state    playback.State
	cursor   uint64
	seeks    []uint64
	selStart uint64
	selEnd   uint64
	follow   bool
	beats    []uint64
	markers  []float64
	waveArgs [3]uint64
}

func (f *fakeEngine) Load(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded = append(f.loaded, path)
	return nil
}

func (f *fakeEngine) RequestStop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeEngine) Snapshot() engine.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Snapshot{
		Status:         engine.StatusCompleted,
		Transport:      f.state.String(),
		Position:       f.cursor,
		SelectionStart: f.selStart,
		SelectionEnd:   f.selEnd,
		SampleCount:    f.total,
		Channels:       2,
		SampleRate:     44100,
		FollowPlayback: f.follow,
	}
}

func (f *fakeEngine) Beats() []uint64 { return f.beats }

func (f *fakeEngine) StartPlayback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.canPlay {
		return false
	}
	f.state = playback.Playing
	return true
}

func (f *fakeEngine) StopPlayback() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = playback.Stopped
	f.cursor = 0
}

func (f *fakeEngine) PausePlayback() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == playback.Playing {
		f.state = playback.Paused
	}
}

func (f *fakeEngine) ResumePlayback() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == playback.Paused {
		f.state = playback.Playing
	}
}

func (f *fakeEngine) TogglePlayback() playback.State {
	switch f.TransportState() {
	case playback.Playing:
		f.PausePlayback()
	case playback.Paused:
		f.ResumePlayback()
	default:
		f.StartPlayback()
	}
	return f.TransportState()
}

func (f *fakeEngine) TransportState() playback.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEngine) SetPlaybackPosition(pos uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursor = min(pos, f.total)
}

func (f *fakeEngine) Seek(pos uint64) {
	f.SetPlaybackPosition(pos)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, pos)
}

func (f *fakeEngine) SetSelection(start, end uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selStart, f.selEnd = start, end
}

func (f *fakeEngine) MarkIn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selStart = f.cursor
}

func (f *fakeEngine) MarkOut() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selEnd = f.cursor
}

func (f *fakeEngine) SetFollowPlayback(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.follow = v
}

func (f *fakeEngine) MarkersInSelection() []float64 { return f.markers }

func (f *fakeEngine) Waveform(from, to uint64, buckets int) []engine.Peak {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waveArgs = [3]uint64{from, to, uint64(buckets)}
	if f.total == 0 {
		return nil
	}
	return make([]engine.Peak, buckets)
}

func (f *fakeEngine) SampleRate() int { return 44100 }
func (f *fakeEngine) Channels() int   { return 2 }

type fixedApp appwatch.App

func (a fixedApp) Current() appwatch.App { return appwatch.App(a) }

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil)
}

func newTestServer(t *testing.T, eng Engine, opts ...ServerOption) *Server {
	t.Helper()
	opts = append([]ServerOption{WithLogger(quietLogger())}, opts...)
	s, err := New(DefaultConfig("127.0.0.1:0"), eng, opts...)
	require.NoError(t, err)
	return s
}

// do runs one request against the server and decodes a JSON response into
// out when out is not nil.
func do(t *testing.T, s *Server, method, target, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultConfig("127.0.0.1:8765").Validate())
	assert.Error(t, DefaultConfig("nope").Validate())

	cfg := DefaultConfig(":8765")
	cfg.MetricsEnabled = true
	cfg.MetricsPath = "metrics"
	assert.Error(t, cfg.Validate())

	_, err := New(DefaultConfig("bad"), &fakeEngine{})
	assert.Error(t, err)

	cfg = DefaultConfig(":8765")
	cfg.LoadRate = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig(":8765")
	cfg.LoadBurst = 0
	assert.Error(t, cfg.Validate())
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeEngine{})
	for _, target := range []string{"/health", "/api/v1/health"} {
		var body map[string]any
		rec := do(t, s, http.MethodGet, target, "", &body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "healthy", body["status"])
	}
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeEngine{total: 2000, selEnd: 2000})
	var snap engine.Snapshot
	rec := do(t, s, http.MethodGet, "/api/v1/status", "", &snap)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.StatusCompleted, snap.Status)
	assert.Equal(t, uint64(2000), snap.SampleCount)
	assert.Equal(t, "stopped", snap.Transport)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		eng := &fakeEngine{}
		s := newTestServer(t, eng)
		rec := do(t, s, http.MethodPost, "/api/v1/load", `{"path":" /music/track.wav "}`, nil)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, []string{"/music/track.wav"}, eng.loaded)
	})

	t.Run("missing path", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &fakeEngine{})
		var resp ErrorResponse
		rec := do(t, s, http.MethodPost, "/api/v1/load", `{}`, &resp)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "path is required", resp.Message)
		assert.Len(t, resp.CorrelationID, 8)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &fakeEngine{})
		rec := do(t, s, http.MethodPost, "/api/v1/load", `{"path":`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("destroyed engine", func(t *testing.T) {
		t.Parallel()
		eng := &fakeEngine{loadErr: errors.New(engine.ErrWorkerSpawn).Component("engine").Build()}
		s := newTestServer(t, eng)
		rec := do(t, s, http.MethodPost, "/api/v1/load", `{"path":"a.wav"}`, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("other failure", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &fakeEngine{loadErr: assert.AnError})
		rec := do(t, s, http.MethodPost, "/api/v1/load", `{"path":"a.wav"}`, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestLoadFile_RateLimited(t *testing.T) {
	t.Parallel()

	newServer := func(t *testing.T, eng Engine, rate float64, burst int) *Server {
		t.Helper()
		cfg := DefaultConfig("127.0.0.1:0")
		cfg.LoadRate, cfg.LoadBurst = rate, burst
		s, err := New(cfg, eng, WithLogger(quietLogger()))
		require.NoError(t, err)
		return s
	}

	t.Run("burst exhausted", func(t *testing.T) {
		t.Parallel()
		eng := &fakeEngine{}
		s := newServer(t, eng, 0.001, 2)

		for range 2 {
			rec := do(t, s, http.MethodPost, "/api/v1/load", `{"path":"a.wav"}`, nil)
			assert.Equal(t, http.StatusAccepted, rec.Code)
		}

		var resp ErrorResponse
		rec := do(t, s, http.MethodPost, "/api/v1/load", `{"path":"b.wav"}`, &resp)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "too many load requests", resp.Message)
		assert.NotEmpty(t, resp.CorrelationID)
		assert.Equal(t, []string{"a.wav", "a.wav"}, eng.loaded, "the rejected load never reaches the engine")

		// other routes are not limited
		rec = do(t, s, http.MethodPost, "/api/v1/stop", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		eng := &fakeEngine{}
		s := newServer(t, eng, 0, 0)

		for range 10 {
			rec := do(t, s, http.MethodPost, "/api/v1/load", `{"path":"a.wav"}`, nil)
			assert.Equal(t, http.StatusAccepted, rec.Code)
		}
		assert.Len(t, eng.loaded, 10)
	})
}

func TestStopProcessing(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	s := newTestServer(t, eng)
	rec := do(t, s, http.MethodPost, "/api/v1/stop", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, eng.stops)
}

func TestTransport(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{total: 2000, canPlay: true}
	s := newTestServer(t, eng)

	steps := []struct {
		action string
		want   string
	}{
		{ActionStart, "playing"},
		{ActionPause, "paused"},
		{ActionResume, "playing"},
		{ActionToggle, "paused"},
		{ActionToggle, "playing"},
		{ActionStop, "stopped"},
	}
	for _, step := range steps {
		var resp TransportResponse
		rec := do(t, s, http.MethodPost, "/api/v1/transport/"+step.action, "", &resp)
		require.Equal(t, http.StatusOK, rec.Code, step.action)
		assert.Equal(t, step.want, resp.State, step.action)
	}

	rec := do(t, s, http.MethodPost, "/api/v1/transport/rewind", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransport_Unavailable(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeEngine{})
	for _, action := range []string{ActionStart, ActionToggle} {
		rec := do(t, s, http.MethodPost, "/api/v1/transport/"+action, "", nil)
		assert.Equal(t, http.StatusConflict, rec.Code, action)
	}
}

func TestPositionAndSeek(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{total: 2000}
	s := newTestServer(t, eng)

	var resp TransportResponse
	rec := do(t, s, http.MethodPut, "/api/v1/position", `{"position":1200}`, &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1200), resp.Position)

	rec = do(t, s, http.MethodPost, "/api/v1/seek", `{"position":9000}`, &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(2000), resp.Position)
	assert.Equal(t, []uint64{9000}, eng.seeks)

	var errResp ErrorResponse
	rec = do(t, s, http.MethodPut, "/api/v1/position", `{}`, &errResp)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "position is required", errResp.Message)

	rec = do(t, s, http.MethodPost, "/api/v1/seek", `{"position":-1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelection(t *testing.T) {
	t.Parallel()

	t.Run("without track", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &fakeEngine{})
		rec := do(t, s, http.MethodPut, "/api/v1/selection", `{"start":0,"end":10}`, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		rec = do(t, s, http.MethodPost, "/api/v1/selection/mark-in", "", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("set and mark", func(t *testing.T) {
		t.Parallel()
		eng := &fakeEngine{total: 2000}
		s := newTestServer(t, eng)

		var sel SelectionResponse
		rec := do(t, s, http.MethodPut, "/api/v1/selection", `{"start":100,"end":500}`, &sel)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, SelectionResponse{Start: 100, End: 500}, sel)

		rec = do(t, s, http.MethodPut, "/api/v1/selection", `{"start":100}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		eng.SetPlaybackPosition(300)
		do(t, s, http.MethodPost, "/api/v1/selection/mark-in", "", &sel)
		assert.Equal(t, uint64(300), sel.Start)
		eng.SetPlaybackPosition(900)
		do(t, s, http.MethodPost, "/api/v1/selection/mark-out", "", &sel)
		assert.Equal(t, SelectionResponse{Start: 300, End: 900}, sel)
	})
}

func TestSetFollow(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	s := newTestServer(t, eng)
	rec := do(t, s, http.MethodPut, "/api/v1/follow", `{"follow":true}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, eng.Snapshot().FollowPlayback)
}

func TestBeatsAndMarkers(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &fakeEngine{})
		rec := do(t, s, http.MethodGet, "/api/v1/beats", "", nil)
		assert.JSONEq(t, `{"beats":[],"count":0,"sample_rate":44100,"channels":2}`, rec.Body.String())
		rec = do(t, s, http.MethodGet, "/api/v1/markers", "", nil)
		assert.JSONEq(t, `{"markers":[],"count":0}`, rec.Body.String())
	})

	t.Run("loaded", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &fakeEngine{beats: []uint64{1024, 89224}, markers: []float64{0, 1}})
		var beats BeatsResponse
		do(t, s, http.MethodGet, "/api/v1/beats", "", &beats)
		assert.Equal(t, []uint64{1024, 89224}, beats.Beats)
		assert.Equal(t, 2, beats.Count)

		var markers MarkersResponse
		do(t, s, http.MethodGet, "/api/v1/markers", "", &markers)
		assert.Equal(t, []float64{0, 1}, markers.Markers)
	})
}

func TestGetWaveform(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{total: 2000}
	s := newTestServer(t, eng)

	var resp WaveformResponse
	rec := do(t, s, http.MethodGet, "/api/v1/waveform", "", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Peaks, DefaultWaveformBuckets)
	assert.Equal(t, [3]uint64{0, 2000, DefaultWaveformBuckets}, eng.waveArgs)

	rec = do(t, s, http.MethodGet, "/api/v1/waveform?from=100&to=5000&buckets=8", "", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Peaks, 8)
	assert.Equal(t, uint64(2000), resp.To)

	for _, q := range []string{"from=x", "buckets=0", "buckets=100000", "from=10&to=5"} {
		rec = do(t, s, http.MethodGet, "/api/v1/waveform?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	empty := newTestServer(t, &fakeEngine{})
	rec = do(t, empty, http.MethodGet, "/api/v1/waveform", "", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.Peaks)
}

func TestGetFormats(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeEngine{}, WithFormats(func() []string { return []string{".flac", ".wav"} }))
	rec := do(t, s, http.MethodGet, "/api/v1/formats", "", nil)
	assert.JSONEq(t, `{"extensions":[".flac",".wav"]}`, rec.Body.String())

	def := newTestServer(t, &fakeEngine{})
	var body map[string][]string
	do(t, def, http.MethodGet, "/api/v1/formats", "", &body)
	assert.Contains(t, body["extensions"], ".wav")
}

func TestGetConnectedApp(t *testing.T) {
	t.Parallel()

	var resp ConnectedAppResponse
	do(t, newTestServer(t, &fakeEngine{}), http.MethodGet, "/api/v1/connected-app", "", &resp)
	assert.Equal(t, ConnectedAppResponse{App: "none"}, resp)

	s := newTestServer(t, &fakeEngine{}, WithAppSource(fixedApp(appwatch.Resolve)))
	do(t, s, http.MethodGet, "/api/v1/connected-app", "", &resp)
	assert.Equal(t, ConnectedAppResponse{App: "resolve", Name: "DaVinci Resolve", Connected: true}, resp)
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	var resp ErrorResponse
	rec := do(t, newTestServer(t, &fakeEngine{}), http.MethodGet, "/api/v1/nothing", "", &resp)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	cfg := DefaultConfig("127.0.0.1:0")
	cfg.MetricsEnabled = true
	s, err := New(cfg, &fakeEngine{}, WithLogger(quietLogger()), WithMetrics(m))
	require.NoError(t, err)

	do(t, s, http.MethodGet, "/api/v1/status", "", nil)
	do(t, s, http.MethodPost, "/api/v1/load", `{}`, nil)

	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTP, "http_requests_total"))

	rec := do(t, s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `path="/api/v1/load"`)
	assert.Contains(t, rec.Body.String(), `status_code="400"`)
}

func TestServe_ShutsDownWithContext(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeEngine{})
	var lc net.ListenConfig
	l, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	url := "http://" + l.Addr().String() + "/health"
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
}
