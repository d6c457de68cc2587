package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/automarker/internal/appwatch"
	"github.com/tphakala/automarker/internal/engine"
	"github.com/tphakala/automarker/internal/errors"
	"github.com/tphakala/automarker/internal/logger"
	"github.com/tphakala/automarker/internal/playback"
)

// Transport actions accepted by POST /api/v1/transport/:action.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionToggle = "toggle"
)

// DefaultWaveformBuckets is used when the buckets parameter is omitted.
const DefaultWaveformBuckets = 512

// LoadRequest is the body of POST /load.
type LoadRequest struct {
	Path string `json:"path"`
}

// PositionRequest is the body of PUT /position and POST /seek.
type PositionRequest struct {
	Position *uint64 `json:"position"`
}

// SelectionRequest is the body of PUT /selection.
type SelectionRequest struct {
	Start *uint64 `json:"start"`
	End   *uint64 `json:"end"`
}

// FollowRequest is the body of PUT /follow.
type FollowRequest struct {
	Follow bool `json:"follow"`
}

// TransportResponse reports the transport after a command.
type TransportResponse struct {
	State    string `json:"state"`
	Position uint64 `json:"position"`
}

// SelectionResponse reports the selection after a change.
type SelectionResponse struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// BeatsResponse lists the detected beats of the loaded track.
type BeatsResponse struct {
	Beats      []uint64 `json:"beats"`
	Count      int      `json:"count"`
	SampleRate int      `json:"sample_rate"`
	Channels   int      `json:"channels"`
}

// MarkersResponse lists the beats inside the selection in seconds.
type MarkersResponse struct {
	Markers []float64 `json:"markers"`
	Count   int       `json:"count"`
}

// WaveformResponse holds the peaks of a range of the loaded track.
type WaveformResponse struct {
	From  uint64        `json:"from"`
	To    uint64        `json:"to"`
	Peaks []engine.Peak `json:"peaks"`
}

// ConnectedAppResponse reports the detected editing application.
type ConnectedAppResponse struct {
	App       string `json:"app"`
	Name      string `json:"name,omitempty"`
	Connected bool   `json:"connected"`
}

// GetStatus handles GET /api/v1/status.
func (s *Server) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Snapshot())
}

// LoadFile handles POST /api/v1/load. Loading is asynchronous; poll the
// status route for the result.
func (s *Server) LoadFile(c echo.Context) error {
	var req LoadRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleError(c, err, "invalid request body", http.StatusBadRequest)
	}
	req.Path = strings.TrimSpace(req.Path)
	if req.Path == "" {
		return s.HandleError(c, nil, "path is required", http.StatusBadRequest)
	}

	if err := s.engine.Load(req.Path); err != nil {
		if errors.Is(err, engine.ErrWorkerSpawn) {
			return s.HandleError(c, err, "engine is shutting down", http.StatusServiceUnavailable)
		}
		return s.HandleError(c, err, "failed to start loading", http.StatusInternalServerError)
	}

	s.log.Info("load requested", logger.String("path", req.Path), logger.String("ip", c.RealIP()))
	return c.JSON(http.StatusAccepted, s.engine.Snapshot())
}

// StopProcessing handles POST /api/v1/stop. It cancels the running load
// and unloads the track.
func (s *Server) StopProcessing(c echo.Context) error {
	s.engine.RequestStop()
	return c.JSON(http.StatusOK, s.engine.Snapshot())
}

// Transport handles POST /api/v1/transport/:action.
func (s *Server) Transport(c echo.Context) error {
	action := c.Param("action")
	switch action {
	case ActionStart:
		if !s.engine.StartPlayback() {
			return s.HandleError(c, nil, "playback is not available", http.StatusConflict)
		}
	case ActionStop:
		s.engine.StopPlayback()
	case ActionPause:
		s.engine.PausePlayback()
	case ActionResume:
		s.engine.ResumePlayback()
	case ActionToggle:
		if s.engine.TogglePlayback() == playback.Stopped {
			return s.HandleError(c, nil, "playback is not available", http.StatusConflict)
		}
	default:
		return s.HandleError(c, nil, "unknown transport action "+action, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, s.transportResponse())
}

// SetPosition handles PUT /api/v1/position.
func (s *Server) SetPosition(c echo.Context) error {
	pos, err := s.bindPosition(c)
	if err != nil {
		return err
	}
	s.engine.SetPlaybackPosition(pos)
	return c.JSON(http.StatusOK, s.transportResponse())
}

// Seek handles POST /api/v1/seek. Unlike PUT /position it drops the audio
// already queued on the output.
func (s *Server) Seek(c echo.Context) error {
	pos, err := s.bindPosition(c)
	if err != nil {
		return err
	}
	s.engine.Seek(pos)
	return c.JSON(http.StatusOK, s.transportResponse())
}

// bindPosition returns an *echo.HTTPError for a bad body, which the error
// handler renders.
func (s *Server) bindPosition(c echo.Context) (uint64, error) {
	var req PositionRequest
	if err := c.Bind(&req); err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if req.Position == nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "position is required")
	}
	return *req.Position, nil
}

// SetFollow handles PUT /api/v1/follow.
func (s *Server) SetFollow(c echo.Context) error {
	var req FollowRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleError(c, err, "invalid request body", http.StatusBadRequest)
	}
	s.engine.SetFollowPlayback(req.Follow)
	return c.JSON(http.StatusOK, req)
}

// SetSelection handles PUT /api/v1/selection.
func (s *Server) SetSelection(c echo.Context) error {
	var req SelectionRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleError(c, err, "invalid request body", http.StatusBadRequest)
	}
	if req.Start == nil || req.End == nil {
		return s.HandleError(c, nil, "start and end are required", http.StatusBadRequest)
	}
	if !s.trackLoaded() {
		return s.HandleError(c, nil, "no track loaded", http.StatusConflict)
	}
	s.engine.SetSelection(*req.Start, *req.End)
	return c.JSON(http.StatusOK, s.selectionResponse())
}

// MarkIn handles POST /api/v1/selection/mark-in.
func (s *Server) MarkIn(c echo.Context) error {
	if !s.trackLoaded() {
		return s.HandleError(c, nil, "no track loaded", http.StatusConflict)
	}
	s.engine.MarkIn()
	return c.JSON(http.StatusOK, s.selectionResponse())
}

// MarkOut handles POST /api/v1/selection/mark-out.
func (s *Server) MarkOut(c echo.Context) error {
	if !s.trackLoaded() {
		return s.HandleError(c, nil, "no track loaded", http.StatusConflict)
	}
	s.engine.MarkOut()
	return c.JSON(http.StatusOK, s.selectionResponse())
}

// GetBeats handles GET /api/v1/beats.
func (s *Server) GetBeats(c echo.Context) error {
	beats := s.engine.Beats()
	if beats == nil {
		beats = []uint64{}
	}
	return c.JSON(http.StatusOK, BeatsResponse{
		Beats:      beats,
		Count:      len(beats),
		SampleRate: s.engine.SampleRate(),
		Channels:   s.engine.Channels(),
	})
}

// GetMarkers handles GET /api/v1/markers.
func (s *Server) GetMarkers(c echo.Context) error {
	markers := s.engine.MarkersInSelection()
	if markers == nil {
		markers = []float64{}
	}
	return c.JSON(http.StatusOK, MarkersResponse{Markers: markers, Count: len(markers)})
}

// GetWaveform handles GET /api/v1/waveform?from=&to=&buckets=. Omitted
// bounds cover the whole track.
func (s *Server) GetWaveform(c echo.Context) error {
	total := s.engine.Snapshot().SampleCount
	from, to, buckets := uint64(0), total, DefaultWaveformBuckets

	err := echo.QueryParamsBinder(c).
		Uint64("from", &from).
		Uint64("to", &to).
		Int("buckets", &buckets).
		BindError()
	if err != nil {
		return s.HandleError(c, err, "invalid query parameters", http.StatusBadRequest)
	}
	if buckets <= 0 || buckets > MaxWaveformBuckets {
		return s.HandleError(c, nil, "buckets out of range", http.StatusBadRequest)
	}
	if from > to {
		return s.HandleError(c, nil, "from must not be after to", http.StatusBadRequest)
	}

	peaks := s.engine.Waveform(from, to, buckets)
	if peaks == nil {
		peaks = []engine.Peak{}
	}
	return c.JSON(http.StatusOK, WaveformResponse{From: from, To: min(to, total), Peaks: peaks})
}

// GetFormats handles GET /api/v1/formats.
func (s *Server) GetFormats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"extensions": s.formats()})
}

// GetConnectedApp handles GET /api/v1/connected-app.
func (s *Server) GetConnectedApp(c echo.Context) error {
	app := appwatch.None
	if s.apps != nil {
		app = s.apps.Current()
	}
	return c.JSON(http.StatusOK, ConnectedAppResponse{
		App:       app.String(),
		Name:      app.DisplayName(),
		Connected: app != appwatch.None,
	})
}

func (s *Server) trackLoaded() bool {
	return s.engine.Snapshot().SampleCount > 0
}

func (s *Server) transportResponse() TransportResponse {
	snap := s.engine.Snapshot()
	return TransportResponse{State: snap.Transport, Position: snap.Position}
}

func (s *Server) selectionResponse() SelectionResponse {
	snap := s.engine.Snapshot()
	return SelectionResponse{Start: snap.SelectionStart, End: snap.SelectionEnd}
}
