package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/automarker/internal/appwatch"
	"github.com/tphakala/automarker/internal/decoder"
	"github.com/tphakala/automarker/internal/engine"
	"github.com/tphakala/automarker/internal/logger"
	"github.com/tphakala/automarker/internal/observability"
	"github.com/tphakala/automarker/internal/playback"
)

// Engine is the part of the audio engine driven over HTTP.
type Engine interface {
	Load(path string) error
	RequestStop()
	Snapshot() engine.Snapshot
	Beats() []uint64

	StartPlayback() bool
	StopPlayback()
	PausePlayback()
	ResumePlayback()
	TogglePlayback() playback.State
	TransportState() playback.State

	SetPlaybackPosition(pos uint64)
	Seek(pos uint64)
	SetSelection(start, end uint64)
	MarkIn()
	MarkOut()
	SetFollowPlayback(v bool)

	MarkersInSelection() []float64
	Waveform(from, to uint64, buckets int) []engine.Peak
	SampleRate() int
	Channels() int
}

// AppSource reports the connected editing application.
type AppSource interface {
	Current() appwatch.App
}

// Server serves the control API.
type Server struct {
	echo    *echo.Echo
	config  *Config
	engine  Engine
	apps    AppSource
	metrics *observability.Metrics
	formats func() []string
	log     logger.Logger

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithAppSource sets the connected application source.
func WithAppSource(a AppSource) ServerOption {
	return func(s *Server) { s.apps = a }
}

// WithMetrics sets the metrics instance used for the HTTP collector and
// the /metrics route.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithFormats replaces the source of advertised file extensions.
func WithFormats(fn func() []string) ServerOption {
	return func(s *Server) { s.formats = fn }
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// New creates a server for eng.
func New(config *Config, eng Engine, opts ...ServerOption) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		engine:    eng,
		formats:   decoder.SupportedExtensions,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.httpErrorHandler
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Listen),
		logger.Bool("metrics", config.MetricsEnabled && s.metrics != nil))

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.log))
	if s.metrics != nil {
		s.echo.Use(newMetricsMiddleware(s.metrics))
	}
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.config.MetricsEnabled && s.metrics != nil {
		s.echo.GET(s.config.MetricsPath, echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/health", s.healthCheck)
	v1.GET("/status", s.GetStatus)
	var loadLimit []echo.MiddlewareFunc
	if s.config.LoadRate > 0 {
		loadLimit = append(loadLimit, newLoadRateLimiter(s.config.LoadRate, s.config.LoadBurst))
	}
	v1.POST("/load", s.LoadFile, loadLimit...)
	v1.POST("/stop", s.StopProcessing)

	v1.POST("/transport/:action", s.Transport)
	v1.PUT("/position", s.SetPosition)
	v1.POST("/seek", s.Seek)
	v1.PUT("/follow", s.SetFollow)

	v1.PUT("/selection", s.SetSelection)
	v1.POST("/selection/mark-in", s.MarkIn)
	v1.POST("/selection/mark-out", s.MarkOut)

	v1.GET("/beats", s.GetBeats)
	v1.GET("/markers", s.GetMarkers)
	v1.GET("/waveform", s.GetWaveform)
	v1.GET("/formats", s.GetFormats)
	v1.GET("/connected-app", s.GetConnectedApp)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	s.echo.Listener = l
	go func() {
		errCh <- s.echo.Start("")
	}()

	s.log.Info("HTTP server started", logger.String("address", l.Addr().String()))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	s.log.Info("HTTP server shutdown complete")
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx
// is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, l)
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}
