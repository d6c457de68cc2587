package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/tphakala/automarker/internal/logger"
	"github.com/tphakala/automarker/internal/observability"
)

// newRequestLogger logs one line per request. Status polling is logged at
// debug level so a UI refreshing every frame does not flood the log.
func newRequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			level := logger.LogLevelInfo
			if v.Method == "GET" {
				level = logger.LogLevelDebug
			}
			if v.Status >= 500 {
				level = logger.LogLevelError
			}
			log.Log(level, "request", fields...)
			return nil
		},
	})
}

// newMetricsMiddleware records every request in the HTTP collector. The
// route pattern, not the raw URI, is used as the path label.
func newMetricsMiddleware(m *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// commit the error response so its status is recorded
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.HTTP.RecordHTTPRequest(
				c.Request().Method,
				path,
				c.Response().Status,
				time.Since(start),
				c.Response().Size,
			)
			return err
		}
	}
}

// newLoadRateLimiter limits load requests per client IP. Every accepted
// load cancels and joins the running worker, so a client retrying in a
// tight loop would keep the engine from ever finishing a track.
func newLoadRateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: time.Minute,
	})

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(_ echo.Context, err error) error {
			return &echo.HTTPError{Code: http.StatusForbidden, Message: "client not identified", Internal: err}
		},
		DenyHandler: func(_ echo.Context, _ string, err error) error {
			return &echo.HTTPError{Code: http.StatusTooManyRequests, Message: "too many load requests", Internal: err}
		},
	})
}
