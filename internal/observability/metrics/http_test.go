package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordHTTPRequest(http.MethodGet, "/api/v1/status", 200, 3*time.Millisecond, 512)
	m.RecordHTTPRequest(http.MethodPost, "/api/v1/load", 400, time.Millisecond, 64)
	m.RecordHTTPRequest(http.MethodPost, "/api/v1/load", 500, time.Millisecond, -1)

	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/status", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequestErrors.WithLabelValues(http.MethodPost, "/api/v1/load", "client")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequestErrors.WithLabelValues(http.MethodPost, "/api/v1/load", "server")), 0)

	var nilMetrics *HTTPMetrics
	assert.NotPanics(t, func() {
		nilMetrics.RecordHTTPRequest(http.MethodGet, "/", 200, 0, 0)
	})
}
