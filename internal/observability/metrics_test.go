package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCountersTrackLifecycle(t *testing.T) {
	m := NewMetrics("proctor", prometheus.NewRegistry())

	m.SessionStarted()
	m.SessionStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSessions))

	m.SessionFinalized("flagged", 20, 90*time.Minute)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionEvents.WithLabelValues("flagged")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionEvents.WithLabelValues("started")))

	m.Detection("head_movement")
	m.Advisory("excessive_movement")
	m.Auth("granted")
	m.WS("out", "session.snapshot")
	m.CameraDeniedInc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetectionEvents.WithLabelValues("head_movement")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CameraDenied))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionStarted()
	m.SessionFinalized("completed", 100, time.Second)
	m.Detection("x")
	m.Advisory("x")
	m.Auth("x")
	m.WS("in", "x")
	m.CameraDeniedInc()
	assert.NotNil(t, m.Handler())
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics("proctor", nil)
	m.Auth("identity_not_found")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `proctor_auth_outcomes_total{outcome="identity_not_found"} 1`))
}
