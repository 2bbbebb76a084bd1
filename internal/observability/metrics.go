package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	DetectionEvents *prometheus.CounterVec
	Advisories      *prometheus.CounterVec
	AuthOutcomes    *prometheus.CounterVec
	WSMessages      *prometheus.CounterVec
	CameraDenied    prometheus.Counter
	FinalTrustScore prometheus.Histogram
	SessionDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments on reg. A nil reg uses a fresh
// registry so repeated construction in tests does not collide.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of monitored sessions currently active.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		DetectionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_events_total",
			Help:      "Detection events observed by kind.",
		}, []string{"kind"}),
		Advisories: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisories_total",
			Help:      "Advisories raised by kind.",
		}, []string{"kind"}),
		AuthOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Authentication challenge outcomes.",
		}, []string{"outcome"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		CameraDenied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "camera_denied_total",
			Help:      "Sessions that started without camera access.",
		}),
		FinalTrustScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "final_trust_score",
			Help:      "Trust score of finalized sessions.",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of finalized sessions.",
			Buckets:   []float64{60, 300, 900, 1800, 3600, 5400, 7200, 10800},
		}),
		gatherer: reg,
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
	m.SessionEvents.WithLabelValues("started").Inc()
}

// SessionFinalized records the end of a session with its final status.
func (m *Metrics) SessionFinalized(status string, trust int, d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionEvents.WithLabelValues(status).Inc()
	m.FinalTrustScore.Observe(float64(trust))
	m.SessionDuration.Observe(d.Seconds())
}

func (m *Metrics) Detection(kind string) {
	if m == nil {
		return
	}
	m.DetectionEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) Advisory(kind string) {
	if m == nil {
		return
	}
	m.Advisories.WithLabelValues(kind).Inc()
}

func (m *Metrics) Auth(outcome string) {
	if m == nil {
		return
	}
	m.AuthOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WS(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) CameraDeniedInc() {
	if m == nil {
		return
	}
	m.CameraDenied.Inc()
}

// Handler serves the registry these metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
