package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus instruments of the session manager.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionsTotal       *prometheus.CounterVec
	StateTransitions    *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	Viewers             prometheus.Gauge
	TracksAttached      prometheus.Gauge
	SubscriptionRetries prometheus.Counter
	TracksNeverReady    prometheus.Counter
	QualityWarnings     prometheus.Counter
	Reconnects          prometheus.Counter
	TeardownErrors      prometheus.Counter
}

// New registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "golive_sessions_total",
			Help: "Total number of sessions started, by provider",
		}, []string{"provider"}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "golive_state_transitions_total",
			Help: "Connection state transitions",
		}, []string{"from", "to"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "golive_active_sessions",
			Help: "Sessions that are connecting, connected or reconnecting",
		}),
		Viewers: f.NewGauge(prometheus.GaugeOpts{
			Name: "golive_viewers",
			Help: "Current audience size, infrastructure participants excluded",
		}),
		TracksAttached: f.NewGauge(prometheus.GaugeOpts{
			Name: "golive_tracks_attached",
			Help: "Remote tracks currently attached to a sink",
		}),
		SubscriptionRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "golive_subscription_retries_total",
			Help: "Polls for subscribed publications whose media was not ready",
		}),
		TracksNeverReady: f.NewCounter(prometheus.CounterOpts{
			Name: "golive_tracks_never_ready_total",
			Help: "Publications whose media did not become ready within the retry budget",
		}),
		QualityWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "golive_quality_warnings_total",
			Help: "Connection quality degradation advisories",
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "golive_reconnects_total",
			Help: "Provider reconnect attempts observed",
		}),
		TeardownErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "golive_teardown_errors_total",
			Help: "Teardown steps that failed or panicked",
		}),
	}
}

func (m *Metrics) SessionStarted(provider string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) SetActive(delta float64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(delta)
}

func (m *Metrics) SetViewers(n int) {
	if m == nil {
		return
	}
	m.Viewers.Set(float64(n))
}

func (m *Metrics) TrackAttached() {
	if m == nil {
		return
	}
	m.TracksAttached.Inc()
}

func (m *Metrics) TrackDetached() {
	if m == nil {
		return
	}
	m.TracksAttached.Dec()
}

func (m *Metrics) SubscriptionRetry() {
	if m == nil {
		return
	}
	m.SubscriptionRetries.Inc()
}

func (m *Metrics) TrackNeverReady() {
	if m == nil {
		return
	}
	m.TracksNeverReady.Inc()
}

func (m *Metrics) QualityWarning() {
	if m == nil {
		return
	}
	m.QualityWarnings.Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) TeardownError() {
	if m == nil {
		return
	}
	m.TeardownErrors.Inc()
}
