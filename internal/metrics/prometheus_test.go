package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted("livekit")
		m.Transition("idle", "connecting")
		m.SetActive(1)
		m.SetViewers(3)
		m.TrackAttached()
		m.TrackDetached()
		m.SubscriptionRetry()
		m.TrackNeverReady()
		m.QualityWarning()
		m.Reconnect()
		m.TeardownError()
	})
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SessionStarted("whip")
	m.Transition("idle", "connecting")
	m.Transition("idle", "connecting")
	m.SetViewers(4)
	m.TrackAttached()
	m.TrackAttached()
	m.TrackDetached()
	m.SubscriptionRetry()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("whip")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StateTransitions.WithLabelValues("idle", "connecting")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Viewers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TracksAttached))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionRetries))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}
