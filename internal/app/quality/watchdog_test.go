package quality

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/dkeye/golive/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	notices []core.Notice
}

func (r *recorder) notify(n core.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) count(k core.NoticeKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.Kind == k {
			n++
		}
	}
	return n
}

func local(q domain.Quality) core.ConnectionQualityChanged {
	return core.ConnectionQualityChanged{Identity: "host", Local: true, Quality: q}
}

func TestOneWarningPerCycle(t *testing.T) {
	rec := &recorder{}
	m := metrics.New(prometheus.NewRegistry())
	w := New(rec.notify, m)

	for range 3 {
		w.OnQuality(local(domain.QualityPoor))
	}
	assert.Equal(t, 1, rec.count(core.NoticeQualityDegraded))
	assert.True(t, w.Degraded())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QualityWarnings))

	w.OnQuality(local(domain.QualityLost))
	assert.Equal(t, 1, rec.count(core.NoticeQualityDegraded))

	w.OnQuality(local(domain.QualityGood))
	assert.Equal(t, 1, rec.count(core.NoticeQualityRestored))

	w.OnQuality(local(domain.QualityPoor))
	assert.Equal(t, 2, rec.count(core.NoticeQualityDegraded))
}

func TestDegradedNoticeCarriesAdvisory(t *testing.T) {
	rec := &recorder{}
	w := New(rec.notify, nil)
	w.OnQuality(local(domain.QualityPoor))

	require.Len(t, rec.notices, 1)
	n := rec.notices[0]
	assert.True(t, n.Warning())
	assert.ErrorIs(t, n.Err, core.ErrQualityDegraded)
	assert.False(t, core.Fatal(n.Err))
}

func TestRemoteQualityIgnored(t *testing.T) {
	rec := &recorder{}
	w := New(rec.notify, nil)
	w.OnQuality(core.ConnectionQualityChanged{Identity: "viewer-1", Quality: domain.QualityPoor})
	assert.Empty(t, rec.notices)
	assert.Equal(t, domain.QualityUnknown, w.Current())
}

func TestUnknownDoesNotRestore(t *testing.T) {
	rec := &recorder{}
	w := New(rec.notify, nil)
	w.OnQuality(local(domain.QualityPoor))
	w.OnQuality(local(domain.QualityUnknown))
	assert.Zero(t, rec.count(core.NoticeQualityRestored))
	assert.True(t, w.Degraded())
}

func TestReconnectNotices(t *testing.T) {
	rec := &recorder{}
	w := New(rec.notify, nil)
	w.OnReconnecting()
	w.OnReconnected()
	assert.Equal(t, 1, rec.count(core.NoticeReconnecting))
	assert.Equal(t, 1, rec.count(core.NoticeReconnected))
}

type fakeReporter struct {
	q     atomic.Value
	polls atomic.Int32
}

func (r *fakeReporter) LinkQuality() domain.Quality {
	r.polls.Add(1)
	return r.q.Load().(domain.Quality)
}

func TestPollingAndStop(t *testing.T) {
	rec := &recorder{}
	w := New(rec.notify, nil)
	rep := &fakeReporter{}
	rep.q.Store(domain.QualityPoor)

	w.StartPolling(context.Background(), rep, time.Millisecond, nil)
	require.True(t, w.Polling())
	require.Eventually(t, func() bool { return rep.polls.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, rec.count(core.NoticeQualityDegraded))

	rep.q.Store(domain.QualityExcellent)
	require.Eventually(t, func() bool { return rec.count(core.NoticeQualityRestored) == 1 }, time.Second, time.Millisecond)

	w.Stop()
	assert.False(t, w.Polling())
	polls := rep.polls.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, polls, rep.polls.Load())
	w.Stop()
}

func TestPollingHandsSamplesToDeliver(t *testing.T) {
	rec := &recorder{}
	w := New(rec.notify, nil)
	rep := &fakeReporter{}
	rep.q.Store(domain.QualityLost)

	samples := make(chan core.ConnectionQualityChanged, 1)
	w.StartPolling(context.Background(), rep, time.Millisecond, func(ev core.ConnectionQualityChanged) {
		select {
		case samples <- ev:
		default:
		}
	})

	var ev core.ConnectionQualityChanged
	select {
	case ev = <-samples:
	case <-time.After(time.Second):
		t.Fatal("no polled sample delivered")
	}
	assert.True(t, ev.Local)
	assert.Equal(t, domain.QualityLost, ev.Quality)
	assert.Zero(t, rec.count(core.NoticeQualityDegraded))

	w.Stop()
	assert.False(t, w.Polling())
}
