package quality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/dkeye/golive/internal/metrics"
	"github.com/rs/zerolog/log"
)

type Config struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

func DefaultConfig() Config {
	return Config{PollInterval: 2 * time.Second}
}

// Watchdog turns local link-quality signals into advisories: one degraded
// notice per degrade/restore cycle, never one per sample.
type Watchdog struct {
	mu       sync.Mutex
	notify   core.Notifier
	metrics  *metrics.Metrics
	current  domain.Quality
	degraded bool

	cancel context.CancelFunc
	done   chan struct{}
}

func New(notify core.Notifier, m *metrics.Metrics) *Watchdog {
	if notify == nil {
		notify = func(core.Notice) {}
	}
	return &Watchdog{notify: notify, metrics: m, current: domain.QualityUnknown}
}

// OnQuality handles a quality change. Only the local participant's link counts.
func (w *Watchdog) OnQuality(ev core.ConnectionQualityChanged) {
	if !ev.Local {
		return
	}
	w.mu.Lock()
	w.current = ev.Quality
	var n *core.Notice
	switch {
	case ev.Quality.Degraded() && !w.degraded:
		w.degraded = true
		err := core.NewError(core.ErrQualityDegraded, "quality", fmt.Errorf("local link %s", ev.Quality))
		n = &core.Notice{Kind: core.NoticeQualityDegraded, Quality: ev.Quality, Err: err, Message: err.Error()}
	case !ev.Quality.Degraded() && ev.Quality != domain.QualityUnknown && w.degraded:
		w.degraded = false
		n = &core.Notice{Kind: core.NoticeQualityRestored, Quality: ev.Quality}
	}
	w.mu.Unlock()

	if n == nil {
		return
	}
	n.At = time.Now()
	if n.Kind == core.NoticeQualityDegraded {
		w.metrics.QualityWarning()
		log.Warn().Str("module", "quality").Str("quality", string(ev.Quality)).Msg("connection quality degraded")
	} else {
		log.Info().Str("module", "quality").Str("quality", string(ev.Quality)).Msg("connection quality restored")
	}
	w.notify(*n)
}

func (w *Watchdog) OnReconnecting() {
	w.metrics.Reconnect()
	log.Warn().Str("module", "quality").Msg("provider reconnecting")
	w.notify(core.Notice{Kind: core.NoticeReconnecting, Message: "connection lost, reconnecting", At: time.Now()})
}

func (w *Watchdog) OnReconnected() {
	log.Info().Str("module", "quality").Msg("provider reconnected")
	w.notify(core.Notice{Kind: core.NoticeReconnected, At: time.Now()})
}

// StartPolling samples reporter every interval for providers without quality
// events. Samples go to deliver, which must hand them back to OnQuality; nil
// delivers on the polling goroutine. A running poller is replaced.
func (w *Watchdog) StartPolling(ctx context.Context, reporter core.StatusReporter, interval time.Duration, deliver func(core.ConnectionQualityChanged)) {
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	if deliver == nil {
		deliver = w.OnQuality
	}
	w.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.mu.Lock()
	w.cancel, w.done = cancel, done
	w.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if ctx.Err() != nil {
				return
			}
			deliver(core.ConnectionQualityChanged{Local: true, Quality: reporter.LinkQuality()})
		}
	}()
	log.Debug().Str("module", "quality").Dur("interval", interval).Msg("status polling started")
}

// Stop cancels status polling and waits for it to exit.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watchdog) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *Watchdog) Current() domain.Quality {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watchdog) Degraded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.degraded
}
