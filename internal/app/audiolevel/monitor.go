// Package audiolevel samples a local audio track into a 0-100 activity signal.
package audiolevel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	fuse "github.com/frostbyte73/core"
	"github.com/rs/zerolog/log"
)

var ErrStarted = errors.New("audio level monitor already started")

type Config struct {
	Interval time.Duration `mapstructure:"sample_interval"`
	FFTSize  int           `mapstructure:"fft_size"`
	Ceiling  float64       `mapstructure:"reference_ceiling"`
}

func DefaultConfig() Config {
	return Config{Interval: 16 * time.Millisecond, FFTSize: 256, Ceiling: 128}
}

// Monitor owns one analysis window. Monitors are independent of each other, so
// several may watch the same track.
type Monitor struct {
	cfg Config

	mu      sync.Mutex
	src     core.AudioSource
	out     chan domain.AudioLevelSample
	started bool

	stop     fuse.Fuse
	done     chan struct{}
	release  sync.Once
	closeErr error

	level atomic.Int32
}

func New(cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.FFTSize <= 0 || cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		cfg.FFTSize = def.FFTSize
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = def.Ceiling
	}
	return &Monitor{cfg: cfg, done: make(chan struct{})}
}

// Start begins sampling src every interval. Samples are dropped when the
// reader falls behind. The channel closes after Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context, src core.AudioSource) (<-chan domain.AudioLevelSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stop.IsBroken() {
		return nil, ErrStarted
	}
	m.started = true
	m.src = src
	m.out = make(chan domain.AudioLevelSample, 1)

	go m.loop(ctx)
	log.Debug().Str("module", "audiolevel").Int("sample_rate", src.SampleRate()).Dur("interval", m.cfg.Interval).Msg("started")
	return m.out, nil
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	defer m.releaseSource()

	a := newAnalyser(m.cfg.FFTSize)
	samples := make([]float64, m.cfg.FFTSize)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop.Watch():
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n := m.src.Samples(samples)
			clear(samples[n:])
			level := normalize(a.average(samples), m.cfg.Ceiling)
			m.level.Store(int32(level))

			select {
			case m.out <- domain.AudioLevelSample{Level: level, At: now}:
			default:
			}
		}
	}
}

func (m *Monitor) releaseSource() {
	m.release.Do(func() {
		m.closeErr = m.src.Close()
		close(m.out)
		m.level.Store(0)
	})
}

// Stop cancels sampling and closes the source. Safe to call more than once or before Start.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	started := m.started
	m.stop.Break()
	m.mu.Unlock()

	if !started {
		return nil
	}
	<-m.done
	return m.closeErr
}

// Level returns the most recent sample.
func (m *Monitor) Level() int {
	return int(m.level.Load())
}
