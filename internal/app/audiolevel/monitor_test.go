package audiolevel

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu     sync.Mutex
	gen    func(i int) float64
	closes atomic.Int32
}

func (s *fakeSource) SampleRate() int { return 48000 }

func (s *fakeSource) Samples(dst []float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == nil {
		return 0
	}
	for i := range dst {
		dst[i] = s.gen(i)
	}
	return len(dst)
}

func (s *fakeSource) Close() error {
	s.closes.Add(1)
	return nil
}

func sine(amp float64) func(int) float64 {
	return func(i int) float64 { return amp * math.Sin(2*math.Pi*1000*float64(i)/48000) }
}

func TestAnalyserLevels(t *testing.T) {
	buf := make([]float64, 256)

	silent := newAnalyser(256)
	assert.Zero(t, normalize(silent.average(buf), 128))

	tone := newAnalyser(256)
	gen := sine(0.8)
	for i := range buf {
		buf[i] = gen(i)
	}
	var level int
	for range 10 {
		level = normalize(tone.average(buf), 128)
	}
	assert.Positive(t, level)
	assert.LessOrEqual(t, level, 100)

	noise := newAnalyser(256)
	r := rand.New(rand.NewPCG(1, 2))
	for range 10 {
		for i := range buf {
			buf[i] = r.Float64()*2 - 1
		}
		level = normalize(noise.average(buf), 128)
	}
	assert.Equal(t, 100, level)
}

func TestMonitorProducesSamples(t *testing.T) {
	src := &fakeSource{gen: sine(0.9)}
	m := New(Config{Interval: 2 * time.Millisecond})

	ch, err := m.Start(context.Background(), src)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.Level() > 0 }, time.Second, 5*time.Millisecond)
	s, ok := <-ch
	require.True(t, ok)
	assert.GreaterOrEqual(t, s.Level, 0)
	assert.LessOrEqual(t, s.Level, 100)

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
	assert.EqualValues(t, 1, src.closes.Load())
	assert.Zero(t, m.Level())

	for range ch {
	}
	_, err = m.Start(context.Background(), src)
	assert.ErrorIs(t, err, ErrStarted)
}

func TestMonitorStopsOnContext(t *testing.T) {
	src := &fakeSource{}
	m := New(Config{Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := m.Start(ctx, src)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool { return src.closes.Load() == 1 }, time.Second, time.Millisecond)
	for range ch {
	}
	require.NoError(t, m.Stop())
	assert.EqualValues(t, 1, src.closes.Load())
}

func TestStopBeforeStart(t *testing.T) {
	m := New(DefaultConfig())
	assert.NoError(t, m.Stop())
	_, err := m.Start(context.Background(), &fakeSource{})
	assert.ErrorIs(t, err, ErrStarted)
}

func TestMonitorsAreIndependent(t *testing.T) {
	loud, quiet := &fakeSource{gen: sine(0.9)}, &fakeSource{}
	a, b := New(Config{Interval: time.Millisecond}), New(Config{Interval: time.Millisecond})
	_, err := a.Start(context.Background(), loud)
	require.NoError(t, err)
	_, err = b.Start(context.Background(), quiet)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return a.Level() > 0 }, time.Second, 2*time.Millisecond)
	assert.Zero(t, b.Level())

	require.NoError(t, a.Stop())
	assert.Zero(t, quiet.closes.Load())
	require.NoError(t, b.Stop())
}
