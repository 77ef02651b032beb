package tracks

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaStopsWhenDone(t *testing.T) {
	a := NewArena()
	var calls atomic.Int32
	var exhausted atomic.Bool

	a.Schedule("p1", 2*time.Millisecond, 10, func(n int) bool {
		calls.Add(1)
		return n == 3
	}, func() { exhausted.Store(true) })

	a.Wait()
	assert.EqualValues(t, 3, calls.Load())
	assert.False(t, exhausted.Load())
	assert.Zero(t, a.Pending())
}

func TestArenaExhausts(t *testing.T) {
	a := NewArena()
	var calls atomic.Int32
	done := make(chan struct{})

	a.Schedule("p1", time.Millisecond, 4, func(int) bool {
		calls.Add(1)
		return false
	}, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("exhausted callback never ran")
	}
	a.Wait()
	assert.EqualValues(t, 4, calls.Load())
}

func TestArenaCancelSkipsExhausted(t *testing.T) {
	a := NewArena()
	var exhausted atomic.Bool

	a.Schedule("p1", time.Hour, 1, func(int) bool { return false }, func() { exhausted.Store(true) })
	require.Equal(t, 1, a.Pending())

	assert.True(t, a.Cancel("p1"))
	assert.False(t, a.Cancel("p1"))
	a.Wait()
	assert.False(t, exhausted.Load())
	assert.Zero(t, a.Pending())
}

func TestArenaRescheduleReplaces(t *testing.T) {
	a := NewArena()
	var first, second atomic.Int32

	a.Schedule("p1", time.Hour, 1, func(int) bool { first.Add(1); return true }, nil)
	a.Schedule("p1", time.Millisecond, 1, func(int) bool { second.Add(1); return true }, nil)

	a.Wait()
	assert.Zero(t, first.Load())
	assert.EqualValues(t, 1, second.Load())
}

func TestArenaCancelAllClosesArena(t *testing.T) {
	a := NewArena()
	for _, k := range []string{"a", "b", "c"} {
		a.Schedule(k, time.Hour, 1, func(int) bool { return true }, nil)
	}
	assert.Equal(t, 3, a.CancelAll())
	a.Wait()

	assert.False(t, a.Schedule("d", time.Millisecond, 1, func(int) bool { return true }, nil))
	assert.Zero(t, a.Pending())
}
