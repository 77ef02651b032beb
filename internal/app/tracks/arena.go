package tracks

import (
	"context"
	"sync"
	"time"

	fuse "github.com/frostbyte73/core"
)

// Attempt is one scheduled poll. It returns true when no further attempts are needed.
type Attempt func(n int) (done bool)

type task struct {
	cancel context.CancelFunc
}

// Arena runs bounded periodic retries keyed by publication id. Scheduling a key
// that is already pending replaces the old task. CancelAll stops every task in one pass.
type Arena struct {
	mu    sync.Mutex
	tasks map[string]*task
	stop  fuse.Fuse
	wg    sync.WaitGroup
}

func NewArena() *Arena {
	return &Arena{tasks: make(map[string]*task)}
}

// Schedule runs fn every interval up to attempts times. exhausted runs once if fn
// never reports done and the task was not cancelled. It returns false after CancelAll.
func (a *Arena) Schedule(key string, interval time.Duration, attempts int, fn Attempt, exhausted func()) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop.IsBroken() {
		return false
	}
	if old, ok := a.tasks[key]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel}
	a.tasks[key] = t

	a.wg.Add(1)
	go a.run(ctx, key, t, interval, attempts, fn, exhausted)
	return true
}

func (a *Arena) run(ctx context.Context, key string, t *task, interval time.Duration, attempts int, fn Attempt, exhausted func()) {
	defer a.wg.Done()
	defer a.remove(key, t)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; n <= attempts; n++ {
		select {
		case <-ctx.Done():
			return
		case <-a.stop.Watch():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		if fn(n) {
			return
		}
	}
	if ctx.Err() == nil && !a.stop.IsBroken() && exhausted != nil {
		exhausted()
	}
}

func (a *Arena) remove(key string, t *task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.tasks[key]; ok && cur == t {
		delete(a.tasks, key)
	}
	t.cancel()
}

// Cancel stops the task for key. It reports whether one was pending.
func (a *Arena) Cancel(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tasks[key]
	if !ok {
		return false
	}
	t.cancel()
	delete(a.tasks, key)
	return true
}

// CancelAll stops every pending task and rejects new ones. It returns how many were pending.
func (a *Arena) CancelAll() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stop.Break()
	n := len(a.tasks)
	for key, t := range a.tasks {
		t.cancel()
		delete(a.tasks, key)
	}
	return n
}

func (a *Arena) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}

// Wait blocks until all task goroutines have returned.
func (a *Arena) Wait() {
	a.wg.Wait()
}
