package core

import (
	"sync"
)

// Unsubscribe removes a previously added listener. Calling it more than once is a no-op.
type Unsubscribe func()

// Listeners is a set of typed callbacks. The zero value is ready to use.
type Listeners[T any] struct {
	mu   sync.RWMutex
	next uint64
	fns  map[uint64]func(T)
}

func (l *Listeners[T]) Add(fn func(T)) Unsubscribe {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(T))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// Emit calls every listener with v. Listeners run outside the lock, so they
// may add or remove listeners.
func (l *Listeners[T]) Emit(v T) {
	l.mu.RLock()
	fns := make([]func(T), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (l *Listeners[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fns)
}

func (l *Listeners[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.fns)
}
