// Package lock provides keyed mutual exclusion used to serialize every
// state transition on a single listing.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when a key could not be acquired in time.
var ErrTimeout = errors.New("lock: acquire timeout")

// Release gives up a held key. It is safe to call more than once.
type Release func()

// Locker grants exclusive ownership of a key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

type slot struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Waiters give up after Timeout.
type Local struct {
	Timeout time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

// NewLocal returns a Local that waits at most timeout for a key.
// A zero timeout waits until ctx is done.
func NewLocal(timeout time.Duration) *Local {
	return &Local{Timeout: timeout, slots: make(map[string]*slot)}
}

func (l *Local) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = make(map[string]*slot)
	}
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Acquire blocks until key is free, the timeout elapses, or ctx is done.
func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	s := l.ref(key)

	var timeout <-chan time.Time
	if l.Timeout > 0 {
		timer := time.NewTimer(l.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case s.ch <- struct{}{}:
	case <-timeout:
		l.unref(key, s)
		return nil, ErrTimeout
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
	}, nil
}
