// Package lock serializes work on one handle across goroutines and, with
// Redis, across processes.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired means another worker holds the lock.
var ErrNotAcquired = errors.New("lock held by another worker")

// Locker hands out exclusive locks by key.
type Locker interface {
	// TryLock acquires key without waiting. It returns ErrNotAcquired when
	// the key is held.
	TryLock(ctx context.Context, key string) (Unlock, error)
}

// Unlock releases a lock.
type Unlock func()

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal returns an empty Local.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// TryLock implements Locker.
func (l *Local) TryLock(_ context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrNotAcquired
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
