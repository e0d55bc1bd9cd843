// Package lock serializes work on a single key.  The ledger uses it to
// keep concurrent confirms of one occurrence from interleaving.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// context ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Local is an in-process keyed mutex.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocal returns an empty keyed mutex.
func NewLocal() *Local { return &Local{slots: map[string]chan struct{}{}} }

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		slot, held := l.slots[key]
		if !held {
			slot = make(chan struct{})
			l.slots[key] = slot
			l.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.slots, key)
					l.mu.Unlock()
					close(slot)
				})
			}, nil
		}
		l.mu.Unlock()
		select {
		case <-slot:
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		}
	}
}
