// Package lock serializes state mutation per order: every guard-check-and-
// commit on one order number runs under that number's exclusive slot, so
// concurrent assignment, removal and cancellation requests never interleave
// their read-modify-write of the same order.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrTimeout is returned when the context expires before the key's slot
// frees up. Callers treat it as retryable contention.
var ErrTimeout = errors.New("lock acquisition timed out")

type Keyed struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]chan struct{})}
}

// Acquire blocks until the key is free or ctx is done. On success the
// returned release function must be called exactly once; calling it more
// than once is a no-op.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		k.mu.Lock()
		ch, held := k.slots[key]
		if !held {
			ch = make(chan struct{})
			k.slots[key] = ch
			k.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					k.mu.Lock()
					delete(k.slots, key)
					k.mu.Unlock()
					close(ch)
				})
			}, nil
		}
		k.mu.Unlock()

		select {
		case <-ch:
			// holder released, race for the slot again
		case <-ctx.Done():
			return nil, ErrTimeout
		}
	}
}
