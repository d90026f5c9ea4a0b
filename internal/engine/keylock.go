package engine

import (
	"context"
	"sync"
)

// keyLock serializes work per key. Waiters are served in arrival order and
// give up when their context ends. Entries are dropped once nobody holds or
// waits on them.
type keyLock struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	held    bool
	waiters []chan struct{}
}

func newKeyLock() *keyLock {
	return &keyLock{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
func (k *keyLock) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{}
		k.slots[key] = s
	}
	if !s.held {
		s.held = true
		k.mu.Unlock()
		return k.unlocker(key, s), nil
	}
	turn := make(chan struct{})
	s.waiters = append(s.waiters, turn)
	k.mu.Unlock()

	select {
	case <-turn:
		return k.unlocker(key, s), nil
	case <-ctx.Done():
	}

	k.mu.Lock()
	for i, w := range s.waiters {
		if w == turn {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			k.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	k.mu.Unlock()
	// The lock was handed over as ctx ended; pass it on.
	k.unlock(key, s)
	return nil, ctx.Err()
}

func (k *keyLock) unlocker(key string, s *slot) func() {
	var once sync.Once
	return func() { once.Do(func() { k.unlock(key, s) }) }
}

// unlock hands the lock to the oldest waiter, or frees the slot.
func (k *keyLock) unlock(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(next)
		return
	}
	s.held = false
	delete(k.slots, key)
}

func (k *keyLock) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

// waiting returns how many callers are queued on key.
func (k *keyLock) waiting(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if s, ok := k.slots[key]; ok {
		return len(s.waiters)
	}
	return 0
}
