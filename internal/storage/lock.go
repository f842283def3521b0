package storage

import "sync"

// queueLock is an exclusive lock that admits waiters strictly in
// arrival order. The atomic file serializes every public operation
// through one of these, so callers observe operations as discrete state
// transitions and a reader can never see a partially applied commit.
type queueLock struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

func newQueueLock() *queueLock {
	return &queueLock{}
}

// Lock acquires the lock, blocking behind all earlier waiters.
func (l *queueLock) Lock() {
	l.mu.Lock()
	if !l.locked {
		l.locked = true
		l.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()
	<-ch
}

// Unlock releases the lock, handing it to the oldest waiter if any.
func (l *queueLock) Unlock() {
	l.mu.Lock()
	if len(l.waiters) > 0 {
		ch := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.mu.Unlock()
		close(ch)
		return
	}
	l.locked = false
	l.mu.Unlock()
}
