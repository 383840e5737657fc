package runner

import "sync/atomic"

// RunLock is a non-blocking mutual exclusion flag for runs.
type RunLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock if it is free.
func (l *RunLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock.
func (l *RunLock) Release() {
	l.held.Store(false)
}

// Held reports whether a run currently owns the lock.
func (l *RunLock) Held() bool {
	return l.held.Load()
}
