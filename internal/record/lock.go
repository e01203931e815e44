package record

import "sync/atomic"

// SessionLock is the single half-duplex guard shared by every controller.
// At most one recording session may hold it at any instant, regardless of
// source. Share one instance by reference; per-source locks would defeat
// the invariant.
type SessionLock struct {
	held atomic.Bool
}

// NewSessionLock creates an unheld lock.
func NewSessionLock() *SessionLock {
	return &SessionLock{}
}

// TryAcquire atomically takes the lock, returning false if it is held.
func (l *SessionLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock.
func (l *SessionLock) Release() {
	l.held.Store(false)
}

// Held reports whether the lock is currently taken.
func (l *SessionLock) Held() bool {
	return l.held.Load()
}
