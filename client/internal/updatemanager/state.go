package updatemanager

import "sync"

// tryLockValue is shared state that is never waited for. Readers and writers
// give up when the lock is held; a stale or missing value is preferred over
// stalling the download or the UI.
type tryLockValue[T any] struct {
	mu    sync.RWMutex
	value T
}

// TryLoad returns the value, or false when the lock could not be acquired
func (v *tryLockValue[T]) TryLoad() (T, bool) {
	if !v.mu.TryRLock() {
		var zero T
		return zero, false
	}
	defer v.mu.RUnlock()
	return v.value, true
}

// TryStore replaces the value, or drops it and returns false when the lock is held
func (v *tryLockValue[T]) TryStore(value T) bool {
	if !v.mu.TryLock() {
		return false
	}
	v.value = value
	v.mu.Unlock()
	return true
}
