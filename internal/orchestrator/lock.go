package orchestrator

import "sync"

// LockManager serializes deployments per project. Only one run may hold a
// project's lock at a time; concurrent attempts are rejected rather than
// queued, so callers can report the conflict immediately.
type LockManager struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{inFlight: make(map[string]bool)}
}

// TryLock attempts to acquire the lock for a project. Returns false when a
// deployment for that project is already running.
func (l *LockManager) TryLock(project string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight[project] {
		return false
	}
	l.inFlight[project] = true
	return true
}

// Unlock releases the lock for a project. Unlocking a project that is not
// locked is a no-op.
func (l *LockManager) Unlock(project string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, project)
}

// Locked reports whether a deployment for the project is in flight.
func (l *LockManager) Locked(project string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight[project]
}
