package exec

import (
	"sync"
	"sync/atomic"
)

// RunLock is a single-flight guard preventing two periodic triggers of the
// same job from overlapping. A failed TryAcquire means the run is skipped,
// not queued. Release must be deferred on every exit path; a leaked lock
// blocks all future runs of the job until recovery.
//
// This is a single-process mechanism. It provides no protection against
// multiple processes running the same job.
type RunLock struct {
	held atomic.Bool
}

// TryAcquire claims the lock, reporting false if a run is already in flight.
func (l *RunLock) TryAcquire() bool {
	if l == nil {
		return true
	}
	return l.held.CompareAndSwap(false, true)
}

// Release clears the lock. Safe to call on an unheld lock.
func (l *RunLock) Release() {
	if l == nil {
		return
	}
	l.held.Store(false)
}

// Held reports the current flag. Diagnostic only; do not use for gating.
func (l *RunLock) Held() bool {
	if l == nil {
		return false
	}
	return l.held.Load()
}

// LockSet hands out one RunLock per job name.
type LockSet struct {
	mu    sync.Mutex
	locks map[string]*RunLock
}

func NewLockSet() *LockSet {
	return &LockSet{locks: map[string]*RunLock{}}
}

func (s *LockSet) Get(name string) *RunLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.locks[name]
	if l == nil {
		l = &RunLock{}
		s.locks[name] = l
	}
	return l
}

// HeldLocks returns the names whose locks are currently held.
func (s *LockSet) HeldLocks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name, l := range s.locks {
		if l.Held() {
			out = append(out, name)
		}
	}
	return out
}
