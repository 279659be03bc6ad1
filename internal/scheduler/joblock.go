package scheduler

import (
	"sync"

	"github.com/google/uuid"
)

// jobLockSet provides the per-job mutex the scheduler needs to guarantee at
// most one concurrent execution of a given job (spec §4.6), implemented as
// a set of held IDs rather than one sync.Mutex per job since jobs come and
// go at runtime and a map avoids ever needing to garbage-collect locks.
type jobLockSet struct {
	mu     sync.Mutex
	locked map[uuid.UUID]struct{}
}

func newJobLockSet() *jobLockSet {
	return &jobLockSet{locked: make(map[uuid.UUID]struct{})}
}

// tryLock acquires the lock for id with zero wait, returning false if
// another run already holds it.
func (l *jobLockSet) tryLock(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locked[id]; held {
		return false
	}
	l.locked[id] = struct{}{}
	return true
}

func (l *jobLockSet) unlock(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locked, id)
}
