package lifecycle

import "sync"

// Locks serializes work on a single lead across concurrently running stages.
// Entries are reference counted and dropped once no holder remains.
type Locks struct {
	mu    sync.Mutex
	locks map[int64]*leadLock
}

type leadLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{locks: make(map[int64]*leadLock)}
}

// Lock blocks until the caller holds the lock for id and returns its release func.
func (l *Locks) Lock(id int64) func() {
	l.mu.Lock()
	ll, ok := l.locks[id]
	if !ok {
		ll = &leadLock{}
		l.locks[id] = ll
	}
	ll.refs++
	l.mu.Unlock()

	ll.mu.Lock()
	return func() {
		ll.mu.Unlock()
		l.mu.Lock()
		ll.refs--
		if ll.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of leads currently locked or waited on.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
