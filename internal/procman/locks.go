package procman

import "sync"

// Locks hands out one mutex per app so lifecycle operations on the same
// app never interleave while different apps proceed in parallel.
type Locks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewLocks returns an empty lock table.
func NewLocks() *Locks {
	return &Locks{locks: make(map[int64]*sync.Mutex)}
}

func (l *Locks) get(appID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[appID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[appID] = m
	}
	return m
}

// With runs fn while holding the app's lock.
func (l *Locks) With(appID int64, fn func() error) error {
	m := l.get(appID)
	m.Lock()
	defer m.Unlock()
	return fn()
}
