package workspace

import (
	"context"
	"sync"
)

// UnitLocks serializes work on the same unit inside one process. Locks are
// keyed by absolute path and dropped when no one holds or waits for them.
type UnitLocks struct {
	mu    sync.Mutex
	locks map[string]*unitLock
}

type unitLock struct {
	ch   chan struct{} // holds one token while the unit is free
	refs int
}

// NewUnitLocks creates an empty lock table
func NewUnitLocks() *UnitLocks {
	return &UnitLocks{locks: make(map[string]*unitLock)}
}

// Lock blocks until the unit is free or ctx is done. The returned function
// releases the lock and must be called exactly once.
func (l *UnitLocks) Lock(ctx context.Context, unit string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[unit]
	if !ok {
		ul = &unitLock{ch: make(chan struct{}, 1)}
		ul.ch <- struct{}{}
		l.locks[unit] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case <-ul.ch:
	case <-ctx.Done():
		l.release(unit, ul, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(unit, ul, true) })
	}, nil
}

// Held reports whether anyone holds or waits for the unit
func (l *UnitLocks) Held(unit string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.locks[unit]
	return ok
}

func (l *UnitLocks) release(unit string, ul *unitLock, held bool) {
	if held {
		ul.ch <- struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, unit)
	}
}
