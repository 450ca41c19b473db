package journal

import (
	"sync"

	"github.com/google/uuid"
)

// positionLocks serializes read-modify-write cycles on one user's position
// in one ticker. Entries are dropped once nobody holds or waits for them.
type positionLocks struct {
	mu    sync.Mutex
	locks map[string]*positionLock
}

type positionLock struct {
	mu      sync.Mutex
	waiters int
}

func newPositionLocks() *positionLocks {
	return &positionLocks{locks: make(map[string]*positionLock)}
}

// lock blocks until the caller owns userID/ticker and returns the release func
func (l *positionLocks) lock(userID uuid.UUID, ticker string) func() {
	key := userID.String() + "|" + ticker

	l.mu.Lock()
	pl, ok := l.locks[key]
	if !ok {
		pl = &positionLock{}
		l.locks[key] = pl
	}
	pl.waiters++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.waiters--
		if pl.waiters == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *positionLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
