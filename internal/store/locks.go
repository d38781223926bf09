package store

import "sync"

// ItemLocks serializes the read-modify-write section of bid placement per
// item. The resolution engine takes the same lock before reading the highest
// bid, so a bid that is mid-flight at the LIVE->ENDED boundary either lands
// before resolution or fails the admission gate. Locks for different items
// are independent.
type ItemLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewItemLocks() *ItemLocks {
	return &ItemLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for itemID and returns its unlock func.
func (l *ItemLocks) Lock(itemID string) func() {
	l.mu.Lock()
	m, ok := l.locks[itemID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[itemID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
