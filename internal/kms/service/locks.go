package service

import "sync"

// LockTable serializes lifecycle transitions per document within this
// process. One instance is shared between the lifecycle service and the
// expiry scanner so a scan never interleaves with a manual transition
// on the same document. The database lock version still guards against
// other processes; this keeps local contention from burning a round
// trip on a conflict that was always going to lose.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewLockTable creates an empty lock table
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*entryLock)}
}

// Lock acquires the per-key mutex and returns its unlock function.
// Entries are reference counted and removed once the last holder
// releases, so the table does not grow with the document count.
func (t *LockTable) Lock(key string) func() {
	t.mu.Lock()
	e, ok := t.locks[key]
	if !ok {
		e = &entryLock{}
		t.locks[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		t.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}
