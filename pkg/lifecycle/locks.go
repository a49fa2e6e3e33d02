package lifecycle

import "sync"

// lockTable hands out one mutex per order id. Entries are refcounted and
// dropped once nobody holds or waits on them.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*keyLock)}
}

func (t *lockTable) lock(id string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &keyLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}

// lockPair locks two ids in ascending order so concurrent matches sharing
// an order cannot deadlock.
func (t *lockTable) lockPair(a, b string) (unlock func()) {
	if a == b {
		return t.lock(a)
	}
	if b < a {
		a, b = b, a
	}
	ua := t.lock(a)
	ub := t.lock(b)
	return func() {
		ub()
		ua()
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
