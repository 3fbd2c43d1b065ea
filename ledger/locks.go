package ledger

import (
	"slices"
	"sync"
)

type keyLock struct {
	sync.Mutex
	refs int
}

// lockTable hands out one mutex per key, created on demand and dropped when
// nobody holds or waits for it.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*keyLock)}
}

// acquire locks every key in sorted order, so two callers sharing any keys
// can never hold them in opposite orders.
func (t *lockTable) acquire(keys ...string) (release func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*keyLock, 0, len(keys))
	for _, k := range keys {
		t.mu.Lock()
		l, ok := t.locks[k]
		if !ok {
			l = &keyLock{}
			t.locks[k] = l
		}
		l.refs++
		t.mu.Unlock()

		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()

			t.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(t.locks, keys[i])
			}
			t.mu.Unlock()
		}
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

func accountKey(id string) string {
	return "account:" + id
}

func sessionKey(id string) string {
	return "session:" + id
}
