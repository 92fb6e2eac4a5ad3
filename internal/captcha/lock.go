package captcha

import "sync"

// keyedMutex serializes operations per user id. Entries are tiny and the
// user population is bounded, so entries are never evicted.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*sync.Mutex)}
}

func (k *keyedMutex) lock(id int64) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	k.mu.Unlock()
	l.Lock()
}

func (k *keyedMutex) unlock(id int64) {
	k.mu.Lock()
	l := k.locks[id]
	k.mu.Unlock()
	l.Unlock()
}
