package service

import "sync"

// keyedLock serializes work per key. Different keys proceed fully in
// parallel; locks are created on first use and kept for the process lifetime
// (the key space is bounded by targets and in-flight credentials).
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLock) lock(key string) *sync.Mutex {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l
}
