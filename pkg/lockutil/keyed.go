// Package lockutil provides in-process locks scoped to a key.
package lockutil

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes callers sharing a key while letting different keys
// proceed in parallel. Entries are dropped once no caller holds or waits.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[uint64]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[uint64]*entry),
	}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key uint64) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = new(entry)
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// TryAcquire marks key as held without blocking and reports whether it was
// free. Release with the returned func.
func (k *KeyedMutex) TryAcquire(key uint64) (func(), bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.entries[key]; ok {
		return nil, false
	}

	e := &entry{refs: 1}
	e.mu.Lock()
	k.entries[key] = e

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}, true
}

func (k *KeyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
