package exec

import (
	"strings"
	"sync"
)

// KeyedMutex hands out one mutex per key. The processor uses it to
// serialize load-modify-save cycles against the same schedule while
// work on different schedules proceeds in parallel.
//
// Mutexes are never evicted; the key space is bounded by the number of
// schedules the process touches.
type KeyedMutex struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{m: map[string]*sync.Mutex{}}
}

// Lock acquires the mutex for key and returns its unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "default"
	}

	k.mu.Lock()
	m := k.m[key]
	if m == nil {
		m = &sync.Mutex{}
		k.m[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
