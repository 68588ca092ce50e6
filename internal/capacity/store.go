package capacity

import (
	"sync"

	"go.uber.org/atomic"
)

// CounterStore is the atomic key-value primitive under the ledger. Every
// counter mutation goes through CompareAndSwap so the same contract holds
// whether the store is in-process or a shared KV.
type CounterStore interface {
	Load(key string) (uint64, bool)
	CompareAndSwap(key string, old, new uint64) bool
	// Seed installs an initial value. Startup only; not safe to use for
	// mutations once traffic is flowing.
	Seed(key string, val uint64)
}

// MemStore is the in-process CounterStore.
type MemStore struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Uint64
}

func NewMemStore() *MemStore {
	return &MemStore{counters: make(map[string]*atomic.Uint64)}
}

func (s *MemStore) Load(key string) (uint64, bool) {
	s.mu.RLock()
	c, ok := s.counters[key]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return c.Load(), true
}

func (s *MemStore) CompareAndSwap(key string, old, new uint64) bool {
	s.mu.RLock()
	c, ok := s.counters[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return c.CompareAndSwap(old, new)
}

func (s *MemStore) Seed(key string, val uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] = atomic.NewUint64(val)
}
