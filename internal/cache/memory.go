package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// MemoryStore is an unbounded map. Entries leave it only through lazy
// expiry, sweeps or invalidation.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[T]
}

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{entries: make(map[string]Entry[T])}
}

func (s *MemoryStore[T]) Get(key string) (Entry[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok
}

func (s *MemoryStore[T]) Set(key string, entry Entry[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry
}

func (s *MemoryStore[T]) Delete(key string, stamp time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false
	}
	if !stamp.IsZero() && !entry.Timestamp.Equal(stamp) {
		return false
	}

	delete(s.entries, key)
	return true
}

func (s *MemoryStore[T]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

func (s *MemoryStore[T]) Entries() []Entry[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry[T], 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	return entries
}

func (s *MemoryStore[T]) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	s.entries = make(map[string]Entry[T])
	return n
}

func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// LRUStore caps the number of entries, evicting the least recently read or
// written key once full.
type LRUStore[T any] struct {
	mu  sync.Mutex
	lru *lru.LRU[string, Entry[T]]
}

func NewLRUStore[T any](maxEntries int) (*LRUStore[T], error) {
	l, err := lru.NewLRU[string, Entry[T]](maxEntries, nil)
	if err != nil {
		return nil, err
	}
	return &LRUStore[T]{lru: l}, nil
}

func (s *LRUStore[T]) Get(key string) (Entry[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Get(key)
}

func (s *LRUStore[T]) Set(key string, entry Entry[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lru.Add(key, entry)
}

func (s *LRUStore[T]) Delete(key string, stamp time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lru.Peek(key)
	if !ok {
		return false
	}
	if !stamp.IsZero() && !entry.Timestamp.Equal(stamp) {
		return false
	}
	return s.lru.Remove(key)
}

func (s *LRUStore[T]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Keys()
}

func (s *LRUStore[T]) Entries() []Entry[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Values()
}

func (s *LRUStore[T]) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.lru.Len()
	s.lru.Purge()
	return n
}

func (s *LRUStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Len()
}
