package storage

import (
	"sync"
	"time"
)

type MemorySeedStore struct {
	entries map[string]GenerationMemoryEntry
	mutex   sync.RWMutex
	now     func() time.Time
}

func NewMemorySeedStore() *MemorySeedStore {
	return &MemorySeedStore{
		entries: make(map[string]GenerationMemoryEntry),
		now:     time.Now,
	}
}

func (m *MemorySeedStore) Get(key string) (GenerationMemoryEntry, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.entries[key]
	return entry, ok
}

func (m *MemorySeedStore) Set(key string, entry GenerationMemoryEntry) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry.UpdatedAt = m.now()
	m.entries[key] = entry
}

func (m *MemorySeedStore) Clear() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	n := len(m.entries)
	m.entries = make(map[string]GenerationMemoryEntry)
	return n
}

func (m *MemorySeedStore) ClearStale(maxAge time.Duration) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for key, entry := range m.entries {
		if entry.UpdatedAt.Before(cutoff) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

func (m *MemorySeedStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.entries)
}
