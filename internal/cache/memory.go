package cache

import (
	"context"
	"sync"
	"time"
)

const memorySweepInterval = time.Minute

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local Backend. Expired entries are invisible to Get and
// removed by a background sweep.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemory starts a memory backend with its sweep loop.
func NewMemory() *Memory {
	m := newMemory(time.Now)
	go m.sweepLoop()
	return m
}

func newMemory(now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     now,
		stopCh:  make(chan struct{}),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: stored, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included until swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) sweepLoop() {
	ticker := time.NewTicker(memorySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup(m.now())
		case <-m.stopCh:
			return
		}
	}
}

func (m *Memory) cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
}

func (m *Memory) Close() error {
	m.once.Do(func() {
		close(m.stopCh)
	})
	return nil
}
