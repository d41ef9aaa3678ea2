package publish

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Memory keeps published data in a map. Used by tests and the scenario
// harness.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Publish implements Publisher. The data is copied.
func (m *Memory) Publish(ctx context.Context, dest string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[dest] = slices.Clone(data)
	return nil
}

// Get returns the data last published to dest.
func (m *Memory) Get(dest string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[dest]
	return slices.Clone(b), ok
}

// Keys lists the published destinations in order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.objects))
}
