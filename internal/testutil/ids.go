package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable build ids: "<prefix>-1", "<prefix>-2"...
//
// This enables deterministic build logs and golden snapshot comparison.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs returns a generator. An empty prefix means "build".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "build"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
