package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable ids "<prefix>-0001", "<prefix>-0002", ...
//
// This enables deterministic store tests and golden snapshot comparison,
// where real UUIDv7 ids would differ on every run.
//
// Thread-safety: SequenceIDs is safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix defaults to "image".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "image"
	}
	return &SequenceIDs{prefix: prefix}
}

// NewID returns the next id.
func (g *SequenceIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
