package service

import (
	"strings"
	"sync"
)

// inflight serializes work per key. A key is held from submission until
// the job reaches a terminal state.
type inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{keys: make(map[string]struct{})}
}

// inflightKey matches the stored filename exactly, as filename uniqueness
// does.
func inflightKey(filename string) string {
	return strings.TrimSpace(filename)
}

func (f *inflight) acquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return false
	}
	f.keys[key] = struct{}{}
	return true
}

func (f *inflight) release(key string) {
	f.mu.Lock()
	delete(f.keys, key)
	f.mu.Unlock()
}
