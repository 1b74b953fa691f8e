package status

import "sync"

// memo remembers the most recent input it was called with and only runs
// the side effect when the input differs from that value. The first call
// always runs. It does not remember older values, so A, B, A runs three times.
type memo[T comparable] struct {
	mu   sync.Mutex
	last T
	seen bool
}

// Do runs fn with v if v differs from the previous input. It reports
// whether fn ran.
func (m *memo[T]) Do(v T, fn func(T)) bool {
	m.mu.Lock()
	if m.seen && m.last == v {
		m.mu.Unlock()
		return false
	}
	m.last = v
	m.seen = true
	m.mu.Unlock()

	if fn != nil {
		fn(v)
	}
	return true
}

// prime records v as the previous input without running anything.
func (m *memo[T]) prime(v T) {
	m.mu.Lock()
	m.last = v
	m.seen = true
	m.mu.Unlock()
}
