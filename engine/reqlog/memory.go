package reqlog

import (
	"context"
	"sync"

	"github.com/veicheck/veicheck/engine/lookup"
)

// DefaultCapacity is the Memory ring size used when none is given.
const DefaultCapacity = 500

// Memory keeps the last N entries in a ring buffer.
type Memory struct {
	mu    sync.Mutex
	buf   []lookup.Entry
	next  int
	count int
}

// NewMemory creates a ring holding up to capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{buf: make([]lookup.Entry, capacity)}
}

func (m *Memory) Append(_ context.Context, e lookup.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.next] = e
	m.next = (m.next + 1) % len(m.buf)
	if m.count < len(m.buf) {
		m.count++
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]lookup.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > m.count {
		limit = m.count
	}
	out := make([]lookup.Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.buf)) % len(m.buf)
		out = append(out, m.buf[idx])
	}
	return out, nil
}
