package sink

import (
	"context"
	"sync"
)

// Memory keeps rows in memory. It backs tests and the resolve command.
type Memory struct {
	mu     sync.Mutex
	name   string
	header []string
	rows   [][]string
	closed bool
}

// NewMemory returns an open in-memory table.
func NewMemory(name string, header []string) *Memory {
	return &Memory{name: name, header: append([]string(nil), header...)}
}

// Append copies rows.
func (m *Memory) Append(_ context.Context, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return wrapErr(m, errClosed)
	}
	for _, r := range rows {
		m.rows = append(m.rows, append([]string(nil), r...))
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Name() string { return m.name }

// Header returns the header given at creation.
func (m *Memory) Header() []string { return m.header }

// Rows returns a snapshot of the appended rows.
func (m *Memory) Rows() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.rows...)
}
