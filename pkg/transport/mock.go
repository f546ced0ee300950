package transport

import (
	"context"
	"sync"
)

// MockTransport replays queued inbound messages and records what is written
type MockTransport struct {
	mu       sync.Mutex
	inbound  [][]byte
	outbound [][]byte
	flushes  int
}

// NewMockTransport queues messages for reading
func NewMockTransport(messages ...string) *MockTransport {
	m := &MockTransport{}
	for _, msg := range messages {
		m.inbound = append(m.inbound, []byte(msg))
	}
	return m
}

// Push queues another inbound message
func (m *MockTransport) Push(msg []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = append(m.inbound, msg)
}

// ReadMessage pops the next queued message, or ErrClosed when none remain
func (m *MockTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inbound) == 0 {
		return nil, ErrClosed
	}
	msg := m.inbound[0]
	m.inbound = m.inbound[1:]
	return msg, nil
}

// WriteMessage records a copy of data
func (m *MockTransport) WriteMessage(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbound = append(m.outbound, append([]byte(nil), data...))
	return nil
}

// Flush counts flushes
func (m *MockTransport) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

// Written returns the messages written so far
func (m *MockTransport) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.outbound))
	copy(out, m.outbound)
	return out
}
