package stream

import (
	"context"
	"fmt"
	"sync"
)

// MockSource is an in-memory Source for testing. Records are handed out
// in push order; commits are recorded so tests can assert which offsets
// were acknowledged.
type MockSource struct {
	mu         sync.Mutex
	records    chan *Record
	committed  []string
	next       int
	FailCommit error // consumed by the next Commit call
}

// NewMockSource creates a mock source that can buffer up to 256 records.
func NewMockSource() *MockSource {
	return &MockSource{records: make(chan *Record, 256)}
}

// Push enqueues raw payloads as records with sequential offsets.
func (m *MockSource) Push(payloads ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range payloads {
		m.next++
		m.records <- &Record{Partition: 0, Offset: fmt.Sprintf("%d-0", m.next), Payload: []byte(p)}
	}
}

// Fetch blocks until a record was pushed or the context is cancelled.
func (m *MockSource) Fetch(ctx context.Context) (*Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case record := <-m.records:
		return record, nil
	}
}

// Commit records the acknowledged offset.
func (m *MockSource) Commit(ctx context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommit != nil {
		err := m.FailCommit
		m.FailCommit = nil
		return err
	}
	m.committed = append(m.committed, record.Offset)
	return nil
}

// Committed returns the offsets acknowledged so far.
func (m *MockSource) Committed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.committed...)
}

// Ping always succeeds.
func (m *MockSource) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MockSource) Close() error { return nil }
