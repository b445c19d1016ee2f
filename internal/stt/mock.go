package stt

import "sync"

// MockClient is an in-memory Client for tests and the mock runtime
// mode. Emit injects transcript events as if the service produced them.
type MockClient struct {
	mu      sync.Mutex
	sent    [][]byte
	results chan Result
	closed  bool
}

func NewMockClient() *MockClient {
	return &MockClient{results: make(chan Result, 16)}
}

func (m *MockClient) SendAudio(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	m.sent = append(m.sent, buf)
}

func (m *MockClient) Results() <-chan Result { return m.results }

func (m *MockClient) Emit(kind Kind, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.results <- Result{Kind: kind, Text: text}
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.results)
	return nil
}

// Sent returns copies of every audio buffer handed to SendAudio.
func (m *MockClient) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// Closed reports whether Close has been called.
func (m *MockClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
