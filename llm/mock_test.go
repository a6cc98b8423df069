package llm

import (
	"context"
	"sync"
)

// MockProvider is a mock implementation of Provider for testing.
type MockProvider struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	lastUser string
	last     Prompt
}

func (m *MockProvider) Complete(ctx context.Context, p Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = p
	m.lastUser = p.User
	return m.reply, m.err
}

func (m *MockProvider) Model() string { return "mock-model" }

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
