package notify

import (
	"context"
	"sync"
)

// Memory is a Dispatcher that records notifications in memory. Used by
// tests and by local runs without push infrastructure.
type Memory struct {
	mu        sync.Mutex
	delivered []Notification
}

// NewMemory creates an in-memory dispatcher.
func NewMemory() *Memory {
	return &Memory{}
}

// Deliver records the notification.
func (m *Memory) Deliver(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, n)
	return nil
}

// Delivered returns a copy of all recorded notifications.
func (m *Memory) Delivered() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.delivered))
	copy(out, m.delivered)
	return out
}

var _ Dispatcher = (*Memory)(nil)
