package store

import (
	"context"
	"sync"
)

// Memory keeps the pointer in process memory; it is lost on exit
type Memory struct {
	mu sync.Mutex
	id string
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *Memory) Set(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = ""
	return nil
}

func (m *Memory) Close() error { return nil }
