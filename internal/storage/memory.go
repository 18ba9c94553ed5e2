package storage

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process object store with the same overwrite semantics as
// the hosted one. Used by tests and local development.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *Memory) Download(ctx context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("object %s not found", path)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[path] = stored
	m.types[path] = contentType
	return nil
}

// ContentType reports the content type recorded for path, if any.
func (m *Memory) ContentType(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[path]
}
