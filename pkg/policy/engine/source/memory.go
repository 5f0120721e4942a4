package source

import (
	"context"
	"sync"
)

// MemorySource is an in-memory constitution source.
type MemorySource struct {
	mu   sync.RWMutex
	name string
	data []byte
}

// NewMemorySource creates an in-memory source.
func NewMemorySource(name string, data string) *MemorySource {
	return &MemorySource{name: name, data: []byte(data)}
}

// Load returns a copy of the stored document.
func (s *MemorySource) Load(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.name, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := make([]byte, len(s.data))
	copy(data, s.data)
	return data, s.name, nil
}

// Set replaces the stored document.
func (s *MemorySource) Set(data string) {
	s.mu.Lock()
	s.data = []byte(data)
	s.mu.Unlock()
}
