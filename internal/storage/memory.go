package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/pixil98/go-isleborn/internal/owner"
)

// Memory is an in-process tier. It can be told to fail so callers can
// exercise fallback paths.
type Memory struct {
	name string

	mu     sync.RWMutex
	docs   map[owner.ID]Document
	down   bool
	writes int
}

func NewMemory(name string) *Memory {
	return &Memory{name: name, docs: map[owner.ID]Document{}}
}

func (m *Memory) Name() string {
	return m.name
}

// SetDown makes every call fail with ErrUnavailable until cleared.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// Writes counts successful writes.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) Read(ctx context.Context, id owner.ID) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.down {
		return Document{}, fmt.Errorf("%w: %s is down", ErrUnavailable, m.name)
	}
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc.Clone(), nil
}

func (m *Memory) Write(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validating document: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.down {
		return fmt.Errorf("%w: %s is down", ErrUnavailable, m.name)
	}
	m.docs[doc.Owner] = doc.Clone()
	m.writes++
	return nil
}

func (m *Memory) Discard(_ context.Context, id owner.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *Memory) Owners(_ context.Context) ([]owner.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]owner.ID, 0, len(m.docs))
	for id := range m.docs {
		out = append(out, id)
	}
	return out, nil
}
