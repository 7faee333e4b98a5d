package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a single-process Service.
type Memory struct {
	mu   sync.Mutex
	held map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time
}

type MemoryOpt func(*Memory)

// WithMemoryClock replaces time.Now when deciding expiry.
func WithMemoryClock(now func() time.Time) MemoryOpt {
	return func(m *Memory) {
		m.now = now
	}
}

func NewMemory(opts ...MemoryOpt) *Memory {
	m := &Memory{
		held: map[string]memoryEntry{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Acquire(ctx context.Context, key string, ttl time.Duration) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	if ttl <= 0 {
		return Token{}, fmt.Errorf("lock ttl must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.held[key]; ok && now.Before(e.expires) {
		return Token{}, ErrBusy
	}

	tok := Token{Key: key, Value: uuid.NewString()}
	m.held[key] = memoryEntry{value: tok.Value, expires: now.Add(ttl)}
	return tok, nil
}

func (m *Memory) Release(_ context.Context, tok Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.held[tok.Key]; ok && e.value == tok.Value {
		delete(m.held, tok.Key)
	}
	return nil
}
