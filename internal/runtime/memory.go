package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory simulates a container engine in-process. It backs local development
// without docker and is the runtime double in tests.
type Memory struct {
	mu       sync.Mutex
	running  map[string]Handle // name -> handle
	launches int
	stops    int

	launchErr    error
	terminateErr error
	queryErr     error
}

func NewMemory() *Memory {
	return &Memory{running: map[string]Handle{}}
}

func (m *Memory) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.launches++
	if m.launchErr != nil {
		return "", m.launchErr
	}
	if _, ok := m.running[spec.Name]; ok {
		return "", fmt.Errorf("%w: %s", ErrNameConflict, spec.Name)
	}
	h := Handle(uuid.NewString())
	m.running[spec.Name] = h
	return h, nil
}

func (m *Memory) Terminate(ctx context.Context, nameOrHandle string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stops++
	if m.terminateErr != nil {
		return m.terminateErr
	}
	for name, h := range m.running {
		if name == nameOrHandle || string(h) == nameOrHandle {
			delete(m.running, name)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotRunning, nameOrHandle)
}

func (m *Memory) Query(ctx context.Context, name string) (Handle, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queryErr != nil {
		return "", false, m.queryErr
	}
	h, ok := m.running[name]
	return h, ok, nil
}

// FailLaunches makes subsequent launches return err. nil restores normal
// behaviour. The same goes for FailTerminates and FailQueries.
func (m *Memory) FailLaunches(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launchErr = err
}

func (m *Memory) FailTerminates(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminateErr = err
}

func (m *Memory) FailQueries(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryErr = err
}

// Crash removes a running entity behind the registry's back.
func (m *Memory) Crash(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, name)
}

// Launches reports how many Launch calls were made.
func (m *Memory) Launches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launches
}

// Terminates reports how many Terminate calls were made.
func (m *Memory) Terminates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// Running returns the number of live entities.
func (m *Memory) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}
