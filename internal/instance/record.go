package instance

import (
	"errors"
	"time"

	"github.com/pixil98/go-isleborn/internal/owner"
	"github.com/pixil98/go-isleborn/internal/runtime"
)

var (
	ErrNotFound = errors.New("instance not found")
	// ErrBusy is returned when a transition for the owner is already in flight
	// and the caller asked not to wait for it.
	ErrBusy = errors.New("instance transition in progress")
	// ErrInvariant marks a sequencing bug inside the registry.
	ErrInvariant = errors.New("instance registry invariant violated")
)

// State is the lifecycle state of a world instance.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateFailed   State = "failed"
)

var allStates = []State{StateStopped, StateStarting, StateRunning, StateStopping, StateFailed}

// Record is a point-in-time copy of an owner's instance. The registry never
// hands out its live records.
type Record struct {
	Owner     owner.ID       `json:"owner"`
	State     State          `json:"state"`
	Handle    runtime.Handle `json:"handle,omitempty"`
	Name      string         `json:"name,omitempty"`
	MountPath string         `json:"mount_path,omitempty"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	LastError string         `json:"last_error,omitempty"`
}

// Active reports whether the record holds (or may hold) a runtime entity.
func (r Record) Active() bool {
	return r.State == StateStarting || r.State == StateRunning
}

// Started is the outcome of a successful Start.
type Started struct {
	Handle runtime.Handle
	// Existing is true when no new entity was launched.
	Existing bool
}
