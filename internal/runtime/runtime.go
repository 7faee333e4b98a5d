package runtime

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the container engine could not be reached or did
	// not answer in time. Callers may retry.
	ErrUnavailable = errors.New("container runtime unavailable")
	// ErrNotRunning is returned when the named entity does not exist.
	ErrNotRunning = errors.New("container not running")
	// ErrNameConflict is returned by Launch when the name is already taken.
	ErrNameConflict = errors.New("container name already in use")
)

// Handle is the opaque id the engine assigned to a launched entity.
type Handle string

func (h Handle) String() string {
	return string(h)
}

// Mount binds a host path into the instance.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// LaunchSpec describes a single world instance to run.
type LaunchSpec struct {
	Name    string
	Image   string
	Mounts  []Mount
	Network string
	Args    []string
}

// Runtime is the narrow capability the instance registry needs from a
// container engine.
type Runtime interface {
	// Launch runs a detached entity named spec.Name.
	Launch(ctx context.Context, spec LaunchSpec) (Handle, error)
	// Terminate stops the entity by name or handle. Returns ErrNotRunning if
	// there is nothing to stop.
	Terminate(ctx context.Context, nameOrHandle string) error
	// Query reports whether an entity with the given name is running.
	Query(ctx context.Context, name string) (Handle, bool, error)
}
