package command

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-isleborn/internal/instance"
	"github.com/pixil98/go-isleborn/internal/runtime"
)

type RuntimeEngine string

const (
	RuntimeEngineDocker RuntimeEngine = "docker"
	RuntimeEngineMemory RuntimeEngine = "memory"
)

type RuntimeConfig struct {
	Engine        RuntimeEngine `json:"engine"`
	DockerBinary  string        `json:"docker_binary"`
	Image         string        `json:"image"`
	Network       string        `json:"network"`
	NameTemplate  string        `json:"name_template"`
	// Args left out of the config default to runtime.DefaultArgs. An empty
	// list launches with no arguments.
	Args          []string      `json:"args"`
	LaunchTimeout string        `json:"launch_timeout"`
	StopTimeout   string        `json:"stop_timeout"`
	// MountRoot is where an owner's data directory lives when a start
	// request names no mount path.
	MountRoot     string        `json:"mount_root"`
}

func (c *RuntimeConfig) validate() error {
	el := errors.NewErrorList()

	switch c.Engine {
	case "", RuntimeEngineDocker, RuntimeEngineMemory:
	default:
		el.Add(fmt.Errorf("runtime: unknown engine %q", c.Engine))
	}

	if c.MountRoot != "" && !filepath.IsAbs(c.MountRoot) {
		el.Add(fmt.Errorf("runtime: mount_root must be absolute"))
	}
	if _, err := runtime.NewNamer(c.NameTemplate, c.launchArgs()); err != nil {
		el.Add(fmt.Errorf("runtime: %w", err))
	}

	el.Add(checkDuration("runtime.launch_timeout", c.LaunchTimeout, time.Second))
	el.Add(checkDuration("runtime.stop_timeout", c.StopTimeout, time.Second))

	return el.Err()
}

func (c *RuntimeConfig) launchArgs() []string {
	if c.Args == nil {
		return runtime.DefaultArgs
	}
	return c.Args
}

func (c *RuntimeConfig) buildRuntime() runtime.Runtime {
	if c.Engine == RuntimeEngineMemory {
		return runtime.NewMemory()
	}
	var opts []runtime.DockerOpt
	if c.DockerBinary != "" {
		opts = append(opts, runtime.WithDockerBinary(c.DockerBinary))
	}
	return runtime.NewDocker(opts...)
}

func (c *RuntimeConfig) buildRegistry(notifier instance.Notifier) (*instance.Registry, error) {
	namer, err := runtime.NewNamer(c.NameTemplate, c.launchArgs())
	if err != nil {
		return nil, fmt.Errorf("building namer: %w", err)
	}

	opts := []instance.RegistryOpt{
		instance.WithLaunchTimeout(durationOr(c.LaunchTimeout, instance.DefaultLaunchTimeout)),
		instance.WithStopTimeout(durationOr(c.StopTimeout, instance.DefaultStopTimeout)),
	}
	if c.Image != "" {
		opts = append(opts, instance.WithImage(c.Image))
	}
	if c.Network != "" {
		opts = append(opts, instance.WithNetwork(c.Network))
	}
	if notifier != nil {
		opts = append(opts, instance.WithNotifier(notifier))
	}

	return instance.NewRegistry(c.buildRuntime(), namer, opts...), nil
}
