package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const defaultDockerBinary = "docker"

// Docker drives the docker CLI. Entities are launched with --rm so a stopped
// world leaves nothing behind to clean up.
type Docker struct {
	binary string
}

type DockerOpt func(*Docker)

// WithDockerBinary overrides the docker executable (podman works too).
func WithDockerBinary(path string) DockerOpt {
	return func(d *Docker) {
		d.binary = path
	}
}

func NewDocker(opts ...DockerOpt) *Docker {
	d := &Docker{binary: defaultDockerBinary}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Docker) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	out, err := d.run(ctx, runArgs(spec)...)
	if err != nil {
		return "", fmt.Errorf("docker run %s: %w", spec.Name, err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		return "", fmt.Errorf("docker run %s: empty container id", spec.Name)
	}
	return Handle(id), nil
}

func (d *Docker) Terminate(ctx context.Context, nameOrHandle string) error {
	_, err := d.run(ctx, "stop", nameOrHandle)
	if err != nil {
		return fmt.Errorf("docker stop %s: %w", nameOrHandle, err)
	}
	return nil
}

func (d *Docker) Query(ctx context.Context, name string) (Handle, bool, error) {
	out, err := d.run(ctx, "inspect", "--format", "{{.Id}} {{.State.Running}}", name)
	if errors.Is(err, ErrNotRunning) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("docker inspect %s: %w", name, err)
	}
	id, running, ok := parseInspect(out)
	if !ok {
		return "", false, fmt.Errorf("docker inspect %s: unexpected output %q", name, out)
	}
	return Handle(id), running, nil
}

func (d *Docker) run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		// The binary itself could not be started.
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return "", classifyStderr(stderr.String())
}

func runArgs(spec LaunchSpec) []string {
	args := []string{"run", "-d", "--rm", "--name", spec.Name}
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}
	for _, m := range spec.Mounts {
		target := m.Target
		if target == "" {
			target = DefaultMountTarget
		}
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", m.Source, target, mode))
	}
	args = append(args, spec.Image)
	return append(args, spec.Args...)
}

func classifyStderr(stderr string) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no such container"), strings.Contains(lower, "no such object"):
		return fmt.Errorf("%w: %s", ErrNotRunning, msg)
	case strings.Contains(lower, "is already in use"):
		return fmt.Errorf("%w: %s", ErrNameConflict, msg)
	case strings.Contains(lower, "cannot connect to the docker daemon"),
		strings.Contains(lower, "error during connect"):
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	case msg == "":
		return errors.New("command failed without output")
	default:
		return errors.New(msg)
	}
}

func parseInspect(out string) (string, bool, bool) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return "", false, false
	}
	return fields[0], fields[1] == "true", true
}
