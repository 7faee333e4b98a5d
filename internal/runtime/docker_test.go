package runtime

import (
	"errors"
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestRunArgs(t *testing.T) {
	tests := map[string]struct {
		spec LaunchSpec
		exp  string
	}{
		"minimal": {
			spec: LaunchSpec{Name: "isleborn_world_alice", Image: "isleborn/godot_server:latest"},
			exp:  "run -d --rm --name isleborn_world_alice isleborn/godot_server:latest",
		},
		"network mount and args": {
			spec: LaunchSpec{
				Name:    "isleborn_world_bob",
				Image:   "img",
				Network: "bridge",
				Mounts:  []Mount{{Source: "/srv/islands/bob"}},
				Args:    []string{"--server", "--port", "8090"},
			},
			exp: "run -d --rm --name isleborn_world_bob --network bridge -v /srv/islands/bob:/data:rw img --server --port 8090",
		},
		"read only mount with target": {
			spec: LaunchSpec{
				Name:   "n",
				Image:  "img",
				Mounts: []Mount{{Source: "/a", Target: "/assets", ReadOnly: true}},
			},
			exp: "run -d --rm --name n -v /a:/assets:ro img",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "args", strings.Join(runArgs(tt.spec), " "), tt.exp)
		})
	}
}

func TestClassifyStderr(t *testing.T) {
	tests := map[string]struct {
		stderr string
		expIs  error
	}{
		"missing container": {
			stderr: "Error response from daemon: No such container: isleborn_world_alice",
			expIs:  ErrNotRunning,
		},
		"inspect missing object": {
			stderr: "Error: No such object: isleborn_world_alice",
			expIs:  ErrNotRunning,
		},
		"name conflict": {
			stderr: `docker: Error response from daemon: Conflict. The container name "/isleborn_world_alice" is already in use by container "abc".`,
			expIs:  ErrNameConflict,
		},
		"daemon down": {
			stderr: "Cannot connect to the Docker daemon at unix:///var/run/docker.sock. Is the docker daemon running?",
			expIs:  ErrUnavailable,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := classifyStderr(tt.stderr)
			if !errors.Is(err, tt.expIs) {
				t.Errorf("expected %v, got %v", tt.expIs, err)
			}
		})
	}

	err := classifyStderr("docker: invalid reference format.")
	testutil.AssertErrorContains(t, err, "invalid reference format")
	for _, sentinel := range []error{ErrNotRunning, ErrNameConflict, ErrUnavailable} {
		if errors.Is(err, sentinel) {
			t.Errorf("unclassified error should not match %v", sentinel)
		}
	}
}

func TestParseInspect(t *testing.T) {
	tests := map[string]struct {
		out        string
		expID      string
		expRunning bool
		expOk      bool
	}{
		"running": {out: "abc123 true\n", expID: "abc123", expRunning: true, expOk: true},
		"exited":  {out: "abc123 false", expID: "abc123", expRunning: false, expOk: true},
		"garbage": {out: "something else entirely", expOk: false},
		"empty":   {out: "", expOk: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			id, running, ok := parseInspect(tt.out)
			testutil.AssertEqual(t, "ok", ok, tt.expOk)
			if !tt.expOk {
				return
			}
			testutil.AssertEqual(t, "id", id, tt.expID)
			testutil.AssertEqual(t, "running", running, tt.expRunning)
		})
	}
}

func TestDocker_UnavailableBinary(t *testing.T) {
	d := NewDocker(WithDockerBinary("/nonexistent/docker-binary"))

	_, err := d.Launch(t.Context(), LaunchSpec{Name: "x", Image: "img"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
