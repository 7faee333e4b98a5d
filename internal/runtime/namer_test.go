package runtime

import (
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestNamer_Name(t *testing.T) {
	tests := map[string]struct {
		tmpl   string
		owner  string
		exp    string
		expErr string
	}{
		"default template": {
			owner: "alice",
			exp:   "isleborn_world_alice",
		},
		"sprig function": {
			tmpl:  `world-{{ .Owner | upper }}`,
			owner: "bob",
			exp:   "world-BOB",
		},
		"unknown field": {
			tmpl:   `{{ .Nope }}`,
			owner:  "bob",
			expErr: "executing template",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			n, err := NewNamer(tt.tmpl, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, err := n.Name(tt.owner)
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "name", got, tt.exp)
		})
	}
}

func TestNamer_DeterministicPerOwner(t *testing.T) {
	n, err := NewNamer("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := n.Name("alice")
	b, _ := n.Name("alice")
	c, _ := n.Name("carol")
	testutil.AssertEqual(t, "same owner", a, b)
	if a == c {
		t.Errorf("different owners produced the same name %q", a)
	}
}

func TestNamer_Args(t *testing.T) {
	n, err := NewNamer("", []string{"--server", "--port", "8090", "--owner={{ .Owner }}", `{{ default "/data" .MountPath }}`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := n.Args(TemplateData{Owner: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "args", strings.Join(got, " "), "--server --port 8090 --owner=alice /data")
}

func TestNewNamer_BadTemplate(t *testing.T) {
	_, err := NewNamer("{{ .Owner", nil)
	testutil.AssertErrorContains(t, err, "name template")

	_, err = NewNamer("", []string{"ok", "{{ broken"})
	testutil.AssertErrorContains(t, err, "arg template 1")
}
