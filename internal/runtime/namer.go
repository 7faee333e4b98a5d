package runtime

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

const (
	DefaultNameTemplate = "isleborn_world_{{ .Owner }}"
	DefaultMountTarget  = "/data"
)

// DefaultArgs starts the world image as a headless server.
var DefaultArgs = []string{"--server", "--port", "8090"}

var templateFuncs = sprig.TxtFuncMap()

// TemplateData is what name and argument templates can reference.
type TemplateData struct {
	Owner     string
	MountPath string
}

// Namer derives the launch parameters for an owner. Names must be a pure
// function of the owner so a restarted registry finds the entity it launched
// before.
type Namer struct {
	name *template.Template
	args []*template.Template
}

func NewNamer(nameTmpl string, argTmpls []string) (*Namer, error) {
	if nameTmpl == "" {
		nameTmpl = DefaultNameTemplate
	}
	name, err := parseTemplate(nameTmpl)
	if err != nil {
		return nil, fmt.Errorf("name template: %w", err)
	}

	n := &Namer{name: name}
	for i, a := range argTmpls {
		t, err := parseTemplate(a)
		if err != nil {
			return nil, fmt.Errorf("arg template %d: %w", i, err)
		}
		n.args = append(n.args, t)
	}
	return n, nil
}

// Name returns the container name for owner.
func (n *Namer) Name(owner string) (string, error) {
	return execTemplate(n.name, TemplateData{Owner: owner})
}

// Args expands the argument templates for a launch.
func (n *Namer) Args(data TemplateData) ([]string, error) {
	out := make([]string, 0, len(n.args))
	for i, t := range n.args {
		s, err := execTemplate(t, data)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func parseTemplate(s string) (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(s)
}

func execTemplate(t *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}
