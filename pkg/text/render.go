// Package text renders named-variable templates for agent prompts. System
// prompts reference a typed dependency record via Go template syntax;
// user prompts use the same mechanism over a flat variable map, so a missing
// substitution fails at render time rather than silently producing an
// incomplete prompt.
package text

import (
	"fmt"
	"strings"
	"text/template"
)

// Renderer renders a single template string against a set of named
// variables. It is not safe for concurrent use; callers render one prompt
// per Renderer instance.
type Renderer struct {
	tmpl      string
	variables map[string]any
}

// NewRenderer creates an empty Renderer.
func NewRenderer() *Renderer {
	return &Renderer{variables: make(map[string]any)}
}

// WithTemplate sets the template body (Go template syntax, "{{.Field}}").
func (r *Renderer) WithTemplate(tmpl string) *Renderer {
	r.tmpl = tmpl
	return r
}

// WithVariable binds a single named variable.
func (r *Renderer) WithVariable(name string, value any) *Renderer {
	r.variables[name] = value
	return r
}

// WithVariables merges a map of named variables.
func (r *Renderer) WithVariables(vars map[string]any) *Renderer {
	for k, v := range vars {
		r.variables[k] = v
	}
	return r
}

// Render executes the template against the bound variables. It errors
// (rather than silently skipping) on any reference to an unbound field,
// so prompt-construction mistakes surface immediately instead of reaching
// the model as a literal "<no value>".
func (r *Renderer) Render() (string, error) {
	t, err := template.New("prompt").
		Option("missingkey=error").
		Parse(r.tmpl)
	if err != nil {
		return "", fmt.Errorf("text: parse template: %w", err)
	}

	var sb strings.Builder
	if err := t.Execute(&sb, r.variables); err != nil {
		return "", fmt.Errorf("text: render template: %w", err)
	}
	return sb.String(), nil
}
