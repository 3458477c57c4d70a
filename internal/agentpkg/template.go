// Package agentpkg is the AgentAdapter / TemplateLoader / AgentPool layer
// (spec §4.2, §4.4) that sits between the pipeline and modelprovider.
// Grounded on Tangerg-lynx/ai/client/chat's Client/Call pattern and
// ai/model/chat/prompt_template.go's PromptTemplate-over-pkg/text.Renderer
// wiring, adapted from a single-model client into a typed, fallback-chain
// adapter over an arbitrary AgentKind.
package agentpkg

import (
	"fmt"
	"text/template"

	thtext "github.com/mptyl/thoth-sqlcore/pkg/text"
)

// Template is one agent's pair of prompt bodies: a system prompt rendered
// against a typed dependency record, and a user prompt rendered against the
// per-call variables.
type Template struct {
	SystemTemplate string
	UserTemplate   string
}

// TemplateLoader is a static registry of Templates keyed by template_key
// (workspace.AgentConfig.TemplateKey). Every template is parsed at
// construction so a malformed prompt fails the process at startup instead
// of at the first inference call.
type TemplateLoader struct {
	templates map[string]Template
}

// NewTemplateLoader validates and registers templates.
func NewTemplateLoader(templates map[string]Template) (*TemplateLoader, error) {
	loader := &TemplateLoader{templates: make(map[string]Template, len(templates))}
	for key, t := range templates {
		if _, err := template.New(key + ":system").Parse(t.SystemTemplate); err != nil {
			return nil, fmt.Errorf("agentpkg: invalid system template %q: %w", key, err)
		}
		if _, err := template.New(key + ":user").Parse(t.UserTemplate); err != nil {
			return nil, fmt.Errorf("agentpkg: invalid user template %q: %w", key, err)
		}
		loader.templates[key] = t
	}
	return loader, nil
}

// Render produces the system and user prompt bodies for key. deps backs the
// system prompt, vars backs the user prompt; both error on an unbound field
// rather than emitting a literal "<no value>" into the prompt.
func (l *TemplateLoader) Render(key string, deps, vars map[string]any) (system, user string, err error) {
	t, ok := l.templates[key]
	if !ok {
		return "", "", fmt.Errorf("agentpkg: unknown template key %q", key)
	}

	system, err = thtext.NewRenderer().WithTemplate(t.SystemTemplate).WithVariables(deps).Render()
	if err != nil {
		return "", "", fmt.Errorf("agentpkg: render system prompt %q: %w", key, err)
	}
	user, err = thtext.NewRenderer().WithTemplate(t.UserTemplate).WithVariables(vars).Render()
	if err != nil {
		return "", "", fmt.Errorf("agentpkg: render user prompt %q: %w", key, err)
	}
	return system, user, nil
}
