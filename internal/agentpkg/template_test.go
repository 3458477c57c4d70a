package agentpkg_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mptyl/thoth-sqlcore/internal/agentpkg"
)

func TestNewTemplateLoaderRejectsMalformedTemplate(t *testing.T) {
	_, err := agentpkg.NewTemplateLoader(map[string]agentpkg.Template{
		"broken": {SystemTemplate: "{{.Unclosed", UserTemplate: "ok"},
	})
	require.Error(t, err)
}

func TestTemplateLoaderRenderSubstitutes(t *testing.T) {
	loader, err := agentpkg.NewTemplateLoader(map[string]agentpkg.Template{
		"sql_basic": {
			SystemTemplate: "You generate {{.Dialect}} SQL for schema:\n{{.Schema}}",
			UserTemplate:   "Question: {{.Question}}",
		},
	})
	require.NoError(t, err)

	system, user, err := loader.Render("sql_basic",
		map[string]any{"Dialect": "postgres", "Schema": "orders(id, status)"},
		map[string]any{"Question": "how many orders?"},
	)
	require.NoError(t, err)
	require.Contains(t, system, "postgres")
	require.Contains(t, system, "orders(id, status)")
	require.Equal(t, "Question: how many orders?", user)
}

func TestTemplateLoaderRenderMissingKeyErrors(t *testing.T) {
	loader, err := agentpkg.NewTemplateLoader(map[string]agentpkg.Template{
		"x": {SystemTemplate: "{{.Missing}}", UserTemplate: "ok"},
	})
	require.NoError(t, err)

	_, _, err = loader.Render("x", map[string]any{}, map[string]any{})
	require.Error(t, err)
}

func TestTemplateLoaderRenderUnknownKey(t *testing.T) {
	loader, err := agentpkg.NewTemplateLoader(nil)
	require.NoError(t, err)

	_, _, err = loader.Render("missing", nil, nil)
	require.Error(t, err)
}
