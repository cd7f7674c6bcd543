package artifact

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"kiri/internal/introspect"
)

var widget = introspect.RepoRef{Owner: "acme", Name: "widget"}

func TestBinderBundle(t *testing.T) {
	b, err := BinderBundle(widget, "python manage.py runserver 0.0.0.0:8000", "")
	require.NoError(t, err)
	assert.Equal(t, []string{BinderEnvironmentFile, BinderPostBuildFile, BinderStartFile}, b.Names())

	var env map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(b.Files[BinderEnvironmentFile]), &env))
	assert.Equal(t, []any{"conda-forge"}, env["channels"])
	deps := env["dependencies"].([]any)
	require.Len(t, deps, 3)
	assert.Equal(t, "python=3.11", deps[0])
	assert.Equal(t, "pip", deps[1])
	assert.Equal(t, map[string]any{"pip": []any{"jupyter-server-proxy"}}, deps[2])

	post := b.Files[BinderPostBuildFile]
	assert.Contains(t, post, `git clone --depth 1 https://github.com/acme/widget.git "$HOME/widget"`)
	assert.Contains(t, post, `pip install --no-cache-dir -r "$HOME/widget"/requirements.txt`)

	start := b.Files[BinderStartFile]
	assert.True(t, strings.HasPrefix(start, "#!/bin/bash\n"))
	assert.Contains(t, start, "(python manage.py runserver 0.0.0.0:8000) > ")
	assert.True(t, strings.HasSuffix(start, "exec \"$@\"\n"))
}

func TestBinderBundle_NoStartCommand(t *testing.T) {
	b, err := BinderBundle(widget, "  ", "3.10")
	require.NoError(t, err)
	assert.NotContains(t, b.Files[BinderStartFile], "&\n")
	assert.Contains(t, b.Files[BinderEnvironmentFile], "python=3.10")
}

func TestColabNotebook(t *testing.T) {
	b, err := ColabNotebook(widget, "python train.py --epochs 1 && echo done")
	require.NoError(t, err)
	assert.Equal(t, "widget_demo.ipynb", b.Primary)
	raw := b.Files["widget_demo.ipynb"]
	assert.Contains(t, raw, "&& echo done", "shell text is not HTML-escaped")

	var nb struct {
		NBFormat      int `json:"nbformat"`
		NBFormatMinor int `json:"nbformat_minor"`
		Metadata      struct {
			Colab      map[string]string `json:"colab"`
			KernelSpec map[string]string `json:"kernelspec"`
		} `json:"metadata"`
		Cells []map[string]any `json:"cells"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &nb))
	assert.Equal(t, 4, nb.NBFormat)
	assert.Equal(t, 0, nb.NBFormatMinor)
	assert.Equal(t, "widget_demo.ipynb", nb.Metadata.Colab["name"])
	assert.Equal(t, "python3", nb.Metadata.KernelSpec["name"])
	require.Len(t, nb.Cells, 4)

	assert.Equal(t, "markdown", nb.Cells[0]["cell_type"])
	assert.Contains(t, nb.Cells[0]["source"].([]any)[0], "# widget\n\nThis notebook was auto-generated by [Kiri Research Labs](https://kiri.ng)")
	assert.NotContains(t, nb.Cells[0], "execution_count")

	assert.Equal(t, []any{"# Clone the repository\n", "!git clone https://github.com/acme/widget.git\n", "%cd widget"}, nb.Cells[1]["source"])
	assert.Contains(t, nb.Cells[1], "execution_count")
	assert.Nil(t, nb.Cells[1]["execution_count"])
	assert.Equal(t, []any{}, nb.Cells[1]["outputs"])
	assert.Equal(t, []any{"# Install dependencies\n", "!pip install -r requirements.txt"}, nb.Cells[2]["source"])
	assert.Equal(t, []any{"# Run the project\n", "# python train.py --epochs 1 && echo done"}, nb.Cells[3]["source"])
}

func TestColabNotebook_Placeholder(t *testing.T) {
	b, err := ColabNotebook(widget, "")
	require.NoError(t, err)
	assert.Contains(t, b.Files[b.Primary], "# Modify this cell to run your specific script")
}
