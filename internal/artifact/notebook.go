package artifact

import (
	"fmt"
	"strings"

	"kiri/internal/introspect"
	"kiri/internal/util/jsonutil"
)

const notebookRunPlaceholder = "Modify this cell to run your specific script"

type notebook struct {
	NBFormat      int              `json:"nbformat"`
	NBFormatMinor int              `json:"nbformat_minor"`
	Metadata      notebookMetadata `json:"metadata"`
	Cells         []any            `json:"cells"`
}

type notebookMetadata struct {
	Colab       map[string]string `json:"colab"`
	KernelSpec  map[string]string `json:"kernelspec"`
	Accelerator string            `json:"accelerator,omitempty"`
}

type markdownCell struct {
	CellType string         `json:"cell_type"`
	Source   []string       `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

// codeCell always carries execution_count (null) and outputs, as nbformat 4 requires.
type codeCell struct {
	CellType       string         `json:"cell_type"`
	Source         []string       `json:"source"`
	Metadata       map[string]any `json:"metadata"`
	ExecutionCount *int           `json:"execution_count"`
	Outputs        []any          `json:"outputs"`
}

func newCodeCell(lines ...string) codeCell {
	return codeCell{CellType: "code", Source: lines, Metadata: map[string]any{}, Outputs: []any{}}
}

// NotebookFileName is the gist file name Colab opens for ref.
func NotebookFileName(ref introspect.RepoRef) string {
	return ref.Name + "_demo.ipynb"
}

// ColabNotebook renders an nbformat-4 notebook that clones ref, installs its
// requirements and shows the start command in the run cell.
func ColabNotebook(ref introspect.RepoRef, startCommand string) (Bundle, error) {
	run := strings.TrimSpace(startCommand)
	if run == "" {
		run = notebookRunPlaceholder
	}
	name := NotebookFileName(ref)
	nb := notebook{
		NBFormat:      4,
		NBFormatMinor: 0,
		Metadata: notebookMetadata{
			Colab:       map[string]string{"name": name},
			KernelSpec:  map[string]string{"name": "python3", "display_name": "Python 3"},
			Accelerator: "GPU",
		},
		Cells: []any{
			markdownCell{
				CellType: "markdown",
				Source: []string{fmt.Sprintf("# %s\n\nThis notebook was auto-generated by "+
					"[Kiri Research Labs](https://kiri.ng) to help you run this project.", ref.Name)},
				Metadata: map[string]any{},
			},
			newCodeCell("# Clone the repository\n", "!git clone "+ref.CloneURL()+"\n", "%cd "+ref.Name),
			newCodeCell("# Install dependencies\n", "!pip install -r requirements.txt"),
			newCodeCell("# Run the project\n", "# "+run),
		},
	}
	raw, err := jsonutil.MarshalNoEscapeIndent(nb, "", " ")
	if err != nil {
		return Bundle{}, fmt.Errorf("artifact: render notebook: %w", err)
	}
	return Bundle{
		Description: "Kiri Colab notebook for " + ref.String(),
		Primary:     name,
		Files:       map[string]string{name: string(raw)},
	}, nil
}
