package classify

import (
	"encoding/json"
	"strings"
	"text/template"

	"kiri/internal/lane"
)

const notFound = "Not found"

var promptTmpl = template.Must(template.New("classify").Parse(`Analyze this GitHub repository to determine the best execution environment.

**Assign to ONE lane:**
- 'A' (Client-Side/Browser): Static HTML/CSS/JS, Node.js, React, Vue, Angular, Svelte, Vite, simple Python scripts runnable in browser
- 'B' (Binder/Server): Django, Flask, FastAPI, Express, Docker, Go, Rust servers, databases, complex Python backends
- 'C' (Colab/GPU): PyTorch, TensorFlow, Transformers, JAX, ML training, LLMs, CUDA, heavy AI workloads

**Repository Analysis:**
File Structure: {{.Files}}
package.json: {{.Package}}
requirements.txt: {{.Dependency}}
pyproject.toml: {{.Pyproject}}
Dockerfile: {{.Container}}
Main entry file: {{.Entry}}
README excerpt: {{.Readme}}

**Return ONLY valid JSON:**
{"lane": "A", "reason": "Brief explanation of why this lane fits", "start_command": "npm run dev"}

**Decision Rules:**
1. Has torch/tensorflow/transformers/keras/jax in deps → Lane C
2. Has django/flask/fastapi/uvicorn in deps → Lane B
3. Has Dockerfile with exposed ports → Lane B
4. Has react/vue/vite/svelte in package.json → Lane A
5. Pure HTML/CSS/JS with no backend → Lane A
6. Python with no web framework or ML → Lane A (Pyodide)
7. Unsure → default to Lane B (safest)`))

type promptFields struct {
	Files, Package, Dependency, Pyproject, Container, Entry, Readme string
}

// BuildPrompt renders the classification prompt from snap re-truncated to
// caps. Empty fields render as "Not found".
func BuildPrompt(snap *lane.Snapshot, caps lane.Caps) string {
	if snap == nil {
		snap = &lane.Snapshot{}
	}
	b := snap.Bounded(caps)
	files, _ := json.Marshal(b.FileList)
	f := promptFields{
		Files:      string(files),
		Package:    orNotFound(b.PackageManifest),
		Dependency: orNotFound(b.DependencyManifest),
		Pyproject:  orNotFound(b.PyprojectManifest),
		Container:  orNotFound(b.ContainerManifest),
		Entry:      orNotFound(b.EntryFile),
		Readme:     orNotFound(b.ReadmeExcerpt),
	}
	var sb strings.Builder
	// Execute only fails on writer errors; strings.Builder never returns one.
	_ = promptTmpl.Execute(&sb, f)
	return sb.String()
}

func orNotFound(s string) string {
	if s == "" {
		return notFound
	}
	return s
}
