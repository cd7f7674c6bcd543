package classify

import "strings"

var (
	// gpuKeywords route a dependency manifest to the GPU notebook lane.
	gpuKeywords = []string{"torch", "tensorflow", "transformers", "keras", "jax", "cuda"}
	// validatorGPUKeywords is the list Validate checks. It has no "cuda".
	validatorGPUKeywords = []string{"torch", "tensorflow", "transformers", "keras", "jax"}
	backendKeywords      = []string{"django", "flask", "fastapi", "uvicorn", "gunicorn"}
	browserMLKeywords    = []string{"@xenova/transformers", "transformers.js", "@huggingface/transformers"}
	browserPyKeywords    = []string{"pyodide", "gradio-lite", "pyscript"}
)

// containsAny is a plain substring test; "torchvision" matches "torch".
func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
