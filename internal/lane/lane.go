// Package lane holds the execution-lane domain types shared by the
// introspection, classification, artifact and task packages.
package lane

import (
	"fmt"
	"strings"
)

// Lane is the execution environment category assigned to a repository.
type Lane string

const (
	// ClientSide runs entirely in the browser (WebContainer, Pyodide, transformers.js).
	ClientSide Lane = "A"
	// HostedContainer runs in a hosted container (Binder).
	HostedContainer Lane = "B"
	// GPUNotebook runs in a hosted GPU notebook (Colab).
	GPUNotebook Lane = "C"
	// Pending is used only before a classification completes.
	Pending Lane = "P"
)

var labels = map[Lane]string{
	ClientSide:      "Client-Side (WebContainer)",
	HostedContainer: "Cloud Container (Binder)",
	GPUNotebook:     "GPU Cluster (Colab)",
	Pending:         "Pending Classification",
}

// Parse normalizes s into a Lane. Only the four known symbols are accepted.
func Parse(s string) (Lane, error) {
	l := Lane(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := labels[l]; !ok {
		return "", fmt.Errorf("lane: unknown lane %q", s)
	}
	return l, nil
}

// Valid reports whether l is one of the four known symbols.
func (l Lane) Valid() bool {
	_, ok := labels[l]
	return ok
}

// Classified reports whether l is a final classification (A, B or C).
func (l Lane) Classified() bool {
	return l == ClientSide || l == HostedContainer || l == GPUNotebook
}

// NeedsArtifact reports whether a verdict of this lane requires a hosted runtime.
func (l Lane) NeedsArtifact() bool {
	return l == HostedContainer || l == GPUNotebook
}

// Label returns the human-readable badge text.
func (l Lane) Label() string {
	if s, ok := labels[l]; ok {
		return s
	}
	return string(l)
}

func (l Lane) String() string { return string(l) }

// Verdict is the output of any classification stage.
type Verdict struct {
	Lane         Lane   `json:"lane"`
	Reason       string `json:"reason"`
	StartCommand string `json:"start_command"`
}

// Artifact is the published configuration bundle backing a lane B/C execution link.
type Artifact struct {
	ExternalID   string `json:"external_id"`
	ExecutionURL string `json:"execution_url"`
}
