package artifact

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"kiri/internal/introspect"
)

// Binder bundle file names. postBuild and start are executed by repo2docker.
const (
	BinderEnvironmentFile = "environment.yml"
	BinderPostBuildFile   = "postBuild"
	BinderStartFile       = "start"
)

type condaEnvironment struct {
	Name         string   `yaml:"name"`
	Channels     []string `yaml:"channels"`
	Dependencies []any    `yaml:"dependencies"`
}

// BinderBundle renders the three-file Binder configuration that clones ref,
// installs its requirements and launches startCommand in the background
// behind jupyter-server-proxy.
func BinderBundle(ref introspect.RepoRef, startCommand, pythonVersion string) (Bundle, error) {
	if pythonVersion == "" {
		pythonVersion = "3.11"
	}
	env := condaEnvironment{
		Name:     "kiri-" + strings.ToLower(ref.Name),
		Channels: []string{"conda-forge"},
		Dependencies: []any{
			"python=" + pythonVersion,
			"pip",
			map[string][]string{"pip": {"jupyter-server-proxy"}},
		},
	}
	envYAML, err := yaml.Marshal(env)
	if err != nil {
		return Bundle{}, fmt.Errorf("artifact: render environment.yml: %w", err)
	}

	dir := `"$HOME/` + ref.Name + `"`
	postBuild := strings.Join([]string{
		"#!/bin/bash",
		"set -euo pipefail",
		"git clone --depth 1 " + ref.CloneURL() + " " + dir,
		"if [ -f " + dir + "/requirements.txt ]; then",
		"  pip install --no-cache-dir -r " + dir + "/requirements.txt",
		"fi",
		"",
	}, "\n")

	start := []string{
		"#!/bin/bash",
		"cd " + dir,
	}
	if cmd := strings.TrimSpace(startCommand); cmd != "" {
		start = append(start, "("+cmd+`) > "$HOME/.kiri-app.log" 2>&1 &`)
	}
	start = append(start, `exec "$@"`, "")

	return Bundle{
		Description: "Kiri Binder environment for " + ref.String(),
		Files: map[string]string{
			BinderEnvironmentFile: string(envYAML),
			BinderPostBuildFile:   postBuild,
			BinderStartFile:       strings.Join(start, "\n"),
		},
	}, nil
}
