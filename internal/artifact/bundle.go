// Package artifact builds and publishes the execution bundles behind lane B
// (Binder) and lane C (Colab) links.
package artifact

import "sort"

// Bundle is a set of named text files published together.
type Bundle struct {
	Description string
	// Primary is the file an execution URL points at, if any.
	Primary string
	Files   map[string]string
}

// Names returns the file names in sorted order.
func (b Bundle) Names() []string {
	out := make([]string, 0, len(b.Files))
	for name := range b.Files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
