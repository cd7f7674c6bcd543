package lane

import "unicode/utf8"

// MaxFileList caps the number of tree entries kept in a snapshot.
const MaxFileList = 150

// Caps is a per-field truncation budget. Fetch-time and prompt-time budgets
// are separate values of this type and must not be mixed up.
type Caps struct {
	Files      int
	Package    int
	Dependency int
	Pyproject  int
	Container  int
	Entry      int
	Readme     int
}

// FetchCaps bound what the introspector keeps from each remote file.
var FetchCaps = Caps{
	Files:      MaxFileList,
	Package:    3000,
	Dependency: 3000,
	Pyproject:  2000,
	Container:  1500,
	Entry:      3000,
	Readme:     5000,
}

// PromptCaps bound what the remote classifiers see of each snapshot field.
var PromptCaps = Caps{
	Files:      50,
	Package:    1500,
	Dependency: 1500,
	Pyproject:  1000,
	Container:  800,
	Entry:      800,
	Readme:     500,
}

// Snapshot is the bounded view of a remote repository used as classifier input.
// A missing file is always the empty string.
type Snapshot struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`

	FileList           []string `json:"file_list"`
	PackageManifest    string   `json:"package_json"`
	DependencyManifest string   `json:"requirements_txt"`
	PyprojectManifest  string   `json:"pyproject_toml"`
	ContainerManifest  string   `json:"dockerfile"`
	EntryFile          string   `json:"main_file"`
	ReadmeExcerpt      string   `json:"readme"`
}

// FullName returns owner/name.
func (s *Snapshot) FullName() string {
	if s == nil {
		return ""
	}
	return s.Owner + "/" + s.Name
}

// Bounded returns a copy of s with every field truncated to caps.
func (s Snapshot) Bounded(c Caps) Snapshot {
	out := s
	files := s.FileList
	if c.Files >= 0 && len(files) > c.Files {
		files = files[:c.Files]
	}
	out.FileList = append([]string(nil), files...)
	out.PackageManifest = Truncate(s.PackageManifest, c.Package)
	out.DependencyManifest = Truncate(s.DependencyManifest, c.Dependency)
	out.PyprojectManifest = Truncate(s.PyprojectManifest, c.Pyproject)
	out.ContainerManifest = Truncate(s.ContainerManifest, c.Container)
	out.EntryFile = Truncate(s.EntryFile, c.Entry)
	out.ReadmeExcerpt = Truncate(s.ReadmeExcerpt, c.Readme)
	return out
}

// Truncate returns at most max bytes of s without splitting a UTF-8 sequence.
// The result never exceeds max in bytes or in runes. max <= 0 yields "".
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
