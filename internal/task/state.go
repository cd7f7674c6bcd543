package task

import (
	"kiri/internal/lane"
	"kiri/internal/project"
)

// State is a classification run state.
type State string

const (
	StatePending         State = "PENDING"
	StateSnapshotFailed  State = "SNAPSHOT_FAILED"
	StateClassified      State = "CLASSIFIED"
	StateArtifactBuilt   State = "ARTIFACT_BUILT"
	StateArtifactSkipped State = "ARTIFACT_SKIPPED"
	StateArtifactFailed  State = "ARTIFACT_FAILED"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateSnapshotFailed, StateArtifactBuilt, StateArtifactSkipped, StateArtifactFailed:
		return true
	}
	return false
}

// Outcome is the result of one Runner.Run. Tier names the classifier tier
// that produced the verdict and is empty when the snapshot failed.
type Outcome struct {
	ProjectID string
	State     State
	Tier      string
	Corrected bool
	Verdict   lane.Verdict
	Artifact  *lane.Artifact
	Record    project.Record
}
