package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kiri/internal/lane"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name      string
		deps      string
		in        lane.Verdict
		want      lane.Lane
		corrected bool
	}{
		{"backend on A is corrected", "django\ngunicorn", lane.Verdict{Lane: lane.ClientSide}, lane.HostedContainer, true},
		{"backend on B is kept", "flask", lane.Verdict{Lane: lane.HostedContainer, Reason: "model"}, lane.HostedContainer, false},
		{"gpu on A is corrected", "torch", lane.Verdict{Lane: lane.ClientSide}, lane.GPUNotebook, true},
		{"gpu on B is corrected", "keras", lane.Verdict{Lane: lane.HostedContainer}, lane.GPUNotebook, true},
		{"gpu on C is kept", "jax", lane.Verdict{Lane: lane.GPUNotebook, Reason: "model"}, lane.GPUNotebook, false},
		{"cuda alone does not trigger", "cuda-python", lane.Verdict{Lane: lane.HostedContainer, Reason: "model"}, lane.HostedContainer, false},
		{"no keywords", "requests", lane.Verdict{Lane: lane.HostedContainer, Reason: "model"}, lane.HostedContainer, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := &lane.Snapshot{DependencyManifest: tc.deps}
			got, corrected := Validate(tc.in, snap)
			assert.Equal(t, tc.want, got.Lane)
			assert.Equal(t, tc.corrected, corrected)
			if !corrected {
				assert.Equal(t, tc.in, got)
			}
		})
	}
}

func TestValidate_DjangoOverrideUsesRunserver(t *testing.T) {
	snap := &lane.Snapshot{DependencyManifest: "django==4.2\ngunicorn"}
	got, corrected := Validate(lane.Verdict{Lane: lane.ClientSide, Reason: "static site"}, snap)
	assert.True(t, corrected)
	assert.Equal(t, lane.Verdict{Lane: lane.HostedContainer, Reason: ReasonDjango, StartCommand: CommandDjango}, got)
}

func TestValidate_Idempotent(t *testing.T) {
	manifests := []string{"", "django", "torch", "flask\ncuda", "jax\nfastapi", "pyodide", "requests"}
	lanes := []lane.Lane{lane.ClientSide, lane.HostedContainer, lane.GPUNotebook}
	for _, m := range manifests {
		for _, l := range lanes {
			snap := &lane.Snapshot{DependencyManifest: m}
			once, _ := Validate(lane.Verdict{Lane: l, Reason: "r"}, snap)
			twice, corrected := Validate(once, snap)
			assert.Equal(t, once, twice, "manifest=%q lane=%s", m, l)
			assert.False(t, corrected, "manifest=%q lane=%s", m, l)
		}
	}
}
