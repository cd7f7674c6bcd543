package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"kiri/internal/lane"
)

func TestHeuristicVerdict(t *testing.T) {
	cases := []struct {
		name string
		snap lane.Snapshot
		want lane.Verdict
	}{
		{
			name: "gpu wins over backend",
			snap: lane.Snapshot{DependencyManifest: "torch==2.1.0\ndjango==4.2"},
			want: lane.Verdict{Lane: lane.GPUNotebook, Reason: ReasonGPU, StartCommand: CommandTrain},
		},
		{
			name: "cuda alone is gpu",
			snap: lane.Snapshot{DependencyManifest: "nvidia-cuda-runtime"},
			want: lane.Verdict{Lane: lane.GPUNotebook, Reason: ReasonGPU, StartCommand: CommandTrain},
		},
		{
			name: "case insensitive",
			snap: lane.Snapshot{DependencyManifest: "TensorFlow>=2"},
			want: lane.Verdict{Lane: lane.GPUNotebook, Reason: ReasonGPU, StartCommand: CommandTrain},
		},
		{
			name: "django",
			snap: lane.Snapshot{DependencyManifest: "Django==4.2\npsycopg2"},
			want: lane.Verdict{Lane: lane.HostedContainer, Reason: ReasonDjango, StartCommand: CommandDjango},
		},
		{
			name: "flask",
			snap: lane.Snapshot{DependencyManifest: "flask\ngunicorn"},
			want: lane.Verdict{Lane: lane.HostedContainer, Reason: ReasonBackend, StartCommand: CommandApp},
		},
		{
			name: "transformers.js",
			snap: lane.Snapshot{PackageManifest: `{"dependencies":{"@xenova/transformers":"^2"}}`},
			want: lane.Verdict{Lane: lane.ClientSide, Reason: ReasonBrowserML, StartCommand: CommandNPM},
		},
		{
			name: "pyodide",
			snap: lane.Snapshot{DependencyManifest: "pyodide-build"},
			want: lane.Verdict{Lane: lane.ClientSide, Reason: ReasonBrowserPy},
		},
		{
			name: "package manifest",
			snap: lane.Snapshot{PackageManifest: `{"name":"site"}`},
			want: lane.Verdict{Lane: lane.ClientSide, Reason: ReasonJavaScript, StartCommand: CommandNPM},
		},
		{
			name: "tsx file without manifest",
			snap: lane.Snapshot{FileList: []string{"index.html", "src/App.tsx"}},
			want: lane.Verdict{Lane: lane.ClientSide, Reason: ReasonJavaScript, StartCommand: CommandNPM},
		},
		{
			name: "plain python stays client side",
			snap: lane.Snapshot{DependencyManifest: "requests\nnumpy", FileList: []string{"main.py"}},
			want: lane.Verdict{Lane: lane.ClientSide, Reason: ReasonStatic},
		},
		{
			name: "empty",
			snap: lane.Snapshot{},
			want: lane.Verdict{Lane: lane.ClientSide, Reason: ReasonStatic},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := tc.snap
			assert.Equal(t, tc.want, HeuristicVerdict(&snap))
		})
	}
}

func TestHeuristicVerdict_Deterministic(t *testing.T) {
	snap := &lane.Snapshot{
		DependencyManifest: strings.Repeat("fastapi\n", 50),
		PackageManifest:    `{"name":"x"}`,
		FileList:           []string{"a.jsx"},
	}
	first := HeuristicVerdict(snap)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, HeuristicVerdict(snap))
	}
	assert.Equal(t, lane.HostedContainer, first.Lane)
}

func TestHeuristicVerdict_NilSnapshot(t *testing.T) {
	assert.Equal(t, lane.ClientSide, HeuristicVerdict(nil).Lane)
}
