package classify

import (
	"context"
	"strings"

	"kiri/internal/lane"
)

const (
	ReasonGPU        = "Contains ML/AI libraries requiring GPU"
	ReasonDjango     = "Django web application"
	ReasonBackend    = "Python web backend"
	ReasonBrowserML  = "Browser-runnable ML using transformers.js"
	ReasonBrowserPy  = "Browser-runnable Python using Pyodide"
	ReasonJavaScript = "JavaScript/Node.js project"
	ReasonStatic     = "Simple static or browser-runnable project"

	CommandTrain  = "python train.py"
	CommandDjango = "python manage.py runserver 0.0.0.0:8000"
	CommandApp    = "python app.py"
	CommandNPM    = "npm run dev"
)

// HeuristicName is the tier label of the deterministic fallback.
const HeuristicName = "heuristic"

// Heuristic is the keyword-based last tier. It never fails.
type Heuristic struct{}

func (Heuristic) Name() string { return HeuristicName }

func (Heuristic) TryClassify(_ context.Context, snap *lane.Snapshot) (lane.Verdict, bool) {
	return HeuristicVerdict(snap), true
}

// HeuristicVerdict classifies by ordered keyword rules; the first matching
// rule wins. Python without a web framework or ML library stays on lane A.
func HeuristicVerdict(snap *lane.Snapshot) lane.Verdict {
	if snap == nil {
		snap = &lane.Snapshot{}
	}
	deps := strings.ToLower(snap.DependencyManifest)

	if containsAny(deps, gpuKeywords) {
		return lane.Verdict{Lane: lane.GPUNotebook, Reason: ReasonGPU, StartCommand: CommandTrain}
	}
	if containsAny(deps, backendKeywords) {
		if strings.Contains(deps, "django") {
			return lane.Verdict{Lane: lane.HostedContainer, Reason: ReasonDjango, StartCommand: CommandDjango}
		}
		return lane.Verdict{Lane: lane.HostedContainer, Reason: ReasonBackend, StartCommand: CommandApp}
	}
	if containsAny(strings.ToLower(snap.PackageManifest), browserMLKeywords) {
		return lane.Verdict{Lane: lane.ClientSide, Reason: ReasonBrowserML, StartCommand: CommandNPM}
	}
	if containsAny(deps, browserPyKeywords) {
		return lane.Verdict{Lane: lane.ClientSide, Reason: ReasonBrowserPy}
	}
	if snap.PackageManifest != "" || hasJSXFile(snap.FileList) {
		return lane.Verdict{Lane: lane.ClientSide, Reason: ReasonJavaScript, StartCommand: CommandNPM}
	}
	// Product policy: anything left, plain Python included, is assumed to run in the browser.
	return lane.Verdict{Lane: lane.ClientSide, Reason: ReasonStatic}
}

func hasJSXFile(files []string) bool {
	for _, f := range files {
		if strings.HasSuffix(f, ".jsx") || strings.HasSuffix(f, ".tsx") {
			return true
		}
	}
	return false
}
