package classify

import (
	"strings"

	"kiri/internal/lane"
)

// Validate corrects verdicts that contradict the dependency manifest by
// recomputing the heuristic verdict:
//   - a backend framework is listed but the verdict is lane A;
//   - an ML library is listed but the verdict is lane A or B.
//
// Otherwise v is returned unchanged. The second result reports whether a
// correction happened. Validate(Validate(v)) == Validate(v).
func Validate(v lane.Verdict, snap *lane.Snapshot) (lane.Verdict, bool) {
	var deps string
	if snap != nil {
		deps = strings.ToLower(snap.DependencyManifest)
	}
	if containsAny(deps, backendKeywords) && v.Lane == lane.ClientSide {
		return HeuristicVerdict(snap), true
	}
	if containsAny(deps, validatorGPUKeywords) && (v.Lane == lane.ClientSide || v.Lane == lane.HostedContainer) {
		return HeuristicVerdict(snap), true
	}
	return v, false
}
