package classify

import (
	"errors"
	"fmt"
	"strings"

	"kiri/internal/lane"
	"kiri/internal/util/jsonutil"
)

var ErrBadVerdict = errors.New("classify: model output is not a usable verdict")

type rawVerdict struct {
	Lane         string `json:"lane"`
	Reason       string `json:"reason"`
	StartCommand string `json:"start_command"`
}

// ParseVerdict extracts a verdict from free-form model output using
// jsonutil.ExtractObject. The lane must be A, B or C; reason and
// start_command default to "".
func ParseVerdict(text string) (lane.Verdict, error) {
	var rv rawVerdict
	if err := jsonutil.DecodeObject(text, &rv); err != nil {
		return lane.Verdict{}, fmt.Errorf("%w: %v", ErrBadVerdict, err)
	}
	l, err := lane.Parse(rv.Lane)
	if err != nil || !l.Classified() {
		return lane.Verdict{}, fmt.Errorf("%w: lane %q", ErrBadVerdict, rv.Lane)
	}
	return lane.Verdict{
		Lane:         l,
		Reason:       strings.TrimSpace(rv.Reason),
		StartCommand: strings.TrimSpace(rv.StartCommand),
	}, nil
}
