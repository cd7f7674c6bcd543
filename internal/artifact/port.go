package artifact

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	explicitPortFlag = regexp.MustCompile(`(?:--port|-p)[= ]+(\d{2,5})\b`)
	explicitPortBind = regexp.MustCompile(`:(\d{2,5})\b`)
)

// frameworkPorts are checked in order when no port is explicit.
var frameworkPorts = []struct {
	marker string
	port   int
}{
	{"runserver", 8000},
	{"uvicorn", 8000},
	{"gunicorn", 8000},
	{"flask run", 5000},
	{"streamlit", 8501},
	{"gradio", 7860},
}

// InferPort guesses the HTTP port a start command listens on. An explicit
// --port/-p flag or host:port binding wins over framework defaults. It
// returns 0 when nothing is known.
func InferPort(cmd string) int {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return 0
	}
	for _, re := range []*regexp.Regexp{explicitPortFlag, explicitPortBind} {
		if m := re.FindStringSubmatch(cmd); m != nil {
			if p, err := strconv.Atoi(m[1]); err == nil && p > 0 && p < 65536 {
				return p
			}
		}
	}
	lower := strings.ToLower(cmd)
	for _, fp := range frameworkPorts {
		if strings.Contains(lower, fp.marker) {
			return fp.port
		}
	}
	return 0
}
