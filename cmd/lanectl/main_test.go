package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiri/internal/classify"
	"kiri/internal/lane"
	"kiri/internal/task"
)

func TestRootCommandLists(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"classify", "reclassify", "sweep"}, names)
}

func TestClassifyRejectsUnparseableURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "")
	t.Setenv("ARTIFACT_MINIO_ENDPOINT", "")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"classify", "not a url"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable")
}

func TestWriteVerdict(t *testing.T) {
	var buf bytes.Buffer
	writeVerdict(&buf, lane.Verdict{Lane: lane.HostedContainer, Reason: classify.ReasonDjango, StartCommand: classify.CommandDjango})
	out := buf.String()
	assert.Contains(t, out, "Cloud Container (Binder)")
	assert.Contains(t, out, "manage.py runserver")
}

func TestWritePreviewJSON(t *testing.T) {
	var buf bytes.Buffer
	snap := &lane.Snapshot{Owner: "acme", Name: "web", FileList: []string{"index.html"}}
	require.NoError(t, writePreviewJSON(&buf, task.Outcome{Tier: "heuristic", Verdict: lane.Verdict{Lane: lane.ClientSide}}, snap))
	assert.True(t, strings.Contains(buf.String(), `"tier": "heuristic"`))
	assert.Contains(t, buf.String(), `"file_list"`)
}
