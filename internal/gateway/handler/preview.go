package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"kiri/internal/lane"
)

// previewTimeout covers one full introspection and classifier cascade.
const previewTimeout = 90 * time.Second

type PreviewHandler struct {
	previewer Previewer
}

func NewPreviewHandler(p Previewer) *PreviewHandler {
	return &PreviewHandler{previewer: p}
}

type previewRequest struct {
	RepositoryURL string `json:"repository_url"`
}

type previewResponse struct {
	Lane         lane.Lane      `json:"lane"`
	Badge        string         `json:"badge"`
	Reason       string         `json:"reason"`
	StartCommand string         `json:"start_command"`
	Tier         string         `json:"tier"`
	Corrected    bool           `json:"corrected"`
	Snapshot     *lane.Snapshot `json:"snapshot,omitempty"`
}

// Preview classifies a repository URL without persisting or publishing.
func (h *PreviewHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var in previewRequest
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(in.RepositoryURL) == "" {
		respondError(w, http.StatusBadRequest, errors.New("repository_url is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), previewTimeout)
	defer cancel()

	out, snap, err := h.previewer.Preview(ctx, in.RepositoryURL)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, previewResponse{
		Lane:         out.Verdict.Lane,
		Badge:        out.Verdict.Lane.Label(),
		Reason:       out.Verdict.Reason,
		StartCommand: out.Verdict.StartCommand,
		Tier:         out.Tier,
		Corrected:    out.Corrected,
		Snapshot:     snap,
	})
}
