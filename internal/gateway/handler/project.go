package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"kiri/internal/lane"
	"kiri/internal/project"
)

type ProjectHandler struct {
	projects    Projects
	dispatcher  Dispatcher
	invalidator Invalidator
	logger      *zap.Logger
}

func NewProjectHandler(projects Projects, dispatcher Dispatcher, logger *zap.Logger) *ProjectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectHandler{projects: projects, dispatcher: dispatcher, logger: logger}
}

// WithInvalidator makes manual re-classification skip cached snapshots.
func (h *ProjectHandler) WithInvalidator(inv Invalidator) *ProjectHandler {
	h.invalidator = inv
	return h
}

type createProjectRequest struct {
	Name          string `json:"name"`
	RepositoryURL string `json:"repository_url"`
}

type projectResponse struct {
	Project project.Record `json:"project"`
	Badge   string         `json:"badge"`
	JobID   string         `json:"job_id,omitempty"`
}

func newProjectResponse(r project.Record, jobID string) projectResponse {
	return projectResponse{Project: r, Badge: r.Lane.Label(), JobID: jobID}
}

// Create stores a pending record and enqueues its first classification.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in createProjectRequest
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rec, err := h.projects.Create(ctx, in.Name, in.RepositoryURL)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	job, err := h.dispatcher.Dispatch(ctx, rec.ID)
	if err != nil {
		// The record exists; the sweeper picks it up later.
		h.logger.Warn("initial classification not enqueued", zap.String("project_id", rec.ID), zap.Error(err))
	}
	respondJSON(w, http.StatusAccepted, newProjectResponse(rec, job.ID))
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	rec, err := h.projects.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, newProjectResponse(rec, ""))
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	var opts project.ListOptions
	if raw := strings.TrimSpace(r.URL.Query().Get("lane")); raw != "" {
		l, err := lane.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		opts.Lane = l
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		opts.Limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	recs, err := h.projects.List(ctx, opts)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"projects": recs})
}

// Classify re-enqueues a classification for an existing record.
func (h *ProjectHandler) Classify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	rec, err := h.projects.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	if h.invalidator != nil {
		h.invalidator.Invalidate(rec.RepositoryURL)
	}
	job, err := h.dispatcher.Dispatch(ctx, rec.ID)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusAccepted, newProjectResponse(rec, job.ID))
}

// Delete removes the record and its published bundle.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if _, err := h.projects.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
