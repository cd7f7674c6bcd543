// Package handler serves the JSON and websocket endpoints of the gateway.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"kiri/internal/introspect"
	"kiri/internal/lane"
	"kiri/internal/project"
	"kiri/internal/task"
)

// Projects is the record lifecycle the handlers drive.
type Projects interface {
	Create(ctx context.Context, name, repositoryURL string) (project.Record, error)
	Get(ctx context.Context, id string) (project.Record, error)
	List(ctx context.Context, opts project.ListOptions) ([]project.Record, error)
	Delete(ctx context.Context, id string) (project.Record, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, projectID string) (task.Job, error)
}

type Previewer interface {
	Preview(ctx context.Context, repoURL string) (task.Outcome, *lane.Snapshot, error)
}

type Invalidator interface {
	Invalidate(repoURL string)
}

type Subscriber interface {
	Subscribe(projectID string, size int) (<-chan task.Event, func())
}

const requestTimeout = 5 * time.Second

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, project.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, project.ErrInvalid), errors.Is(err, introspect.ErrUnparseableURL):
		return http.StatusBadRequest
	case errors.Is(err, introspect.ErrRepositoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrExecutorClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
