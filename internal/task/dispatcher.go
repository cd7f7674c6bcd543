package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kiri/internal/project"
)

// Dispatcher turns project IDs into jobs on an Executor.
type Dispatcher struct {
	exec   Executor
	logger *zap.Logger
	now    func() time.Time
}

func NewDispatcher(exec Executor, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{exec: exec, logger: logger, now: time.Now}
}

// Dispatch submits a classification job for projectID.
func (d *Dispatcher) Dispatch(ctx context.Context, projectID string) (Job, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return Job{}, errors.New("task: project id is required")
	}
	job := Job{ID: uuid.NewString(), ProjectID: projectID, EnqueuedAt: d.now().UTC()}
	if err := d.exec.Submit(ctx, job); err != nil {
		return Job{}, err
	}
	d.logger.Debug("job dispatched",
		zap.String("job_id", job.ID), zap.String("project_id", projectID), zap.String("executor", d.exec.Name()))
	return job, nil
}

// RunHandler adapts a Runner to a Handler. A record deleted before its job
// ran is not an error.
func RunHandler(r *Runner, logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job Job) error {
		_, err := r.Run(ctx, job.ProjectID)
		if errors.Is(err, project.ErrNotFound) {
			logger.Info("job for missing project skipped", zap.String("job_id", job.ID), zap.String("project_id", job.ProjectID))
			return nil
		}
		return err
	}
}
