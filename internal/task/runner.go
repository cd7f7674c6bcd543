// Package task orchestrates classification runs: snapshot, classify,
// validate, publish the execution artifact, then persist once.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"kiri/internal/classify"
	"kiri/internal/introspect"
	"kiri/internal/lane"
	"kiri/internal/metrics"
	"kiri/internal/project"
	"kiri/internal/telemetry"
)

const (
	reasonUnparseable = "Could not parse the repository URL. Check that it points at a GitHub repository."
	reasonNotFound    = "Repository not found or not accessible. It may be private or deleted."
	reasonFetchFailed = "Could not fetch repository contents. Classification will be retried."
)

// Snapshotter produces classifier input. A nil snapshot means the
// repository could not be fetched at all.
type Snapshotter interface {
	Snapshot(ctx context.Context, repoURL string) (*lane.Snapshot, error)
}

// Classifier always returns a verdict.
type Classifier interface {
	Classify(ctx context.Context, snap *lane.Snapshot) classify.Result
}

// ArtifactGenerator publishes and deletes execution bundles.
type ArtifactGenerator interface {
	Generate(ctx context.Context, repoURL string, l lane.Lane, startCommand string) (*lane.Artifact, error)
	Cleanup(ctx context.Context, externalID string) error
}

type RunnerOptions struct {
	Hub     *Hub
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Runner executes one classification run per call. It holds no per-run
// state and is safe for concurrent use.
type Runner struct {
	store     project.Store
	intro     Snapshotter
	engine    Classifier
	artifacts ArtifactGenerator

	hub     *Hub
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewRunner(store project.Store, intro Snapshotter, engine Classifier, artifacts ArtifactGenerator, opts RunnerOptions) *Runner {
	r := &Runner{
		store:     store,
		intro:     intro,
		engine:    engine,
		artifacts: artifacts,
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		tracer:    telemetry.Tracer("kiri/task"),
		now:       opts.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run classifies the record projectID and persists the outcome with a
// single write. Only persistence errors are returned; fetch, classifier and
// artifact failures degrade the outcome instead.
func (r *Runner) Run(ctx context.Context, projectID string) (Outcome, error) {
	started := r.now()
	ctx, span := r.tracer.Start(ctx, "task.Run", trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	rec, err := r.store.Get(ctx, projectID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load record")
		return Outcome{ProjectID: projectID}, fmt.Errorf("task: load %s: %w", projectID, err)
	}
	log := r.logger.With(zap.String("project_id", rec.ID), zap.String("repository_url", rec.RepositoryURL))
	r.publish(rec.ID, StatePending, lane.Verdict{Lane: lane.Pending}, nil)

	out := Outcome{ProjectID: rec.ID}
	snap, err := r.snapshot(ctx, rec.RepositoryURL)
	if snap == nil {
		out.State = StateSnapshotFailed
		out.Verdict = lane.Verdict{Lane: lane.Pending, Reason: snapshotFailureReason(err)}
		log.Warn("snapshot unavailable; record left pending", zap.Error(err))
		return r.persist(ctx, span, rec, out, started, log)
	}

	res := r.classify(ctx, snap)
	v, corrected := classify.Validate(res.Verdict, snap)
	if corrected {
		r.metrics.ObserveCorrection()
		log.Info("verdict corrected by validator",
			zap.String("from", res.Verdict.Lane.String()), zap.String("to", v.Lane.String()))
	}
	out.Tier, out.Verdict, out.Corrected = res.Tier, v, corrected
	span.SetAttributes(attribute.String("classify.tier", res.Tier), attribute.String("classify.lane", v.Lane.String()))
	r.publish(rec.ID, StateClassified, v, nil)

	switch {
	case !v.Lane.NeedsArtifact():
		out.State = StateArtifactSkipped
	default:
		a, err := r.generate(ctx, rec.RepositoryURL, v)
		r.metrics.ObserveArtifact(v.Lane.String(), a != nil)
		if a == nil {
			out.State = StateArtifactFailed
			log.Warn("classification kept without execution link", zap.String("lane", v.Lane.String()), zap.Error(err))
		} else {
			out.State = StateArtifactBuilt
			out.Artifact = a
		}
	}
	return r.persist(ctx, span, rec, out, started, log)
}

func (r *Runner) persist(ctx context.Context, span trace.Span, prev project.Record, out Outcome, started time.Time, log *zap.Logger) (Outcome, error) {
	c := project.Classification{Verdict: out.Verdict, At: r.now()}
	switch {
	case out.Artifact != nil:
		c.Artifact = *out.Artifact
	case out.State == StateArtifactFailed || out.State == StateSnapshotFailed:
		// A failed run clears the execution link but keeps owning the last
		// bundle, so a transient failure never deletes it.
		c.Artifact.ExternalID = prev.ExternalID
	}
	rec, err := r.store.ApplyClassification(ctx, prev.ID, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		log.Error("persist classification failed", zap.Error(err))
		return out, fmt.Errorf("task: persist %s: %w", prev.ID, err)
	}
	out.Record = rec

	if prev.ExternalID != "" && prev.ExternalID != rec.ExternalID && r.artifacts != nil {
		if err := r.artifacts.Cleanup(ctx, prev.ExternalID); err != nil {
			log.Warn("superseded bundle cleanup failed", zap.String("external_id", prev.ExternalID), zap.Error(err))
		}
	}

	r.metrics.ObserveRun(string(out.State), r.now().Sub(started))
	span.SetAttributes(attribute.String("task.state", string(out.State)))
	r.publish(rec.ID, out.State, out.Verdict, out.Artifact)
	log.Info("classification run finished",
		zap.String("state", string(out.State)),
		zap.String("lane", out.Verdict.Lane.String()),
		zap.String("tier", out.Tier),
		zap.String("execution_url", rec.ExecutionURL))
	return out, nil
}

// Preview runs introspection and classification for repoURL without
// persisting anything or publishing an artifact.
func (r *Runner) Preview(ctx context.Context, repoURL string) (Outcome, *lane.Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "task.Preview")
	defer span.End()

	snap, err := r.snapshot(ctx, repoURL)
	if snap == nil {
		if err == nil {
			err = errors.New("task: repository unavailable")
		}
		return Outcome{State: StateSnapshotFailed, Verdict: lane.Verdict{Lane: lane.Pending, Reason: snapshotFailureReason(err)}}, nil, err
	}
	res := r.classify(ctx, snap)
	v, corrected := classify.Validate(res.Verdict, snap)
	return Outcome{State: StateClassified, Tier: res.Tier, Verdict: v, Corrected: corrected}, snap, nil
}

func (r *Runner) snapshot(ctx context.Context, repoURL string) (*lane.Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "introspect.Snapshot")
	defer span.End()
	snap, err := r.intro.Snapshot(ctx, repoURL)
	if err != nil {
		span.RecordError(err)
	}
	if snap != nil {
		span.SetAttributes(attribute.Int("snapshot.files", len(snap.FileList)))
	}
	return snap, err
}

func (r *Runner) classify(ctx context.Context, snap *lane.Snapshot) classify.Result {
	ctx, span := r.tracer.Start(ctx, "classify.Classify")
	defer span.End()
	res := r.engine.Classify(ctx, snap)
	span.SetAttributes(attribute.String("classify.tier", res.Tier))
	return res
}

func (r *Runner) generate(ctx context.Context, repoURL string, v lane.Verdict) (*lane.Artifact, error) {
	if r.artifacts == nil {
		return nil, errors.New("task: no artifact generator configured")
	}
	ctx, span := r.tracer.Start(ctx, "artifact.Generate", trace.WithAttributes(attribute.String("lane", v.Lane.String())))
	defer span.End()
	a, err := r.artifacts.Generate(ctx, repoURL, v.Lane, v.StartCommand)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
	}
	return a, err
}

func (r *Runner) publish(projectID string, st State, v lane.Verdict, a *lane.Artifact) {
	ev := Event{ProjectID: projectID, State: st, Lane: v.Lane, Reason: v.Reason, At: r.now().UTC()}
	if a != nil {
		ev.ExecutionURL = a.ExecutionURL
	}
	r.hub.Publish(ev)
}

func snapshotFailureReason(err error) string {
	switch {
	case errors.Is(err, introspect.ErrUnparseableURL):
		return reasonUnparseable
	case errors.Is(err, introspect.ErrRepositoryNotFound):
		return reasonNotFound
	default:
		return reasonFetchFailed
	}
}
