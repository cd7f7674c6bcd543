package artifact

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"kiri/internal/introspect"
	"kiri/internal/lane"
)

const (
	DefaultBinderBaseURL = "https://mybinder.org"
	DefaultColabBaseURL  = "https://colab.research.google.com"
)

// Options configures a Generator.
type Options struct {
	BinderBaseURL string
	ColabBaseURL  string
	PythonVersion string
	// ArchiveTimeout bounds the optional mirror write.
	ArchiveTimeout time.Duration
	Logger         *zap.Logger
}

// Generator turns a lane B/C verdict into a published execution link.
type Generator struct {
	publisher Publisher
	archive   Archiver
	binder    string
	colab     string
	python    string
	archiveTO time.Duration
	logger    *zap.Logger
}

// NewGenerator builds a Generator; archive may be nil.
func NewGenerator(publisher Publisher, archive Archiver, opts Options) *Generator {
	g := &Generator{
		publisher: publisher,
		archive:   archive,
		binder:    strings.TrimRight(opts.BinderBaseURL, "/"),
		colab:     strings.TrimRight(opts.ColabBaseURL, "/"),
		python:    opts.PythonVersion,
		archiveTO: opts.ArchiveTimeout,
		logger:    opts.Logger,
	}
	if g.binder == "" {
		g.binder = DefaultBinderBaseURL
	}
	if g.colab == "" {
		g.colab = DefaultColabBaseURL
	}
	if g.archiveTO <= 0 {
		g.archiveTO = 10 * time.Second
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Generate publishes the bundle for l and returns its execution link.
// Lane A and P need no artifact and yield (nil, nil). Any failure yields a
// nil artifact, a WARN log and the error.
func (g *Generator) Generate(ctx context.Context, repoURL string, l lane.Lane, startCommand string) (*lane.Artifact, error) {
	if !l.NeedsArtifact() {
		return nil, nil
	}
	log := g.logger.With(zap.String("repo_url", repoURL), zap.String("lane", l.String()))

	a, err := g.generate(ctx, repoURL, l, startCommand, log)
	if err != nil {
		log.Warn("artifact generation failed; no execution link", zap.Error(err))
		return nil, err
	}
	return a, nil
}

func (g *Generator) generate(ctx context.Context, repoURL string, l lane.Lane, startCommand string, log *zap.Logger) (*lane.Artifact, error) {
	if g.publisher == nil {
		return nil, fmt.Errorf("artifact: no publisher configured")
	}
	ref, err := introspect.ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	var b Bundle
	switch l {
	case lane.HostedContainer:
		b, err = BinderBundle(ref, startCommand, g.python)
	case lane.GPUNotebook:
		b, err = ColabNotebook(ref, startCommand)
	}
	if err != nil {
		return nil, err
	}

	pub, err := g.publisher.Publish(ctx, b)
	if err != nil {
		return nil, err
	}

	var execURL string
	switch l {
	case lane.HostedContainer:
		execURL = g.BinderURL(pub, startCommand)
	case lane.GPUNotebook:
		execURL = fmt.Sprintf("%s/gist/%s/%s/%s", g.colab, pub.Owner, pub.ID, url.PathEscape(b.Primary))
	}

	g.mirror(ctx, ref, pub, b, log)
	log.Info("artifact published", zap.String("external_id", pub.ID), zap.String("execution_url", execURL))
	return &lane.Artifact{ExternalID: pub.ID, ExecutionURL: execURL}, nil
}

// BinderURL is the launch link for a published Binder bundle. When the start
// command reveals a port, the link opens the proxied app instead of Jupyter.
func (g *Generator) BinderURL(pub Published, startCommand string) string {
	u := fmt.Sprintf("%s/v2/gist/%s/%s/HEAD", g.binder, pub.Owner, pub.ID)
	if port := InferPort(startCommand); port > 0 {
		u += fmt.Sprintf("?urlpath=proxy/%d/", port)
	}
	return u
}

func (g *Generator) mirror(ctx context.Context, ref introspect.RepoRef, pub Published, b Bundle, log *zap.Logger) {
	if g.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, g.archiveTO)
	defer cancel()
	prefix := strings.Join([]string{ref.Owner, ref.Name, pub.ID}, "/")
	if err := g.archive.Archive(ctx, prefix, b); err != nil {
		log.Warn("artifact archive failed", zap.String("prefix", prefix), zap.Error(err))
	}
}

// Cleanup deletes a previously published bundle. It is the deletion hook
// for owning records and for superseded bundles.
func (g *Generator) Cleanup(ctx context.Context, externalID string) error {
	if strings.TrimSpace(externalID) == "" || g.publisher == nil {
		return nil
	}
	if err := g.publisher.Delete(ctx, externalID); err != nil {
		g.logger.Warn("artifact cleanup failed", zap.String("external_id", externalID), zap.Error(err))
		return err
	}
	g.logger.Info("artifact deleted", zap.String("external_id", externalID))
	return nil
}
