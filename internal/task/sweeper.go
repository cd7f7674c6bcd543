package task

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kiri/internal/introspect"
	"kiri/internal/project"
)

// MetadataSource fetches repository display metadata.
type MetadataSource interface {
	Metadata(ctx context.Context, repoURL string) (*introspect.Metadata, error)
}

type SweeperOptions struct {
	RetryInterval time.Duration
	StaleAfter    time.Duration
	SyncInterval  time.Duration
	BatchSize     int
	Logger        *zap.Logger
	Now           func() time.Time
}

// Sweeper re-enqueues records stuck in the pending lane and refreshes
// repository metadata on a schedule.
type Sweeper struct {
	store      project.Store
	dispatcher *Dispatcher
	meta       MetadataSource
	opts       SweeperOptions
	logger     *zap.Logger
}

func NewSweeper(store project.Store, d *Dispatcher, meta MetadataSource, opts SweeperOptions) *Sweeper {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	return &Sweeper{store: store, dispatcher: d, meta: meta, opts: opts, logger: opts.Logger}
}

// RetryStale dispatches a job for every pending record untouched for
// StaleAfter. It returns the number of jobs dispatched.
func (s *Sweeper) RetryStale(ctx context.Context) (int, error) {
	before := s.opts.Now().Add(-s.opts.StaleAfter)
	recs, err := s.store.ListStale(ctx, before, s.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range recs {
		if _, err := s.dispatcher.Dispatch(ctx, r.ID); err != nil {
			s.logger.Warn("re-enqueue failed", zap.String("project_id", r.ID), zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("stale projects re-enqueued", zap.Int("count", n))
	}
	return n, nil
}

// SyncMetadata refreshes stars, forks, language and empty descriptions and
// topics for every record. It returns the number of records updated.
func (s *Sweeper) SyncMetadata(ctx context.Context) (int, error) {
	if s.meta == nil {
		return 0, nil
	}
	recs, err := s.store.List(ctx, project.ListOptions{})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		md, err := s.meta.Metadata(ctx, r.RepositoryURL)
		if err != nil {
			s.logger.Warn("metadata sync failed", zap.String("project_id", r.ID), zap.Error(err))
			continue
		}
		_, err = s.store.UpdateMetadata(ctx, r.ID, project.Metadata{
			Stars:       md.Stars,
			Forks:       md.Forks,
			Language:    md.Language,
			Description: md.Description,
			Topics:      md.Topics,
			At:          s.opts.Now(),
		})
		if err != nil {
			s.logger.Warn("metadata store failed", zap.String("project_id", r.ID), zap.Error(err))
			continue
		}
		n++
	}
	s.logger.Info("metadata sync finished", zap.Int("updated", n), zap.Int("total", len(recs)))
	return n, nil
}

// Run sweeps on both intervals until ctx is done. A zero interval disables
// that sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	retry := tick(s.opts.RetryInterval)
	sync := tick(s.opts.SyncInterval)
	defer retry.Stop()
	defer sync.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retry.C:
			if _, err := s.RetryStale(ctx); err != nil {
				s.logger.Error("stale sweep failed", zap.Error(err))
			}
		case <-sync.C:
			if _, err := s.SyncMetadata(ctx); err != nil {
				s.logger.Error("metadata sweep failed", zap.Error(err))
			}
		}
	}
}

type ticker struct {
	C <-chan time.Time
	t *time.Ticker
}

func tick(d time.Duration) ticker {
	if d <= 0 {
		return ticker{}
	}
	t := time.NewTicker(d)
	return ticker{C: t.C, t: t}
}

func (t ticker) Stop() {
	if t.t != nil {
		t.t.Stop()
	}
}
