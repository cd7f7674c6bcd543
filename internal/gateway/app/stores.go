package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kiri/internal/artifact"
	"kiri/internal/config"
	"kiri/internal/gateway/handler"
	"kiri/internal/project"
)

type stores struct {
	projects project.Store
	archive  artifact.Archiver
	pingers  map[string]handler.Pinger
	closers  []func()
}

func initStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	s := &stores{pingers: map[string]handler.Pinger{}}

	var origin project.Store
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pg, err := project.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open project store: %w", err)
		}
		origin = pg
		s.pingers["postgres"] = pg
		s.closers = append(s.closers, pg.Close)
		logger.Info("project store: postgres")
	} else {
		origin = project.NewMemoryStore()
		logger.Info("project store: in-memory")
	}
	cached, err := project.NewCachedStore(origin, cfg.Cache.ProjectSize)
	if err != nil {
		s.close()
		return nil, err
	}
	s.projects = cached

	archive, err := chooseArchive(cfg, logger)
	if err != nil {
		s.close()
		return nil, err
	}
	s.archive = archive
	return s, nil
}

// chooseArchive returns nil when no S3 endpoint is configured; the archive
// mirror is optional.
func chooseArchive(cfg *config.Config, logger *zap.Logger) (artifact.Archiver, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	a, err := artifact.NewS3Archive(artifact.S3Config{
		Endpoint:  cfg.Archive.Endpoint,
		Region:    cfg.Archive.Region,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		Bucket:    cfg.Archive.Bucket,
		UseSSL:    cfg.Archive.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact archive: %w", err)
	}
	logger.Info("artifact archive: s3", zap.String("bucket", cfg.Archive.Bucket), zap.String("endpoint", cfg.Archive.Endpoint))
	return a, nil
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
