package project

import (
	"context"

	"go.uber.org/zap"
)

// ArtifactCleaner deletes a published execution bundle by external ID.
type ArtifactCleaner interface {
	Cleanup(ctx context.Context, externalID string) error
}

// Service wraps a Store with the record lifecycle hooks.
type Service struct {
	store   Store
	cleaner ArtifactCleaner
	logger  *zap.Logger
}

func NewService(store Store, cleaner ArtifactCleaner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cleaner: cleaner, logger: logger}
}

func (s *Service) Store() Store { return s.store }

// Create registers a new record in the pending lane.
func (s *Service) Create(ctx context.Context, name, repositoryURL string) (Record, error) {
	r, err := s.store.Create(ctx, Record{Name: name, RepositoryURL: repositoryURL})
	if err != nil {
		return Record{}, err
	}
	s.logger.Info("project created", zap.String("project_id", r.ID), zap.String("repository_url", r.RepositoryURL))
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	return s.store.List(ctx, opts)
}

// Delete removes the record, then deletes its published bundle. A failed
// bundle deletion is logged and does not undo the record deletion.
func (s *Service) Delete(ctx context.Context, id string) (Record, error) {
	r, err := s.store.Delete(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if r.ExternalID != "" && s.cleaner != nil {
		if err := s.cleaner.Cleanup(ctx, r.ExternalID); err != nil {
			s.logger.Warn("bundle cleanup after delete failed",
				zap.String("project_id", id), zap.String("external_id", r.ExternalID), zap.Error(err))
		}
	}
	s.logger.Info("project deleted", zap.String("project_id", id))
	return r, nil
}
