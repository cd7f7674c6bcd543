package project

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore fronts a Store with an LRU of records by ID. Every write
// refreshes or evicts the cached copy; lists always hit the origin.
type CachedStore struct {
	origin Store
	byID   *lru.Cache[string, Record]
}

func NewCachedStore(origin Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 2048
	}
	c, err := lru.New[string, Record](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{origin: origin, byID: c}, nil
}

func (s *CachedStore) Create(ctx context.Context, r Record) (Record, error) {
	out, err := s.origin.Create(ctx, r)
	if err == nil {
		s.byID.Add(out.ID, out.clone())
	}
	return out, err
}

func (s *CachedStore) Get(ctx context.Context, id string) (Record, error) {
	if r, ok := s.byID.Get(id); ok {
		return r.clone(), nil
	}
	r, err := s.origin.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	s.byID.Add(id, r.clone())
	return r, nil
}

func (s *CachedStore) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	return s.origin.List(ctx, opts)
}

func (s *CachedStore) ApplyClassification(ctx context.Context, id string, c Classification) (Record, error) {
	return s.refresh(id)(s.origin.ApplyClassification(ctx, id, c))
}

func (s *CachedStore) UpdateMetadata(ctx context.Context, id string, md Metadata) (Record, error) {
	return s.refresh(id)(s.origin.UpdateMetadata(ctx, id, md))
}

func (s *CachedStore) Delete(ctx context.Context, id string) (Record, error) {
	s.byID.Remove(id)
	return s.origin.Delete(ctx, id)
}

func (s *CachedStore) ListStale(ctx context.Context, before time.Time, limit int) ([]Record, error) {
	return s.origin.ListStale(ctx, before, limit)
}

func (s *CachedStore) refresh(id string) func(Record, error) (Record, error) {
	return func(r Record, err error) (Record, error) {
		if err != nil {
			s.byID.Remove(id)
			return r, err
		}
		s.byID.Add(id, r.clone())
		return r, nil
	}
}
