package project

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. It backs tests and
// single-node deployments without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Record
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Record), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, r Record) (Record, error) {
	n, err := normalizeNew(r, s.now())
	if err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[n.ID] = n.clone()
	return n, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r.clone(), nil
}

func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.byID))
	for _, r := range s.byID {
		if opts.Lane != "" && r.Lane != opts.Lane {
			continue
		}
		out = append(out, r.clone())
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ApplyClassification(_ context.Context, id string, c Classification) (Record, error) {
	if c.At.IsZero() {
		c.At = s.now()
	}
	return s.update(id, func(r *Record) { r.applyClassification(c) })
}

func (s *MemoryStore) UpdateMetadata(_ context.Context, id string, md Metadata) (Record, error) {
	if md.At.IsZero() {
		md.At = s.now()
	}
	return s.update(id, func(r *Record) { r.applyMetadata(md) })
}

func (s *MemoryStore) Delete(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	delete(s.byID, id)
	return r, nil
}

func (s *MemoryStore) ListStale(_ context.Context, before time.Time, limit int) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0)
	for _, r := range s.byID {
		if r.stale(before) {
			out = append(out, r.clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) update(id string, fn func(*Record)) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	fn(&r)
	s.byID[id] = r.clone()
	return r, nil
}

func sortNewestFirst(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
}
