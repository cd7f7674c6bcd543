package introspect

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"kiri/internal/lane"
)

// Fetcher is the surface shared by Introspector and CachedIntrospector.
type Fetcher interface {
	Snapshot(ctx context.Context, repoURL string) (*lane.Snapshot, error)
	Metadata(ctx context.Context, repoURL string) (*Metadata, error)
}

// CachedIntrospector fronts a Fetcher with time-boxed LRU caches keyed by
// owner/repo. Only successful results are cached.
type CachedIntrospector struct {
	inner     Fetcher
	snapshots *expirable.LRU[string, *lane.Snapshot]
	metadata  *expirable.LRU[string, *Metadata]
}

// NewCached wraps inner. A non-positive ttl disables that cache.
func NewCached(inner Fetcher, size int, snapshotTTL, metadataTTL time.Duration) *CachedIntrospector {
	if size <= 0 {
		size = 256
	}
	c := &CachedIntrospector{inner: inner}
	if snapshotTTL > 0 {
		c.snapshots = expirable.NewLRU[string, *lane.Snapshot](size, nil, snapshotTTL)
	}
	if metadataTTL > 0 {
		c.metadata = expirable.NewLRU[string, *Metadata](size, nil, metadataTTL)
	}
	return c
}

func (c *CachedIntrospector) Snapshot(ctx context.Context, repoURL string) (*lane.Snapshot, error) {
	key, ok := cacheKey(repoURL)
	if !ok || c.snapshots == nil {
		return c.inner.Snapshot(ctx, repoURL)
	}
	if s, hit := c.snapshots.Get(key); hit {
		cp := *s
		return &cp, nil
	}
	s, err := c.inner.Snapshot(ctx, repoURL)
	if err == nil && s != nil {
		cp := *s
		c.snapshots.Add(key, &cp)
	}
	return s, err
}

func (c *CachedIntrospector) Metadata(ctx context.Context, repoURL string) (*Metadata, error) {
	key, ok := cacheKey(repoURL)
	if !ok || c.metadata == nil {
		return c.inner.Metadata(ctx, repoURL)
	}
	if m, hit := c.metadata.Get(key); hit {
		return m, nil
	}
	m, err := c.inner.Metadata(ctx, repoURL)
	if err == nil && m != nil {
		c.metadata.Add(key, m)
	}
	return m, err
}

// Invalidate drops cached entries for repoURL so the next run refetches.
func (c *CachedIntrospector) Invalidate(repoURL string) {
	key, ok := cacheKey(repoURL)
	if !ok {
		return
	}
	if c.snapshots != nil {
		c.snapshots.Remove(key)
	}
	if c.metadata != nil {
		c.metadata.Remove(key)
	}
}

func cacheKey(repoURL string) (string, bool) {
	ref, err := ParseRepoURL(repoURL)
	if err != nil {
		return "", false
	}
	return ref.String(), true
}
