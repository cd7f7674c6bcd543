package project

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiri/internal/lane"
)

// storeContract runs the behavior every Store implementation must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Create(ctx, Record{Name: "empty"})
	assert.ErrorIs(t, err, ErrInvalid)

	r, err := s.Create(ctx, Record{Name: " Widget ", RepositoryURL: " https://github.com/acme/widget "})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "Widget", r.Name)
	assert.Equal(t, "https://github.com/acme/widget", r.RepositoryURL)
	assert.Equal(t, lane.Pending, r.Lane)
	assert.Nil(t, r.LastClassifiedAt)

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	stale, err := s.ListStale(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, r.ID, stale[0].ID)

	at := time.Now().UTC().Truncate(time.Millisecond)
	updated, err := s.ApplyClassification(ctx, r.ID, Classification{
		Verdict:  lane.Verdict{Lane: lane.HostedContainer, Reason: "Django web application", StartCommand: "python manage.py runserver 0.0.0.0:8000"},
		Artifact: lane.Artifact{ExternalID: "g1", ExecutionURL: "https://mybinder.org/v2/gist/bot/g1/HEAD"},
		At:       at,
	})
	require.NoError(t, err)
	assert.Equal(t, lane.HostedContainer, updated.Lane)
	assert.Equal(t, "g1", updated.ExternalID)
	require.NotNil(t, updated.LastClassifiedAt)
	assert.True(t, updated.LastClassifiedAt.Equal(at))

	stale, err = s.ListStale(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	_, err = s.ApplyClassification(ctx, "missing", Classification{Verdict: lane.Verdict{Lane: lane.ClientSide}})
	assert.ErrorIs(t, err, ErrNotFound)

	md, err := s.UpdateMetadata(ctx, r.ID, Metadata{Stars: 5, Forks: 1, Language: "Python", Description: "from github", Topics: []string{"web"}})
	require.NoError(t, err)
	assert.Equal(t, 5, md.Stars)
	assert.Equal(t, "from github", md.Description)
	assert.Equal(t, []string{"web"}, md.Topics)
	require.NotNil(t, md.LastSyncedAt)

	md, err = s.UpdateMetadata(ctx, r.ID, Metadata{Stars: 9, Description: "other", Topics: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, 9, md.Stars)
	assert.Equal(t, "Python", md.Language, "empty language keeps the previous value")
	assert.Equal(t, "from github", md.Description, "description only filled when empty")
	assert.Equal(t, []string{"web"}, md.Topics)

	list, err := s.List(ctx, ListOptions{Lane: lane.HostedContainer})
	require.NoError(t, err)
	require.Len(t, list, 1)
	list, err = s.List(ctx, ListOptions{Lane: lane.GPUNotebook})
	require.NoError(t, err)
	assert.Empty(t, list)

	deleted, err := s.Delete(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "g1", deleted.ExternalID)
	_, err = s.Get(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Delete(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestCachedStore(t *testing.T) {
	c, err := NewCachedStore(NewMemoryStore(), 16)
	require.NoError(t, err)
	storeContract(t, c)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("KIRI_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("KIRI_TEST_PG_DSN not set")
	}
	s, err := NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.pool.Exec(context.Background(), `TRUNCATE projects`)
	require.NoError(t, err)
	storeContract(t, s)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	r, err := s.Create(context.Background(), Record{RepositoryURL: "https://github.com/acme/widget", Topics: []string{"a"}})
	require.NoError(t, err)
	got, _ := s.Get(context.Background(), r.ID)
	got.Topics[0] = "mutated"
	again, _ := s.Get(context.Background(), r.ID)
	assert.Equal(t, []string{"a"}, again.Topics)
}

func TestCachedStore_ServesReadsFromCache(t *testing.T) {
	origin := &countingStore{Store: NewMemoryStore()}
	c, err := NewCachedStore(origin, 4)
	require.NoError(t, err)
	r, err := c.Create(context.Background(), Record{RepositoryURL: "https://github.com/acme/widget"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), r.ID)
		require.NoError(t, err)
	}
	assert.Zero(t, origin.gets)
}

type countingStore struct {
	Store
	gets int
}

func (c *countingStore) Get(ctx context.Context, id string) (Record, error) {
	c.gets++
	return c.Store.Get(ctx, id)
}

type recordingCleaner struct {
	ids []string
	err error
}

func (r *recordingCleaner) Cleanup(_ context.Context, id string) error {
	r.ids = append(r.ids, id)
	return r.err
}

func TestService_DeleteCleansUpBundle(t *testing.T) {
	ctx := context.Background()
	cleaner := &recordingCleaner{err: errors.New("gist api down")}
	svc := NewService(NewMemoryStore(), cleaner, nil)

	withBundle, err := svc.Create(ctx, "w", "https://github.com/acme/widget")
	require.NoError(t, err)
	_, err = svc.Store().ApplyClassification(ctx, withBundle.ID, Classification{
		Verdict:  lane.Verdict{Lane: lane.GPUNotebook},
		Artifact: lane.Artifact{ExternalID: "g9", ExecutionURL: "u"},
	})
	require.NoError(t, err)
	plain, err := svc.Create(ctx, "p", "https://github.com/acme/plain")
	require.NoError(t, err)

	_, err = svc.Delete(ctx, withBundle.ID)
	require.NoError(t, err, "cleanup failure does not fail deletion")
	_, err = svc.Delete(ctx, plain.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"g9"}, cleaner.ids)
}
