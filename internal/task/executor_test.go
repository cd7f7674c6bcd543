package task

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"kiri/internal/introspect"
	"kiri/internal/lane"
	"kiri/internal/project"
)

type recorder struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recorder) handle(_ context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, job.ProjectID)
	return r.err
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.ids...)
	sort.Strings(out)
	return out
}

func TestInlineExecutor(t *testing.T) {
	rec := &recorder{err: errors.New("boom")}
	e := NewInlineExecutor(rec.handle, nil)
	err := e.Submit(context.Background(), Job{ID: "j1", ProjectID: "p1"})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"p1"}, rec.seen())
	assert.NoError(t, e.Close())
}

func TestPoolExecutor_DrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	p := NewPoolExecutor(rec.handle, PoolOptions{Workers: 3, QueueSize: 2})
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		require.NoError(t, p.Submit(context.Background(), Job{ProjectID: id}))
	}
	require.NoError(t, p.Close())
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, rec.seen())

	assert.ErrorIs(t, p.Submit(context.Background(), Job{ProjectID: "late"}), ErrExecutorClosed)
	assert.NoError(t, p.Close())
}

func TestPoolExecutor_SubmitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	release := make(chan struct{})
	p := NewPoolExecutor(func(ctx context.Context, job Job) error {
		if job.ProjectID == "running" {
			close(started)
		}
		<-release
		return nil
	}, PoolOptions{Workers: 1, QueueSize: 1})

	require.NoError(t, p.Submit(context.Background(), Job{ProjectID: "running"}))
	<-started
	require.NoError(t, p.Submit(context.Background(), Job{ProjectID: "queued"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(ctx, Job{ProjectID: "blocked"}), context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Close())
}

func TestDispatcher(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(NewInlineExecutor(rec.handle, nil), nil)

	job, err := d.Dispatch(context.Background(), " p1 ")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "p1", job.ProjectID)
	assert.False(t, job.EnqueuedAt.IsZero())

	_, err = d.Dispatch(context.Background(), "  ")
	assert.Error(t, err)
}

func TestRunHandler_SkipsDeletedProjects(t *testing.T) {
	h := newHarness(t)
	handler := RunHandler(h.runner, nil)
	assert.NoError(t, handler(context.Background(), Job{ID: "j", ProjectID: "deleted"}))

	rec := h.create(t, "https://github.com/acme/web")
	require.NoError(t, handler(context.Background(), Job{ID: "j2", ProjectID: rec.ID}))
	got, err := h.store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, lane.ClientSide, got.Lane)
}

type fakeMetadata struct {
	md map[string]*introspect.Metadata
}

func (f fakeMetadata) Metadata(_ context.Context, repoURL string) (*introspect.Metadata, error) {
	if md, ok := f.md[repoURL]; ok {
		return md, nil
	}
	return nil, errors.New("rate limited")
}

func TestSweeper_RetryStale(t *testing.T) {
	store := project.NewMemoryStore()
	ctx := context.Background()
	pending, err := store.Create(ctx, project.Record{RepositoryURL: "https://github.com/acme/a"})
	require.NoError(t, err)
	done, err := store.Create(ctx, project.Record{RepositoryURL: "https://github.com/acme/b"})
	require.NoError(t, err)
	_, err = store.ApplyClassification(ctx, done.ID, project.Classification{
		Verdict: lane.Verdict{Lane: lane.ClientSide, Reason: "static"},
		At:      time.Now(),
	})
	require.NoError(t, err)

	rec := &recorder{}
	s := NewSweeper(store, NewDispatcher(NewInlineExecutor(rec.handle, nil), nil), nil, SweeperOptions{
		StaleAfter: 10 * time.Minute,
		Now:        func() time.Time { return time.Now().Add(time.Hour) },
	})
	n, err := s.RetryStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{pending.ID}, rec.seen())
}

func TestSweeper_SyncMetadata(t *testing.T) {
	store := project.NewMemoryStore()
	ctx := context.Background()
	a, err := store.Create(ctx, project.Record{RepositoryURL: "https://github.com/acme/a", Description: "curated"})
	require.NoError(t, err)
	_, err = store.Create(ctx, project.Record{RepositoryURL: "https://github.com/acme/b"})
	require.NoError(t, err)

	meta := fakeMetadata{md: map[string]*introspect.Metadata{
		"https://github.com/acme/a": {Stars: 42, Forks: 7, Language: "Python", Description: "from github", Topics: []string{"ml"}},
	}}
	s := NewSweeper(store, nil, meta, SweeperOptions{})
	n, err := s.SyncMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.Stars)
	assert.Equal(t, "curated", got.Description)
	assert.Equal(t, []string{"ml"}, got.Topics)
	require.NotNil(t, got.LastSyncedAt)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSweeper(project.NewMemoryStore(), nil, nil, SweeperOptions{RetryInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestHub(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("p1", 1)
	assert.Equal(t, 1, h.Watchers("p1"))

	h.Publish(Event{ProjectID: "p1", State: StatePending})
	h.Publish(Event{ProjectID: "p1", State: StateClassified}) // dropped, buffer full
	h.Publish(Event{ProjectID: "p2", State: StatePending})

	ev := <-ch
	assert.Equal(t, StatePending, ev.State)
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Watchers("p1"))

	var nilHub *Hub
	nilHub.Publish(Event{ProjectID: "p1"})
}
