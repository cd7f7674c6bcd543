package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiri/internal/lane"
)

type fakeGitHub struct {
	tree       []map[string]string
	treeStatus int
	files      map[string]string
	headers    map[string]string
	repo       map[string]any
	hits       atomic.Int32
	authSeen   atomic.Value
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/git/trees/HEAD", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		f.authSeen.Store(r.Header.Get("Authorization"))
		for k, v := range f.headers {
			w.Header().Set(k, v)
		}
		if f.treeStatus != 0 {
			w.WriteHeader(f.treeStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"tree": f.tree})
	})
	mux.HandleFunc("/repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		for k, v := range f.headers {
			w.Header().Set(k, v)
		}
		if f.repo == nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(f.repo)
	})
	mux.HandleFunc("/raw/acme/widget/HEAD/", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		path := strings.TrimPrefix(r.URL.Path, "/raw/acme/widget/HEAD/")
		body, ok := f.files[path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	})
	return mux
}

func newTestIntrospector(t *testing.T, f *fakeGitHub) *Introspector {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return New(Options{
		APIBaseURL:  srv.URL,
		RawBaseURL:  srv.URL + "/raw",
		Token:       "tok",
		TreeTimeout: 2 * time.Second,
		FileTimeout: 2 * time.Second,
	})
}

func blobs(paths ...string) []map[string]string {
	out := make([]map[string]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, map[string]string{"path": p, "type": "blob"})
	}
	return out
}

func TestSnapshot_CollectsManifestsEntryAndReadme(t *testing.T) {
	f := &fakeGitHub{
		tree: append(blobs("app.py", "main.py", "requirements.txt"),
			map[string]string{"path": "src", "type": "tree"}),
		files: map[string]string{
			"requirements.txt": "flask==3.0\n",
			"main.py":          "print('main')",
			"app.py":           "print('app')",
			"readme.md":        "# lower readme",
			"README.rst":       "rst readme",
		},
	}
	in := newTestIntrospector(t, f)

	snap, err := in.Snapshot(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "acme/widget", snap.FullName())
	assert.Equal(t, []string{"app.py", "main.py", "requirements.txt"}, snap.FileList)
	assert.Equal(t, "flask==3.0\n", snap.DependencyManifest)
	assert.Equal(t, "print('main')", snap.EntryFile, "main.py precedes app.py in candidate order")
	assert.Equal(t, "# lower readme", snap.ReadmeExcerpt, "first non-empty README candidate wins")
	assert.Equal(t, "", snap.PackageManifest)
	assert.Equal(t, "", snap.ContainerManifest)
	assert.Equal(t, "Bearer tok", f.authSeen.Load())
}

func TestSnapshot_MissingManifestsAreEmpty(t *testing.T) {
	f := &fakeGitHub{
		tree:  blobs("index.html", "style.css"),
		files: map[string]string{"index.html": "<html></html>"},
	}
	in := newTestIntrospector(t, f)

	snap, err := in.Snapshot(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, []string{"index.html", "style.css"}, snap.FileList)
	assert.Equal(t, "", snap.PackageManifest)
	assert.Equal(t, "", snap.DependencyManifest)
	assert.Equal(t, "", snap.PyprojectManifest)
	assert.Equal(t, "", snap.ContainerManifest)
}

func TestSnapshot_CapsTreeAt150InOrder(t *testing.T) {
	paths := make([]string, 500)
	for i := range paths {
		paths[i] = fmt.Sprintf("pkg/file_%03d.go", i)
	}
	in := newTestIntrospector(t, &fakeGitHub{tree: blobs(paths...)})

	snap, err := in.Snapshot(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)
	require.Len(t, snap.FileList, lane.MaxFileList)
	assert.Equal(t, paths[:150], snap.FileList)
}

func TestSnapshot_TruncatesToFetchCaps(t *testing.T) {
	in := newTestIntrospector(t, &fakeGitHub{
		tree:  blobs("README.md"),
		files: map[string]string{"README.md": strings.Repeat("x", 20000), "Dockerfile": strings.Repeat("d", 9000)},
	})
	snap, err := in.Snapshot(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)
	assert.Len(t, snap.ReadmeExcerpt, lane.FetchCaps.Readme)
	assert.Len(t, snap.ContainerManifest, lane.FetchCaps.Container)
}

func TestSnapshot_TreeFailureDegradesToEmptyList(t *testing.T) {
	in := newTestIntrospector(t, &fakeGitHub{
		treeStatus: http.StatusInternalServerError,
		files:      map[string]string{"package.json": `{"name":"w"}`},
	})
	snap, err := in.Snapshot(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.NotNil(t, snap.FileList)
	assert.Empty(t, snap.FileList)
	assert.Equal(t, `{"name":"w"}`, snap.PackageManifest)
	assert.Equal(t, "", snap.EntryFile)
}

func TestSnapshot_RateLimitedTreeDegrades(t *testing.T) {
	in := newTestIntrospector(t, &fakeGitHub{
		treeStatus: http.StatusForbidden,
		headers:    map[string]string{"X-RateLimit-Remaining": "0", "X-RateLimit-Reset": "1700000000"},
	})
	snap, err := in.Snapshot(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)
	assert.Empty(t, snap.FileList)
}

func TestSnapshot_MissingRepository(t *testing.T) {
	in := newTestIntrospector(t, &fakeGitHub{treeStatus: http.StatusNotFound})
	snap, err := in.Snapshot(context.Background(), "https://github.com/acme/widget")
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
}

func TestSnapshot_UnparseableURLMakesNoRequests(t *testing.T) {
	f := &fakeGitHub{}
	in := newTestIntrospector(t, f)
	for _, u := range []string{"", "not a url", "https://gitlab.com/acme/widget", "https://github.com/acme"} {
		snap, err := in.Snapshot(context.Background(), u)
		assert.Nil(t, snap, u)
		assert.ErrorIs(t, err, ErrUnparseableURL, u)
	}
	assert.Zero(t, f.hits.Load())
}

func TestMetadata(t *testing.T) {
	f := &fakeGitHub{repo: map[string]any{
		"stargazers_count": 42, "forks_count": 7, "language": nil,
		"description": "A widget", "topics": []string{"ml", "demo"},
	}}
	in := newTestIntrospector(t, f)
	md, err := in.Metadata(context.Background(), "git@github.com:acme/widget.git")
	require.NoError(t, err)
	assert.Equal(t, 42, md.Stars)
	assert.Equal(t, 7, md.Forks)
	assert.Equal(t, "Unknown", md.Language)
	assert.Equal(t, "A widget", md.Description)
	assert.Equal(t, []string{"ml", "demo"}, md.Topics)
}

func TestMetadata_RateLimited(t *testing.T) {
	in := newTestIntrospector(t, &fakeGitHub{headers: map[string]string{"X-RateLimit-Remaining": "0"}})
	md, err := in.Metadata(context.Background(), "https://github.com/acme/widget")
	assert.Nil(t, md)
	assert.ErrorIs(t, err, errRateLimited)
}

func TestRateLimitHeaderNamesAreConfigurable(t *testing.T) {
	f := &fakeGitHub{headers: map[string]string{"X-Quota-Left": "0"}}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()
	in := New(Options{
		APIBaseURL: srv.URL,
		RawBaseURL: srv.URL + "/raw",
		RateLimit:  RateLimitPolicy{RemainingHeader: "X-Quota-Left", ResetHeader: "X-Quota-Reset"},
	})
	_, err := in.Metadata(context.Background(), "https://github.com/acme/widget")
	assert.ErrorIs(t, err, errRateLimited)
}

func TestCachedIntrospector(t *testing.T) {
	f := &fakeGitHub{
		tree: blobs("index.html"),
		repo: map[string]any{"stargazers_count": 1},
	}
	c := NewCached(newTestIntrospector(t, f), 8, time.Minute, time.Hour)

	_, err := c.Snapshot(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)
	first := f.hits.Load()
	_, err = c.Snapshot(context.Background(), "https://github.com/acme/widget.git")
	require.NoError(t, err)
	assert.Equal(t, first, f.hits.Load(), "second snapshot served from cache")

	_, err = c.Metadata(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)
	_, err = c.Metadata(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)
	assert.Equal(t, first+1, f.hits.Load())

	c.Invalidate("https://github.com/acme/widget")
	_, err = c.Snapshot(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)
	assert.Greater(t, f.hits.Load(), first+1)
}
