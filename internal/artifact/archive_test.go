package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu    sync.Mutex
	heads int
	puts  []string
}

func (f *fakeS3) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodHead:
			f.heads++
		case http.MethodPut:
			f.puts = append(f.puts, r.URL.Path)
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestArchive(t *testing.T, f *fakeS3) *S3Archive {
	t.Helper()
	srv := f.server(t)
	a, err := NewS3Archive(S3Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "kiri-artifacts",
	})
	require.NoError(t, err)
	return a
}

func TestS3Archive_RetriesBucketCheckAfterFailure(t *testing.T) {
	f := &fakeS3{}
	a := newTestArchive(t, f)
	b := Bundle{Files: map[string]string{"environment.yml": "name: demo\n"}, Primary: "environment.yml"}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, a.Archive(cancelled, "acme/shop/gist1", b))

	require.NoError(t, a.Archive(context.Background(), "acme/shop/gist1", b))
	require.NoError(t, a.Archive(context.Background(), "acme/shop/gist2", b))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.heads, "bucket check is remembered once it succeeds")
	assert.Equal(t, []string{
		"/kiri-artifacts/acme/shop/gist1/environment.yml",
		"/kiri-artifacts/acme/shop/gist2/environment.yml",
	}, f.puts)
}

func TestS3Archive_RequiresPrefix(t *testing.T) {
	a := newTestArchive(t, &fakeS3{})
	assert.Error(t, a.Archive(context.Background(), " / ", Bundle{}))
}
