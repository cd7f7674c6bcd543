// Package introspect builds bounded snapshots of remote GitHub repositories
// for classification. Fetch failures degrade to empty fields; only an
// unparseable URL or a repository that does not exist yields no snapshot.
package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"kiri/internal/lane"
)

var (
	// ErrRepositoryNotFound is returned when the tree endpoint answers 404.
	ErrRepositoryNotFound = errors.New("introspect: repository not found")

	errRateLimited = errors.New("introspect: github rate limit exhausted")
	errNotFound    = errors.New("introspect: not found")
)

const (
	DefaultAPIBaseURL = "https://api.github.com"
	DefaultRawBaseURL = "https://raw.githubusercontent.com"
	DefaultUserAgent  = "Kiri-Research-Labs-Bot"
)

var (
	manifestFiles = struct {
		Package, Dependency, Pyproject, Container string
	}{"package.json", "requirements.txt", "pyproject.toml", "Dockerfile"}

	// EntryCandidates are checked against the file list in order.
	EntryCandidates = []string{
		"main.py", "app.py", "server.py", "train.py", "run.py",
		"index.js", "server.js", "app.js", "main.js", "index.ts",
		"src/main.py", "src/app.py", "src/index.js", "src/index.ts",
		"src/main.ts", "src/main.tsx", "src/main.jsx", "src/App.jsx", "src/App.tsx",
	}

	// ReadmeCandidates are fetched in order until one is non-empty.
	ReadmeCandidates = []string{"README.md", "readme.md", "Readme.md", "README.rst", "README.txt", "README"}
)

// RateLimitPolicy names the response headers that carry GitHub quota state.
// The names are configuration because providers rename them between API
// versions.
type RateLimitPolicy struct {
	RemainingHeader string
	ResetHeader     string
}

// DefaultRateLimitPolicy matches GitHub REST v3.
var DefaultRateLimitPolicy = RateLimitPolicy{
	RemainingHeader: "X-RateLimit-Remaining",
	ResetHeader:     "X-RateLimit-Reset",
}

// Options configures an Introspector. Zero values take defaults.
type Options struct {
	APIBaseURL string
	RawBaseURL string
	Token      string
	UserAgent  string

	TreeTimeout     time.Duration
	FileTimeout     time.Duration
	MetadataTimeout time.Duration

	RateLimit  RateLimitPolicy
	Caps       lane.Caps
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Introspector fetches repository snapshots over the GitHub REST API and
// raw.githubusercontent.com.
type Introspector struct {
	http   *http.Client
	api    string
	raw    string
	ua     string
	tree   time.Duration
	file   time.Duration
	meta   time.Duration
	rl     RateLimitPolicy
	caps   lane.Caps
	logger *zap.Logger
}

func New(opts Options) *Introspector {
	in := &Introspector{
		api:    strings.TrimRight(firstNonEmpty(opts.APIBaseURL, DefaultAPIBaseURL), "/"),
		raw:    strings.TrimRight(firstNonEmpty(opts.RawBaseURL, DefaultRawBaseURL), "/"),
		ua:     firstNonEmpty(opts.UserAgent, DefaultUserAgent),
		tree:   durationOr(opts.TreeTimeout, 10*time.Second),
		file:   durationOr(opts.FileTimeout, 5*time.Second),
		meta:   durationOr(opts.MetadataTimeout, 10*time.Second),
		rl:     opts.RateLimit,
		caps:   opts.Caps,
		logger: opts.Logger,
	}
	if in.rl.RemainingHeader == "" {
		in.rl = DefaultRateLimitPolicy
	}
	if in.caps == (lane.Caps{}) {
		in.caps = lane.FetchCaps
	}
	if in.logger == nil {
		in.logger = zap.NewNop()
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	in.http = base
	if opts.Token != "" {
		transport := base.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		in.http = &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}),
				Base:   transport,
			},
			Timeout: base.Timeout,
		}
	}
	return in
}

// Snapshot gathers the bounded view of repoURL. It returns a nil snapshot
// with ErrUnparseableURL or ErrRepositoryNotFound; every other failure is
// absorbed into empty fields.
func (in *Introspector) Snapshot(ctx context.Context, repoURL string) (*lane.Snapshot, error) {
	ref, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	log := in.logger.With(zap.String("repo", ref.String()))

	files, err := in.fileList(ctx, ref)
	switch {
	case errors.Is(err, errNotFound):
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, ref)
	case err != nil:
		log.Warn("tree fetch failed; continuing with empty file list", zap.Error(err))
		files = []string{}
	}

	snap := &lane.Snapshot{Owner: ref.Owner, Name: ref.Name, FileList: files}

	// Each goroutine owns one field; candidate order is kept inside it.
	g, gctx := errgroup.WithContext(ctx)
	fetchInto := func(dst *string, path string, max int) {
		g.Go(func() error {
			*dst = in.fetchFile(gctx, ref, path, max, log)
			return nil
		})
	}
	fetchInto(&snap.PackageManifest, manifestFiles.Package, in.caps.Package)
	fetchInto(&snap.DependencyManifest, manifestFiles.Dependency, in.caps.Dependency)
	fetchInto(&snap.PyprojectManifest, manifestFiles.Pyproject, in.caps.Pyproject)
	fetchInto(&snap.ContainerManifest, manifestFiles.Container, in.caps.Container)
	g.Go(func() error {
		if entry := FindEntry(files); entry != "" {
			snap.EntryFile = in.fetchFile(gctx, ref, entry, in.caps.Entry, log)
		}
		return nil
	})
	g.Go(func() error {
		for _, name := range ReadmeCandidates {
			if txt := in.fetchFile(gctx, ref, name, in.caps.Readme, log); txt != "" {
				snap.ReadmeExcerpt = txt
				return nil
			}
		}
		return nil
	})
	_ = g.Wait()
	return snap, nil
}

// FindEntry returns the first EntryCandidates member present in files.
func FindEntry(files []string) string {
	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f] = struct{}{}
	}
	for _, c := range EntryCandidates {
		if _, ok := present[c]; ok {
			return c
		}
	}
	return ""
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

func (in *Introspector) fileList(ctx context.Context, ref RepoRef) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, in.tree)
	defer cancel()

	u := fmt.Sprintf("%s/repos/%s/%s/git/trees/HEAD?recursive=1", in.api, ref.Owner, ref.Name)
	var tr treeResponse
	if err := in.getJSON(ctx, u, &tr); err != nil {
		return nil, err
	}
	max := in.caps.Files
	if max <= 0 {
		max = lane.MaxFileList
	}
	files := make([]string, 0, min(max, len(tr.Tree)))
	for _, e := range tr.Tree {
		if e.Type != "blob" {
			continue
		}
		files = append(files, e.Path)
		if len(files) == max {
			break
		}
	}
	return files, nil
}

func (in *Introspector) fetchFile(ctx context.Context, ref RepoRef, path string, max int, log *zap.Logger) string {
	ctx, cancel := context.WithTimeout(ctx, in.file)
	defer cancel()

	u := fmt.Sprintf("%s/%s/%s/HEAD/%s", in.raw, ref.Owner, ref.Name, path)
	req, err := in.newRequest(ctx, u)
	if err != nil {
		return ""
	}
	resp, err := in.http.Do(req)
	if err != nil {
		log.Debug("file fetch failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()
	if err := in.checkStatus(resp); err != nil {
		if !errors.Is(err, errNotFound) {
			log.Debug("file fetch failed", zap.String("path", path), zap.Error(err))
		}
		return ""
	}
	// Read a few bytes past the cap so Truncate can back off to a rune boundary.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(max)+4))
	if err != nil {
		return ""
	}
	return lane.Truncate(string(body), max)
}

func (in *Introspector) getJSON(ctx context.Context, u string, v any) error {
	req, err := in.newRequest(ctx, u)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	resp, err := in.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := in.checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (in *Introspector) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", in.ua)
	return req, nil
}

func (in *Introspector) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case in.rateLimited(resp):
		in.logger.Warn("github rate limit hit",
			zap.String("url", resp.Request.URL.Path),
			zap.String("reset", resp.Header.Get(in.rl.ResetHeader)))
		return errRateLimited
	default:
		return fmt.Errorf("introspect: unexpected status %s", resp.Status)
	}
}

// rateLimited reports 429, or 403 with the remaining-quota header at zero.
func (in *Introspector) rateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden &&
		strings.TrimSpace(resp.Header.Get(in.rl.RemainingHeader)) == "0"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
