package introspect

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnparseableURL is returned when a repository URL does not name a
// github.com owner/repository pair.
var ErrUnparseableURL = errors.New("introspect: unparseable repository url")

// RepoRef identifies a GitHub repository.
type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) String() string { return r.Owner + "/" + r.Name }

// CloneURL is the canonical https clone URL.
func (r RepoRef) CloneURL() string {
	return fmt.Sprintf("https://github.com/%s/%s.git", r.Owner, r.Name)
}

// ParseRepoURL accepts https/http github.com URLs (optionally www., a .git
// suffix, or deeper paths such as /tree/main) and git@github.com:owner/repo
// SSH remotes.
func ParseRepoURL(raw string) (RepoRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RepoRef{}, ErrUnparseableURL
	}

	if rest, ok := strings.CutPrefix(raw, "git@github.com:"); ok {
		rest = strings.TrimSuffix(strings.Trim(rest, "/"), ".git")
		if strings.Count(rest, "/") != 1 {
			return RepoRef{}, fmt.Errorf("%w: %q", ErrUnparseableURL, raw)
		}
		return splitOwnerRepo(rest, raw)
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return RepoRef{}, fmt.Errorf("%w: %q", ErrUnparseableURL, raw)
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host != "github.com" && host != "www.github.com" {
		return RepoRef{}, fmt.Errorf("%w: %q is not a github.com url", ErrUnparseableURL, raw)
	}
	return splitOwnerRepo(strings.Trim(u.Path, "/"), raw)
}

func splitOwnerRepo(repoPath, raw string) (RepoRef, error) {
	parts := strings.Split(repoPath, "/")
	if len(parts) < 2 {
		return RepoRef{}, fmt.Errorf("%w: %q", ErrUnparseableURL, raw)
	}
	owner := strings.TrimSpace(parts[0])
	repo := strings.TrimSuffix(strings.TrimSpace(parts[1]), ".git")
	if owner == "" || repo == "" {
		return RepoRef{}, fmt.Errorf("%w: %q", ErrUnparseableURL, raw)
	}
	return RepoRef{Owner: owner, Name: repo}, nil
}
