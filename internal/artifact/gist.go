package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var ErrNoToken = errors.New("artifact: gist token is not configured")

// Published identifies a stored bundle.
type Published struct {
	ID    string
	Owner string
	URL   string
}

// Publisher stores bundles in an external artifact store.
type Publisher interface {
	Publish(ctx context.Context, b Bundle) (Published, error)
	Delete(ctx context.Context, id string) error
}

// GistOptions configures GistPublisher.
type GistOptions struct {
	APIBaseURL string
	Token      string
	Public     bool
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GistPublisher publishes bundles as multi-file GitHub gists.
type GistPublisher struct {
	http    *http.Client
	api     string
	public  bool
	ua      string
	timeout time.Duration
	hasAuth bool
}

func NewGistPublisher(opts GistOptions) *GistPublisher {
	p := &GistPublisher{
		api:     strings.TrimRight(opts.APIBaseURL, "/"),
		public:  opts.Public,
		ua:      opts.UserAgent,
		timeout: opts.Timeout,
		hasAuth: opts.Token != "",
	}
	if p.api == "" {
		p.api = "https://api.github.com"
	}
	if p.ua == "" {
		p.ua = "Kiri-Research-Labs-Bot"
	}
	if p.timeout <= 0 {
		p.timeout = 15 * time.Second
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	p.http = base
	if opts.Token != "" {
		transport := base.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		p.http = &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}),
				Base:   transport,
			},
			Timeout: base.Timeout,
		}
	}
	return p
}

type gistFile struct {
	Content string `json:"content"`
}

type gistCreateReq struct {
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]gistFile `json:"files"`
}

type gistCreateResp struct {
	ID      string `json:"id"`
	HTMLURL string `json:"html_url"`
	Owner   struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func (p *GistPublisher) Publish(ctx context.Context, b Bundle) (Published, error) {
	if !p.hasAuth {
		return Published{}, ErrNoToken
	}
	if len(b.Files) == 0 {
		return Published{}, errors.New("artifact: empty bundle")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body := gistCreateReq{Description: b.Description, Public: p.public, Files: map[string]gistFile{}}
	for name, content := range b.Files {
		body.Files[name] = gistFile{Content: content}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Published{}, err
	}
	req, err := p.newRequest(ctx, http.MethodPost, p.api+"/gists", bytes.NewReader(raw))
	if err != nil {
		return Published{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return Published{}, fmt.Errorf("artifact: create gist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Published{}, fmt.Errorf("artifact: create gist: status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out gistCreateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Published{}, fmt.Errorf("artifact: decode gist response: %w", err)
	}
	if out.ID == "" || out.Owner.Login == "" {
		return Published{}, errors.New("artifact: gist response missing id or owner")
	}
	return Published{ID: out.ID, Owner: out.Owner.Login, URL: out.HTMLURL}, nil
}

// Delete removes a gist. A gist that is already gone counts as deleted.
func (p *GistPublisher) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if !p.hasAuth {
		return ErrNoToken
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := p.newRequest(ctx, http.MethodDelete, p.api+"/gists/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("artifact: delete gist %s: %w", id, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("artifact: delete gist %s: status %s", id, resp.Status)
	}
}

func (p *GistPublisher) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", p.ua)
	return req, nil
}
