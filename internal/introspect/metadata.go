package introspect

import (
	"context"
	"fmt"
	"time"
)

// Metadata is the display information shown next to a project.
type Metadata struct {
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	Language    string    `json:"language"`
	Description string    `json:"description"`
	Topics      []string  `json:"topics"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type repoResponse struct {
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	Language        *string  `json:"language"`
	Description     *string  `json:"description"`
	Topics          []string `json:"topics"`
}

// Metadata fetches stars, forks, language, description and topics.
// A rate-limited or failed call returns an error and no data.
func (in *Introspector) Metadata(ctx context.Context, repoURL string) (*Metadata, error) {
	ref, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, in.meta)
	defer cancel()

	var rr repoResponse
	if err := in.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s", in.api, ref.Owner, ref.Name), &rr); err != nil {
		return nil, fmt.Errorf("introspect: metadata %s: %w", ref, err)
	}
	md := &Metadata{
		Stars:     rr.StargazersCount,
		Forks:     rr.ForksCount,
		Language:  "Unknown",
		Topics:    rr.Topics,
		FetchedAt: time.Now().UTC(),
	}
	if rr.Language != nil && *rr.Language != "" {
		md.Language = *rr.Language
	}
	if rr.Description != nil {
		md.Description = *rr.Description
	}
	if md.Topics == nil {
		md.Topics = []string{}
	}
	return md, nil
}
