// Package project stores the owning records that carry a repository URL
// and its classification outcome.
package project

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"kiri/internal/lane"
)

var (
	ErrNotFound = errors.New("project: not found")
	ErrInvalid  = errors.New("project: invalid record")
)

// Record is a showcase project pointing at an external repository.
type Record struct {
	ID            string `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	RepositoryURL string `db:"repository_url" json:"repository_url"`

	Lane             lane.Lane  `db:"lane" json:"lane"`
	Reason           string     `db:"lane_reason" json:"reason"`
	StartCommand     string     `db:"start_command" json:"start_command"`
	ExternalID       string     `db:"external_id" json:"external_id"`
	ExecutionURL     string     `db:"execution_url" json:"execution_url"`
	LastClassifiedAt *time.Time `db:"last_classified_at" json:"last_classified_at,omitempty"`

	Stars        int        `db:"stars" json:"stars"`
	Forks        int        `db:"forks" json:"forks"`
	Language     string     `db:"language" json:"language"`
	Description  string     `db:"description" json:"description"`
	Topics       []string   `db:"topics" json:"topics"`
	LastSyncedAt *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Classification is the five outbound fields written by one pipeline run.
type Classification struct {
	Verdict  lane.Verdict
	Artifact lane.Artifact
	At       time.Time
}

// Metadata is repository display information refreshed by the sync sweep.
type Metadata struct {
	Stars       int
	Forks       int
	Language    string
	Description string
	Topics      []string
	At          time.Time
}

// ListOptions filters List. Zero values mean no filter.
type ListOptions struct {
	Lane  lane.Lane
	Limit int
}

// Store persists records. ApplyClassification is the single write a
// classification run makes.
type Store interface {
	Create(ctx context.Context, r Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, opts ListOptions) ([]Record, error)
	ApplyClassification(ctx context.Context, id string, c Classification) (Record, error)
	UpdateMetadata(ctx context.Context, id string, md Metadata) (Record, error)
	Delete(ctx context.Context, id string) (Record, error)
	// ListStale returns records still pending or never classified whose
	// last update is older than before.
	ListStale(ctx context.Context, before time.Time, limit int) ([]Record, error)
}

func (r *Record) applyClassification(c Classification) {
	r.Lane = c.Verdict.Lane
	r.Reason = c.Verdict.Reason
	r.StartCommand = c.Verdict.StartCommand
	r.ExternalID = c.Artifact.ExternalID
	r.ExecutionURL = c.Artifact.ExecutionURL
	at := c.At.UTC()
	r.LastClassifiedAt = &at
	r.UpdatedAt = at
}

// applyMetadata always refreshes counters and language but only fills the
// description and topics when the record has none, so curated text wins.
func (r *Record) applyMetadata(md Metadata) {
	r.Stars = md.Stars
	r.Forks = md.Forks
	if md.Language != "" {
		r.Language = md.Language
	}
	if strings.TrimSpace(r.Description) == "" {
		r.Description = md.Description
	}
	if len(r.Topics) == 0 && len(md.Topics) > 0 {
		r.Topics = slices.Clone(md.Topics)
	}
	at := md.At.UTC()
	r.LastSyncedAt = &at
	r.UpdatedAt = at
}

func (r Record) clone() Record {
	r.Topics = slices.Clone(r.Topics)
	if r.LastClassifiedAt != nil {
		t := *r.LastClassifiedAt
		r.LastClassifiedAt = &t
	}
	if r.LastSyncedAt != nil {
		t := *r.LastSyncedAt
		r.LastSyncedAt = &t
	}
	return r
}

func (r Record) stale(before time.Time) bool {
	return (r.Lane == lane.Pending || r.LastClassifiedAt == nil) && r.UpdatedAt.Before(before)
}

func normalizeNew(r Record, now time.Time) (Record, error) {
	r.RepositoryURL = strings.TrimSpace(r.RepositoryURL)
	r.Name = strings.TrimSpace(r.Name)
	if r.RepositoryURL == "" {
		return Record{}, errors.Join(ErrInvalid, errors.New("repository_url is required"))
	}
	if r.Name == "" {
		r.Name = r.RepositoryURL
	}
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	if r.Lane == "" || !r.Lane.Valid() {
		r.Lane = lane.Pending
	}
	if r.Topics == nil {
		r.Topics = []string{}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
	r.UpdatedAt = r.CreatedAt
	return r, nil
}
