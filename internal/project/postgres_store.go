package project

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultTimeout bounds each statement.
const DefaultTimeout = 5 * time.Second

const recordColumns = `id, name, repository_url, lane, lane_reason, start_command, external_id,
execution_url, last_classified_at, stars, forks, language, description, topics, last_synced_at,
created_at, updated_at`

// PostgresStore persists records in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPool creates a pgx pool and verifies connectivity.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Simple protocol keeps the pool usable behind PgBouncer and by goose.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil pool provided")
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	sqlDB, err := goose.OpenDBWithDriver("pgx", pool.Config().ConnConfig.ConnString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return goose.UpContext(ctx, sqlDB, "migrations")
}

// NewPostgresStore opens dsn, migrates it and returns a store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := OpenPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("project: open postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("project: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

// Ping reports database reachability for readiness probes.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Create(ctx context.Context, r Record) (Record, error) {
	n, err := normalizeNew(r, time.Now())
	if err != nil {
		return Record{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	var out Record
	err = pgxscan.Get(ctx, s.pool, &out, `
INSERT INTO projects (id, name, repository_url, lane, lane_reason, start_command, topics, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING `+recordColumns,
		n.ID, n.Name, n.RepositoryURL, string(n.Lane), n.Reason, n.StartCommand, n.Topics, n.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("project: create: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	var out Record
	err := pgxscan.Get(ctx, s.pool, &out, `SELECT `+recordColumns+` FROM projects WHERE id = $1`, id)
	return out, notFound(err, "get")
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	var out []Record
	err := pgxscan.Select(ctx, s.pool, &out, `
SELECT `+recordColumns+` FROM projects
WHERE ($1 = '' OR lane = $1)
ORDER BY created_at DESC, id
LIMIT $2`, string(opts.Lane), limit)
	if err != nil {
		return nil, fmt.Errorf("project: list: %w", err)
	}
	return out, nil
}

// ApplyClassification writes all five outbound fields in one statement.
func (s *PostgresStore) ApplyClassification(ctx context.Context, id string, c Classification) (Record, error) {
	if c.At.IsZero() {
		c.At = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	var out Record
	err := pgxscan.Get(ctx, s.pool, &out, `
UPDATE projects
SET lane = $2, lane_reason = $3, start_command = $4, external_id = $5, execution_url = $6,
    last_classified_at = $7, updated_at = $7
WHERE id = $1
RETURNING `+recordColumns,
		id, string(c.Verdict.Lane), c.Verdict.Reason, c.Verdict.StartCommand,
		c.Artifact.ExternalID, c.Artifact.ExecutionURL, c.At.UTC())
	return out, notFound(err, "apply classification")
}

// UpdateMetadata merges md under a row lock so curated description and
// topics are never overwritten.
func (s *PostgresStore) UpdateMetadata(ctx context.Context, id string, md Metadata) (Record, error) {
	if md.At.IsZero() {
		md.At = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur Record
	if err := pgxscan.Get(ctx, tx, &cur, `SELECT `+recordColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id); err != nil {
		return Record{}, notFound(err, "update metadata")
	}
	cur.applyMetadata(md)
	_, err = tx.Exec(ctx, `
UPDATE projects
SET stars = $2, forks = $3, language = $4, description = $5, topics = $6, last_synced_at = $7, updated_at = $7
WHERE id = $1`,
		id, cur.Stars, cur.Forks, cur.Language, cur.Description, cur.Topics, cur.LastSyncedAt)
	if err != nil {
		return Record{}, fmt.Errorf("project: update metadata: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return cur, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	var out Record
	err := pgxscan.Get(ctx, s.pool, &out, `DELETE FROM projects WHERE id = $1 RETURNING `+recordColumns, id)
	return out, notFound(err, "delete")
}

func (s *PostgresStore) ListStale(ctx context.Context, before time.Time, limit int) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if limit <= 0 {
		limit = 100
	}
	var out []Record
	err := pgxscan.Select(ctx, s.pool, &out, `
SELECT `+recordColumns+` FROM projects
WHERE (lane = 'P' OR last_classified_at IS NULL) AND updated_at < $1
ORDER BY updated_at
LIMIT $2`, before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("project: list stale: %w", err)
	}
	return out, nil
}

func notFound(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case pgxscan.NotFound(err):
		return ErrNotFound
	default:
		return fmt.Errorf("project: %s: %w", op, err)
	}
}
