package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bizcrawl/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	insertRecordSQL  = `INSERT INTO records (id, source_url, name, website, has_email, data, scraped_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	insertFailureSQL = `INSERT INTO failures (id, url, label, error, error_type, screenshot, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"insert_record":  insertRecordSQL,
	"insert_failure": insertFailureSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_url TEXT NOT NULL,
	name       TEXT,
	website    TEXT,
	has_email  BOOLEAN NOT NULL DEFAULT false,
	data       JSONB NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS failures (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url        TEXT NOT NULL,
	label      TEXT NOT NULL,
	error      TEXT NOT NULL,
	error_type TEXT NOT NULL DEFAULT 'permanent',
	screenshot TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_source_url ON records(source_url);
CREATE INDEX IF NOT EXISTS idx_records_scraped_at ON records(scraped_at);
CREATE INDEX IF NOT EXISTS idx_failures_created_at ON failures(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_failures_error_type ON failures(error_type);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) AppendRecord(ctx context.Context, rec model.BusinessRecord) error {
	row, err := newRecordRow(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: append record")
	}
	_, err = s.pool.Exec(ctx, insertRecordSQL,
		row.id, row.sourceURL, row.name, row.website, row.hasEmail, row.data, row.scrapedAt,
	)
	return eris.Wrap(err, "postgres: insert record")
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.BusinessRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.SourceURL != "" {
		args = append(args, filter.SourceURL)
		where = append(where, fmt.Sprintf("source_url = $%d", len(args)))
	}
	if filter.HasEmail {
		where = append(where, "has_email")
	}
	q := `SELECT data FROM records` + whereClause(where) + ` ORDER BY scraped_at, id`
	q, args = limitClause(q, args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	records := []model.BusinessRecord{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: decode record")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate records")
}

func (s *PostgresStore) RecordFailure(ctx context.Context, f model.Failure) error {
	f = prepareFailure(f)
	var screenshot *string
	if f.Screenshot != "" {
		screenshot = &f.Screenshot
	}
	_, err := s.pool.Exec(ctx, insertFailureSQL,
		f.ID, f.URL, string(f.Label), f.Error, f.ErrorType, screenshot, f.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert failure")
}

func (s *PostgresStore) ListFailures(ctx context.Context, filter FailureFilter) ([]model.Failure, error) {
	var (
		where []string
		args  []any
	)
	if filter.Label != "" {
		args = append(args, string(filter.Label))
		where = append(where, fmt.Sprintf("label = $%d", len(args)))
	}
	if filter.ErrorType != "" {
		args = append(args, filter.ErrorType)
		where = append(where, fmt.Sprintf("error_type = $%d", len(args)))
	}
	q := `SELECT id, url, label, error, error_type, screenshot, created_at FROM failures` +
		whereClause(where) + ` ORDER BY created_at DESC, id`
	q, args = limitClause(q, args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failures")
	}
	defer rows.Close()

	failures := []model.Failure{}
	for rows.Next() {
		var (
			f          model.Failure
			label      string
			screenshot *string
		)
		if err := rows.Scan(&f.ID, &f.URL, &label, &f.Error, &f.ErrorType, &screenshot, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		f.Label = model.Label(label)
		f.Screenshot = model.Deref(screenshot)
		failures = append(failures, f)
	}
	return failures, eris.Wrap(rows.Err(), "postgres: iterate failures")
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func limitClause(q string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 {
		return q, args
	}
	args = append(args, limit, max(offset, 0))
	return q + fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}
