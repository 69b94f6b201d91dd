package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bizcrawl/internal/model"
)

// SQLStore implements Store on database/sql for SQLite and MySQL, which
// share the "?" placeholder syntax.
type SQLStore struct {
	db         *sql.DB
	dialect    string
	migrations []string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLStore, error) {
	if dsn == "" {
		dsn = "bizcrawl.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLStore{db: db, dialect: DriverSQLite, migrations: sqliteMigrations}, nil
}

// NewMySQL opens a MySQL database. parseTime is forced on so DATETIME
// columns scan into time.Time.
func NewMySQL(dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: parse dsn")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, eris.Wrap(err, "mysql: open")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "mysql: ping")
	}
	return &SQLStore{db: db, dialect: DriverMySQL, migrations: mysqlMigrations}, nil
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	source_url TEXT NOT NULL,
	name       TEXT,
	website    TEXT,
	has_email  INTEGER NOT NULL DEFAULT 0,
	data       TEXT NOT NULL,
	scraped_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS failures (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	label      TEXT NOT NULL,
	error      TEXT NOT NULL,
	error_type TEXT NOT NULL,
	screenshot TEXT,
	created_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_records_source_url ON records(source_url)`,
	`CREATE INDEX IF NOT EXISTS idx_records_scraped_at ON records(scraped_at)`,
	`CREATE INDEX IF NOT EXISTS idx_failures_created_at ON failures(created_at)`,
}

var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS records (
	id         VARCHAR(36) PRIMARY KEY,
	source_url VARCHAR(2048) NOT NULL,
	name       VARCHAR(512),
	website    VARCHAR(512),
	has_email  TINYINT NOT NULL DEFAULT 0,
	data       LONGTEXT NOT NULL,
	scraped_at DATETIME(6) NOT NULL,
	INDEX idx_records_source_url (source_url(255)),
	INDEX idx_records_scraped_at (scraped_at)
) CHARACTER SET utf8mb4`,
	`CREATE TABLE IF NOT EXISTS failures (
	id         VARCHAR(36) PRIMARY KEY,
	url        VARCHAR(2048) NOT NULL,
	label      VARCHAR(16) NOT NULL,
	error      TEXT NOT NULL,
	error_type VARCHAR(16) NOT NULL,
	screenshot VARCHAR(1024),
	created_at DATETIME(6) NOT NULL,
	INDEX idx_failures_created_at (created_at)
) CHARACTER SET utf8mb4`,
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "%s: migrate", s.dialect)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) AppendRecord(ctx context.Context, rec model.BusinessRecord) error {
	row, err := newRecordRow(rec)
	if err != nil {
		return eris.Wrapf(err, "%s: append record", s.dialect)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, source_url, name, website, has_email, data, scraped_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.id, row.sourceURL, row.name, row.website, row.hasEmail, string(row.data), row.scrapedAt,
	)
	return eris.Wrapf(err, "%s: insert record", s.dialect)
}

func (s *SQLStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.BusinessRecord, error) {
	q := `SELECT data FROM records`
	var (
		where []string
		args  []any
	)
	if filter.SourceURL != "" {
		where = append(where, "source_url = ?")
		args = append(args, filter.SourceURL)
	}
	if filter.HasEmail {
		where = append(where, "has_email = 1")
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY scraped_at, id"
	if filter.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list records", s.dialect)
	}
	defer rows.Close() //nolint:errcheck

	records := []model.BusinessRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrapf(err, "%s: scan record", s.dialect)
		}
		rec, err := decodeRecord([]byte(data))
		if err != nil {
			return nil, eris.Wrapf(err, "%s: decode record", s.dialect)
		}
		records = append(records, rec)
	}
	return records, eris.Wrapf(rows.Err(), "%s: iterate records", s.dialect)
}

func (s *SQLStore) RecordFailure(ctx context.Context, f model.Failure) error {
	f = prepareFailure(f)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failures (id, url, label, error, error_type, screenshot, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.URL, string(f.Label), f.Error, f.ErrorType, nullString(f.Screenshot), f.CreatedAt,
	)
	return eris.Wrapf(err, "%s: insert failure", s.dialect)
}

func (s *SQLStore) ListFailures(ctx context.Context, filter FailureFilter) ([]model.Failure, error) {
	q := `SELECT id, url, label, error, error_type, screenshot, created_at FROM failures`
	var (
		where []string
		args  []any
	)
	if filter.Label != "" {
		where = append(where, "label = ?")
		args = append(args, string(filter.Label))
	}
	if filter.ErrorType != "" {
		where = append(where, "error_type = ?")
		args = append(args, filter.ErrorType)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list failures", s.dialect)
	}
	defer rows.Close() //nolint:errcheck

	failures := []model.Failure{}
	for rows.Next() {
		var (
			f          model.Failure
			label      string
			screenshot sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.URL, &label, &f.Error, &f.ErrorType, &screenshot, &f.CreatedAt); err != nil {
			return nil, eris.Wrapf(err, "%s: scan failure", s.dialect)
		}
		f.Label = model.Label(label)
		f.Screenshot = screenshot.String
		failures = append(failures, f)
	}
	return failures, eris.Wrapf(rows.Err(), "%s: iterate failures", s.dialect)
}

// recordRow is the column projection of a record shared by the SQL stores.
type recordRow struct {
	id        string
	sourceURL string
	name      *string
	website   *string
	hasEmail  bool
	data      []byte
	scrapedAt time.Time
}

func newRecordRow(rec model.BusinessRecord) (recordRow, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = time.Now()
	}
	rec.ScrapedAt = rec.ScrapedAt.UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return recordRow{}, eris.Wrap(err, "marshal record")
	}
	return recordRow{
		id:        rec.ID,
		sourceURL: rec.SourceURL,
		name:      rec.Name,
		website:   rec.Website,
		hasEmail:  len(rec.Emails) > 0,
		data:      data,
		scrapedAt: rec.ScrapedAt,
	}, nil
}

func decodeRecord(data []byte) (model.BusinessRecord, error) {
	var rec model.BusinessRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	if rec.Categories == nil {
		rec.Categories = []string{}
	}
	if rec.Emails == nil {
		rec.Emails = []string{}
	}
	if rec.PhonesFromWebsite == nil {
		rec.PhonesFromWebsite = []string{}
	}
	if rec.SocialLinks == nil {
		rec.SocialLinks = []string{}
	}
	return rec, nil
}

func prepareFailure(f model.Failure) model.Failure {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return f
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
