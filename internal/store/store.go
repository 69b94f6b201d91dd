// Package store persists business records and crawl failures. SQLite,
// MySQL and PostgreSQL keep both in tables; Elasticsearch keeps them in
// two indices.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bizcrawl/internal/model"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverElastic  = "elastic"
)

// RecordFilter specifies criteria for listing records.
type RecordFilter struct {
	SourceURL string `json:"source_url,omitempty"`
	HasEmail  bool   `json:"has_email,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// FailureFilter specifies criteria for listing failures.
type FailureFilter struct {
	Label     model.Label `json:"label,omitempty"`
	ErrorType string      `json:"error_type,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`
}

// Store is the crawl sink. Implementations accept concurrent appends.
type Store interface {
	// Records
	AppendRecord(ctx context.Context, rec model.BusinessRecord) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.BusinessRecord, error)

	// Failures
	RecordFailure(ctx context.Context, f model.Failure) error
	ListFailures(ctx context.Context, filter FailureFilter) ([]model.Failure, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig   `yaml:"pool" mapstructure:"pool"`
	Elastic     ElasticConfig `yaml:"elastic" mapstructure:"elastic"`
}

// Open connects the store named by cfg.Driver and runs its migration.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		st, err = NewSQLite(cfg.DatabaseURL)
	case DriverMySQL:
		st, err = NewMySQL(cfg.DatabaseURL)
	case DriverPostgres, "postgresql":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	case DriverElastic, "elasticsearch":
		st, err = NewElastic(cfg.Elastic)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
