package store

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bizcrawl/internal/model"
)

// ElasticConfig configures the Elasticsearch sink.
type ElasticConfig struct {
	Addresses []string `yaml:"addresses" mapstructure:"addresses"`
	Index     string   `yaml:"index" mapstructure:"index"`
	Username  string   `yaml:"username" mapstructure:"username"`
	Password  string   `yaml:"password" mapstructure:"password"`
}

// maxElasticHits bounds a single list query.
const maxElasticHits = 10000

// ElasticStore indexes records into <index> and failures into
// <index>-failures.
type ElasticStore struct {
	client        *elasticsearch.TypedClient
	recordIndex   string
	failuresIndex string
}

// NewElastic creates a typed Elasticsearch client.
func NewElastic(cfg ElasticConfig) (*ElasticStore, error) {
	if len(cfg.Addresses) == 0 {
		return nil, eris.New("elastic: no addresses configured")
	}
	index := cfg.Index
	if index == "" {
		index = "bizcrawl-records"
	}
	client, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "elastic: create client")
	}
	return &ElasticStore{
		client:        client,
		recordIndex:   index,
		failuresIndex: index + "-failures",
	}, nil
}

// Migrate creates both indices when they do not exist.
func (s *ElasticStore) Migrate(ctx context.Context) error {
	for _, index := range []string{s.recordIndex, s.failuresIndex} {
		exists, err := s.client.Indices.Exists(index).Do(ctx)
		if err != nil {
			return eris.Wrapf(err, "elastic: check index %s", index)
		}
		if exists {
			continue
		}
		if _, err := s.client.Indices.Create(index).Do(ctx); err != nil {
			return eris.Wrapf(err, "elastic: create index %s", index)
		}
	}
	return nil
}

func (s *ElasticStore) Close() error { return nil }

func (s *ElasticStore) AppendRecord(ctx context.Context, rec model.BusinessRecord) error {
	row, err := newRecordRow(rec)
	if err != nil {
		return eris.Wrap(err, "elastic: append record")
	}
	_, err = s.client.Index(s.recordIndex).
		Id(row.id).
		Document(json.RawMessage(row.data)).
		Do(ctx)
	return eris.Wrap(err, "elastic: index record")
}

func (s *ElasticStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.BusinessRecord, error) {
	hits, err := s.search(ctx, s.recordIndex, termFilters(map[string]string{
		"source_url.keyword": filter.SourceURL,
	}))
	if err != nil {
		return nil, eris.Wrap(err, "elastic: list records")
	}

	records := []model.BusinessRecord{}
	for _, src := range hits {
		rec, err := decodeRecord(src)
		if err != nil {
			return nil, eris.Wrap(err, "elastic: decode record")
		}
		if filter.HasEmail && len(rec.Emails) == 0 {
			continue
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].ScrapedAt.Equal(records[j].ScrapedAt) {
			return records[i].ScrapedAt.Before(records[j].ScrapedAt)
		}
		return records[i].ID < records[j].ID
	})
	return page(records, filter.Limit, filter.Offset), nil
}

func (s *ElasticStore) RecordFailure(ctx context.Context, f model.Failure) error {
	f = prepareFailure(f)
	data, err := json.Marshal(f)
	if err != nil {
		return eris.Wrap(err, "elastic: marshal failure")
	}
	_, err = s.client.Index(s.failuresIndex).
		Id(f.ID).
		Document(json.RawMessage(data)).
		Do(ctx)
	return eris.Wrap(err, "elastic: index failure")
}

func (s *ElasticStore) ListFailures(ctx context.Context, filter FailureFilter) ([]model.Failure, error) {
	hits, err := s.search(ctx, s.failuresIndex, termFilters(map[string]string{
		"label.keyword":      string(filter.Label),
		"error_type.keyword": filter.ErrorType,
	}))
	if err != nil {
		return nil, eris.Wrap(err, "elastic: list failures")
	}

	failures := []model.Failure{}
	for _, src := range hits {
		var f model.Failure
		if err := json.Unmarshal(src, &f); err != nil {
			return nil, eris.Wrap(err, "elastic: decode failure")
		}
		failures = append(failures, f)
	}
	sort.SliceStable(failures, func(i, j int) bool {
		return failures[i].CreatedAt.After(failures[j].CreatedAt)
	})
	return page(failures, filter.Limit, filter.Offset), nil
}

func (s *ElasticStore) search(ctx context.Context, index string, query *types.Query) ([]json.RawMessage, error) {
	resp, err := s.client.Search().
		Index(index).
		Query(query).
		Size(maxElasticHits).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		out = append(out, hit.Source_)
	}
	return out, nil
}

// termFilters builds a bool query with one term filter per non-empty value,
// or match_all when every value is empty.
func termFilters(fields map[string]string) *types.Query {
	var filters []types.Query
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, field := range keys {
		if v := fields[field]; v != "" {
			filters = append(filters, types.Query{
				Term: map[string]types.TermQuery{field: {Value: v}},
			})
		}
	}
	if len(filters) == 0 {
		return &types.Query{MatchAll: &types.MatchAllQuery{}}
	}
	return &types.Query{Bool: &types.BoolQuery{Filter: filters}}
}

func page[T any](items []T, limit, offset int) []T {
	offset = max(offset, 0)
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
