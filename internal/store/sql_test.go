package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bizcrawl/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRecord(sourceURL string, at time.Time, emails ...string) model.BusinessRecord {
	rec := model.NewBusinessRecord(sourceURL, at)
	rec.Name = model.Ptr("Acme Plumbing")
	rec.Phone = model.Ptr("+1-555-0100")
	rec.Rating = model.Ptr(4.5)
	rec.ReviewCount = model.Ptr(128)
	rec.Website = model.Ptr("https://acme.com")
	rec.Categories = []string{"Plumbing"}
	rec.ApplyContacts(model.NewContactBundle(emails, nil, nil))
	return rec
}

func TestSQLite_AppendAndListRecords(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendRecord(ctx, sampleRecord("https://x.com/biz/b", base.Add(time.Minute))))
	require.NoError(t, st.AppendRecord(ctx, sampleRecord("https://x.com/biz/a", base, "sales@acme.com")))

	recs, err := st.ListRecords(ctx, RecordFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0]
	assert.Equal(t, "https://x.com/biz/a", first.SourceURL, "ordered by scraped_at")
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "Acme Plumbing", model.Deref(first.Name))
	assert.InDelta(t, 4.5, model.Deref(first.Rating), 0.001)
	assert.Equal(t, 128, model.Deref(first.ReviewCount))
	assert.Equal(t, []string{"sales@acme.com"}, first.Emails)
	assert.Equal(t, []string{}, first.PhonesFromWebsite)
	assert.True(t, first.ScrapedAt.Equal(base))
}

func TestSQLite_ListRecords_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, u := range []string{"https://x.com/biz/a", "https://x.com/biz/b", "https://x.com/biz/c"} {
		var emails []string
		if i != 1 {
			emails = []string{"hi@acme.com"}
		}
		require.NoError(t, st.AppendRecord(ctx, sampleRecord(u, base.Add(time.Duration(i)*time.Minute), emails...)))
	}

	withEmail, err := st.ListRecords(ctx, RecordFilter{HasEmail: true})
	require.NoError(t, err)
	assert.Len(t, withEmail, 2)

	byURL, err := st.ListRecords(ctx, RecordFilter{SourceURL: "https://x.com/biz/b"})
	require.NoError(t, err)
	require.Len(t, byURL, 1)
	assert.Empty(t, byURL[0].Emails)

	paged, err := st.ListRecords(ctx, RecordFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "https://x.com/biz/b", paged[0].SourceURL)
}

func TestSQLite_NullFieldsRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := model.NewBusinessRecord("https://x.com/biz/empty", time.Now())
	require.NoError(t, st.AppendRecord(ctx, rec))

	recs, err := st.ListRecords(ctx, RecordFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Name)
	assert.Nil(t, recs[0].Rating)
	assert.Nil(t, recs[0].Website)
	assert.NotNil(t, recs[0].Categories)
}

func TestSQLite_ConcurrentAppends(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, st.AppendRecord(ctx, sampleRecord("https://x.com/biz/"+string(rune('a'+i)), time.Now())))
		}(i)
	}
	wg.Wait()

	recs, err := st.ListRecords(ctx, RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 20)
}

func TestSQLite_Failures(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.RecordFailure(ctx, model.Failure{
		URL: "https://x.com/biz/a", Label: model.LabelDetail,
		Error: "chromedp: navigate: net::ERR_TIMED_OUT", ErrorType: "transient",
		Screenshot: "/tmp/shots/a.png", CreatedAt: base,
	}))
	require.NoError(t, st.RecordFailure(ctx, model.Failure{
		URL: "https://x.com/search?find_desc=x", Label: model.LabelSearch,
		Error: "status 404", ErrorType: "permanent", CreatedAt: base.Add(time.Minute),
	}))

	all, err := st.ListFailures(ctx, FailureFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, model.LabelSearch, all[0].Label, "newest first")
	assert.Empty(t, all[0].Screenshot)
	assert.Equal(t, "/tmp/shots/a.png", all[1].Screenshot)
	assert.NotEmpty(t, all[1].ID)

	transient, err := st.ListFailures(ctx, FailureFilter{ErrorType: "transient"})
	require.NoError(t, err)
	require.Len(t, transient, 1)
	assert.Equal(t, "https://x.com/biz/a", transient[0].URL)

	details, err := st.ListFailures(ctx, FailureFilter{Label: model.LabelDetail, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, details, 1)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, Config{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.AppendRecord(ctx, sampleRecord("https://x.com/biz/a", time.Now())))
	recs, err := st.ListRecords(ctx, RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestNewMySQL_BadDSN(t *testing.T) {
	_, err := NewMySQL("not a dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4}
	assert.Equal(t, []int{1, 2, 3, 4}, page(items, 0, 0))
	assert.Equal(t, []int{2, 3}, page(items, 2, 1))
	assert.Equal(t, []int{4}, page(items, 5, 3))
	assert.Empty(t, page(items, 1, 10))
}
