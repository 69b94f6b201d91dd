package crawler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/bizcrawl/internal/browser"
	"github.com/sells-group/bizcrawl/internal/enrich"
	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/queue"
	"github.com/sells-group/bizcrawl/internal/ratelimit"
	"github.com/sells-group/bizcrawl/internal/resilience"
)

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, url string, opts browser.RenderOptions) (*model.RenderedPage, error) {
	args := m.Called(ctx, url, opts)
	p, _ := args.Get(0).(*model.RenderedPage)
	return p, args.Error(1)
}

func (m *mockRenderer) page(url, html string) {
	m.On("Render", mock.Anything, url, mock.Anything).Return(&model.RenderedPage{URL: url, HTML: html}, nil)
}

type memSink struct {
	mu      sync.Mutex
	records []model.BusinessRecord
	err     error
}

func (s *memSink) AppendRecord(_ context.Context, rec model.BusinessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memSink) byURL() map[string]model.BusinessRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.BusinessRecord, len(s.records))
	for _, r := range s.records {
		out[r.SourceURL] = r
	}
	return out
}

type fakeEnricher struct {
	mu      sync.Mutex
	bundles map[string]model.ContactBundle
	calls   []string
}

func (f *fakeEnricher) Enrich(_ context.Context, origin string) enrich.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, origin)
	return enrich.Result{Bundle: f.bundles[origin]}
}

type recordingHook struct {
	mu    sync.Mutex
	items []model.WorkItem
	errs  []error
}

func (h *recordingHook) OnFailure(_ context.Context, item model.WorkItem, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, item)
	h.errs = append(h.errs, err)
}

const searchPage = `<html><body>
<ul>
  <li><a href="/biz/joes-pizza">Joe's Pizza</a></li>
  <li><a href="/biz/acme-plumbing">Acme Plumbing</a></li>
  <li><a href="/biz/bobs-burgers">Bob's Burgers</a></li>
  <li><a href="/biz/acme-plumbing#reviews">Reviews</a></li>
</ul>
<a rel="next" href="/search?find_desc=food&start=10">Next</a>
</body></html>`

const detailPage = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"LocalBusiness","name":"Acme Plumbing","telephone":"+1-555-0100"}
</script></head>
<body><h1>Acme Plumbing</h1>
<a href="/biz_redir?url=https%3A%2F%2Facme.com%2Fhome&s=1">Website</a>
</body></html>`

func TestStep_SearchPageRoutesDetailAndNext(t *testing.T) {
	r := &mockRenderer{}
	r.page("https://dir.test/search?find_desc=food", searchPage)
	o := New(r, &memSink{}, Options{})

	st, res := o.Step(context.Background(), State{}, model.WorkItem{
		URL: "https://dir.test/search?find_desc=food", Label: model.LabelSearch,
	})

	require.NoError(t, res.Err)
	require.Len(t, res.Items, 4)
	assert.Equal(t, []model.WorkItem{
		{URL: "https://dir.test/biz/joes-pizza", Label: model.LabelDetail},
		{URL: "https://dir.test/biz/acme-plumbing", Label: model.LabelDetail},
		{URL: "https://dir.test/biz/bobs-burgers", Label: model.LabelDetail},
		{URL: "https://dir.test/search?find_desc=food&start=10", Label: model.LabelSearch},
	}, res.Items)
	assert.Nil(t, res.Record)
	assert.Equal(t, State{Routed: 1}, st)
	r.AssertExpectations(t)
}

func TestStep_DetailPageResolvesEnrichesAndEmits(t *testing.T) {
	r := &mockRenderer{}
	r.page("https://dir.test/biz/acme-plumbing", detailPage)
	sink := &memSink{}
	enr := &fakeEnricher{bundles: map[string]model.ContactBundle{
		"https://acme.com": model.NewContactBundle([]string{"sales@acme.com"}, []string{"555-010-0200"}, nil),
	}}
	o := New(r, sink, Options{Enricher: enr})

	st, res := o.Step(context.Background(), State{Emitted: 2}, model.WorkItem{
		URL: "https://dir.test/biz/acme-plumbing", Label: model.LabelDetail,
	})

	require.NoError(t, res.Err)
	require.NotNil(t, res.Record)
	rec := *res.Record
	assert.Equal(t, "+1-555-0100", model.Deref(rec.Phone))
	assert.Equal(t, "Acme Plumbing", model.Deref(rec.Name))
	assert.Equal(t, "https://acme.com", model.Deref(rec.Website))
	assert.Equal(t, []string{"sales@acme.com"}, rec.Emails)
	assert.Equal(t, []string{"555-010-0200"}, rec.PhonesFromWebsite)
	assert.Equal(t, []string{"https://acme.com"}, enr.calls)
	assert.Equal(t, State{Emitted: 3}, st)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "https://dir.test/biz/acme-plumbing", sink.records[0].SourceURL)
}

func TestStep_DetailWithoutWebsiteSkipsEnrichment(t *testing.T) {
	r := &mockRenderer{}
	r.page("https://dir.test/biz/plain", `<html><body><h1>Plain Diner</h1></body></html>`)
	enr := &fakeEnricher{}
	o := New(r, &memSink{}, Options{Enricher: enr})

	_, res := o.Step(context.Background(), State{}, model.WorkItem{URL: "https://dir.test/biz/plain", Label: model.LabelDetail})

	require.NoError(t, res.Err)
	assert.Empty(t, enr.calls)
	assert.Equal(t, "Plain Diner", model.Deref(res.Record.Name))
	assert.Empty(t, res.Record.Emails)
}

func TestStep_EnrichmentDisabled(t *testing.T) {
	r := &mockRenderer{}
	r.page("https://dir.test/biz/acme-plumbing", detailPage)
	o := New(r, &memSink{}, Options{})

	_, res := o.Step(context.Background(), State{}, model.WorkItem{URL: "https://dir.test/biz/acme-plumbing", Label: model.LabelDetail})

	require.NoError(t, res.Err)
	assert.Equal(t, "https://acme.com", model.Deref(res.Record.Website))
	assert.Empty(t, res.Record.Emails)
}

func TestStep_UnknownLabelDropped(t *testing.T) {
	r := &mockRenderer{}
	hook := &recordingHook{}
	o := New(r, &memSink{}, Options{Hook: hook})

	st, res := o.Step(context.Background(), State{}, model.WorkItem{URL: "https://dir.test/x", Label: "REVIEW"})

	require.ErrorIs(t, res.Err, ErrUnknownLabel)
	assert.Equal(t, State{Dropped: 1}, st)
	assert.Empty(t, hook.items, "drops are not failures")
	r.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything)
}

func TestStep_RenderFailureReported(t *testing.T) {
	r := &mockRenderer{}
	r.On("Render", mock.Anything, "https://dir.test/biz/down", mock.Anything).
		Return(nil, resilience.NewTransientError(assert.AnError, 0))
	hook := &recordingHook{}
	o := New(r, &memSink{}, Options{Hook: hook})

	item := model.WorkItem{URL: "https://dir.test/biz/down", Label: model.LabelDetail}
	st, res := o.Step(context.Background(), State{}, item)

	require.Error(t, res.Err)
	assert.Nil(t, res.Record)
	assert.Equal(t, State{Failed: 1}, st)
	require.Len(t, hook.items, 1)
	assert.Equal(t, item, hook.items[0])
	assert.True(t, resilience.IsTransient(hook.errs[0]))
}

func TestStep_SinkFailureReported(t *testing.T) {
	r := &mockRenderer{}
	r.page("https://dir.test/biz/acme-plumbing", detailPage)
	hook := &recordingHook{}
	o := New(r, &memSink{err: assert.AnError}, Options{Hook: hook})

	st, res := o.Step(context.Background(), State{}, model.WorkItem{URL: "https://dir.test/biz/acme-plumbing", Label: model.LabelDetail})

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "crawler: append record")
	require.NotNil(t, res.Record, "the resolved record is still returned")
	assert.Equal(t, State{Failed: 1}, st)
	assert.Len(t, hook.items, 1)
}

func TestStep_BlockedPageSlowsHost(t *testing.T) {
	r := &mockRenderer{}
	r.page("https://dir.test/biz/blocked", `<html><body>Checking your browser before accessing dir.test</body></html>`)
	limiter := ratelimit.NewHosts(10, 1)
	hook := &recordingHook{}
	o := New(r, &memSink{}, Options{Limiter: limiter, Hook: hook})

	st, res := o.Step(context.Background(), State{}, model.WorkItem{URL: "https://dir.test/biz/blocked", Label: model.LabelDetail})

	require.ErrorIs(t, res.Err, ErrBlocked)
	assert.True(t, resilience.IsTransient(res.Err))
	assert.Equal(t, 1, st.Failed)
	assert.InDelta(t, 5.0, limiter.Rate("https://dir.test/"), 0.001)
}

func TestStep_BreakerStopsRendering(t *testing.T) {
	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()
	o := New(r, &memSink{}, Options{
		Breaker: resilience.NewBreaker(resilience.BreakerConfig{Threshold: 1}),
		Hook:    &recordingHook{},
	})

	ctx := context.Background()
	st, _ := o.Step(ctx, State{}, model.WorkItem{URL: "https://dir.test/biz/a", Label: model.LabelDetail})
	st, res := o.Step(ctx, st, model.WorkItem{URL: "https://dir.test/biz/b", Label: model.LabelDetail})

	require.ErrorIs(t, res.Err, resilience.ErrBreakerOpen)
	assert.Equal(t, 2, st.Failed)
	r.AssertNumberOfCalls(t, "Render", 1)
}

func TestStep_PassesRenderOptions(t *testing.T) {
	r := &mockRenderer{}
	opts := browser.RenderOptions{ConsentSelectors: []string{"#accept"}}
	r.On("Render", mock.Anything, "https://dir.test/biz/a", opts).
		Return(&model.RenderedPage{URL: "https://dir.test/biz/a", HTML: "<h1>A</h1>"}, nil)
	o := New(r, &memSink{}, Options{Render: opts})

	_, res := o.Step(context.Background(), State{}, model.WorkItem{URL: "https://dir.test/biz/a", Label: model.LabelDetail})
	require.NoError(t, res.Err)
	r.AssertExpectations(t)
}

func TestRun_DrainsQueue(t *testing.T) {
	r := &mockRenderer{}
	r.page("https://dir.test/search?find_desc=food", `<html><body>
		<a href="/biz/acme-plumbing">Acme</a>
		<a href="/biz/joes-pizza">Joe's</a>
		<a rel="next" href="/search?find_desc=food&start=10">Next</a>
	</body></html>`)
	r.page("https://dir.test/search?find_desc=food&start=10", `<html><body>
		<a href="/biz/joes-pizza">Joe's again</a>
		<a href="/biz/closed">Closed</a>
	</body></html>`)
	r.page("https://dir.test/biz/acme-plumbing", detailPage)
	r.page("https://dir.test/biz/joes-pizza", `<html><body><h1>Joe's Pizza</h1><a href="tel:+15550111">Call</a></body></html>`)
	r.On("Render", mock.Anything, "https://dir.test/biz/closed", mock.Anything).Return(nil, assert.AnError)

	sink := &memSink{}
	hook := &recordingHook{}
	enr := &fakeEnricher{bundles: map[string]model.ContactBundle{
		"https://acme.com": model.NewContactBundle([]string{"sales@acme.com"}, nil, nil),
	}}
	o := New(r, sink, Options{Concurrency: 3, Enricher: enr, Hook: hook})

	st, err := o.Run(context.Background(), []model.WorkItem{
		{URL: "https://dir.test/search?find_desc=food", Label: model.LabelSearch},
	})

	require.NoError(t, err)
	assert.Equal(t, State{Enqueued: 5, Routed: 2, Emitted: 2, Failed: 1}, st)

	recs := sink.byURL()
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"sales@acme.com"}, recs["https://dir.test/biz/acme-plumbing"].Emails)
	assert.Equal(t, "+15550111", model.Deref(recs["https://dir.test/biz/joes-pizza"].Phone))

	require.Len(t, hook.items, 1)
	assert.Equal(t, "https://dir.test/biz/closed", hook.items[0].URL)
	r.AssertNumberOfCalls(t, "Render", 5)
}

func TestRun_MaxResultsCapsDetails(t *testing.T) {
	r := &mockRenderer{}
	r.page("https://dir.test/search?find_desc=food", searchPage)
	r.page("https://dir.test/biz/joes-pizza", `<html><body><h1>Joe's Pizza</h1></body></html>`)
	sink := &memSink{}
	o := New(r, sink, Options{MaxResults: 1})

	st, err := o.Run(context.Background(), []model.WorkItem{
		{URL: "https://dir.test/search?find_desc=food", Label: model.LabelSearch},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, st.Emitted)
	assert.Equal(t, 2, st.Enqueued, "seed and one detail; the next page is not followed")
	assert.Len(t, sink.records, 1)
	r.AssertNumberOfCalls(t, "Render", 2)
}

func TestRun_MaxResultsStopsPagination(t *testing.T) {
	const pages = 20
	r := &mockRenderer{}
	for i := 1; i <= pages; i++ {
		r.page(fmt.Sprintf("https://dir.test/search?page=%d", i), fmt.Sprintf(`<html><body>
<a href="/biz/shop-%d-a">A</a><a href="/biz/shop-%d-b">B</a>
<a rel="next" href="/search?page=%d">Next</a>
</body></html>`, i, i, i+1))
		r.page(fmt.Sprintf("https://dir.test/biz/shop-%d-a", i), `<h1>A</h1>`)
		r.page(fmt.Sprintf("https://dir.test/biz/shop-%d-b", i), `<h1>B</h1>`)
	}
	o := New(r, &memSink{}, Options{MaxResults: 2, Concurrency: 1})

	st, err := o.Run(context.Background(), []model.WorkItem{
		{URL: "https://dir.test/search?page=1", Label: model.LabelSearch},
	})

	require.NoError(t, err)
	assert.Equal(t, State{Enqueued: 3, Routed: 1, Emitted: 2}, st)
	r.AssertNumberOfCalls(t, "Render", 3)
	r.AssertNotCalled(t, "Render", mock.Anything, "https://dir.test/search?page=2", mock.Anything)
}

func TestRun_DuplicateSeedsCollapse(t *testing.T) {
	r := &mockRenderer{}
	r.page("https://dir.test/biz/a", `<h1>A</h1>`)
	o := New(r, &memSink{}, Options{})

	st, err := o.Run(context.Background(), []model.WorkItem{
		{URL: "https://dir.test/biz/a", Label: model.LabelDetail},
		{URL: "HTTPS://DIR.TEST/biz/a#top", Label: model.LabelDetail},
	})

	require.NoError(t, err)
	assert.Equal(t, State{Enqueued: 1, Emitted: 1}, st)
}

func TestRun_UnknownSeedLabelDropped(t *testing.T) {
	r := &mockRenderer{}
	o := New(r, &memSink{}, Options{})

	st, err := o.Run(context.Background(), []model.WorkItem{{URL: "https://dir.test/x", Label: "OTHER"}})

	require.NoError(t, err)
	assert.Equal(t, State{Enqueued: 1, Dropped: 1}, st)
}

func TestRun_CancelledContext(t *testing.T) {
	r := &mockRenderer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := New(r, &memSink{}, Options{})

	st, err := o.Run(ctx, []model.WorkItem{{URL: "https://dir.test/biz/a", Label: model.LabelDetail}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "run cancelled")
	assert.Equal(t, 0, st.Emitted)
	r.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_CustomQueue(t *testing.T) {
	r := &mockRenderer{}
	r.page("https://dir.test/biz/a", `<h1>A</h1>`)
	q := queue.NewMemory(0)
	o := New(r, &memSink{}, Options{Queue: q})

	_, err := o.Run(context.Background(), []model.WorkItem{{URL: "https://dir.test/biz/a", Label: model.LabelDetail}})
	require.NoError(t, err)

	admitted, dropped := q.Stats()
	assert.Equal(t, 1, admitted)
	assert.Zero(t, dropped)
	assert.True(t, q.Drained())
}

func TestRun_SummaryLogsQueueCounters(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	t.Cleanup(zap.ReplaceGlobals(zap.New(core)))

	r := &mockRenderer{}
	r.page("https://dir.test/biz/a", `<h1>A</h1>`)
	o := New(r, &memSink{}, Options{Queue: queue.NewMemory(1)})

	_, err := o.Run(context.Background(), []model.WorkItem{
		{URL: "https://dir.test/biz/a", Label: model.LabelDetail},
		{URL: "https://dir.test/biz/b", Label: model.LabelDetail},
	})
	require.NoError(t, err)

	done := logs.FilterMessage("crawl complete").All()
	require.Len(t, done, 1)
	fields := done[0].ContextMap()
	assert.EqualValues(t, 1, fields["queue_admitted"])
	assert.EqualValues(t, 1, fields["queue_dropped"])
	assert.EqualValues(t, 0, fields["queue_pending"])
	assert.EqualValues(t, 1, fields["emitted"])
}

func TestStateAdd(t *testing.T) {
	a := State{Enqueued: 1, Routed: 2, Emitted: 3, Failed: 4, Dropped: 5}
	assert.Equal(t, State{Enqueued: 2, Routed: 4, Emitted: 6, Failed: 8, Dropped: 10}, a.Add(a))
}

func TestNew_Defaults(t *testing.T) {
	o := New(&mockRenderer{}, &memSink{}, Options{})
	assert.Equal(t, 4, o.opts.Concurrency)
	assert.NotNil(t, o.opts.Router)
	assert.NotNil(t, o.opts.Resolver)
	assert.NotNil(t, o.opts.Queue)
	assert.IsType(t, LogHook{}, o.opts.Hook)
	assert.Nil(t, o.opts.Enricher)
	assert.Equal(t, 25*time.Millisecond, o.opts.Poll)
}
