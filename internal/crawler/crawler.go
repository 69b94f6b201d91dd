// Package crawler drives a crawl: it renders each work item, routes search
// pages into new items, resolves detail pages into records, enriches them
// from the business website and appends them to a sink.
package crawler

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bizcrawl/internal/browser"
	"github.com/sells-group/bizcrawl/internal/enrich"
	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/queue"
	"github.com/sells-group/bizcrawl/internal/ratelimit"
	"github.com/sells-group/bizcrawl/internal/resilience"
	"github.com/sells-group/bizcrawl/internal/resolve"
	"github.com/sells-group/bizcrawl/internal/router"
	"github.com/sells-group/bizcrawl/internal/scrape"
)

// Router turns a rendered search page into work items.
type Router interface {
	Route(p *model.RenderedPage, sourceURL string) []model.WorkItem
}

// Resolver turns a rendered detail page into a record.
type Resolver interface {
	Resolve(p *model.RenderedPage, sourceURL string) model.BusinessRecord
}

// Enricher harvests contacts from a business website.
type Enricher interface {
	Enrich(ctx context.Context, origin string) enrich.Result
}

// Sink receives finished records. store.Store satisfies it.
type Sink interface {
	AppendRecord(ctx context.Context, rec model.BusinessRecord) error
}

// Queue is the dedup work queue drained by Run.
type Queue interface {
	Push(items ...model.WorkItem) int
	Pop() (model.WorkItem, bool)
	Done()
	Drained() bool
}

// State counts what a crawl has done so far.
type State struct {
	Enqueued int `json:"enqueued"` // items admitted to the queue
	Routed   int `json:"routed"`   // search pages routed
	Emitted  int `json:"emitted"`  // records appended to the sink
	Failed   int `json:"failed"`   // items reported to the failure hook
	Dropped  int `json:"dropped"`  // items with an unknown label
}

// Add returns the field-wise sum of s and o.
func (s State) Add(o State) State {
	return State{
		Enqueued: s.Enqueued + o.Enqueued,
		Routed:   s.Routed + o.Routed,
		Emitted:  s.Emitted + o.Emitted,
		Failed:   s.Failed + o.Failed,
		Dropped:  s.Dropped + o.Dropped,
	}
}

// StepResult is the outcome of one Step. Items holds the work routed from a
// search page, Record the record built from a detail page. Err is set when
// the item failed or was dropped.
type StepResult struct {
	Items  []model.WorkItem
	Record *model.BusinessRecord
	Err    error
}

// ErrUnknownLabel is returned in StepResult.Err for items whose label is
// neither SEARCH nor DETAIL.
var ErrUnknownLabel = eris.New("crawler: unknown label")

// ErrBlocked marks a render that came back as a bot-check page.
var ErrBlocked = eris.New("crawler: blocked page")

// Options configures an Orchestrator. Nil collaborators get defaults.
type Options struct {
	// Concurrency bounds the number of items processed at once. Default: 4.
	Concurrency int
	// MaxResults caps the DETAIL items admitted to the default queue.
	// Zero means unlimited.
	MaxResults int
	// Render is passed to every Render call.
	Render browser.RenderOptions

	Router   Router
	Resolver Resolver
	// Enricher is optional; nil disables website enrichment.
	Enricher Enricher
	// Hook observes terminal item failures. Default: LogHook.
	Hook FailureHook
	// Queue is drained by Run. Default: queue.NewMemory(MaxResults).
	Queue Queue

	// Limiter paces renders per host and slows down on block pages.
	Limiter *ratelimit.Hosts
	// Breaker stops rendering after repeated consecutive failures.
	Breaker *resilience.Breaker

	// Poll is how long Run waits for in-flight items to produce work
	// when the queue is empty. Default: 25ms.
	Poll time.Duration
}

// Orchestrator processes work items. It is safe for concurrent use.
type Orchestrator struct {
	renderer browser.Renderer
	sink     Sink
	opts     Options
}

// New creates an Orchestrator that renders through renderer and appends
// records to sink.
func New(renderer browser.Renderer, sink Sink, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Router == nil {
		opts.Router = router.New()
	}
	if opts.Resolver == nil {
		opts.Resolver = resolve.New()
	}
	if opts.Hook == nil {
		opts.Hook = LogHook{}
	}
	if opts.Queue == nil {
		opts.Queue = queue.NewMemory(opts.MaxResults)
	}
	if opts.Poll <= 0 {
		opts.Poll = 25 * time.Millisecond
	}
	return &Orchestrator{renderer: renderer, sink: sink, opts: opts}
}

// Step processes one item and returns st advanced by what happened. Routed
// items are returned, not enqueued; Run owns the queue.
func (o *Orchestrator) Step(ctx context.Context, st State, item model.WorkItem) (State, StepResult) {
	log := zap.L().With(
		zap.String("component", "crawler"),
		zap.String("url", item.URL),
		zap.String("label", string(item.Label)),
	)

	if !item.Label.Valid() {
		log.Warn("dropping work item with unknown label")
		st.Dropped++
		return st, StepResult{Err: eris.Wrapf(ErrUnknownLabel, "label %q", item.Label)}
	}

	page, err := o.render(ctx, item.URL)
	if err != nil {
		st.Failed++
		o.opts.Hook.OnFailure(ctx, item, err)
		return st, StepResult{Err: err}
	}

	if item.Label == model.LabelSearch {
		items := o.opts.Router.Route(page, item.URL)
		st.Routed++
		log.Debug("routed search page", zap.Int("items", len(items)))
		return st, StepResult{Items: items}
	}

	rec := o.opts.Resolver.Resolve(page, item.URL)
	if rec.Website != nil && o.opts.Enricher != nil {
		res := o.opts.Enricher.Enrich(ctx, *rec.Website)
		rec.ApplyContacts(res.Bundle)
		log.Debug("enriched from website",
			zap.String("website", *rec.Website),
			zap.Int("attempts", len(res.Attempts)),
			zap.Int("emails", len(res.Bundle.Emails)),
			zap.Bool("stopped", res.Stopped),
		)
	}

	if err := o.sink.AppendRecord(ctx, rec); err != nil {
		err = eris.Wrap(err, "crawler: append record")
		st.Failed++
		o.opts.Hook.OnFailure(ctx, item, err)
		return st, StepResult{Record: &rec, Err: err}
	}
	st.Emitted++
	return st, StepResult{Record: &rec}
}

// render paces, renders and screens a page for bot-check markup.
func (o *Orchestrator) render(ctx context.Context, rawURL string) (*model.RenderedPage, error) {
	if err := o.opts.Limiter.Wait(ctx, rawURL); err != nil {
		return nil, eris.Wrap(err, "crawler: rate limit wait")
	}

	page, err := resilience.Execute(ctx, o.opts.Breaker, func(ctx context.Context) (*model.RenderedPage, error) {
		p, err := o.renderer.Render(ctx, rawURL, o.opts.Render)
		if err != nil {
			return nil, eris.Wrap(err, "crawler: render")
		}
		if blocked, typ := scrape.DetectBlockedMarkup(p.HTML); blocked {
			return nil, resilience.NewTransientError(eris.Wrapf(ErrBlocked, "%s", typ), 0)
		}
		return p, nil
	})

	switch {
	case eris.Is(err, ErrBlocked):
		o.opts.Limiter.Backoff(rawURL)
		zap.L().With(zap.String("component", "crawler")).Warn("bot check served",
			zap.String("url", rawURL),
			zap.Float64("host_rate", o.opts.Limiter.Rate(rawURL)),
		)
	case err == nil:
		o.opts.Limiter.Recover(rawURL)
	}
	return page, err
}

// queueStats is implemented by queues that keep admission counters.
type queueStats interface {
	Len() int
	Stats() (admitted, dropped int)
}

// Run pushes seeds onto the queue and drains it with a bounded pool of
// workers. Failed items are reported to the hook and never stop the run.
// It returns the aggregated State, and the context error if ctx ended
// before the queue drained.
func (o *Orchestrator) Run(ctx context.Context, seeds []model.WorkItem) (State, error) {
	log := zap.L().With(zap.String("component", "crawler"))
	q := o.opts.Queue
	start := time.Now()

	var (
		mu sync.Mutex
		st State
	)
	st.Enqueued = q.Push(seeds...)
	log.Info("crawl started",
		zap.Int("seeds", len(seeds)),
		zap.Int("enqueued", st.Enqueued),
		zap.Int("concurrency", o.opts.Concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)

	for gctx.Err() == nil {
		item, ok := q.Pop()
		if !ok {
			if q.Drained() {
				break
			}
			select {
			case <-gctx.Done():
			case <-time.After(o.opts.Poll):
			}
			continue
		}

		g.Go(func() error {
			defer q.Done()
			next, res := o.Step(gctx, State{}, item)
			admitted := q.Push(res.Items...)

			mu.Lock()
			st = st.Add(next)
			st.Enqueued += admitted
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	mu.Lock()
	defer mu.Unlock()
	fields := []zap.Field{
		zap.Int("enqueued", st.Enqueued),
		zap.Int("routed", st.Routed),
		zap.Int("emitted", st.Emitted),
		zap.Int("failed", st.Failed),
		zap.Int("dropped", st.Dropped),
		zap.Duration("elapsed", time.Since(start)),
	}
	if qs, ok := q.(queueStats); ok {
		admitted, dropped := qs.Stats()
		fields = append(fields,
			zap.Int("queue_admitted", admitted),
			zap.Int("queue_dropped", dropped),
			zap.Int("queue_pending", qs.Len()),
		)
	}
	log.Info("crawl complete", fields...)
	if err := ctx.Err(); err != nil {
		return st, eris.Wrap(err, "crawler: run cancelled")
	}
	return st, nil
}
