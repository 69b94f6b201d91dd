package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bizcrawl/internal/model"
)

// blockedResources are never downloaded while rendering.
var blockedResources = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.woff", "*.woff2", "*.mp4"}

// ChromedpRenderer renders pages in tabs of one shared Chrome process.
type ChromedpRenderer struct {
	opts          Options
	sem           chan struct{}
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromedpRenderer launches Chrome and keeps it running until Close.
func NewChromedpRenderer(opts Options) (*ChromedpRenderer, error) {
	opts = opts.withDefaults()

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, eris.Wrap(err, "chromedp: start browser")
	}

	return &ChromedpRenderer{
		opts:          opts,
		sem:           make(chan struct{}, opts.Concurrency),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// newTab opens a tab bound to ctx and the render timeout.
func (r *ChromedpRenderer) newTab(ctx context.Context) (context.Context, func()) {
	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	stop := context.AfterFunc(ctx, cancelTab)
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.opts.Timeout)
	return tabCtx, func() {
		cancelTimeout()
		stop()
		cancelTab()
	}
}

// Render navigates to url, dismisses a consent banner when one is found and
// returns the final DOM.
func (r *ChromedpRenderer) Render(ctx context.Context, url string, opts RenderOptions) (*model.RenderedPage, error) {
	release, err := acquire(ctx, r.sem)
	if err != nil {
		return nil, err
	}
	defer release()

	tabCtx, done := r.newTab(ctx)
	defer done()

	log := zap.L().With(zap.String("url", url), zap.String("engine", EngineChromedp))
	start := time.Now()

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetBlockedURLs(blockedResources),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, eris.Wrapf(err, "chromedp: navigate %s", url)
	}

	page := &model.RenderedPage{URL: url}
	if sels := opts.selectors(); len(sels) > 0 {
		var clicked bool
		if err := chromedp.Run(tabCtx, chromedp.Evaluate(invoke(consentFunc(sels)), &clicked)); err != nil {
			log.Debug("chromedp: consent dismissal failed", zap.Error(err))
		} else if clicked {
			page.ConsentDismissed = true
			sleepCtx(tabCtx, opts.ConsentWait)
		}
	}

	var html, finalURL, text string
	if err := chromedp.Run(tabCtx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.Evaluate(invoke(textFunc), &text),
	); err != nil {
		return nil, eris.Wrapf(err, "chromedp: capture %s", url)
	}

	if finalURL != "" {
		page.URL = finalURL
	}
	page.HTML = truncate(html, r.opts.MaxHTMLBytes)
	page.Text = text

	log.Debug("chromedp: render complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("final_url", page.URL),
		zap.Int("html_bytes", len(page.HTML)),
		zap.Bool("consent_dismissed", page.ConsentDismissed),
	)
	return page, nil
}

// Screenshot captures a full-page PNG of url.
func (r *ChromedpRenderer) Screenshot(ctx context.Context, url string) ([]byte, error) {
	release, err := acquire(ctx, r.sem)
	if err != nil {
		return nil, err
	}
	defer release()

	tabCtx, done := r.newTab(ctx)
	defer done()

	var buf []byte
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&buf, 80),
	); err != nil {
		return nil, eris.Wrapf(err, "chromedp: screenshot %s", url)
	}
	return buf, nil
}

// Close shuts down the browser.
func (r *ChromedpRenderer) Close() error {
	r.browserCancel()
	r.allocCancel()
	return nil
}
