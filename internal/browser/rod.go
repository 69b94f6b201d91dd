package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bizcrawl/internal/model"
)

// RodRenderer renders pages with rod, opening every page through stealth
// so common headless fingerprints are masked.
type RodRenderer struct {
	opts     Options
	sem      chan struct{}
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRodRenderer launches a browser and connects to it.
func NewRodRenderer(opts Options) (*RodRenderer, error) {
	opts = opts.withDefaults()

	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled")
	if opts.ExecPath != "" {
		l = l.Bin(opts.ExecPath)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "rod: launch browser")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, eris.Wrap(err, "rod: connect browser")
	}

	return &RodRenderer{
		opts:     opts,
		sem:      make(chan struct{}, opts.Concurrency),
		launcher: l,
		browser:  b,
	}, nil
}

// openPage creates a stealth page bound to ctx and the render timeout.
func (r *RodRenderer) openPage(ctx context.Context, url string) (*rod.Page, func(), error) {
	raw, err := stealth.Page(r.browser)
	if err != nil {
		return nil, nil, eris.Wrap(err, "rod: open page")
	}
	closePage := func() { _ = raw.Close() }

	page := raw.Context(ctx).Timeout(r.opts.Timeout)
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.opts.UserAgent}); err != nil {
		closePage()
		return nil, nil, eris.Wrap(err, "rod: set user agent")
	}
	if err := page.Navigate(url); err != nil {
		closePage()
		return nil, nil, eris.Wrapf(err, "rod: navigate %s", url)
	}
	if err := page.WaitLoad(); err != nil {
		closePage()
		return nil, nil, eris.Wrapf(err, "rod: wait load %s", url)
	}
	return page, closePage, nil
}

// Render navigates to url, dismisses a consent banner when one is found and
// returns the final DOM.
func (r *RodRenderer) Render(ctx context.Context, url string, opts RenderOptions) (*model.RenderedPage, error) {
	release, err := acquire(ctx, r.sem)
	if err != nil {
		return nil, err
	}
	defer release()

	log := zap.L().With(zap.String("url", url), zap.String("engine", EngineRod))
	start := time.Now()

	page, closePage, err := r.openPage(ctx, url)
	if err != nil {
		return nil, err
	}
	defer closePage()

	out := &model.RenderedPage{URL: url}
	if sels := opts.selectors(); len(sels) > 0 {
		res, err := page.Eval(consentFunc(sels))
		switch {
		case err != nil:
			log.Debug("rod: consent dismissal failed", zap.Error(err))
		case res.Value.Bool():
			out.ConsentDismissed = true
			sleepCtx(ctx, opts.ConsentWait)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, eris.Wrapf(err, "rod: capture %s", url)
	}
	out.HTML = truncate(html, r.opts.MaxHTMLBytes)

	if info, err := page.Info(); err == nil && info.URL != "" {
		out.URL = info.URL
	}
	if res, err := page.Eval(textFunc); err == nil {
		out.Text = res.Value.Str()
	}

	log.Debug("rod: render complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("final_url", out.URL),
		zap.Int("html_bytes", len(out.HTML)),
		zap.Bool("consent_dismissed", out.ConsentDismissed),
	)
	return out, nil
}

// Screenshot captures a full-page PNG of url.
func (r *RodRenderer) Screenshot(ctx context.Context, url string) ([]byte, error) {
	release, err := acquire(ctx, r.sem)
	if err != nil {
		return nil, err
	}
	defer release()

	page, closePage, err := r.openPage(ctx, url)
	if err != nil {
		return nil, err
	}
	defer closePage()

	buf, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "rod: screenshot %s", url)
	}
	return buf, nil
}

// Close disconnects and stops the browser.
func (r *RodRenderer) Close() error {
	err := r.browser.Close()
	r.launcher.Kill()
	if err != nil {
		return eris.Wrap(err, "rod: close browser")
	}
	return nil
}
