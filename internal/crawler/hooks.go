package crawler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bizcrawl/internal/browser"
	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/resilience"
)

// FailureHook observes work items that failed terminally.
type FailureHook interface {
	OnFailure(ctx context.Context, item model.WorkItem, err error)
}

// HookFunc adapts a function to FailureHook.
type HookFunc func(ctx context.Context, item model.WorkItem, err error)

func (f HookFunc) OnFailure(ctx context.Context, item model.WorkItem, err error) {
	f(ctx, item, err)
}

// LogHook logs failures at warn level.
type LogHook struct{}

func (LogHook) OnFailure(_ context.Context, item model.WorkItem, err error) {
	zap.L().Warn("work item failed",
		zap.String("component", "crawler"),
		zap.String("url", item.URL),
		zap.String("label", string(item.Label)),
		zap.String("error_type", resilience.ClassifyError(err)),
		zap.Error(err),
	)
}

// FailureRecorder persists failures. store.Store satisfies it.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, f model.Failure) error
}

// StoreHook persists each failure, including the screenshot path when a
// ScreenshotHook captured one.
type StoreHook struct {
	Store FailureRecorder
}

func (h StoreHook) OnFailure(ctx context.Context, item model.WorkItem, err error) {
	f := model.Failure{
		URL:        item.URL,
		Label:      item.Label,
		Error:      err.Error(),
		ErrorType:  resilience.ClassifyError(err),
		Screenshot: screenshotPath(ctx),
		CreatedAt:  time.Now().UTC(),
	}
	// The item context may already be done; the failure should still land.
	if recErr := h.Store.RecordFailure(context.WithoutCancel(ctx), f); recErr != nil {
		zap.L().Error("failed to record failure",
			zap.String("url", item.URL),
			zap.Error(recErr),
		)
	}
}

// MultiHook calls every hook in order.
type MultiHook []FailureHook

func (m MultiHook) OnFailure(ctx context.Context, item model.WorkItem, err error) {
	for _, h := range m {
		if h != nil {
			h.OnFailure(ctx, item, err)
		}
	}
}

// DefaultScreenshotTimeout bounds a diagnostic capture.
const DefaultScreenshotTimeout = 30 * time.Second

// ScreenshotHook captures a PNG of the failed URL into Dir and then calls
// Next with the file path attached to the context. Capture errors are
// logged and never block Next.
type ScreenshotHook struct {
	Shooter browser.Screenshotter
	Dir     string
	Timeout time.Duration
	Next    FailureHook
}

func (h ScreenshotHook) OnFailure(ctx context.Context, item model.WorkItem, err error) {
	if path, shotErr := h.capture(ctx, item); shotErr != nil {
		zap.L().Debug("screenshot capture failed",
			zap.String("url", item.URL),
			zap.Error(shotErr),
		)
	} else {
		ctx = withScreenshotPath(ctx, path)
	}
	if h.Next != nil {
		h.Next.OnFailure(ctx, item, err)
	}
}

func (h ScreenshotHook) capture(ctx context.Context, item model.WorkItem) (string, error) {
	if h.Shooter == nil {
		return "", eris.New("crawler: no screenshotter")
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultScreenshotTimeout
	}
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	png, err := h.Shooter.Screenshot(shotCtx, item.URL)
	if err != nil {
		return "", eris.Wrap(err, "crawler: screenshot")
	}
	if err := os.MkdirAll(h.Dir, 0o755); err != nil {
		return "", eris.Wrap(err, "crawler: create screenshot dir")
	}
	name := strings.ToLower(string(item.Label)) + "-" + uuid.NewString() + ".png"
	path := filepath.Join(h.Dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", eris.Wrap(err, "crawler: write screenshot")
	}
	return path, nil
}

type screenshotKey struct{}

func withScreenshotPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, screenshotKey{}, path)
}

func screenshotPath(ctx context.Context) string {
	path, _ := ctx.Value(screenshotKey{}).(string)
	return path
}
