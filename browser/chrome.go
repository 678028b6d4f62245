package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/pmarques/go-scrape-fbref/config"
)

// ChromeLauncher launches headless Chrome processes through chromedp. One
// exec allocator is shared; every Launch starts a dedicated browser process
// so a crashed session never takes its siblings down.
type ChromeLauncher struct {
	allocCtx context.Context
	cancel   context.CancelFunc
}

// NewChromeLauncher builds a launcher from the run configuration.
func NewChromeLauncher(cfg *config.Config) *ChromeLauncher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.Stealth {
		// The target blocks obvious automation; mirror a regular browser.
		opts = append(opts,
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("disable-infobars", true),
			chromedp.Flag("disable-notifications", true),
			chromedp.Flag("disable-popup-blocking", true),
			chromedp.Flag("disable-extensions", true),
		)
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeLauncher{allocCtx: allocCtx, cancel: cancel}
}

// Launch starts a browser process and returns a driver bound to it. Startup
// failures surface here rather than on first navigation.
func (l *ChromeLauncher) Launch(ctx context.Context) (Driver, error) {
	browserCtx, cancel := chromedp.NewContext(l.allocCtx)
	if err := runBounded(ctx, browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &chromeDriver{ctx: browserCtx, cancel: cancel}, nil
}

// Close terminates the allocator and with it any browser process still
// running.
func (l *ChromeLauncher) Close() error {
	l.cancel()
	return nil
}

// runBounded executes chromedp actions on the browser context while honoring
// the caller's deadline and cancellation.
func runBounded(callerCtx, browserCtx context.Context, actions ...chromedp.Action) error {
	runCtx := browserCtx
	cancel := func() {}
	if deadline, ok := callerCtx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(browserCtx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(browserCtx)
	}
	defer cancel()

	stop := context.AfterFunc(callerCtx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

type chromeDriver struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (d *chromeDriver) Navigate(ctx context.Context, url, waitSelector string) error {
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if waitSelector != "" {
		actions = append(actions, chromedp.WaitReady(waitSelector))
	}
	if err := runBounded(ctx, d.ctx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (d *chromeDriver) HTML(ctx context.Context) (string, error) {
	var html string
	if err := runBounded(ctx, d.ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("capture html: %w", err)
	}
	return html, nil
}

func (d *chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var shot []byte
	if err := runBounded(ctx, d.ctx, chromedp.FullScreenshot(&shot, 90)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return shot, nil
}

func (d *chromeDriver) Close() error {
	d.cancel()
	return nil
}
