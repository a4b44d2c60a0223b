package jobboard

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/spigell/cv-matcher/internal/utils"
	"go.uber.org/zap"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	// Time given to client-side scripts after the document is ready.
	settleDelay   = 3 * time.Second
	applySelector = "#indeedApplyButton, button.jobsearch-IndeedApplyButton-newDesign"
)

// Browser is a rendering session used for one search batch.
type Browser interface {
	Renderer
	Apply(ctx context.Context, link string) error
	Close() error
}

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

type ChromeOptions struct {
	Headless      bool
	UserAgent     string
	ExecPath      string
	Settle        time.Duration
	ApplySelector string
}

// Chrome launches headless Chrome sessions through the DevTools protocol.
type Chrome struct {
	opts   ChromeOptions
	logger *zap.Logger
}

func NewChrome(opts ChromeOptions, logger *zap.Logger) *Chrome {
	if opts.UserAgent == "" {
		opts.UserAgent = userAgent
	}
	if opts.Settle <= 0 {
		opts.Settle = settleDelay
	}
	if opts.ApplySelector == "" {
		opts.ApplySelector = applySelector
	}

	return &Chrome{opts: opts, logger: logger}
}

// Launch starts a browser process. The browser outlives ctx and must be
// released with Close.
func (c *Chrome) Launch(ctx context.Context) (Browser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.UserAgent(c.opts.UserAgent),
	)
	if !c.opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if c.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	release := func() {
		cancelBrowser()
		cancelAlloc()
	}

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		release()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	c.logger.Debug("browser started", zap.Bool("headless", c.opts.Headless))

	return &chromeBrowser{
		ctx:     browserCtx,
		release: release,
		opts:    c.opts,
		logger:  c.logger,
	}, nil
}

type chromeBrowser struct {
	ctx     context.Context
	release func()
	opts    ChromeOptions
	logger  *zap.Logger
}

func (b *chromeBrowser) Render(ctx context.Context, pageURL string) (string, error) {
	runCtx, cancel := b.bind(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}

	if err := utils.WaitFor(ctx, b.opts.Settle); err != nil {
		return "", err
	}

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}

	return html, nil
}

// Apply opens the posting and presses its apply control. Postings without
// one fail with ErrApplyUnavailable.
func (b *chromeBrowser) Apply(ctx context.Context, link string) error {
	runCtx, cancel := b.bind(ctx)
	defer cancel()

	var present bool
	check := fmt.Sprintf("document.querySelector(%s) !== null", strconv.Quote(b.opts.ApplySelector))

	if err := chromedp.Run(runCtx,
		chromedp.Navigate(link),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(check, &present),
	); err != nil {
		return fmt.Errorf("open posting: %w", err)
	}

	if !present {
		return ErrApplyUnavailable
	}

	if err := chromedp.Run(runCtx, chromedp.Click(b.opts.ApplySelector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("press apply: %w", err)
	}

	return nil
}

func (b *chromeBrowser) Close() error {
	b.release()
	b.logger.Debug("browser released")
	return nil
}

// bind derives a browser context that is also cancelled with ctx.
func (b *chromeBrowser) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(b.ctx)
	stop := context.AfterFunc(ctx, cancel)

	return runCtx, func() {
		stop()
		cancel()
	}
}
