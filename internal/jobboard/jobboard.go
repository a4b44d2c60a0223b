package jobboard

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL = "https://www.indeed.com/jobs"
	// Cards taken from every location page.
	perLocation = 7
	// Minimal gap between two page loads of the same client.
	pageDelay   = 3 * time.Second
	pageTimeout = 45 * time.Second

	NotSpecified = "Not specified"
	PostedRecent = "Recent"
)

var (
	// ErrScrapeUnavailable means no location page could be loaded at all.
	ErrScrapeUnavailable = errors.New("job board unavailable")
	// ErrCardParse marks a single malformed listing card.
	ErrCardParse = errors.New("card parse error")
	// ErrApplyUnavailable means the posting has no automated apply control.
	ErrApplyUnavailable = errors.New("apply button not found")
)

// Options tune a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL          string
	PerLocationLimit int
	PageDelay        time.Duration
	PageTimeout      time.Duration
}

// Client queries the job board. Page loads are paced by a limiter that is
// shared by every search made through the client.
type Client struct {
	BaseURL          string
	PerLocationLimit int
	PageTimeout      time.Duration

	limiter *rate.Limiter
	logger  *zap.Logger
}

func New(logger *zap.Logger, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = baseURL
	}
	if opts.PerLocationLimit <= 0 {
		opts.PerLocationLimit = perLocation
	}
	if opts.PageDelay <= 0 {
		opts.PageDelay = pageDelay
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = pageTimeout
	}

	return &Client{
		BaseURL:          opts.BaseURL,
		PerLocationLimit: opts.PerLocationLimit,
		PageTimeout:      opts.PageTimeout,
		limiter:          rate.NewLimiter(rate.Every(opts.PageDelay), 1),
		logger:           logger,
	}
}
