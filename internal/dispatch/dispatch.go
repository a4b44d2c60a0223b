package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/jobboard"
)

const (
	defaultNotifyTimeout = 15 * time.Second
	defaultApplyTimeout  = 60 * time.Second
)

var (
	ErrNotificationFailed = errors.New("notification failed")
	ErrApplicationFailed  = errors.New("application failed")
)

// Notification tells a user about one matching listing.
type Notification struct {
	ChatID  int64
	Listing *jobboard.Listing
	Score   int
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Applier submits an application for the posting behind link.
type Applier interface {
	Apply(ctx context.Context, link string) error
}

// Options tune a Dispatcher. Zero timeouts fall back to defaults.
type Options struct {
	NotifyTimeout time.Duration
	ApplyTimeout  time.Duration
}

// Dispatcher acts on scored listings. Both actions are best effort: a
// failing notification does not prevent the application and vice versa.
type Dispatcher struct {
	notifier      Notifier
	applier       Applier
	notifyTimeout time.Duration
	applyTimeout  time.Duration
	logger        *zap.Logger
}

// Outcome reports what Dispatch did for one listing. Errors are advisory.
type Outcome struct {
	Fired     bool
	Notified  bool
	Applied   bool
	NotifyErr error
	ApplyErr  error
}

func New(notifier Notifier, applier Applier, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.ApplyTimeout <= 0 {
		opts.ApplyTimeout = defaultApplyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		notifier:      notifier,
		applier:       applier,
		notifyTimeout: opts.NotifyTimeout,
		applyTimeout:  opts.ApplyTimeout,
		logger:        logger,
	}
}

// Dispatch notifies and applies when match.Score >= threshold. Listings
// below the threshold are omitted without any action.
func (d *Dispatcher) Dispatch(ctx context.Context, chatID int64, match ai.MatchScore, threshold int) Outcome {
	if match.Listing == nil || match.Score < threshold {
		return Outcome{}
	}

	out := Outcome{Fired: true}
	log := d.logger.With(
		zap.String("link", match.Listing.Link),
		zap.Int("score", match.Score),
	)

	out.NotifyErr = d.notify(ctx, Notification{ChatID: chatID, Listing: match.Listing, Score: match.Score})
	if out.NotifyErr != nil {
		log.Warn("sending job notification failed", zap.Error(out.NotifyErr))
	} else {
		out.Notified = true
	}

	out.ApplyErr = d.apply(ctx, match.Listing.Link)
	switch {
	case out.ApplyErr == nil:
		out.Applied = true
		log.Info("applied to listing")
	case errors.Is(out.ApplyErr, jobboard.ErrApplyUnavailable):
		log.Info("listing has no automated apply. Skipping application.", zap.Error(out.ApplyErr))
	default:
		log.Warn("automated application failed", zap.Error(out.ApplyErr))
	}

	return out
}

func (d *Dispatcher) notify(ctx context.Context, n Notification) error {
	if d.notifier == nil {
		return fmt.Errorf("%w: notifier is not configured", ErrNotificationFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, d.notifyTimeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}
	return nil
}

func (d *Dispatcher) apply(ctx context.Context, link string) error {
	if d.applier == nil {
		return fmt.Errorf("%w: applier is not configured", ErrApplicationFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, d.applyTimeout)
	defer cancel()

	if err := d.applier.Apply(ctx, link); err != nil {
		return fmt.Errorf("%w: %w", ErrApplicationFailed, err)
	}
	return nil
}
