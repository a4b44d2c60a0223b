package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/dispatch"
	"github.com/spigell/cv-matcher/internal/filtering"
	"github.com/spigell/cv-matcher/internal/jobboard"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/resume"
)

// Searcher collects listings for terms in every location.
type Searcher interface {
	Search(ctx context.Context, renderer jobboard.Renderer, terms, locations []string) (*jobboard.Listings, *jobboard.Report, error)
}

type Options struct {
	ExcludeCompanies []string
	ScoreWorkers     int
	// DisableFilters names filter steps skipped for every batch.
	DisableFilters []string
	// DumpListings writes the scraped listings of every batch to a temp file.
	DumpListings bool
	Dispatch     dispatch.Options
}

// Pipeline runs search batches: scrape, filter and score, then dispatch.
type Pipeline struct {
	launcher jobboard.Launcher
	searcher Searcher
	scorer   filtering.ListingScorer
	opts     Options
	logger   *zap.Logger
}

// Request describes one search batch for one chat.
type Request struct {
	ChatID     int64
	Model      ai.Model
	Profile    *resume.Analysis
	ResumeText string
	Terms      []string
	Locations  []string
	Skills     []string
	Threshold  int
}

// Result summarizes a batch. Listings holds every deduplicated listing that
// got a score and Matches the ones at or above the threshold, both best first.
type Result struct {
	BatchID      string
	Report       jobboard.Report
	Excluded     int
	Scored       int
	Unscored     int
	Listings     []ai.MatchScore
	Matches      []ai.MatchScore
	Notified     int
	Applied      int
	NotifyFailed int
	ApplyFailed  int
}

func New(launcher jobboard.Launcher, searcher Searcher, scorer filtering.ListingScorer, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		launcher: launcher,
		searcher: searcher,
		scorer:   scorer,
		opts:     opts,
		logger:   logger,
	}
}

// Run executes one batch. A browser is launched for the batch and released
// on every return path. Search failures are returned as is; a failure to
// start the browser wraps jobboard.ErrScrapeUnavailable.
func (p *Pipeline) Run(ctx context.Context, req Request, notifier dispatch.Notifier) (*Result, error) {
	result := &Result{BatchID: uuid.NewString()}

	log := logger.WithSession(p.logger, req.ChatID, "").
		With(zap.String(logger.FieldBatchID, result.BatchID))

	log.Info("search batch started",
		zap.Strings("terms", req.Terms),
		zap.Strings("locations", req.Locations),
		zap.Int("threshold", req.Threshold),
	)

	browser, err := p.launcher.Launch(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: launch browser: %w", jobboard.ErrScrapeUnavailable, err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Warn("closing browser failed", zap.Error(err))
		}
	}()

	listings, report, err := p.searcher.Search(ctx, browser, req.Terms, req.Locations)
	if report != nil {
		result.Report = *report
	}
	if err != nil {
		return result, err
	}

	log.Debug("listings by company", zap.Any("companies", listings.ReportByCompany()))
	if p.opts.DumpListings {
		if filename, err := listings.DumpToTmpFile(); err != nil {
			log.Warn("dumping listings failed", zap.Error(err))
		} else {
			log.Info("dumping listings to file", zap.String("filename", filename))
		}
	}

	steps := filtering.Default()
	for _, name := range p.opts.DisableFilters {
		filtering.DisableByName(steps, name, "disabled by configuration")
	}
	log.Debug("filter chain", zap.Any("filters", filtering.Describe(steps)))

	filtered, err := filtering.Run(ctx, &filtering.Config{
		Companies:    p.opts.ExcludeCompanies,
		ScoreWorkers: p.opts.ScoreWorkers,
	}, filtering.Deps{
		Logger: log,
		Scorer: p.scorer,
		Candidate: filtering.Candidate{
			Model:      req.Model,
			Profile:    req.Profile,
			ResumeText: req.ResumeText,
			Skills:     req.Skills,
		},
	}, steps, listings)
	if err != nil {
		return result, fmt.Errorf("filtering listings: %w", err)
	}

	result.Excluded = filtered.Excluded
	result.Unscored = filtered.Unscored
	result.Scored = len(filtered.Scores)

	scores := slices.Clone(filtered.Scores)
	slices.SortStableFunc(scores, func(a, b ai.MatchScore) int {
		return b.Score - a.Score
	})
	result.Listings = scores

	dispatcher := dispatch.New(notifier, browser, p.opts.Dispatch, log)
	for _, match := range scores {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		out := dispatcher.Dispatch(ctx, req.ChatID, match, req.Threshold)
		if !out.Fired {
			continue
		}

		result.Matches = append(result.Matches, match)
		if out.Notified {
			result.Notified++
		} else {
			result.NotifyFailed++
		}
		switch {
		case out.Applied:
			result.Applied++
		case errors.Is(out.ApplyErr, jobboard.ErrApplyUnavailable):
		default:
			result.ApplyFailed++
		}
	}

	log.Info("search batch finished",
		zap.Int("found", result.Report.Found),
		zap.Int("skipped_cards", result.Report.SkippedCards),
		zap.Int("excluded", result.Excluded),
		zap.Int("unscored", result.Unscored),
		zap.Int("matches", len(result.Matches)),
		zap.Int("notified", result.Notified),
		zap.Int("applied", result.Applied),
	)

	return result, nil
}
