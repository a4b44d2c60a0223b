package filtering

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/jobboard"
)

const defaultScoreWorkers = 2

type aiFitFilter struct {
	disabled bool
	reason   string
	workers  int
	scores   []ai.MatchScore
	unscored int
}

// NewAIFit creates the scoring step. Listings that can not be scored are
// dropped and counted; every other listing keeps its score.
func NewAIFit() Filter {
	return &aiFitFilter{}
}

func (f *aiFitFilter) Name() string { return "ai_fit" }

func (f *aiFitFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *aiFitFilter) IsEnabled() bool { return !f.disabled }

func (f *aiFitFilter) Validate(cfg *Config) error {
	f.workers = defaultScoreWorkers
	if cfg != nil && cfg.ScoreWorkers > 0 {
		f.workers = cfg.ScoreWorkers
	}
	return nil
}

func (f *aiFitFilter) Apply(ctx context.Context, deps Deps, l *jobboard.Listings) (*jobboard.Listings, Step, error) {
	f.scores = nil
	f.unscored = 0

	initial := l.Len()
	if deps.Scorer == nil {
		return l, Step{}, errors.New("scorer is required for ai evaluation")
	}
	if initial == 0 {
		return l, Step{}, nil
	}

	scores := make([]int, initial)
	scored := make([]bool, initial)

	g := errgroup.Group{}
	g.SetLimit(max(f.workers, 1))

	for i, listing := range l.Items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			log := deps.Logger.With(zap.String("link", listing.Link))

			score, err := deps.Scorer.Score(ctx, deps.Candidate.Model, ai.ScoreInput{
				Profile:    deps.Candidate.Profile,
				ResumeText: deps.Candidate.ResumeText,
				Job:        listing,
				Skills:     deps.Candidate.Skills,
			})
			switch {
			case err == nil:
			case errors.Is(err, ai.ErrScoreUnparseable):
				log.Info("score reply has no number. Listing will be skipped.", zap.Error(err))
				return nil
			default:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("scoring listing failed. Listing will be skipped.", zap.Error(err))
				return nil
			}

			log.Debug("listing scored", zap.Int("score", score))
			scores[i] = score
			scored[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return l, Step{}, fmt.Errorf("scoring listings: %w", err)
	}

	kept := make([]*jobboard.Listing, 0, initial)
	for i, listing := range l.Items {
		if !scored[i] {
			f.unscored++
			continue
		}
		kept = append(kept, listing)
		f.scores = append(f.scores, ai.MatchScore{Listing: listing, Score: scores[i]})
	}
	l.Items = kept

	return l, Step{Initial: initial, Dropped: f.unscored, Left: l.Len()}, nil
}

// Scores returns the scores of the last Apply in listing order.
func (f *aiFitFilter) Scores() []ai.MatchScore {
	return f.scores
}

// Unscored returns how many listings the last Apply dropped.
func (f *aiFitFilter) Unscored() int {
	return f.unscored
}

func (f *aiFitFilter) Status() Status {
	details := map[string]string{
		"workers": strconv.Itoa(f.workers),
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
