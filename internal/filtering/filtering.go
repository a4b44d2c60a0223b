package filtering

import (
	"context"
	"fmt"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/jobboard"
	"github.com/spigell/cv-matcher/internal/resume"
	"go.uber.org/zap"
)

// Filter represents a single filtering step applied to listings.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, l *jobboard.Listings) (*jobboard.Listings, Step, error)
}

// ListingScorer rates a single listing against the candidate.
type ListingScorer interface {
	Score(ctx context.Context, model ai.Model, in ai.ScoreInput) (int, error)
}

// Candidate is the person the listings are filtered for.
type Candidate struct {
	Model      ai.Model
	Profile    *resume.Analysis
	ResumeText string
	Skills     []string
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger    *zap.Logger
	Scorer    ListingScorer
	Candidate Candidate
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Config contains configuration settings consumed by the filters.
type Config struct {
	Companies []string
	// ScoreWorkers bounds concurrent scoring requests.
	ScoreWorkers int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Result is the outcome of a filter run.
type Result struct {
	Listings *jobboard.Listings
	Scores   []ai.MatchScore
	Excluded int
	Unscored int
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Default returns the filter chain used for a search batch: company
// exclusion first, then scoring.
func Default() []Filter {
	return []Filter{NewCompanies(), NewAIFit()}
}

// Run executes the supplied filters sequentially.
func Run(ctx context.Context, cfg *Config, deps Deps, steps []Filter, l *jobboard.Listings) (*Result, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	result := &Result{}
	for _, step := range steps {
		if !step.IsEnabled() {
			deps.Logger.Info("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, deps, l)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		deps.Logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		l = next

		switch s := step.(type) {
		case *companiesFilter:
			result.Excluded += info.Dropped
		case *aiFitFilter:
			result.Scores = append(result.Scores, s.Scores()...)
			result.Unscored += s.Unscored()
		}
	}

	result.Listings = l
	return result, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
