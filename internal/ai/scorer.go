package ai

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/cv-matcher/internal/jobboard"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/resume"
	"github.com/spigell/cv-matcher/internal/utils"
	"go.uber.org/zap"
)

const (
	scoreSystem         = "You are a technical recruiter rating candidate and job fit."
	defaultScoreTimeout = 60 * time.Second
)

//go:embed prompts/score.md
var scoreTemplate string

// ScoreInput is what a listing is compared against. Profile is preferred;
// ResumeText is used when there is no usable profile.
type ScoreInput struct {
	Profile    *resume.Analysis
	ResumeText string
	Job        *jobboard.Listing
	Skills     []string
}

// Scorer rates listings against a candidate.
type Scorer struct {
	generators Generators
	timeout    time.Duration
	maxLogLen  int
	logger     *zap.Logger
}

func NewScorer(generators Generators, timeout time.Duration, maxLogLength int, logger *zap.Logger) *Scorer {
	if timeout <= 0 {
		timeout = defaultScoreTimeout
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Scorer{
		generators: generators,
		timeout:    timeout,
		maxLogLen:  maxLogLength,
		logger:     logger,
	}
}

// Score returns the fit in [0, 100]. A reply without a number fails with
// ErrScoreUnparseable; transport failures wrap ErrScoringFailed.
func (s *Scorer) Score(ctx context.Context, model Model, in ScoreInput) (int, error) {
	generator, err := s.generators.Lookup(model)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}

	prompt, err := BuildScorePrompt(in)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}

	log := logger.WithCommonFields(s.logger, string(model), generator.Model()).
		With(zap.String("link", in.Job.Link))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := generator.GenerateContent(ctx, scoreSystem, prompt)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", s.timeout, err)
		}
		return 0, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}

	log.Debug("score response", zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)))

	return ParseScore(raw)
}

// BuildScorePrompt renders the comparison prompt.
func BuildScorePrompt(in ScoreInput) (string, error) {
	if in.Job == nil {
		return "", errors.New("job listing is required")
	}

	candidate := strings.TrimSpace(in.ResumeText)
	if in.Profile != nil && !in.Profile.IsEmpty() {
		encoded, err := json.MarshalIndent(in.Profile, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal profile: %w", err)
		}
		candidate = string(encoded)
	}
	if candidate == "" {
		return "", errors.New("candidate profile or resume text is required")
	}

	skills := "none"
	if len(in.Skills) > 0 {
		skills = strings.Join(in.Skills, ", ")
	}

	prompt := strings.NewReplacer(
		"{{JOB_TITLE}}", in.Job.Title,
		"{{JOB_COMPANY}}", in.Job.Company,
		"{{JOB_LOCATION}}", in.Job.Location,
		"{{JOB_SALARY}}", in.Job.Salary,
		"{{JOB_LINK}}", in.Job.Link,
		"{{CANDIDATE}}", candidate,
		"{{SKILLS}}", skills,
	).Replace(scoreTemplate)

	return prompt, nil
}
