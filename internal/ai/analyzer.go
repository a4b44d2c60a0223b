package ai

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/resume"
	"github.com/spigell/cv-matcher/internal/utils"
	"go.uber.org/zap"
)

const (
	analysisSystem        = "You are a professional CV analyzer focusing on technical roles."
	defaultMaxLogLength   = 200
	defaultAnalyzeTimeout = 90 * time.Second
)

//go:embed prompts/analysis.md
var analysisTemplate string

// Analyzer derives a structured profile from résumé text.
type Analyzer struct {
	generators Generators
	timeout    time.Duration
	maxLogLen  int
	logger     *zap.Logger
}

func NewAnalyzer(generators Generators, timeout time.Duration, maxLogLength int, logger *zap.Logger) *Analyzer {
	if timeout <= 0 {
		timeout = defaultAnalyzeTimeout
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Analyzer{
		generators: generators,
		timeout:    timeout,
		maxLogLen:  maxLogLength,
		logger:     logger,
	}
}

// Analyze asks the chosen model for the profile. Every failure wraps
// ErrAnalysisFailed.
func (a *Analyzer) Analyze(ctx context.Context, text string, model Model) (*resume.Analysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: resume text is empty", ErrAnalysisFailed)
	}

	generator, err := a.generators.Lookup(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	log := logger.WithCommonFields(a.logger, string(model), generator.Model())
	prompt := strings.ReplaceAll(analysisTemplate, "{{RESUME_TEXT}}", text)

	log.Debug("analysis request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, a.maxLogLen)),
	)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := generator.GenerateContent(ctx, analysisSystem, prompt)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", a.timeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	log.Debug("analysis response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
	)

	analysis, err := ParseAnalysis(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	log.Info("resume analyzed",
		zap.Int("skills", len(analysis.Skills())),
		zap.Int("roles", len(analysis.Experience.Roles)),
	)

	return analysis, nil
}
