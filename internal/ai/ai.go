package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/cv-matcher/internal/jobboard"
)

// Model is the language model choice of a session.
type Model string

const (
	ModelGPT4   Model = "gpt4"
	ModelClaude Model = "claude"
	ModelGemini Model = "gemini"
)

var (
	ErrUnknownModel     = errors.New("unknown model")
	ErrModelUnavailable = errors.New("model is not configured")
	ErrAnalysisFailed   = errors.New("analysis failed")
	ErrScoringFailed    = errors.New("scoring failed")
	ErrScoreUnparseable = errors.New("score unparseable")
)

var (
	models = []Model{ModelGPT4, ModelClaude, ModelGemini}
	labels = map[Model]string{
		ModelGPT4:   "GPT-4",
		ModelClaude: "Claude",
		ModelGemini: "Gemini",
	}
	aliases = map[string]Model{
		"gpt4":   ModelGPT4,
		"gpt-4":  ModelGPT4,
		"openai": ModelGPT4,
		"claude": ModelClaude,
		"gemini": ModelGemini,
	}
)

// ParseModel accepts a model choice in any case, including common aliases.
func ParseModel(s string) (Model, error) {
	model, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
	}
	return model, nil
}

// ValidateModel is ParseModel without the result.
func ValidateModel(s string) error {
	_, err := ParseModel(s)
	return err
}

// Label is the human readable name of the model.
func (m Model) Label() string {
	if label, ok := labels[m]; ok {
		return label
	}
	return string(m)
}

// Generator is a language model backend.
type Generator interface {
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// Generators maps model choices to configured backends.
type Generators map[Model]Generator

func (g Generators) Lookup(m Model) (Generator, error) {
	if _, ok := labels[m]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, m)
	}

	generator, ok := g[m]
	if !ok || generator == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, m.Label())
	}
	return generator, nil
}

// Available lists the configured models in presentation order.
func (g Generators) Available() []Model {
	result := make([]Model, 0, len(g))
	for _, m := range models {
		if g[m] != nil {
			result = append(result, m)
		}
	}
	return result
}

// MatchScore is the fit of one listing.
type MatchScore struct {
	Listing *jobboard.Listing
	Score   int
}
