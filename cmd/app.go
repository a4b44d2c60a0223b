package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/ai/claude"
	"github.com/spigell/cv-matcher/internal/ai/gemini"
	"github.com/spigell/cv-matcher/internal/ai/openai"
	"github.com/spigell/cv-matcher/internal/config"
	"github.com/spigell/cv-matcher/internal/dispatch"
	"github.com/spigell/cv-matcher/internal/jobboard"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/pipeline"
	"github.com/spigell/cv-matcher/internal/resume"
	"github.com/spigell/cv-matcher/internal/secrets"
	"github.com/spigell/cv-matcher/internal/session"
)

// application is the wired conversation core shared by the run and console
// commands.
type application struct {
	registry *config.Registry
	store    *session.Store
	machine  *session.Machine
}

func newApplication(ctx context.Context, cfg *Config, admins []int64, log *zap.Logger) (*application, error) {
	if err := ai.ValidateModel(cfg.Defaults.Model); err != nil {
		return nil, fmt.Errorf("defaults.model: %w", err)
	}

	generators, err := newGenerators(ctx, cfg.AI, log)
	if err != nil {
		return nil, err
	}

	available := generators.Available()
	if len(available) == 0 {
		return nil, errors.New("no ai model is configured: provide at least one of ai.openai, ai.claude or ai.gemini api keys")
	}

	registry := config.NewRegistry(cfg.Defaults, log.With(zap.String("component", "config")),
		config.WithModelValidator(ai.ValidateModel),
	)

	store := session.NewStore(registry, cfg.Sessions.IdleTTL, log.With(zap.String("component", "sessions")))
	if err := store.Start(cfg.Sessions.Sweep); err != nil {
		return nil, fmt.Errorf("starting session sweeper: %w", err)
	}

	timeouts := cfg.Timeouts
	maxLog := cfg.AI.MaxLogLength

	extractor := resume.NewExtractor("", timeouts.Extraction, log.With(zap.String("component", "extractor")))
	analyzer := ai.NewAnalyzer(generators, timeouts.Analysis, maxLog, log.With(zap.String("component", "analyzer")))
	scorer := ai.NewScorer(generators, timeouts.Scoring, maxLog, log.With(zap.String("component", "scorer")))

	board := cfg.JobBoard
	searcher := jobboard.New(log.With(zap.String("component", "jobboard")), jobboard.Options{
		BaseURL:          board.BaseURL,
		PerLocationLimit: board.PerLocationLimit,
		PageDelay:        board.PageDelay,
		PageTimeout:      timeouts.PageLoad,
	})
	chrome := jobboard.NewChrome(jobboard.ChromeOptions{
		Headless:  board.Headless,
		UserAgent: board.UserAgent,
		ExecPath:  board.ChromePath,
	}, log.With(zap.String("component", "browser")))

	runner := pipeline.New(chrome, searcher, scorer, pipeline.Options{
		ExcludeCompanies: board.ExcludeCompanies,
		ScoreWorkers:     board.ScoreWorkers,
		DisableFilters:   board.DisableFilters,
		DumpListings:     board.DumpListings,
		Dispatch: dispatch.Options{
			NotifyTimeout: timeouts.Notify,
			ApplyTimeout:  timeouts.Application,
		},
	}, log.With(zap.String("component", "pipeline")))

	machine := session.NewMachine(store, extractor, analyzer, runner, registry, session.Options{
		Admins: admins,
		Models: available,
	}, log.With(zap.String("component", "machine")))

	models := make([]string, 0, len(available))
	for _, m := range available {
		models = append(models, string(m))
	}
	log.Info("conversation core is ready",
		zap.Strings("models", models),
		zap.String("default_model", cfg.Defaults.Model),
		zap.Int("threshold", cfg.Defaults.Threshold),
	)

	return &application{registry: registry, store: store, machine: machine}, nil
}

func (a *application) close(ctx context.Context) {
	a.store.Stop(ctx)
}

// newGenerators builds a backend for every provider with a resolvable key.
// Providers without a key are skipped; a provider with a key that fails to
// initialize is an error.
func newGenerators(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Generators, error) {
	generators := make(ai.Generators)

	if cfg.OpenAI == nil {
		cfg.OpenAI = &OpenAIConfig{}
	}
	if cfg.Claude == nil {
		cfg.Claude = &ClaudeConfig{}
	}
	if cfg.Gemini == nil {
		cfg.Gemini = &GeminiConfig{}
	}

	if key, ok := loadKey(log, "openai api key", cfg.OpenAI.APIKeyFile, "OPENAI_API_KEY"); ok {
		client, err := openai.New(key, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, providerLogger(log, "openai", cfg.OpenAI.Model))
		if err != nil {
			return nil, fmt.Errorf("building openai client: %w", err)
		}
		generators[ai.ModelGPT4] = client
	}

	if key, ok := loadKey(log, "claude api key", cfg.Claude.APIKeyFile, "ANTHROPIC_API_KEY"); ok {
		client, err := claude.New(key, cfg.Claude.Model, cfg.Claude.BaseURL, cfg.Claude.MaxTokens, providerLogger(log, "claude", cfg.Claude.Model))
		if err != nil {
			return nil, fmt.Errorf("building claude client: %w", err)
		}
		generators[ai.ModelClaude] = client
	}

	if key, ok := loadKey(log, "gemini api key", cfg.Gemini.APIKeyFile, "GEMINI_API_KEY"); ok {
		genLogger := providerLogger(log, "gemini", cfg.Gemini.Model).With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))
		client, err := gemini.NewGenerator(ctx, key, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
		if err != nil {
			return nil, fmt.Errorf("building gemini client: %w", err)
		}
		generators[ai.ModelGemini] = client
	}

	return generators, nil
}

// loadKey resolves an api key. A configured file that can not be read is
// reported, a missing key only means the provider is disabled.
func loadKey(log *zap.Logger, name, file, env string) (string, bool) {
	key, err := secrets.Load(secrets.Source{Name: name, File: file, Env: env})
	if err != nil {
		if strings.TrimSpace(file) != "" {
			log.Warn("skipping ai provider", zap.String("secret", name), zap.Error(err))
		} else {
			log.Debug("ai provider is not configured", zap.String("secret", name))
		}
		return "", false
	}
	return key, true
}

func providerLogger(log *zap.Logger, provider, model string) *zap.Logger {
	return logger.WithCommonFields(log, provider, model)
}

// newLogger builds the process logger from the persistent flags.
func newLogger() *zap.Logger {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating a logger: %s\n", err)
		os.Exit(1)
	}
	return log
}
