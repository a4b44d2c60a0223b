package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/cv-matcher/internal/config"
)

const (
	app       = "cv-matcher"
	envPrefix = "CV_MATCHER"
)

type Config struct {
	Defaults config.Defaults `mapstructure:"defaults"`
	AI       *AIConfig       `mapstructure:"ai"`
	JobBoard *JobBoardConfig `mapstructure:"jobboard"`
	Telegram *TelegramConfig `mapstructure:"telegram"`
	Timeouts *TimeoutsConfig `mapstructure:"timeouts"`
	Sessions *SessionsConfig `mapstructure:"sessions"`
}

type AIConfig struct {
	OpenAI       *OpenAIConfig `mapstructure:"openai"`
	Claude       *ClaudeConfig `mapstructure:"claude"`
	Gemini       *GeminiConfig `mapstructure:"gemini"`
	MaxLogLength int           `mapstructure:"max-log-length"`
}

type OpenAIConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base-url"`
}

type ClaudeConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base-url"`
	MaxTokens  int    `mapstructure:"max-tokens"`
}

type GeminiConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type JobBoardConfig struct {
	BaseURL          string        `mapstructure:"base-url"`
	UserAgent        string        `mapstructure:"user-agent"`
	PerLocationLimit int           `mapstructure:"per-location-limit"`
	PageDelay        time.Duration `mapstructure:"page-delay"`
	Headless         bool          `mapstructure:"headless"`
	ChromePath       string        `mapstructure:"chrome-path"`
	ExcludeCompanies []string      `mapstructure:"exclude-companies"`
	DisableFilters   []string      `mapstructure:"disable-filters"`
	DumpListings     bool          `mapstructure:"dump-listings"`
	ScoreWorkers     int           `mapstructure:"score-workers"`
}

type TelegramConfig struct {
	TokenFile string  `mapstructure:"token-file"`
	Endpoint  string  `mapstructure:"endpoint"`
	Admins    []int64 `mapstructure:"admins"`
}

type TimeoutsConfig struct {
	Extraction  time.Duration `mapstructure:"extraction"`
	Analysis    time.Duration `mapstructure:"analysis"`
	PageLoad    time.Duration `mapstructure:"page-load"`
	Scoring     time.Duration `mapstructure:"scoring"`
	Notify      time.Duration `mapstructure:"notify"`
	Application time.Duration `mapstructure:"application"`
}

type SessionsConfig struct {
	MaxConcurrent int64         `mapstructure:"max-concurrent"`
	IdleTTL       time.Duration `mapstructure:"idle-ttl"`
	Sweep         string        `mapstructure:"sweep"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-matcher analyzes a CV, searches the job board and reports the best matching postings",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	bindings := map[string]string{
		"telegram.token-file":    "TELEGRAM_TOKEN_FILE",
		"ai.openai.api-key-file": "OPENAI_API_KEY_FILE",
		"ai.claude.api-key-file": "CLAUDE_API_KEY_FILE",
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults(viper.GetViper())

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Variables from .env are visible to viper and to secret lookups.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Only version works without a config.
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Built-in defaults are enough when no file exists, but a broken file is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

// setDefaults registers values that can not be told apart from an explicit
// zero after decoding.
func setDefaults(v *viper.Viper) {
	v.SetDefault("defaults.threshold", config.DefaultThreshold)
	v.SetDefault("jobboard.headless", true)
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.Defaults = cfg.Defaults.WithBuiltin()
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, err
	}

	if cfg.AI == nil {
		cfg.AI = &AIConfig{}
	}
	if cfg.JobBoard == nil {
		cfg.JobBoard = &JobBoardConfig{Headless: true}
	}
	if cfg.Telegram == nil {
		cfg.Telegram = &TelegramConfig{}
	}
	if cfg.Timeouts == nil {
		cfg.Timeouts = &TimeoutsConfig{}
	}
	if cfg.Sessions == nil {
		cfg.Sessions = &SessionsConfig{}
	}

	return cfg, nil
}
