package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/spigell/cv-matcher/internal/utils"
	"go.uber.org/zap"
)

const (
	ParamModel     = "model"
	ParamKeywords  = "keywords"
	ParamLocations = "locations"
	ParamSkills    = "skills"

	// InvalidParameter is the rejection returned for unknown parameters.
	InvalidParameter = "Invalid parameter"

	DefaultThreshold   = 75
	DefaultPerCategory = 2
	DefaultRoles       = 2
	DefaultMaxTerms    = 5
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidValue     = errors.New("invalid value")
)

// TermLimits controls how many search terms are taken from an analysis.
type TermLimits struct {
	PerCategory int `mapstructure:"per-category" yaml:"per-category"`
	Roles       int `mapstructure:"roles" yaml:"roles"`
	Max         int `mapstructure:"max" yaml:"max"`
}

// Defaults are the process-wide values a session starts with.
type Defaults struct {
	Model     string     `mapstructure:"model" yaml:"model"`
	Keywords  []string   `mapstructure:"keywords" yaml:"keywords"`
	Locations []string   `mapstructure:"locations" yaml:"locations"`
	Skills    []string   `mapstructure:"skills" yaml:"skills"`
	Threshold int        `mapstructure:"threshold" yaml:"threshold"`
	Terms     TermLimits `mapstructure:"terms" yaml:"terms"`
}

// Builtin returns the defaults used when nothing is configured.
func Builtin() Defaults {
	return Defaults{
		Model:     "gpt4",
		Keywords:  []string{"Software Engineer", "Python Developer", "Machine Learning Engineer"},
		Locations: []string{"Remote", "New York", "San Francisco"},
		Skills:    []string{"Python", "Machine Learning", "Django", "REST APIs"},
		Threshold: DefaultThreshold,
		Terms: TermLimits{
			PerCategory: DefaultPerCategory,
			Roles:       DefaultRoles,
			Max:         DefaultMaxTerms,
		},
	}
}

// WithBuiltin fills zero values from Builtin. The threshold is kept as is,
// zero is a valid threshold.
func (d Defaults) WithBuiltin() Defaults {
	builtin := Builtin()

	if strings.TrimSpace(d.Model) == "" {
		d.Model = builtin.Model
	}
	if len(d.Keywords) == 0 {
		d.Keywords = builtin.Keywords
	}
	if len(d.Locations) == 0 {
		d.Locations = builtin.Locations
	}
	if len(d.Skills) == 0 {
		d.Skills = builtin.Skills
	}
	if d.Terms.PerCategory == 0 {
		d.Terms.PerCategory = builtin.Terms.PerCategory
	}
	if d.Terms.Roles == 0 {
		d.Terms.Roles = builtin.Terms.Roles
	}
	if d.Terms.Max == 0 {
		d.Terms.Max = builtin.Terms.Max
	}

	return d
}

// Validate reports values that can not be used by a session.
func (d Defaults) Validate() error {
	if d.Threshold < 0 || d.Threshold > 100 {
		return fmt.Errorf("threshold must be within [0, 100], got %d", d.Threshold)
	}
	if d.Terms.PerCategory < 0 || d.Terms.Roles < 0 || d.Terms.Max <= 0 {
		return fmt.Errorf("term limits must be positive: %+v", d.Terms)
	}
	return nil
}

func (d Defaults) clone() Defaults {
	d.Keywords = slices.Clone(d.Keywords)
	d.Locations = slices.Clone(d.Locations)
	d.Skills = slices.Clone(d.Skills)
	return d
}

// Snapshot is an immutable version of the defaults.
type Snapshot struct {
	version  uint64
	defaults Defaults
}

func (s *Snapshot) Version() uint64 { return s.version }

// Defaults returns a copy, so callers can not change the snapshot.
func (s *Snapshot) Defaults() Defaults { return s.defaults.clone() }

func (s *Snapshot) Model() string       { return s.defaults.Model }
func (s *Snapshot) Threshold() int      { return s.defaults.Threshold }
func (s *Snapshot) Terms() TermLimits   { return s.defaults.Terms }
func (s *Snapshot) Keywords() []string  { return slices.Clone(s.defaults.Keywords) }
func (s *Snapshot) Locations() []string { return slices.Clone(s.defaults.Locations) }
func (s *Snapshot) Skills() []string    { return slices.Clone(s.defaults.Skills) }

// Option configures a Registry.
type Option func(*Registry)

// WithModelValidator rejects model updates the validator does not accept.
func WithModelValidator(validate func(string) error) Option {
	return func(r *Registry) {
		r.validateModel = validate
	}
}

// Registry holds the current snapshot. Updates replace it with a new version.
type Registry struct {
	mu            sync.RWMutex
	current       *Snapshot
	validateModel func(string) error
	logger        *zap.Logger
}

func NewRegistry(defaults Defaults, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		current: &Snapshot{version: 1, defaults: defaults.clone()},
		logger:  logger,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Current returns the latest snapshot.
func (r *Registry) Current() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.current
}

// Update changes one parameter of the defaults and returns the confirmation
// text shown to the operator. List parameters are comma-separated.
func (r *Registry) Update(param, value string) (string, error) {
	param = strings.ToLower(strings.TrimSpace(param))
	value = strings.TrimSpace(value)

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.current.defaults.clone()

	switch param {
	case ParamModel:
		model := strings.ToLower(value)
		if model == "" {
			return fmt.Sprintf("%s must not be empty", param), ErrInvalidValue
		}
		if r.validateModel != nil {
			if err := r.validateModel(model); err != nil {
				return fmt.Sprintf("Unknown model %q", value), fmt.Errorf("%w: %w", ErrInvalidValue, err)
			}
		}
		next.Model = model
	case ParamKeywords, ParamLocations, ParamSkills:
		items := utils.SplitList(value)
		if len(items) == 0 {
			return fmt.Sprintf("%s must not be empty", param), ErrInvalidValue
		}
		switch param {
		case ParamKeywords:
			next.Keywords = items
		case ParamLocations:
			next.Locations = items
		default:
			next.Skills = items
		}
	default:
		return InvalidParameter, ErrInvalidParameter
	}

	r.current = &Snapshot{version: r.current.version + 1, defaults: next}

	r.logger.Info("defaults updated",
		zap.String("parameter", param),
		zap.String("value", value),
		zap.Uint64("version", r.current.version),
	)

	return fmt.Sprintf("%s updated to %s", param, value), nil
}
