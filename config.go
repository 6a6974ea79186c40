package recipeflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable limits and intervals for the engine.
// Every bound the engine enforces lives here so that none of them is an
// undocumented magic number buried in execution code.
type Config struct {
	// WaitStepCeiling caps how long a single wait step may sleep.
	// A wait step's configured duration is clamped to this value.
	WaitStepCeiling time.Duration `yaml:"wait_step_ceiling"`

	// CronSearchHorizon bounds the forward search for a cron
	// expression's next firing time. Expressions with no match inside
	// the horizon (e.g. day 30 of February) resolve to "never".
	CronSearchHorizon time.Duration `yaml:"cron_search_horizon"`

	// MaxStepRetries is the retry budget for steps with the retry
	// on-error policy. Attempts beyond the budget fall through to the
	// fail policy.
	MaxStepRetries int `yaml:"max_step_retries"`

	// StepTimeout cancels a single step's context after this duration.
	// Zero disables the timeout.
	StepTimeout time.Duration `yaml:"step_timeout"`

	// SweepInterval is how often the schedule sweeper checks for due
	// schedules.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// ClaimTTL is how long a sweeper's claim on a due schedule lasts
	// before another worker may reclaim it.
	ClaimTTL time.Duration `yaml:"claim_ttl"`

	// SweepRate limits schedule firings per second across one sweeper.
	// Zero means unlimited.
	SweepRate float64 `yaml:"sweep_rate"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WaitStepCeiling:   5 * time.Minute,
		CronSearchHorizon: 5 * 365 * 24 * time.Hour,
		MaxStepRetries:    3,
		StepTimeout:       10 * time.Minute,
		SweepInterval:     1 * time.Second,
		ClaimTTL:          30 * time.Second,
		SweepRate:         0,
	}
}

// LoadConfig reads a YAML config file and overlays it on DefaultConfig.
// Fields absent from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("recipeflow: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("recipeflow: parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configs whose bounds cannot work.
func (c Config) Validate() error {
	if c.WaitStepCeiling <= 0 {
		return fmt.Errorf("%w: wait_step_ceiling must be positive", ErrValidation)
	}
	if c.CronSearchHorizon <= 0 {
		return fmt.Errorf("%w: cron_search_horizon must be positive", ErrValidation)
	}
	if c.MaxStepRetries < 0 {
		return fmt.Errorf("%w: max_step_retries must not be negative", ErrValidation)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep_interval must be positive", ErrValidation)
	}
	if c.ClaimTTL <= 0 {
		return fmt.Errorf("%w: claim_ttl must be positive", ErrValidation)
	}
	return nil
}
