// Package config loads and validates the declarative sync configuration:
// the applications list, poll interval, concurrency, rollback/dry-run
// flags, and health-check policy. Load is the only entry point; every
// field it returns has already passed both struct-level shape validation
// and the command-injection-sensitive checks in internal/validate.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nimbusdeploy/gitops-sync/internal/validate"
)

const (
	defaultConcurrency        = 3
	defaultHealthInitialDelay = 5000
	defaultHealthBackoff      = 2.0
	defaultHealthMaxDelay     = 60000
)

// Error reports a configuration field that failed to load or validate.
type Error struct {
	Path  string
	Field string
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: field %q: %v", e.Path, e.Field, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// ApplicationSpec is one declared unit of deployment.
type ApplicationSpec struct {
	ID         string   `yaml:"name" validate:"required"`
	Namespace  string   `yaml:"namespace" validate:"required"`
	Path       string   `yaml:"path" validate:"required"`
	ValueFiles []string `yaml:"valueFiles"`
	Enabled    bool     `yaml:"enabled"`
	AutoSync   bool     `yaml:"autoSync"`
}

// HealthCheckConfig is the bounded-retry health probe policy.
type HealthCheckConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Retries        int     `yaml:"retries" validate:"omitempty,min=1"`
	InitialDelayMs int     `yaml:"initialDelay"`
	BackoffFactor  float64 `yaml:"backoffFactor"`
	MaxDelayMs     int     `yaml:"maxDelay"`
}

// SyncSettings holds the top-level sync: block.
type SyncSettings struct {
	Interval     string `yaml:"interval" validate:"required"`
	Concurrency  int    `yaml:"concurrency" validate:"omitempty,min=1"`
	AutoRollback bool   `yaml:"autoRollback"`
	DryRun       bool   `yaml:"dryRun"`
}

// GitSettings holds the top-level git: block.
type GitSettings struct {
	Repository string `yaml:"repository" validate:"required"`
	Branch     string `yaml:"branch" validate:"required"`
}

// MetricsSettings holds the optional metrics: block.
type MetricsSettings struct {
	ListenAddr string `yaml:"listenAddr"`
}

// Config is the fully loaded, fully validated sync configuration.
type Config struct {
	Sync         SyncSettings      `yaml:"sync"`
	Git          GitSettings       `yaml:"git"`
	HealthCheck  HealthCheckConfig `yaml:"healthCheck"`
	Metrics      MetricsSettings   `yaml:"metrics"`
	Applications []ApplicationSpec `yaml:"applications" validate:"dive"`
}

var structValidator = validator.New()

// Load reads, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Field: "(file)", cause: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Path: path, Field: "(yaml)", cause: err}
	}

	applyDefaults(&cfg)

	if err := structValidator.Struct(&cfg); err != nil {
		return nil, &Error{Path: path, Field: "(struct)", cause: err}
	}

	if err := validateSemantics(&cfg); err != nil {
		return nil, err
	}

	if err := validateFields(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = defaultConcurrency
	}
	if cfg.HealthCheck.InitialDelayMs == 0 {
		cfg.HealthCheck.InitialDelayMs = defaultHealthInitialDelay
	}
	if cfg.HealthCheck.BackoffFactor == 0 {
		cfg.HealthCheck.BackoffFactor = defaultHealthBackoff
	}
	if cfg.HealthCheck.MaxDelayMs == 0 {
		cfg.HealthCheck.MaxDelayMs = defaultHealthMaxDelay
	}
}

func validateSemantics(cfg *Config) error {
	if cfg.HealthCheck.Enabled {
		if cfg.HealthCheck.BackoffFactor < 1.0 {
			return &Error{Field: "healthCheck.backoffFactor", cause: fmt.Errorf("must be >= 1.0, got %v", cfg.HealthCheck.BackoffFactor)}
		}
		if cfg.HealthCheck.MaxDelayMs < cfg.HealthCheck.InitialDelayMs {
			return &Error{Field: "healthCheck.maxDelay", cause: fmt.Errorf("must be >= initialDelay")}
		}
	}

	seen := make(map[string]bool, len(cfg.Applications))
	for _, app := range cfg.Applications {
		key := app.Namespace + "/" + app.ID
		if seen[key] {
			return &Error{Field: "applications", cause: fmt.Errorf("duplicate (namespace, name) pair %q", key)}
		}
		seen[key] = true
	}
	return nil
}

// validateFields runs every command-injection-sensitive field through
// internal/validate. This is the last gate before any value is permitted to
// reach internal/procexec.
func validateFields(path string, cfg *Config) error {
	if err := validate.Validate(cfg.Git.Branch, validate.KindBranch, "git.branch"); err != nil {
		return &Error{Path: path, Field: "git.branch", cause: err}
	}
	if err := validate.Validate(cfg.Sync.Interval, validate.KindDuration, "sync.interval"); err != nil {
		return &Error{Path: path, Field: "sync.interval", cause: err}
	}

	for i, app := range cfg.Applications {
		if err := validate.Validate(app.ID, validate.KindK8sName, fmt.Sprintf("applications[%d].name", i)); err != nil {
			return &Error{Path: path, Field: fmt.Sprintf("applications[%d].name", i), cause: err}
		}
		if err := validate.Validate(app.Namespace, validate.KindK8sName, fmt.Sprintf("applications[%d].namespace", i)); err != nil {
			return &Error{Path: path, Field: fmt.Sprintf("applications[%d].namespace", i), cause: err}
		}
		if err := validate.Validate(app.Path, validate.KindRelPath, fmt.Sprintf("applications[%d].path", i)); err != nil {
			return &Error{Path: path, Field: fmt.Sprintf("applications[%d].path", i), cause: err}
		}
		for j, vf := range app.ValueFiles {
			field := fmt.Sprintf("applications[%d].valueFiles[%d]", i, j)
			if err := validate.Validate(vf, validate.KindRelPath, field); err != nil {
				return &Error{Path: path, Field: field, cause: err}
			}
		}
	}
	return nil
}
