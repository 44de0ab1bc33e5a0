// Package config loads the analyzer configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/gnolang/symex/internal/se/behavior"
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/internal/se/flow"
	"github.com/gnolang/symex/internal/se/relation"
	"github.com/gnolang/symex/internal/types"
)

// DefaultPath is the file looked up when no path is given.
const DefaultPath = ".symex.yaml"

const DefaultMaxComplexity = 50

var (
	ErrInvalid = errors.New("invalid configuration")
	ErrRead    = errors.New("could not read config file")
)

type Config struct {
	Name      string                      `yaml:"name"`
	Rules     map[string]types.ConfigRule `yaml:"rules"`
	Engine    EngineOptions               `yaml:"engine"`
	Relations RelationOptions             `yaml:"relations"`
	Flow      FlowOptions                 `yaml:"flow"`
	// Workers bounds the procedures explored at once. Zero means one per CPU.
	Workers   int             `yaml:"workers,omitempty"`
	Behaviors []behavior.Spec `yaml:"behaviors,omitempty"`

	sourceFile string
}

type EngineOptions struct {
	MaxSteps       int `yaml:"max-steps"`
	MaxPointVisits int `yaml:"max-point-visits"`
	// MaxComplexity skips Go procedures whose cyclomatic complexity is
	// higher. Zero disables the guard.
	MaxComplexity int `yaml:"max-complexity"`
}

type RelationOptions struct {
	MaxDeduced    int `yaml:"max-deduced"`
	MaxIterations int `yaml:"max-iterations"`
}

type FlowOptions struct {
	MaxSteps int `yaml:"max-steps"`
	MaxFlows int `yaml:"max-flows"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		Name:  "symex",
		Rules: map[string]types.ConfigRule{},
		Engine: EngineOptions{
			MaxSteps:       engine.DefaultMaxSteps,
			MaxPointVisits: engine.DefaultMaxPointVisits,
			MaxComplexity:  DefaultMaxComplexity,
		},
		Relations: RelationOptions{
			MaxDeduced:    relation.DefaultMaxDeduced,
			MaxIterations: relation.DefaultMaxIterations,
		},
		Flow: FlowOptions{
			MaxSteps: flow.DefaultMaxSteps,
			MaxFlows: flow.DefaultMaxFlows,
		},
	}
}

// Load overlays the file at path on the defaults. An empty path reads
// DefaultPath, and a missing DefaultPath yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	if cfg.Rules == nil {
		cfg.Rules = map[string]types.ConfigRule{}
	}
	cfg.sourceFile = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SourceFile is the file the configuration was read from, if any.
func (c *Config) SourceFile() string { return c.sourceFile }

// Validate rejects negative budgets and malformed behavior specs.
func (c *Config) Validate() error {
	budgets := []struct {
		name  string
		value int
	}{
		{"engine.max-steps", c.Engine.MaxSteps},
		{"engine.max-point-visits", c.Engine.MaxPointVisits},
		{"engine.max-complexity", c.Engine.MaxComplexity},
		{"relations.max-deduced", c.Relations.MaxDeduced},
		{"relations.max-iterations", c.Relations.MaxIterations},
		{"flow.max-steps", c.Flow.MaxSteps},
		{"flow.max-flows", c.Flow.MaxFlows},
		{"workers", c.Workers},
	}
	for _, b := range budgets {
		if b.value < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalid, b.name, b.value)
		}
	}
	for _, s := range c.Behaviors {
		if _, err := s.Behavior(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return nil
}

// WorkerCount is the effective size of the exploration pool.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// EngineOptions returns the walker options the budgets describe. Checks,
// behaviors and positions are left to the caller.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions()
	if c.Engine.MaxSteps > 0 {
		opts.MaxSteps = c.Engine.MaxSteps
	}
	if c.Engine.MaxPointVisits > 0 {
		opts.MaxPointVisits = c.Engine.MaxPointVisits
	}
	if c.Relations.MaxDeduced > 0 {
		opts.RelationLimits.MaxDeduced = c.Relations.MaxDeduced
	}
	if c.Relations.MaxIterations > 0 {
		opts.RelationLimits.MaxIterations = c.Relations.MaxIterations
	}
	opts.Flows = engine.FlowLimits{MaxSteps: c.Flow.MaxSteps, MaxFlows: c.Flow.MaxFlows}
	return opts
}

// Registry returns the built-in behaviors extended with the configured ones.
func (c *Config) Registry() (*behavior.Registry, error) {
	reg, err := behavior.DefaultRegistry()
	if err != nil {
		return nil, err
	}
	if err := reg.Load(c.Behaviors); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return reg, nil
}

// Write stores c as YAML at path.
func (c *Config) Write(path string) error {
	d, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, d, 0o644)
}
