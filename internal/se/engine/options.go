package engine

import (
	"errors"
	"go/token"

	"go.uber.org/zap"

	"github.com/gnolang/symex/internal/se/behavior"
	"github.com/gnolang/symex/internal/se/relation"
)

const (
	DefaultMaxSteps       = 10000
	DefaultMaxPointVisits = 2
)

// ErrStepBudgetExceeded is recorded in Result.Err when an exploration stops
// early. The result is then partial.
var ErrStepBudgetExceeded = errors.New("step budget exceeded")

type Options struct {
	// MaxSteps bounds the elements and terminators executed per procedure.
	MaxSteps int
	// MaxPointVisits bounds how many times a state may already have entered
	// a block before it is dropped there.
	MaxPointVisits int
	RelationLimits relation.Limits
	// Flows bounds the explanations checks attach to their issues. Zero
	// fields keep the explainer defaults.
	Flows FlowLimits

	// Behaviors resolves callees. Without it every call is unknown.
	Behaviors *behavior.Cache
	Checks    []Check
	Metrics   *Metrics
	Logger    *zap.Logger
	// Fset positions reported issues.
	Fset     *token.FileSet
	Filename string
}

type FlowLimits struct {
	MaxSteps int
	MaxFlows int
}

func DefaultOptions() Options {
	return Options{
		MaxSteps:       DefaultMaxSteps,
		MaxPointVisits: DefaultMaxPointVisits,
		RelationLimits: relation.DefaultLimits(),
	}
}

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.MaxPointVisits <= 0 {
		o.MaxPointVisits = DefaultMaxPointVisits
	}
	if o.RelationLimits == (relation.Limits{}) {
		o.RelationLimits = relation.DefaultLimits()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Fset == nil {
		o.Fset = token.NewFileSet()
	}
	return o
}
