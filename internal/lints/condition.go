package lints

import (
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/internal/tree"
	"github.com/gnolang/symex/internal/types"
)

// ConstantCondition reports conditions that every explored path evaluated
// the same way. Explorations cut short by the step budget are not judged.
type ConstantCondition struct{}

func NewConstantCondition() Rule { return &ConstantCondition{} }

func (*ConstantCondition) Name() string { return "condition-always-true-or-false" }

func (*ConstantCondition) Severity() types.Severity { return types.SeverityWarning }

func (c *ConstantCondition) EndOfExecution(ctx *engine.CompletionContext) {
	if ctx.Partial {
		return
	}
	for _, o := range ctx.Outcomes {
		if o.True == o.False || isLiteral(o.Cond) {
			continue
		}
		msg := "condition is always false"
		if o.True {
			msg = "condition is always true"
		}
		ctx.Report(o.Cond, msg, nil)
	}
}

func isLiteral(e tree.Expr) bool {
	switch e := e.(type) {
	case *tree.Literal:
		return true
	case *tree.Unary:
		return isLiteral(e.X)
	}
	return false
}
