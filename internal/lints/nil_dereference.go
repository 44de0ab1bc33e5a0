package lints

import (
	"fmt"

	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/tree"
	"github.com/gnolang/symex/internal/types"
)

// NilDereference reports field reads, index expressions, pointer
// indirections and method calls on a value known to be nil. The path stops
// there.
type NilDereference struct{}

func NewNilDereference() Rule { return &NilDereference{} }

func (*NilDereference) Name() string { return "nil-dereference" }

func (*NilDereference) Severity() types.Severity { return types.SeverityError }

// dereferenced returns the expression n dereferences. Stores through a field
// or an index dereference the target's operand, which is also the first
// frame n consumes.
func dereferenced(n tree.Node) tree.Expr {
	if a, ok := n.(*tree.Assign); ok {
		return tree.Operand(a.Target)
	}
	return tree.Operand(n)
}

func (c *NilDereference) PreStatement(ctx *engine.CheckContext, n tree.Node) *state.State {
	x := dereferenced(n)
	if x == nil {
		return ctx.State
	}
	ops := ctx.Operands(n)
	if len(ops) == 0 || ops[0].Value == nil {
		return ctx.State
	}
	v := ops[0].Value
	if ctx.ConstraintsOf(v, constraint.Nullness) == constraint.Null {
		word := nilWord(ctx.Proc())
		ctx.Report(n, fmt.Sprintf("%s dereference: %q is %s", word, tree.Describe(x), word), explain(ctx, v))
		return nil
	}
	return learn(ctx, ctx.State, v, constraint.NotNull)
}
