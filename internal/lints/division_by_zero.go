package lints

import (
	"fmt"

	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/tree"
	"github.com/gnolang/symex/internal/types"
)

// DivisionByZero reports / and % whose divisor is known to be zero, and
// tracks zero-ness through products, sums and negations so that divisors
// computed from constants are known too.
type DivisionByZero struct{}

func NewDivisionByZero() Rule { return &DivisionByZero{} }

func (*DivisionByZero) Name() string { return "division-by-zero" }

func (*DivisionByZero) Severity() types.Severity { return types.SeverityError }

// divisor returns the expression dividing in n, if n divides.
func divisor(n tree.Node) tree.Expr {
	switch n := n.(type) {
	case *tree.Binary:
		if n.Op.IsDivision() {
			return n.Y
		}
	case *tree.Assign:
		if n.Op.IsDivision() {
			return n.Value
		}
	}
	return nil
}

// PreStatement checks the divisor, which is the last frame n consumes.
func (c *DivisionByZero) PreStatement(ctx *engine.CheckContext, n tree.Node) *state.State {
	d := divisor(n)
	if d == nil {
		return ctx.State
	}
	ops := ctx.Operands(n)
	if len(ops) == 0 {
		return ctx.State
	}
	v := ops[len(ops)-1].Value
	if v == nil {
		return ctx.State
	}
	if ctx.ConstraintsOf(v, constraint.Zeroness) == constraint.Zero {
		ctx.Report(n, fmt.Sprintf("division by zero: %q is zero", tree.Describe(d)), explain(ctx, v))
		return nil
	}
	return learn(ctx, ctx.State, v, constraint.NonZero)
}

// PostStatement propagates zero-ness to the result of arithmetic.
func (c *DivisionByZero) PostStatement(ctx *engine.CheckContext, n tree.Node) *state.State {
	st := ctx.State
	if st.StackSize() == 0 {
		return st
	}
	result := st.Peek(0).Value
	if result == nil || result.IsConstant() || st.ConstraintOf(result, constraint.Zeroness) != constraint.None {
		return st
	}
	ops := engine.Operands(ctx.Node.State, n)
	zeroness := func(i int) constraint.Constraint {
		if i >= len(ops) || ops[i].Value == nil {
			return constraint.None
		}
		return st.ConstraintOf(ops[i].Value, constraint.Zeroness)
	}

	var learned constraint.Constraint
	switch n := n.(type) {
	case *tree.Binary:
		x, y := zeroness(0), zeroness(1)
		switch n.Op {
		case tree.OpMul:
			switch {
			case x == constraint.Zero || y == constraint.Zero:
				learned = constraint.Zero
			case x == constraint.NonZero && y == constraint.NonZero:
				learned = constraint.NonZero
			}
		case tree.OpAdd:
			learned = sum(x, y)
		case tree.OpSub:
			if y == constraint.Zero {
				learned = x
			}
		}
	case *tree.Unary:
		if n.Op == tree.OpNeg {
			learned = zeroness(0)
		}
	}
	if learned == constraint.None {
		return st
	}
	if next := learn(ctx, st, result, learned); next != nil {
		return next
	}
	return st
}

// sum is the zero-ness of x+y when one side is zero.
func sum(x, y constraint.Constraint) constraint.Constraint {
	switch {
	case y == constraint.Zero:
		return x
	case x == constraint.Zero:
		return y
	}
	return constraint.None
}
