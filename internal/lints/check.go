// Package lints holds the checks run during symbolic exploration.
package lints

import (
	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/internal/se/flow"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
	"github.com/gnolang/symex/internal/types"
)

// Rule is a check with the severity it reports at unless configured
// otherwise.
type Rule interface {
	engine.Check
	Severity() types.Severity
}

func explain(ctx *engine.CheckContext, v *symbolic.Value) []types.Flow {
	opts := []flow.Option{flow.WithFileSet(ctx.Fset())}
	lim := ctx.Flows()
	if lim.MaxSteps > 0 {
		opts = append(opts, flow.WithMaxSteps(lim.MaxSteps))
	}
	if lim.MaxFlows > 0 {
		opts = append(opts, flow.WithMaxFlows(lim.MaxFlows))
	}
	return flow.Explain(ctx.Node, v, opts...)
}

// nilWord names the null value the way the procedure's language does.
func nilWord(p *tree.Procedure) string {
	if p.Lang == tree.Java {
		return "null"
	}
	return "nil"
}

// learn sets c on v, keeping st when the store cannot take it. It returns
// nil when c contradicts what is known.
func learn(ctx *engine.CheckContext, st *state.State, v *symbolic.Value, c constraint.Constraint) *state.State {
	if v == nil || v.IsConstant() {
		return st
	}
	ctx.State = st
	states := ctx.SetConstraint(v, c)
	if len(states) == 0 {
		return nil
	}
	return states[0]
}

// origin walks the graph backward from n to the element that taught v the
// constraint c. It returns nil when no ancestor did.
func origin(n *engine.Node, v *symbolic.Value, c constraint.Constraint) tree.Node {
	return findBack(n, func(e *engine.Edge) bool {
		got, ok := e.Learned(v)
		return ok && got == c
	})
}

// findBack returns the syntax of the parent side of the first edge, in
// breadth-first order from n, for which match holds.
func findBack(n *engine.Node, match func(*engine.Edge) bool) tree.Node {
	seen := map[int]bool{n.ID(): true}
	work := []*engine.Node{n}
	for len(work) > 0 {
		cur := work[0]
		work = work[1:]
		for _, e := range cur.Parents() {
			if match(e) {
				return e.From().Syntax()
			}
			from := e.From()
			if !seen[from.ID()] {
				seen[from.ID()] = true
				work = append(work, from)
			}
		}
	}
	return nil
}

// receiver returns the receiver value of call, read from the state before
// the call executed.
func receiver(ctx *engine.CheckContext, call *tree.Call) (state.Frame, bool) {
	if call.Recv == nil {
		return state.Frame{}, false
	}
	ops := engine.Operands(ctx.Node.State, call)
	if len(ops) == 0 || ops[0].Value == nil {
		return state.Frame{}, false
	}
	return ops[0], true
}

// symbolOf returns the variable or field an expression names.
func symbolOf(e tree.Expr) *tree.Symbol {
	switch e := e.(type) {
	case *tree.Ident:
		return e.Sym
	case *tree.Field:
		return e.Sym
	case *tree.Cast:
		return symbolOf(e.X)
	}
	return nil
}
