package lints

import (
	"fmt"
	"strings"

	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
	"github.com/gnolang/symex/internal/types"
)

// UnclosedResource reports resources still open when a path ends. A
// resource stops being tracked once it is returned, stored outside the
// procedure frame, or handed to a call or constructor.
//
// In Go, a path returning a non-nil error forgives every open resource: the
// resource was most likely never opened.
type UnclosedResource struct{}

func NewUnclosedResource() Rule { return &UnclosedResource{} }

func (*UnclosedResource) Name() string { return "unclosed-resource" }

func (*UnclosedResource) Severity() types.Severity { return types.SeverityWarning }

var resourceSuffixes = []string{"Stream", "Reader", "Writer", "Channel", "Socket", "Connection"}

// isResourceType reports whether values of the named type must be closed.
func isResourceType(name string) bool {
	name = strings.TrimSuffix(name, "[]")
	if i := strings.IndexByte(name, '<'); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if name == "Stream" {
		// java.util.stream
		return false
	}
	for _, s := range resourceSuffixes {
		if strings.HasSuffix(name, s) && !strings.HasPrefix(name, "ByteArray") && !strings.HasPrefix(name, "String") {
			return true
		}
	}
	return false
}

func isClose(call *tree.Call) bool {
	return call.Name == "close" || call.Name == "Close"
}

func (c *UnclosedResource) PreStatement(ctx *engine.CheckContext, n tree.Node) *state.State {
	st := ctx.State
	escape := func(fs []state.Frame) {
		for _, f := range fs {
			if f.Value != nil && st.ConstraintOf(f.Value, constraint.Resource) == constraint.Open {
				st = st.RemoveConstraint(f.Value, constraint.Resource)
			}
		}
	}
	ops := ctx.Operands(n)
	switch n := n.(type) {
	case *tree.Call:
		if isClose(n) {
			return st
		}
		if n.Recv != nil && len(ops) > 0 {
			ops = ops[1:]
		}
		escape(ops)
	case *tree.New:
		escape(ops)
	case *tree.Assign:
		if !storesLocally(n.Target) && len(ops) > 0 {
			escape(ops[len(ops)-1:])
		}
	case *tree.Unknown:
		if !n.Returned {
			return st
		}
		escape(ops)
		if ctx.Proc().Lang == tree.Go && returnsError(st, n.Args, ops) {
			st = forgive(st)
		}
	}
	return st
}

func storesLocally(target tree.Expr) bool {
	id, ok := target.(*tree.Ident)
	return ok && id.Sym.IsLocal()
}

// returnsError reports whether one of the trailing results of a return is an
// error that may be non-nil.
func returnsError(st *state.State, args []tree.Expr, ops []state.Frame) bool {
	for i, a := range args {
		if i >= len(ops) || !isErrorExpr(a) {
			continue
		}
		if v := ops[i].Value; v != nil && v != symbolic.Null && st.ConstraintOf(v, constraint.Nullness) != constraint.Null {
			return true
		}
	}
	return false
}

func isErrorExpr(e tree.Expr) bool {
	switch e := e.(type) {
	case *tree.Ident:
		return e.Sym.Type == "error" || e.Sym.Name == "err"
	case *tree.Call:
		return e.Callee == "fmt.Errorf" || e.Callee == "errors.New" || strings.HasSuffix(e.Name, "Errorf")
	case *tree.New:
		return strings.HasSuffix(e.Type, "Error")
	}
	return false
}

func forgive(st *state.State) *state.State {
	var open []*symbolic.Value
	st.ConstrainedValues(func(v *symbolic.Value, cs constraint.Set) bool {
		if cs.Has(constraint.Open) {
			open = append(open, v)
		}
		return true
	})
	for _, v := range open {
		st = st.RemoveConstraint(v, constraint.Resource)
	}
	return st
}

func (c *UnclosedResource) PostStatement(ctx *engine.CheckContext, n tree.Node) *state.State {
	st := ctx.State
	switch n := n.(type) {
	case *tree.New:
		if !isResourceType(n.Type) || st.StackSize() == 0 {
			return st
		}
		v := st.Peek(0).Value
		ctx.Protect(v)
		if next := learn(ctx, st, v, constraint.Open); next != nil {
			return next
		}
	case *tree.Call:
		if isClose(n) {
			recv, ok := receiver(ctx, n)
			if !ok || st.ConstraintOf(recv.Value, constraint.Resource) == constraint.None {
				return st
			}
			if next := learn(ctx, st, recv.Value, constraint.Closed); next != nil {
				return next
			}
			return st
		}
		if st.StackSize() == 0 {
			return st
		}
		// results opened by a callee behavior
		if v := st.Peek(0).Value; v != nil && st.ConstraintOf(v, constraint.Resource) == constraint.Open {
			ctx.Protect(v)
		}
	}
	return st
}

func (c *UnclosedResource) EndOfPath(ctx *engine.CheckContext) {
	st := ctx.State
	exit := st.Exit()
	if ctx.Proc().Lang == tree.Go && exit != nil && st.Exception() == nil && returnsErrorAtExit(ctx) {
		return
	}
	st.ConstrainedValues(func(v *symbolic.Value, cs constraint.Set) bool {
		if !cs.Has(constraint.Open) || v == exit {
			return true
		}
		site := origin(ctx.Node, v, constraint.Open)
		if site == nil {
			return true
		}
		ctx.Report(site, fmt.Sprintf("resource opened by %s is not closed on every path", tree.Describe(site)), explain(ctx, v))
		return true
	})
}

// returnsErrorAtExit reports whether the path ended with a return of an
// error that may be non-nil.
func returnsErrorAtExit(ctx *engine.CheckContext) bool {
	exit := ctx.State.Exit()
	if exit == symbolic.Null || ctx.State.ConstraintOf(exit, constraint.Nullness) == constraint.Null {
		return false
	}
	var ret *tree.Return
	findBack(ctx.Node, func(e *engine.Edge) bool {
		r, ok := e.From().Syntax().(*tree.Return)
		if ok {
			ret = r
		}
		return ok
	})
	return ret != nil && ret.X != nil && isErrorExpr(ret.X)
}
