package engine

import (
	"strings"

	"github.com/gnolang/symex/internal/analysis/cfg"
	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
)

// ExitType is the exception type of calls that terminate the process. Such
// paths go straight to the exit block, skipping handlers and finally
// clauses.
const ExitType = "exit"

func entryOf(b *cfg.Block) Point { return Point{Block: b.ID} }

func (x *exploration) terminator(n *Node, blk *cfg.Block) {
	st := n.State
	switch blk.Kind {
	case cfg.Branch:
		st, f := st.Pop()
		t := x.constrain(st, f.Value, constraint.True)
		e := x.constrain(st, f.Value, constraint.False)
		x.record(blk.Cond, len(t) > 0, len(e) > 0)
		x.enqueueAll(n, blk.Successors[0], t)
		x.enqueueAll(n, blk.Successors[1], e)

	case cfg.ConditionalAnd, cfg.ConditionalOr:
		st, f := st.Pop()
		t := x.constrain(st, f.Value, constraint.True)
		e := x.constrain(st, f.Value, constraint.False)
		x.record(blk.Cond, len(t) > 0, len(e) > 0)
		right, short := blk.Successors[0], blk.Successors[1]
		if blk.Kind == cfg.ConditionalAnd {
			x.enqueueAll(n, right, t)
			x.enqueueAll(n, short, pushAll(e, symbolic.False))
		} else {
			x.enqueueAll(n, right, e)
			x.enqueueAll(n, short, pushAll(t, symbolic.True))
		}

	case cfg.Switch:
		if blk.Cond != nil {
			st, _ = st.Pop()
		}
		for _, s := range blk.Successors {
			x.enqueue(n, entryOf(s), st, via{})
		}

	case cfg.ForEach:
		body, after := blk.Successors[0], blk.Successors[1]
		loop := st
		if fe, ok := blk.Terminator.(*tree.ForEach); ok {
			for _, sym := range fe.Vars {
				var v *symbolic.Value
				loop, v = x.fresh(loop)
				loop = loop.Bind(sym, v)
			}
		}
		x.enqueue(n, entryOf(body), loop, via{})
		x.enqueue(n, entryOf(after), st, via{})

	case cfg.Return:
		var exit *symbolic.Value
		if ret, ok := blk.Terminator.(*tree.Return); ok && ret.X != nil {
			var f state.Frame
			st, f = st.Pop()
			st, exit = x.val(st, f)
		}
		st = st.ClearStack().WithExit(exit)
		for _, s := range blk.Successors {
			x.enqueue(n, entryOf(s), st, via{})
		}

	case cfg.Throw:
		st, f := st.Pop()
		st, exc := x.exceptionValue(st, f, blk.Terminator)
		x.throw(n, st.ClearStack().WithExit(exc), blk.Successors, via{})

	case cfg.Rethrow:
		x.throw(n, st, blk.Successors, via{})

	default:
		for _, s := range blk.Successors {
			x.enqueue(n, entryOf(s), st, via{})
		}
	}
}

func (x *exploration) enqueueAll(parent *Node, b *cfg.Block, states []*state.State) {
	for _, st := range states {
		x.enqueue(parent, entryOf(b), st, via{})
	}
}

func pushAll(states []*state.State, v *symbolic.Value) []*state.State {
	res := make([]*state.State, len(states))
	for i, st := range states {
		res[i] = st.Push(v, nil)
	}
	return res
}

// exceptionValue returns the value thrown by a throw statement. Rethrowing a
// caught exception keeps its value; otherwise the type comes from the
// allocation or the declared type of the thrown variable.
func (x *exploration) exceptionValue(st *state.State, f state.Frame, term tree.Node) (*state.State, *symbolic.Value) {
	if f.Value.IsExceptional() {
		return st, f.Value
	}
	var typ string
	if th, ok := term.(*tree.Throw); ok {
		if nw, ok := th.X.(*tree.New); ok {
			typ = nw.Type
		}
	}
	if typ == "" && f.Symbol != nil {
		typ = f.Symbol.Type
	}
	exc := x.factory.Exceptional(typ)
	// throwing null fails on the dereference
	if next := x.constrain(st, f.Value, constraint.NotNull); len(next) == 1 {
		st = next[0]
	}
	return st, exc
}

// throw sends a state with a pending exception along an exception route.
// An empty route leaves the procedure.
func (x *exploration) throw(parent *Node, st *state.State, targets []*cfg.Block, v via) {
	exc := st.Exception()
	if len(targets) == 0 || (exc != nil && exc.TypeName() == ExitType) {
		x.enqueue(parent, entryOf(x.graph.CFG.Exit), st, v)
		return
	}
	typ := ""
	if exc != nil {
		typ = exc.TypeName()
	}
	reached := route(typ, targets)
	if len(reached) == 0 {
		reached = []*cfg.Block{x.graph.CFG.Exit}
	}
	for _, b := range reached {
		x.enqueue(parent, entryOf(b), st, v)
	}
}

// route selects the blocks an exception of typ reaches among targets:
// matching handlers in order, stopping at the first handler sure to catch it
// or at the first target that is not a handler. An unknown type may reach
// every handler.
func route(typ string, targets []*cfg.Block) []*cfg.Block {
	var res []*cfg.Block
	for _, b := range targets {
		c := b.Catch()
		if c == nil {
			return append(res, b)
		}
		switch {
		case catchesAll(c):
			return append(res, b)
		case typ == "":
			res = append(res, b)
		case catches(c, typ):
			return append(res, b)
		}
	}
	return res
}

func simpleName(typ string) string {
	if i := strings.LastIndexAny(typ, ".$"); i >= 0 {
		return typ[i+1:]
	}
	return typ
}

func catches(c *tree.Catch, typ string) bool {
	typ = simpleName(typ)
	for _, t := range c.Types {
		if simpleName(t) == typ {
			return true
		}
	}
	return false
}

func catchesAll(c *tree.Catch) bool {
	for _, t := range c.Types {
		switch simpleName(t) {
		case "Throwable", "Exception", "error", "any":
			return true
		}
	}
	return false
}
