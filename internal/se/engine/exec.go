package engine

import (
	"math/big"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/gnolang/symex/internal/analysis/cfg"
	"github.com/gnolang/symex/internal/se/behavior"
	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
)

// transition is one successor state of an element. Exceptional transitions
// follow the exception route of the block instead of the next element.
type transition struct {
	st        *state.State
	via       via
	exception bool
}

func continueWith(states ...*state.State) []transition {
	res := make([]transition, len(states))
	for i, st := range states {
		res[i] = transition{st: st}
	}
	return res
}

// arity returns the number of stack frames n consumes.
func arity(n tree.Node) int {
	switch n := n.(type) {
	case *tree.Field:
		if n.X != nil {
			return 1
		}
	case *tree.Index:
		return 2
	case *tree.Deref:
		return 1
	case *tree.Call:
		if n.Recv != nil {
			return len(n.Args) + 1
		}
		return len(n.Args)
	case *tree.New:
		return len(n.Args)
	case *tree.Assign:
		return targetArity(n.Target) + 1
	case *tree.Binary:
		return 2
	case *tree.Unary, *tree.TypeTest, *tree.Cast:
		return 1
	case *tree.Unknown:
		return len(n.Args)
	case *tree.VarDecl:
		if n.Init != nil {
			return 1
		}
	}
	return 0
}

// targetArity is the number of frames the target of an assignment leaves on
// the stack before the assigned value.
func targetArity(target tree.Expr) int {
	switch t := target.(type) {
	case *tree.Field:
		if t.X != nil {
			return 1
		}
	case *tree.Index:
		return 2
	case *tree.Deref:
		return 1
	}
	return 0
}

// popOperands pops the frames of n and returns them in evaluation order.
func popOperands(st *state.State, k int) (*state.State, []state.Frame) {
	st, frames := st.PopN(k)
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	return st, frames
}

// val returns the value of f, or a fresh value for a missing frame.
func (x *exploration) val(st *state.State, f state.Frame) (*state.State, *symbolic.Value) {
	if f.Value != nil {
		return st, f.Value
	}
	return x.fresh(st)
}

// exec executes one element of blk.
func (x *exploration) exec(blk *cfg.Block, st *state.State, n tree.Node) []transition {
	switch n := n.(type) {
	case *tree.Literal:
		st, v := x.literal(st, n)
		return continueWith(st.Push(v, nil))

	case *tree.Ident:
		st, v := x.read(st, n.Sym)
		return continueWith(st.Push(v, n.Sym))

	case *tree.Field:
		states := []*state.State{st}
		if n.X != nil {
			var f state.Frame
			st, f = st.Pop()
			states = []*state.State{st}
			if n.Derefs {
				states = x.constrain(st, f.Value, constraint.NotNull)
			}
		}
		return x.pushRead(states, n.Sym)

	case *tree.Index:
		st, fs := popOperands(st, 2)
		states := []*state.State{st}
		if n.Derefs {
			states = x.constrain(st, fs[0].Value, constraint.NotNull)
		}
		return x.pushRead(states, nil)

	case *tree.Deref:
		st, f := st.Pop()
		return x.pushRead(x.constrain(st, f.Value, constraint.NotNull), nil)

	case *tree.Call:
		st, fs := popOperands(st, arity(n))
		states := []*state.State{st}
		if n.Recv != nil {
			if n.DerefRecv {
				states = x.constrain(st, fs[0].Value, constraint.NotNull)
			}
			fs = fs[1:]
		}
		var res []transition
		for _, s := range states {
			args := make([]*symbolic.Value, len(fs))
			for i, f := range fs {
				s, args[i] = x.val(s, f)
			}
			res = append(res, x.call(blk, s, n, args)...)
		}
		return res

	case *tree.New:
		st, _ = st.PopN(len(n.Args))
		st, v := x.fresh(st, constraint.NotNull)
		return continueWith(st.Push(v, nil))

	case *tree.Assign:
		return x.assign(st, n)

	case *tree.Binary:
		return continueWith(x.binary(st, n))

	case *tree.Unary:
		return continueWith(x.unary(st, n))

	case *tree.TypeTest:
		st, f := st.Pop()
		st, v := x.val(st, f)
		return continueWith(st.Push(x.factory.TypeTest(v, n.Type), nil))

	case *tree.Cast:
		st, f := st.Pop()
		st, v := x.val(st, f)
		return continueWith(st.Push(v, f.Symbol))

	case *tree.Unknown:
		st, _ = st.PopN(len(n.Args))
		st, v := x.fresh(st)
		return continueWith(st.Push(v, nil))

	case *tree.VarDecl:
		var v *symbolic.Value
		if n.Init != nil {
			var f state.Frame
			st, f = st.Pop()
			st, v = x.val(st, f)
		} else {
			st, v = x.fresh(st)
		}
		if n.Sym != nil {
			st = st.Bind(n.Sym, v)
		}
		return continueWith(st)

	case *tree.Catch:
		v := st.Exception()
		if v == nil {
			v = x.factory.Exceptional(strings.Join(n.Types, "|"))
		}
		st = st.WithExit(nil)
		if n.Sym != nil {
			st = st.Bind(n.Sym, v)
		}
		return continueWith(x.constrain(st, v, constraint.NotNull)...)
	}
	x.logger.Debug("element not executed", zap.String("node", tree.Describe(n)))
	return continueWith(st)
}

func (x *exploration) pushRead(states []*state.State, sym *tree.Symbol) []transition {
	res := make([]transition, 0, len(states))
	for _, st := range states {
		st, v := x.read(st, sym)
		res = append(res, transition{st: st.Push(v, sym)})
	}
	return res
}

// read returns the value of sym. Frame symbols are bound on first read;
// fields and globals may change behind the procedure's back and read a fresh
// value every time.
func (x *exploration) read(st *state.State, sym *tree.Symbol) (*state.State, *symbolic.Value) {
	if sym.IsLocal() {
		if v, ok := st.Value(sym); ok {
			return st, v
		}
		v := x.factory.New()
		return st.Bind(sym, v), v
	}
	return x.fresh(st)
}

func (x *exploration) literal(st *state.State, lit *tree.Literal) (*state.State, *symbolic.Value) {
	switch lit.Kind {
	case tree.NullLit:
		return st, symbolic.Null
	case tree.BoolLit:
		if lit.Value == "true" {
			return st, symbolic.True
		}
		return st, symbolic.False
	case tree.StringLit:
		return x.fresh(st, constraint.NotNull)
	}
	zero, ok := isZeroLiteral(lit.Kind, lit.Value)
	switch {
	case !ok:
		return x.fresh(st)
	case zero:
		return x.fresh(st, constraint.Zero)
	default:
		return x.fresh(st, constraint.NonZero)
	}
}

// isZeroLiteral reports whether a numeric or character literal is zero. ok
// is false when the text cannot be parsed.
func isZeroLiteral(kind tree.LitKind, text string) (zero, ok bool) {
	text = strings.ReplaceAll(text, "_", "")
	switch kind {
	case tree.CharLit:
		switch text {
		case `'\0'`, `'\u0000'`, `'\x00'`, `'\000'`:
			return true, true
		}
		return false, len(text) > 2
	case tree.IntLit:
		text = strings.TrimRight(text, "lLi")
		var n big.Int
		if _, good := n.SetString(text, 0); !good {
			return false, false
		}
		return n.Sign() == 0, true
	case tree.FloatLit:
		if !strings.HasPrefix(text, "0x") && !strings.HasPrefix(text, "0X") {
			text = strings.TrimRight(text, "fFdD")
		}
		text = strings.TrimSuffix(text, "i")
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return false, false
		}
		return f == 0, true
	}
	return false, false
}

func (x *exploration) assign(st *state.State, n *tree.Assign) []transition {
	st, f := st.Pop()
	st, value := x.val(st, f)
	st, parts := popOperands(st, targetArity(n.Target))

	states := []*state.State{st}
	var sym *tree.Symbol
	switch t := n.Target.(type) {
	case *tree.Ident:
		sym = t.Sym
	case *tree.Field:
		sym = t.Sym
		if t.X != nil && t.Derefs {
			states = x.constrain(st, parts[0].Value, constraint.NotNull)
		}
	case *tree.Index:
		if t.Derefs {
			states = x.constrain(st, parts[0].Value, constraint.NotNull)
		}
	case *tree.Deref:
		states = x.constrain(st, parts[0].Value, constraint.NotNull)
	}

	res := make([]transition, 0, len(states))
	for _, s := range states {
		v := value
		if n.Op != tree.OpNone {
			s, v = x.fresh(s)
		}
		if sym.IsLocal() {
			s = s.Bind(sym, v)
		}
		res = append(res, transition{st: s.Push(v, sym)})
	}
	return res
}

func (x *exploration) binary(st *state.State, n *tree.Binary) *state.State {
	st, fs := popOperands(st, 2)
	st, l := x.val(st, fs[0])
	st, r := x.val(st, fs[1])
	if kind, ok := n.Op.Relation(); ok {
		return st.Push(x.factory.Relational(kind, l, r), nil)
	}
	switch n.Op {
	case tree.OpAnd:
		return st.Push(x.factory.Logical(symbolic.And, l, r), nil)
	case tree.OpOr:
		return st.Push(x.factory.Logical(symbolic.Or, l, r), nil)
	case tree.OpXor:
		return st.Push(x.factory.Logical(symbolic.Xor, l, r), nil)
	}
	st, v := x.fresh(st)
	return st.Push(v, nil)
}

func (x *exploration) unary(st *state.State, n *tree.Unary) *state.State {
	st, f := st.Pop()
	st, v := x.val(st, f)
	switch n.Op {
	case tree.OpNot:
		return st.Push(x.factory.Not(v), nil)
	case tree.OpPlus:
		return st.Push(v, f.Symbol)
	case tree.OpInc, tree.OpDec:
		st, next := x.fresh(st)
		if f.Symbol.IsLocal() {
			st = st.Bind(f.Symbol, next)
		}
		if n.Postfix {
			return st.Push(v, nil)
		}
		return st.Push(next, f.Symbol)
	}
	st, res := x.fresh(st)
	return st.Push(res, nil)
}

// call applies the behavior of the callee: one group of transitions per
// yield whose argument constraints hold. Unknown callees return a fresh
// value.
func (x *exploration) call(blk *cfg.Block, st *state.State, n *tree.Call, args []*symbolic.Value) []transition {
	var b *behavior.Behavior
	if x.opts.Behaviors != nil && n.Callee != "" {
		b = x.opts.Behaviors.Get(x.ctx, n.Callee)
	}
	if b == nil || len(b.Yields) == 0 {
		return x.unknownCall(blk, st, n, args)
	}

	var res []transition
	for _, y := range b.Yields {
		states := []*state.State{st}
		for i, cs := range y.ParamConstraints() {
			if !b.AppliesTo(i, len(args)) {
				continue
			}
			for _, c := range cs.List() {
				states = x.constrainAll(states, args[i], c)
			}
		}
		for _, s := range states {
			res = append(res, x.yield(s, n, args, y)...)
		}
	}
	if !b.Complete {
		s, v := x.fresh(st)
		res = append(res, transition{st: s.Push(v, nil)})
	}
	return res
}

func (x *exploration) yield(st *state.State, n *tree.Call, args []*symbolic.Value, y behavior.Yield) []transition {
	c := &Call{Node: n, Args: args}
	switch y := y.(type) {
	case *behavior.HappyPath:
		var states []*state.State
		if y.ResultIndex >= 0 && y.ResultIndex < len(args) {
			c.Result = args[y.ResultIndex]
			states = []*state.State{st}
		} else {
			c.Result = x.factory.New()
			states = []*state.State{st}
			for _, con := range y.Result.List() {
				states = x.constrainAll(states, c.Result, con)
			}
		}
		res := make([]transition, len(states))
		for i, s := range states {
			res[i] = transition{st: s.Push(c.Result, nil), via: via{yield: y, call: c}}
		}
		return res
	case *behavior.Exceptional:
		c.Result = x.factory.Exceptional(y.Type)
		s := st.ClearStack().WithExit(c.Result)
		return []transition{{st: s, via: via{yield: y, call: c}, exception: true}}
	}
	return nil
}

// unknownCall returns a fresh value. Under a Java catch clause the call may
// also throw anything, which reaches every handler.
func (x *exploration) unknownCall(blk *cfg.Block, st *state.State, n *tree.Call, args []*symbolic.Value) []transition {
	s, v := x.fresh(st)
	res := []transition{{st: s.Push(v, nil)}}
	if x.proc.Lang == tree.Java && hasHandler(blk.ExceptionSuccessors) {
		exc := x.factory.Exceptional("")
		res = append(res, transition{
			st:        st.ClearStack().WithExit(exc),
			via:       via{call: &Call{Node: n, Args: args, Result: exc}},
			exception: true,
		})
	}
	return res
}

func hasHandler(route []*cfg.Block) bool {
	for _, b := range route {
		if b.Catch() != nil {
			return true
		}
	}
	return false
}
