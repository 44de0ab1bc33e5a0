// Package flow explains findings by walking the exploded graph backward from
// the node an issue was raised at, collecting the steps that taught the engine
// what it knows about a value.
package flow

import (
	"fmt"
	"go/token"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/gnolang/symex/internal/se/behavior"
	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
	"github.com/gnolang/symex/internal/types"
)

const (
	DefaultMaxSteps = 1000
	DefaultMaxFlows = 3
	// maxDepth bounds the nesting of callee explanations.
	maxDepth = 2
)

type Options struct {
	// MaxSteps bounds the number of edges expanded per explanation.
	MaxSteps int
	MaxFlows int
	Fset     *token.FileSet
}

type Option func(*Options)

func WithMaxSteps(n int) Option { return func(o *Options) { o.MaxSteps = n } }

func WithMaxFlows(n int) Option { return func(o *Options) { o.MaxFlows = n } }

// WithFileSet resolves step positions. Without it positions are empty.
func WithFileSet(fset *token.FileSet) Option { return func(o *Options) { o.Fset = fset } }

// path is a partial backward walk. Steps are in reverse chronological order.
type path struct {
	node    *engine.Node
	value   *symbolic.Value
	steps   []types.Location
	visited map[int]bool
}

type explainer struct {
	opts  Options
	steps int
}

// Explain returns the flows leading to what is known about v at node. It
// returns no flow when nothing along the way mentions v.
func Explain(node *engine.Node, v *symbolic.Value, opts ...Option) []types.Flow {
	o := Options{MaxSteps: DefaultMaxSteps, MaxFlows: DefaultMaxFlows}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Fset == nil {
		o.Fset = token.NewFileSet()
	}
	if node == nil || v == nil {
		return nil
	}
	e := &explainer{opts: o}
	return e.explain(node, v, 0)
}

func (e *explainer) explain(node *engine.Node, v *symbolic.Value, depth int) []types.Flow {
	var (
		flows []types.Flow
		seen  = make(map[string]bool)
	)
	finish := func(p *path) {
		if len(p.steps) == 0 || len(flows) >= e.opts.MaxFlows {
			return
		}
		f := make(types.Flow, len(p.steps))
		for i, s := range p.steps {
			f[len(p.steps)-1-i] = s
		}
		key := flowKey(f)
		if seen[key] {
			return
		}
		seen[key] = true
		flows = append(flows, f)
	}

	stack := []*path{{node: node, value: v, visited: map[int]bool{node.ID(): true}}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if e.steps >= e.opts.MaxSteps {
			finish(p)
			continue
		}
		var next []*engine.Edge
		for _, edge := range p.node.Parents() {
			if !p.visited[edge.Parent] {
				next = append(next, edge)
			}
		}
		if len(next) == 0 {
			finish(p)
			continue
		}
		for i, edge := range next {
			e.steps++
			visited := p.visited
			if i < len(next)-1 {
				visited = maps.Clone(p.visited)
			}
			visited[edge.Parent] = true
			steps := append([]types.Location(nil), p.steps...)
			steps = append(steps, e.edgeSteps(edge, p.value, depth)...)
			stack = append(stack, &path{node: edge.From(), value: p.value, steps: steps, visited: visited})
		}
	}
	return flows
}

func flowKey(f types.Flow) string {
	var sb strings.Builder
	for _, l := range f {
		fmt.Fprintf(&sb, "%d:%d:%s|", l.Position.Line, l.Position.Column, l.Message)
	}
	return sb.String()
}

// edgeSteps returns the steps edge contributes about v, in reverse
// chronological order.
func (e *explainer) edgeSteps(edge *engine.Edge, v *symbolic.Value, depth int) []types.Location {
	parent := edge.From()
	if edge.Yield != nil && edge.Call != nil {
		if steps := e.callSteps(edge, v, depth); steps != nil {
			return steps
		}
	}

	var res []types.Location
	at := locationOf(parent)
	if at == nil {
		return nil
	}
	name := nameOf(edge, v)
	for _, lc := range edge.Constraints {
		if lc.Value != v {
			continue
		}
		if msg := learnedMessage(parent, name, lc.Constraint); msg != "" {
			res = append(res, e.location(at.Pos(), msg))
		}
	}
	switch at.(type) {
	case *tree.Assign, *tree.VarDecl:
		for _, b := range edge.Bindings {
			if b.Value != v {
				continue
			}
			if what := describeValue(edge.To(), v); what != "" {
				res = append(res, e.location(at.Pos(), fmt.Sprintf("'%s' is assigned %s.", b.Symbol, what)))
			}
		}
	}
	return res
}

// callSteps explains a call edge when v is an argument, the result or the
// exception of the call. The callee's own explanation is spliced in when its
// exploration is available.
func (e *explainer) callSteps(edge *engine.Edge, v *symbolic.Value, depth int) []types.Location {
	call := edge.Call
	origin := edge.Yield.Origin()

	idx := -1
	for i, a := range call.Args {
		if a == v {
			idx = i
			break
		}
	}
	_, learned := edge.Learned(v)

	var (
		msg    string
		target *symbolic.Value
	)
	switch {
	case idx >= 0 && learned:
		msg = "Learns from method call"
		if origin != nil && idx < len(origin.Params) {
			target = origin.Params[idx]
		}
	case call.Result == v:
		if exc, ok := edge.Yield.(*behavior.Exceptional); ok {
			typ := exc.Type
			if typ == "" {
				typ = "?"
			}
			msg = fmt.Sprintf("Exception '%s' thrown from method invocation", typ)
		} else {
			msg = "Uses return value"
		}
		if origin != nil {
			target = origin.Exit
		}
	default:
		return nil
	}

	var inner types.Flow
	if target != nil && depth < maxDepth {
		if n, ok := origin.Node.(*engine.Node); ok {
			if flows := e.explain(n, target, depth+1); len(flows) > 0 {
				inner = flows[0]
			}
		}
	}
	if len(inner) > 0 {
		msg = fmt.Sprintf("%s [see L#%d].", msg, inner[0].Position.Line)
	} else {
		msg += "."
	}

	res := []types.Location{e.location(call.Node.Pos(), msg)}
	for i := len(inner) - 1; i >= 0; i-- {
		res = append(res, inner[i])
	}
	return res
}

func (e *explainer) location(pos token.Pos, msg string) types.Location {
	return types.Location{Position: e.opts.Fset.Position(pos), Message: msg}
}

// locationOf returns the syntax a step at n points to: the condition of a
// branch, otherwise the element or terminator executed.
func locationOf(n *engine.Node) tree.Node {
	g := n.Graph()
	if b := g.CFG.Block(n.Point.Block); b != nil && n.Point.Index == len(b.Elements) &&
		b.Kind.IsBranching() && b.Cond != nil {
		return b.Cond
	}
	return n.Syntax()
}

func nameOf(edge *engine.Edge, v *symbolic.Value) string {
	if sym := edge.To().State.SymbolOf(v); sym != nil {
		return sym.Name
	}
	if sym := edge.From().State.SymbolOf(v); sym != nil {
		return sym.Name
	}
	return ""
}

// nullWord spells the null reference the way the language of n's procedure
// does.
func nullWord(n *engine.Node) string {
	if p := n.Graph().Proc; p != nil && p.Lang == tree.Java {
		return "null"
	}
	return "nil"
}

func learnedMessage(n *engine.Node, name string, c constraint.Constraint) string {
	var what string
	switch c {
	case constraint.Null:
		what = nullWord(n)
	case constraint.NotNull:
		what = "not " + nullWord(n)
	case constraint.Zero:
		what = "zero"
	case constraint.NonZero:
		what = "non-zero"
	case constraint.True:
		what = "true"
	case constraint.False:
		what = "false"
	default:
		return ""
	}
	if name == "" {
		return fmt.Sprintf("Implies the value is %s.", what)
	}
	return fmt.Sprintf("Implies '%s' is %s.", name, what)
}

func describeValue(n *engine.Node, v *symbolic.Value) string {
	if v == symbolic.Null {
		return nullWord(n)
	}
	if n.State.ConstraintOf(v, constraint.Zeroness) == constraint.Zero {
		return "zero"
	}
	if n.State.ConstraintOf(v, constraint.Nullness) == constraint.Null {
		return nullWord(n)
	}
	return ""
}
