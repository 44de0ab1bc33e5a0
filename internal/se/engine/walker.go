// Package engine explores procedures symbolically.
//
// The Walker executes the CFG of a procedure element by element against
// persistent program states. Every (program point, state) pair becomes a node
// of an exploded graph; equal pairs are merged, which bounds the exploration
// together with a step budget and a per-point visit bound.
package engine

import (
	"context"
	"errors"
	"fmt"
	"go/token"

	"go.uber.org/zap"

	"github.com/gnolang/symex/internal/analysis/cfg"
	"github.com/gnolang/symex/internal/se/behavior"
	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
	"github.com/gnolang/symex/internal/types"
)

var ErrNoProcedure = errors.New("no procedure to explore")

// Result is the outcome of exploring one procedure.
type Result struct {
	Graph    *Graph
	Behavior *behavior.Behavior
	Issues   []types.Issue
	Steps    int
	// Partial is set when the step budget stopped the exploration; Err then
	// holds ErrStepBudgetExceeded.
	Partial  bool
	Err      error
	Outcomes []*BranchOutcome
}

// Outcome returns the recorded outcome of cond, or nil when it was never
// evaluated.
func (r *Result) Outcome(cond tree.Expr) *BranchOutcome {
	for _, o := range r.Outcomes {
		if o.Cond == cond {
			return o
		}
	}
	return nil
}

type Walker struct {
	opts Options
}

func New(opts Options) *Walker {
	return &Walker{opts: opts.withDefaults()}
}

func (w *Walker) Options() Options { return w.opts }

type issueKey struct {
	rule    string
	pos     token.Pos
	message string
}

type exploration struct {
	ctx     context.Context
	opts    Options
	logger  *zap.Logger
	proc    *tree.Procedure
	graph   *Graph
	live    *cfg.Live
	factory *symbolic.Factory

	params    []*symbolic.Value
	protected []*symbolic.Value
	isProt    map[*symbolic.Value]bool

	queue   []*Node
	steps   int
	partial bool

	issues   []types.Issue
	reported map[issueKey]bool
	outcomes map[tree.Expr]*BranchOutcome
	order    []*BranchOutcome

	pre        []PreStatementCheck
	post       []PostStatementCheck
	visitors   []NodeVisitor
	endOfPath  []EndOfPathCheck
	completion []CompletionCheck
}

// Explore runs the symbolic execution of proc over g. A nil g is built from
// the procedure body. Running out of steps is not an error: the result is
// partial and Result.Err says why.
func (w *Walker) Explore(ctx context.Context, proc *tree.Procedure, g *cfg.CFG) (*Result, error) {
	if proc == nil {
		return nil, ErrNoProcedure
	}
	if g == nil {
		g = cfg.Build(proc.Body)
	}
	x := &exploration{
		ctx:      ctx,
		opts:     w.opts,
		logger:   w.opts.Logger.With(zap.String("procedure", proc.Key)),
		proc:     proc,
		graph:    newGraph(proc, g),
		live:     cfg.Liveness(g),
		factory:  symbolic.NewFactory(),
		isProt:   make(map[*symbolic.Value]bool),
		reported: make(map[issueKey]bool),
		outcomes: make(map[tree.Expr]*BranchOutcome),
	}
	x.registerChecks()
	x.start()
	x.run()
	return x.result(), nil
}

func (x *exploration) registerChecks() {
	for _, c := range x.opts.Checks {
		if h, ok := c.(PreStatementCheck); ok {
			x.pre = append(x.pre, h)
		}
		if h, ok := c.(PostStatementCheck); ok {
			x.post = append(x.post, h)
		}
		if h, ok := c.(NodeVisitor); ok {
			x.visitors = append(x.visitors, h)
		}
		if h, ok := c.(EndOfPathCheck); ok {
			x.endOfPath = append(x.endOfPath, h)
		}
		if h, ok := c.(CompletionCheck); ok {
			x.completion = append(x.completion, h)
		}
	}
}

// start enqueues the entry nodes: one per combination of declared parameter
// nullness.
func (x *exploration) start() {
	st := state.New(state.WithLogger(x.logger), state.WithRelationLimits(x.opts.RelationLimits))
	states := []*state.State{st}
	bindAll := func(sym *tree.Symbol, v *symbolic.Value) {
		for i, s := range states {
			states[i] = s.Bind(sym, v)
		}
	}
	if recv := x.proc.Receiver; recv != nil {
		v := x.factory.New()
		x.protect(v)
		bindAll(recv, v)
		if x.proc.Lang == tree.Java || recv.Kind == tree.This {
			states = x.constrainAll(states, v, constraint.NotNull)
		}
	}
	for _, p := range x.proc.Params {
		v := x.factory.New()
		x.params = append(x.params, v)
		x.protect(v)
		if p.Sym != nil {
			bindAll(p.Sym, v)
		}
		switch p.Nullness {
		case tree.NonNull:
			states = x.constrainAll(states, v, constraint.NotNull)
		case tree.Nullable:
			null := x.constrainAll(states, v, constraint.Null)
			states = append(null, x.constrainAll(states, v, constraint.NotNull)...)
		}
	}
	entry := Point{Block: x.graph.CFG.Entry.ID}
	for _, s := range states {
		x.enqueue(nil, entry, s, via{})
	}
}

func (x *exploration) run() {
	for len(x.queue) > 0 {
		if x.steps >= x.opts.MaxSteps {
			x.partial = true
			x.logger.Warn("step budget exceeded, partial result",
				zap.Int("steps", x.steps),
				zap.Int("nodes", len(x.graph.Nodes)),
		zap.Int("edges", x.graph.EdgeCount()),
				zap.Int("pending", len(x.queue)))
			break
		}
		n := x.queue[0]
		x.queue[0] = nil
		x.queue = x.queue[1:]
		x.steps++
		x.step(n)
	}
	if len(x.completion) > 0 {
		for _, c := range x.completion {
			c.EndOfExecution(&CompletionContext{
				x:        x,
				check:    c,
				Graph:    x.graph,
				Partial:  x.partial,
				Outcomes: x.order,
			})
		}
	}
	x.opts.Metrics.explored(x.steps, x.partial)
	x.logger.Debug("explored",
		zap.Int("steps", x.steps),
		zap.Int("nodes", len(x.graph.Nodes)),
		zap.Int("terminals", len(x.graph.Terminals)))
}

func (x *exploration) result() *Result {
	outcomes := make([]behavior.Outcome, len(x.graph.Terminals))
	for i, n := range x.graph.Terminals {
		outcomes[i] = behavior.Outcome{Node: n, State: n.State}
	}
	res := &Result{
		Graph:    x.graph,
		Behavior: behavior.Build(x.proc.Key, x.params, x.proc.Variadic, !x.partial, outcomes),
		Issues:   x.issues,
		Steps:    x.steps,
		Partial:  x.partial,
		Outcomes: x.order,
	}
	if x.partial {
		res.Err = fmt.Errorf("%s: %w after %d steps", x.proc.Key, ErrStepBudgetExceeded, x.steps)
	}
	return res
}

// via annotates an edge that went through a call.
type via struct {
	yield behavior.Yield
	call  *Call
}

// enqueue adds the node (p, st) as a child of parent, merging it with an
// equal node when one exists. States entering a block are cleaned up and
// counted against the visit bound.
func (x *exploration) enqueue(parent *Node, p Point, st *state.State, v via) {
	if p.Index == 0 {
		if st.Visits(p) > x.opts.MaxPointVisits {
			x.logger.Debug("visit bound reached", zap.Stringer("point", p))
			return
		}
		in := x.live.In(x.graph.CFG.Blocks[p.Block])
		st = st.Cleanup(in.Has, x.protected).Visit(p)
	}
	if existing := x.graph.lookup(p, st); existing != nil {
		if parent != nil {
			x.link(parent, existing, v, true)
		}
		return
	}
	n := x.graph.add(p, st)
	x.opts.Metrics.node()
	if parent == nil {
		x.graph.Roots = append(x.graph.Roots, n)
	} else {
		x.link(parent, n, v, false)
	}
	x.queue = append(x.queue, n)
}

func (x *exploration) link(parent, child *Node, v via, merged bool) {
	e := &Edge{Yield: v.yield, Call: v.call}
	e.Constraints, e.Bindings = diff(parent.State, child.State)
	x.graph.link(parent, child, e)
	x.opts.Metrics.edge(merged)
}

func (x *exploration) step(n *Node) {
	for _, c := range x.visitors {
		c.VisitNode(x.checkContext(c, n, n.State), n)
	}
	g := x.graph.CFG
	blk := g.Blocks[n.Point.Block]
	if blk == g.Exit {
		x.terminal(n)
		return
	}
	if n.Point.Index < len(blk.Elements) {
		x.element(n, blk, blk.Elements[n.Point.Index])
		return
	}
	x.terminator(n, blk)
}

func (x *exploration) element(n *Node, blk *cfg.Block, el cfg.Element) {
	st := n.State
	for _, c := range x.pre {
		if st = c.PreStatement(x.checkContext(c, n, st), el.Node); st == nil {
			return
		}
	}
	next := Point{Block: blk.ID, Index: n.Point.Index + 1}
	for _, t := range x.exec(blk, st, el.Node) {
		if t.exception {
			x.throw(n, t.st, blk.ExceptionSuccessors, t.via)
			continue
		}
		s := t.st
		for _, c := range x.post {
			if s = c.PostStatement(x.checkContext(c, n, s), el.Node); s == nil {
				break
			}
		}
		if s == nil {
			continue
		}
		if el.EndsStatement {
			s = s.ClearStack()
		}
		x.enqueue(n, next, s, t.via)
	}
}

func (x *exploration) terminal(n *Node) {
	x.graph.Terminals = append(x.graph.Terminals, n)
	for _, c := range x.endOfPath {
		c.EndOfPath(x.checkContext(c, n, n.State))
	}
}

func (x *exploration) protect(v *symbolic.Value) {
	if v != nil && !x.isProt[v] {
		x.isProt[v] = true
		x.protected = append(x.protected, v)
	}
}

func (x *exploration) checkContext(c Check, n *Node, st *state.State) *CheckContext {
	return &CheckContext{x: x, check: c, Node: n, State: st}
}

func (x *exploration) report(c Check, n tree.Node, message string, flows []types.Flow) {
	var pos, end token.Pos
	if n != nil {
		pos, end = n.Pos(), n.End()
	}
	key := issueKey{rule: c.Name(), pos: pos, message: message}
	if x.reported[key] {
		return
	}
	x.reported[key] = true
	x.issues = append(x.issues, types.Issue{
		Rule:      c.Name(),
		Filename:  x.opts.Filename,
		Procedure: x.proc.Name,
		Message:   message,
		Start:     x.opts.Fset.Position(pos),
		End:       x.opts.Fset.Position(end),
		Flows:     flows,
	})
}

func (x *exploration) record(cond tree.Expr, sawTrue, sawFalse bool) {
	if cond == nil {
		return
	}
	o, ok := x.outcomes[cond]
	if !ok {
		o = &BranchOutcome{Cond: cond}
		x.outcomes[cond] = o
		x.order = append(x.order, o)
	}
	o.True = o.True || sawTrue
	o.False = o.False || sawFalse
}

// constrain sets c on v. A failure of the constraint store keeps the state
// unchanged, which only loses precision.
func (x *exploration) constrain(st *state.State, v *symbolic.Value, c constraint.Constraint) []*state.State {
	if v == nil {
		return []*state.State{st}
	}
	res, err := st.SetConstraint(v, c)
	if err != nil {
		x.logger.Debug("constraint not propagated",
			zap.Stringer("value", v),
			zap.Stringer("constraint", c),
			zap.Error(err))
		return []*state.State{st}
	}
	return res
}

func (x *exploration) constrainAll(states []*state.State, v *symbolic.Value, c constraint.Constraint) []*state.State {
	var res []*state.State
	for _, st := range states {
		res = append(res, x.constrain(st, v, c)...)
	}
	return res
}

// fresh returns a new value carrying cs.
func (x *exploration) fresh(st *state.State, cs ...constraint.Constraint) (*state.State, *symbolic.Value) {
	v := x.factory.New()
	for _, c := range cs {
		if next := x.constrain(st, v, c); len(next) == 1 {
			st = next[0]
		}
	}
	return st, v
}
