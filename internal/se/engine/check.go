package engine

import (
	"go/token"

	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
	"github.com/gnolang/symex/internal/types"
)

// Check is a rule run during exploration. It implements any subset of the
// hook interfaces below.
type Check interface {
	Name() string
}

// PreStatementCheck runs before an element executes. Returning nil sinks the
// path.
type PreStatementCheck interface {
	Check
	PreStatement(ctx *CheckContext, n tree.Node) *state.State
}

// PostStatementCheck runs after an element executed, once per successor
// state. Returning nil sinks the path.
type PostStatementCheck interface {
	Check
	PostStatement(ctx *CheckContext, n tree.Node) *state.State
}

type NodeVisitor interface {
	Check
	VisitNode(ctx *CheckContext, node *Node)
}

// EndOfPathCheck runs on every node reaching the exit block.
type EndOfPathCheck interface {
	Check
	EndOfPath(ctx *CheckContext)
}

// CompletionCheck runs once per procedure with the full graph.
type CompletionCheck interface {
	Check
	EndOfExecution(ctx *CompletionContext)
}

// CheckContext is handed to the per-node hooks.
type CheckContext struct {
	x     *exploration
	check Check
	// Node is the node being executed.
	Node *Node
	// State is the state the hook sees: before the element for
	// PreStatement, after it otherwise.
	State *state.State
}

func (c *CheckContext) Proc() *tree.Procedure      { return c.x.proc }
func (c *CheckContext) Graph() *Graph              { return c.x.graph }
func (c *CheckContext) Factory() *symbolic.Factory { return c.x.factory }
func (c *CheckContext) Fset() *token.FileSet       { return c.x.opts.Fset }
func (c *CheckContext) Params() []*symbolic.Value  { return c.x.params }
func (c *CheckContext) Flows() FlowLimits          { return c.x.opts.Flows }

// Report records an issue at n.
func (c *CheckContext) Report(n tree.Node, message string, flows []types.Flow) {
	c.x.report(c.check, n, message, flows)
}

func (c *CheckContext) ConstraintsOf(v *symbolic.Value, d constraint.Domain) constraint.Constraint {
	return c.State.ConstraintOf(v, d)
}

// SetConstraint constrains v in the context state. Relation limits fall back
// to the unchanged state.
func (c *CheckContext) SetConstraint(v *symbolic.Value, con constraint.Constraint) []*state.State {
	return c.x.constrain(c.State, v, con)
}

// Operands returns the frames n consumes from the context state, in
// evaluation order. Valid in PreStatement only.
func (c *CheckContext) Operands(n tree.Node) []state.Frame {
	return Operands(c.State, n)
}

// Protect keeps the constraints of v for the rest of the exploration, even
// once no binding or stack frame refers to it.
func (c *CheckContext) Protect(v *symbolic.Value) {
	c.x.protect(v)
}

// CompletionContext is handed to EndOfExecution hooks.
type CompletionContext struct {
	x     *exploration
	check Check
	Graph *Graph
	// Partial is set when the step budget stopped the exploration.
	Partial  bool
	Outcomes []*BranchOutcome
}

func (c *CompletionContext) Fset() *token.FileSet { return c.x.opts.Fset }

func (c *CompletionContext) Report(n tree.Node, message string, flows []types.Flow) {
	c.x.report(c.check, n, message, flows)
}

// BranchOutcome tells which way a condition went over all explored paths.
type BranchOutcome struct {
	Cond  tree.Expr
	True  bool
	False bool
}

// Operands returns the frames n pops when executed in st, in evaluation
// order. Missing frames are zero.
func Operands(st *state.State, n tree.Node) []state.Frame {
	k := arity(n)
	res := make([]state.Frame, k)
	for i := 0; i < k; i++ {
		res[k-1-i] = st.Peek(i)
	}
	return res
}
