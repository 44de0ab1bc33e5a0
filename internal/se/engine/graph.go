package engine

import (
	"fmt"
	"strings"

	"github.com/gnolang/symex/internal/analysis/cfg"
	"github.com/gnolang/symex/internal/se/behavior"
	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
)

// Point is a program point: a block id and an element index. Index equal to
// the number of elements of the block addresses its terminator.
type Point = state.Point

// LearnedConstraint is a constraint an edge added to a value.
type LearnedConstraint struct {
	Value      *symbolic.Value
	Constraint constraint.Constraint
}

// LearnedBinding is a symbol an edge (re)bound.
type LearnedBinding struct {
	Symbol *tree.Symbol
	Value  *symbolic.Value
}

// Call describes the call site an edge went through with a yield.
type Call struct {
	Node   *tree.Call
	Args   []*symbolic.Value
	Result *symbolic.Value
}

// Edge links a parent node to a child node of the same graph.
type Edge struct {
	graph       *Graph
	Parent      int
	Child       int
	Constraints []LearnedConstraint
	Bindings    []LearnedBinding
	// Yield is the callee outcome selected on this edge, with its call site.
	Yield behavior.Yield
	Call  *Call
}

func (e *Edge) From() *Node { return e.graph.Nodes[e.Parent] }
func (e *Edge) To() *Node   { return e.graph.Nodes[e.Child] }

// Learned reports whether the edge added a constraint to v.
func (e *Edge) Learned(v *symbolic.Value) (constraint.Constraint, bool) {
	for _, lc := range e.Constraints {
		if lc.Value == v {
			return lc.Constraint, true
		}
	}
	return constraint.None, false
}

// Node is a (program point, state) pair of the exploded graph.
type Node struct {
	graph    *Graph
	id       int
	Point    Point
	State    *state.State
	parents  []*Edge
	children []*Edge
}

func (n *Node) ID() int           { return n.id }
func (n *Node) Graph() *Graph     { return n.graph }
func (n *Node) Parents() []*Edge  { return n.parents }
func (n *Node) Children() []*Edge { return n.children }

// Syntax returns the element or terminator executed at the node's point.
// It is nil at the exit block and for blocks without a terminator.
func (n *Node) Syntax() tree.Node {
	return n.graph.SyntaxAt(n.Point)
}

func (n *Node) String() string {
	return fmt.Sprintf("N%d@%s", n.id, n.Point)
}

// Graph is the exploded graph of one procedure: an arena of nodes addressed
// by id.
type Graph struct {
	CFG   *cfg.CFG
	Proc  *tree.Procedure
	Nodes []*Node
	Roots []*Node
	// Terminals are the nodes reached at the exit block, in creation order.
	Terminals []*Node

	index map[Point]map[uint64][]int
}

func newGraph(proc *tree.Procedure, g *cfg.CFG) *Graph {
	return &Graph{CFG: g, Proc: proc, index: make(map[Point]map[uint64][]int)}
}

func (g *Graph) Node(id int) *Node {
	if id < 0 || id >= len(g.Nodes) {
		return nil
	}
	return g.Nodes[id]
}

// SyntaxAt returns the tree node executed at p.
func (g *Graph) SyntaxAt(p Point) tree.Node {
	b := g.CFG.Block(p.Block)
	if b == nil {
		return nil
	}
	if p.Index < len(b.Elements) {
		return b.Elements[p.Index].Node
	}
	return b.Terminator
}

// lookup returns the node at p whose state equals st.
func (g *Graph) lookup(p Point, st *state.State) *Node {
	for _, id := range g.index[p][st.Hash()] {
		if n := g.Nodes[id]; n.State.Equal(st) {
			return n
		}
	}
	return nil
}

func (g *Graph) add(p Point, st *state.State) *Node {
	n := &Node{graph: g, id: len(g.Nodes), Point: p, State: st}
	g.Nodes = append(g.Nodes, n)
	byHash, ok := g.index[p]
	if !ok {
		byHash = make(map[uint64][]int)
		g.index[p] = byHash
	}
	h := st.Hash()
	byHash[h] = append(byHash[h], n.id)
	return n
}

func (g *Graph) link(parent, child *Node, e *Edge) {
	e.graph = g
	e.Parent, e.Child = parent.id, child.id
	parent.children = append(parent.children, e)
	child.parents = append(child.parents, e)
}

// EdgeCount returns the number of edges of the graph.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, node := range g.Nodes {
		n += len(node.children)
	}
	return n
}

func (g *Graph) String() string {
	var sb strings.Builder
	for _, n := range g.Nodes {
		fmt.Fprintf(&sb, "%s %s", n, tree.Describe(n.Syntax()))
		for _, e := range n.children {
			fmt.Fprintf(&sb, " ->N%d", e.Child)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// diff returns the constraints and bindings child has that parent lacks.
func diff(parent, child *state.State) ([]LearnedConstraint, []LearnedBinding) {
	var lcs []LearnedConstraint
	child.ConstrainedValues(func(v *symbolic.Value, cs constraint.Set) bool {
		before := parent.Constraints(v)
		if before == cs {
			return true
		}
		for _, c := range cs.List() {
			if !before.Has(c) {
				lcs = append(lcs, LearnedConstraint{Value: v, Constraint: c})
			}
		}
		return true
	})
	var lbs []LearnedBinding
	child.Bindings(func(sym *tree.Symbol, v *symbolic.Value) bool {
		if old, ok := parent.Value(sym); !ok || old != v {
			lbs = append(lbs, LearnedBinding{Symbol: sym, Value: v})
		}
		return true
	})
	return lcs, lbs
}
