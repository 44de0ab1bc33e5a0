package internal

import (
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/gnolang/symex/internal/tree"
)

// component is a set of mutually recursive procedures. Its procedures are
// explored one after the other by the same goroutine.
type component []*tree.Procedure

// schedule groups procs into levels over the call graph they form. Every
// callee of a level-n component lives in a level below n, so levels run in
// order and the components of one level run concurrently.
func schedule(procs []*tree.Procedure) [][]component {
	g := simple.NewDirectedGraph()
	ids := make(map[string]int64, len(procs))
	for i, p := range procs {
		g.AddNode(simple.Node(i))
		ids[p.Key] = int64(i)
	}
	for i, p := range procs {
		from := int64(i)
		for _, callee := range p.Calls {
			to, ok := ids[callee]
			if !ok || to == from || g.HasEdgeFromTo(from, to) {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(from), simple.Node(to)))
		}
	}

	sccs := topo.TarjanSCC(g)
	sccOf := make(map[int64]int, len(procs))
	for i, scc := range sccs {
		for _, n := range scc {
			sccOf[n.ID()] = i
		}
	}

	// The condensation is acyclic: a component sits one level above its
	// highest callee.
	levelOf := make([]int, len(sccs))
	for i := range levelOf {
		levelOf[i] = -1
	}
	var level func(i int) int
	level = func(i int) int {
		if levelOf[i] >= 0 {
			return levelOf[i]
		}
		lvl := 0
		for _, n := range sccs[i] {
			succ := g.From(n.ID())
			for succ.Next() {
				if j := sccOf[succ.Node().ID()]; j != i {
					lvl = max(lvl, level(j)+1)
				}
			}
		}
		levelOf[i] = lvl
		return lvl
	}

	var levels [][]component
	for i, scc := range sccs {
		lvl := level(i)
		members := make([]int, 0, len(scc))
		for _, n := range scc {
			members = append(members, int(n.ID()))
		}
		slices.Sort(members)
		comp := make(component, 0, len(members))
		for _, m := range members {
			comp = append(comp, procs[m])
		}
		for len(levels) <= lvl {
			levels = append(levels, nil)
		}
		levels[lvl] = append(levels[lvl], comp)
	}

	order := make(map[*tree.Procedure]int, len(procs))
	for i, p := range procs {
		order[p] = i
	}
	for _, lvl := range levels {
		slices.SortFunc(lvl, func(a, b component) int { return order[a[0]] - order[b[0]] })
	}
	return levels
}
