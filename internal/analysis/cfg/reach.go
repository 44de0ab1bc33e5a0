package cfg

import (
	"github.com/yourbasic/graph"
)

// Graph returns the block graph with normal and exceptional edges. Vertex
// numbers are block ids.
func (g *CFG) Graph() *graph.Mutable {
	m := graph.New(len(g.Blocks))
	for _, b := range g.Blocks {
		for _, s := range b.Successors {
			m.Add(b.ID, s.ID)
		}
		for _, s := range b.ExceptionSuccessors {
			m.Add(b.ID, s.ID)
		}
	}
	return m
}

// Unreachable returns the blocks that no path from the entry reaches.
func (g *CFG) Unreachable() []*Block {
	reached := make([]bool, len(g.Blocks))
	reached[g.Entry.ID] = true
	graph.BFS(g.Graph(), g.Entry.ID, func(_, w int, _ int64) {
		reached[w] = true
	})
	var res []*Block
	for _, b := range g.Blocks {
		if !reached[b.ID] {
			res = append(res, b)
		}
	}
	return res
}

// HasCycle reports whether some block can reach itself.
func (g *CFG) HasCycle() bool {
	return !graph.Acyclic(g.Graph())
}
