package cfg

import (
	"golang.org/x/exp/maps"

	"github.com/gnolang/symex/internal/tree"
)

// SymbolSet is a set of frame symbols.
type SymbolSet map[*tree.Symbol]struct{}

func (s SymbolSet) Has(sym *tree.Symbol) bool {
	_, ok := s[sym]
	return ok
}

// Live holds the live variables at block boundaries.
type Live struct {
	in  []SymbolSet
	out []SymbolSet
}

// In returns the symbols live when entering b.
func (l *Live) In(b *Block) SymbolSet { return l.in[b.ID] }

// Out returns the symbols live when leaving b.
func (l *Live) Out(b *Block) SymbolSet { return l.out[b.ID] }

// Liveness computes the frame symbols live at each block boundary with a
// backward dataflow over normal and exceptional edges.
func Liveness(g *CFG) *Live {
	n := len(g.Blocks)
	uses := make([]SymbolSet, n)
	defs := make([]SymbolSet, n)
	for _, b := range g.Blocks {
		uses[b.ID], defs[b.ID] = useDef(b)
	}

	l := &Live{in: make([]SymbolSet, n), out: make([]SymbolSet, n)}
	for i := range l.in {
		l.in[i] = SymbolSet{}
		l.out[i] = SymbolSet{}
	}

	work := make([]*Block, 0, n)
	queued := make([]bool, n)
	for i := n - 1; i >= 0; i-- {
		work = append(work, g.Blocks[i])
		queued[i] = true
	}
	for len(work) > 0 {
		b := work[0]
		work = work[1:]
		queued[b.ID] = false

		out := SymbolSet{}
		for _, s := range b.Successors {
			maps.Copy(out, l.in[s.ID])
		}
		for _, s := range b.ExceptionSuccessors {
			maps.Copy(out, l.in[s.ID])
		}
		in := maps.Clone(out)
		for sym := range defs[b.ID] {
			delete(in, sym)
		}
		maps.Copy(in, uses[b.ID])

		l.out[b.ID] = out
		if len(in) == len(l.in[b.ID]) {
			continue
		}
		l.in[b.ID] = in
		for _, p := range b.Predecessors {
			if !queued[p.ID] {
				queued[p.ID] = true
				work = append(work, p)
			}
		}
	}
	return l
}

// useDef returns the symbols read before being written in b, and the
// symbols b writes.
func useDef(b *Block) (uses, defs SymbolSet) {
	uses, defs = SymbolSet{}, SymbolSet{}
	use := func(sym *tree.Symbol) {
		if sym.IsLocal() && !defs.Has(sym) {
			uses[sym] = struct{}{}
		}
	}
	def := func(sym *tree.Symbol) {
		if sym.IsLocal() {
			defs[sym] = struct{}{}
		}
	}
	for _, e := range b.Elements {
		switch n := e.Node.(type) {
		case *tree.Ident:
			use(n.Sym)
		case *tree.Assign:
			if id, ok := n.Target.(*tree.Ident); ok {
				if n.Op != tree.OpNone {
					use(id.Sym)
				}
				def(id.Sym)
			}
		case *tree.Unary:
			if id, ok := n.X.(*tree.Ident); ok && (n.Op == tree.OpInc || n.Op == tree.OpDec) {
				def(id.Sym)
			}
		case *tree.VarDecl:
			def(n.Sym)
		case *tree.Catch:
			if n.Sym != nil {
				def(n.Sym)
			}
		}
	}
	if fe, ok := b.Terminator.(*tree.ForEach); ok && b.Kind == ForEach {
		for _, v := range fe.Vars {
			def(v)
		}
	}
	return uses, defs
}
