package cfg

import (
	"github.com/gnolang/symex/internal/tree"
)

func (b *builder) tryStmt(s *tree.Try) {
	after := b.newBlock()
	ts := &tryState{node: s, finally: s.Finally, copies: make(map[*Block]*Block)}
	idx := b.push(&scope{kind: tryScope, try: ts})

	// Handlers are created before the body so the body's blocks can route
	// to them.
	ts.inCatch = true
	for _, c := range s.Catches {
		cb := b.newBlock()
		cb.Elements = append(cb.Elements, Element{Node: c, EndsStatement: true})
		ts.catches = append(ts.catches, cb)
	}
	ts.inCatch = false

	body := b.newBlock()
	b.goTo(body)
	b.cur = body
	if s.Body != nil {
		b.stmts(s.Body.Stmts)
	}
	b.leaveTry(idx, after)

	ts.inCatch = true
	for i, c := range s.Catches {
		b.cur = ts.catches[i]
		if c.Body != nil {
			b.stmts(c.Body.Stmts)
		}
		b.leaveTry(idx, after)
	}
	b.pop()
	b.cur = after
}

// leaveTry ends a try body or handler flowing normally to after.
func (b *builder) leaveTry(idx int, after *Block) {
	if b.terminated() {
		return
	}
	if b.scopes[idx].try.finally != nil {
		b.goTo(b.finallyCopy(idx, after))
		return
	}
	b.goTo(after)
}

// exceptionRoute returns where exceptions raised under the first n scopes
// go, or nil when they leave the procedure.
func (b *builder) exceptionRoute(n int) []*Block {
	for i := n - 1; i >= 0; i-- {
		sc := b.scopes[i]
		if sc.kind != tryScope {
			continue
		}
		var route []*Block
		if !sc.try.inCatch {
			route = append(route, sc.try.catches...)
		}
		if sc.try.finally != nil {
			return append(route, b.exceptionalFinally(i))
		}
		outer := b.exceptionRoute(i)
		if outer == nil {
			outer = []*Block{b.exit}
		}
		return append(route, outer...)
	}
	return nil
}

func (b *builder) exceptionRouteOrExit() []*Block {
	if route := b.exceptionRoute(len(b.scopes)); route != nil {
		return route
	}
	return []*Block{b.exit}
}

// jumpTarget returns the block a jump to target must go to when it leaves
// the scopes from depth up: the innermost finally copy on the way, or target
// itself.
func (b *builder) jumpTarget(target *Block, depth int) *Block {
	dest := target
	for i := depth; i < len(b.scopes); i++ {
		if sc := b.scopes[i]; sc.kind == tryScope && sc.try.finally != nil {
			dest = b.finallyCopy(i, dest)
		}
	}
	return dest
}

// finallyCopy returns a copy of the finally clause of scope idx that
// continues to dest. Copies are shared per target.
func (b *builder) finallyCopy(idx int, dest *Block) *Block {
	ts := b.scopes[idx].try
	if c, ok := ts.copies[dest]; ok {
		return c
	}
	entry := b.outside(idx, func() {
		b.stmts(ts.finally.Stmts)
		b.goTo(dest)
	})
	ts.copies[dest] = entry
	return entry
}

// exceptionalFinally returns the copy of the finally clause of scope idx run
// when an exception leaves the try. It ends with a Rethrow to the enclosing
// handlers.
func (b *builder) exceptionalFinally(idx int) *Block {
	ts := b.scopes[idx].try
	if ts.excCopy != nil {
		return ts.excCopy
	}
	ts.excCopy = b.outside(idx, func() {
		b.stmts(ts.finally.Stmts)
		if !b.terminated() {
			b.terminate(Rethrow, ts.node, nil, b.exceptionRouteOrExit()...)
		}
	})
	return ts.excCopy
}

// outside builds fn in fresh blocks as if it appeared right outside the
// scope idx, and returns the first block.
func (b *builder) outside(idx int, fn func()) *Block {
	savedCur, savedScopes, savedLabel := b.cur, b.scopes, b.label
	b.scopes = append([]*scope(nil), b.scopes[:idx]...)
	b.label = ""
	entry := b.newBlock()
	b.cur = entry
	fn()
	b.cur, b.scopes, b.label = savedCur, savedScopes, savedLabel
	return entry
}

func redirect(list []*Block, old, repl *Block) {
	for i, s := range list {
		if s == old {
			list[i] = repl
		}
	}
}
