package cfg

import (
	"github.com/gnolang/symex/internal/tree"
)

type scopeKind int

const (
	loopScope scopeKind = iota
	switchScope
	labelScope
	tryScope
)

// scope is an entry of the jump stack: a break/continue target or a try
// statement whose finally clause must run on the way out.
type scope struct {
	kind  scopeKind
	label string
	brk   *Block
	cont  *Block
	try   *tryState
}

type tryState struct {
	node    *tree.Try
	catches []*Block
	finally *tree.Block
	// inCatch is set while building handlers, which do not catch their own
	// exceptions.
	inCatch bool
	// copies maps a jump target to the finally copy leading to it.
	copies  map[*Block]*Block
	excCopy *Block
}

type builder struct {
	blocks []*Block
	exit   *Block
	cur    *Block
	scopes []*scope
	// label is attached to the next loop or switch.
	label string
}

// Build turns a procedure body into basic blocks.
func Build(body *tree.Block) *CFG {
	b := &builder{}
	b.exit = &Block{}
	entry := b.newBlock()
	b.cur = entry
	if body != nil {
		b.stmts(body.Stmts)
	}
	b.goTo(b.exit)
	return b.finish(entry)
}

func (b *builder) newBlock() *Block {
	blk := &Block{}
	if route := b.exceptionRoute(len(b.scopes)); route != nil {
		blk.ExceptionSuccessors = route
	}
	b.blocks = append(b.blocks, blk)
	return blk
}

func (b *builder) add(n tree.Node) {
	b.cur.Elements = append(b.cur.Elements, Element{Node: n})
}

func (b *builder) endStatement() {
	if n := len(b.cur.Elements); n > 0 {
		b.cur.Elements[n-1].EndsStatement = true
	}
}

func (b *builder) terminated() bool {
	return b.cur.Kind != None || len(b.cur.Successors) > 0
}

// goTo ends the current block with a jump to target unless it already ends.
func (b *builder) goTo(target *Block) {
	if !b.terminated() {
		b.cur.Successors = []*Block{target}
	}
}

func (b *builder) terminate(kind Kind, node tree.Node, cond tree.Expr, succs ...*Block) {
	b.cur.Kind = kind
	b.cur.Terminator = node
	b.cur.Cond = cond
	b.cur.Successors = succs
}

// deadEnd starts a block for code following an unconditional jump.
func (b *builder) deadEnd() {
	b.cur = b.newBlock()
}

func (b *builder) push(s *scope) int {
	b.scopes = append(b.scopes, s)
	return len(b.scopes) - 1
}

func (b *builder) pop() {
	b.scopes = b.scopes[:len(b.scopes)-1]
}

func (b *builder) takeLabel() string {
	l := b.label
	b.label = ""
	return l
}

func (b *builder) stmts(list []tree.Stmt) {
	for _, s := range list {
		b.stmt(s)
	}
}

func (b *builder) stmt(s tree.Stmt) {
	switch s := s.(type) {
	case nil:
	case *tree.Block:
		if s != nil {
			b.stmts(s.Stmts)
		}
	case *tree.Empty:
	case *tree.ExprStmt:
		b.expr(s.X)
		b.endStatement()
	case *tree.VarDecl:
		if s.Init != nil {
			b.expr(s.Init)
		}
		b.add(s)
		b.endStatement()
	case *tree.If:
		b.ifStmt(s)
	case *tree.While:
		b.whileStmt(s)
	case *tree.DoWhile:
		b.doWhileStmt(s)
	case *tree.For:
		b.forStmt(s)
	case *tree.ForEach:
		b.forEachStmt(s)
	case *tree.Switch:
		b.switchStmt(s)
	case *tree.Try:
		b.tryStmt(s)
	case *tree.Labeled:
		b.labeledStmt(s)
	case *tree.Return:
		if s.X != nil {
			b.expr(s.X)
		}
		b.terminate(Return, s, nil, b.jumpTarget(b.exit, 0))
		b.deadEnd()
	case *tree.Throw:
		b.expr(s.X)
		b.terminate(Throw, s, nil, b.exceptionRouteOrExit()...)
		b.deadEnd()
	case *tree.Break:
		idx := b.findScope(s.Label, true)
		if idx < 0 {
			// break outside any breakable statement: leave the procedure
			b.terminate(Break, s, nil, b.jumpTarget(b.exit, 0))
		} else {
			b.terminate(Break, s, nil, b.jumpTarget(b.scopes[idx].brk, idx+1))
		}
		b.deadEnd()
	case *tree.Continue:
		idx := b.findScope(s.Label, false)
		if idx < 0 {
			b.terminate(Continue, s, nil, b.jumpTarget(b.exit, 0))
		} else {
			b.terminate(Continue, s, nil, b.jumpTarget(b.scopes[idx].cont, idx+1))
		}
		b.deadEnd()
	}
}

// findScope returns the index of the scope targeted by a break (brk) or a
// continue, or -1.
func (b *builder) findScope(label string, brk bool) int {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		sc := b.scopes[i]
		if sc.kind == tryScope {
			continue
		}
		if label != "" {
			if sc.label == label {
				return i
			}
			continue
		}
		switch {
		case sc.kind == loopScope:
			return i
		case brk && sc.kind == switchScope:
			return i
		}
	}
	return -1
}

func (b *builder) ifStmt(s *tree.If) {
	thenB := b.newBlock()
	var elseB *Block
	if s.Else != nil {
		elseB = b.newBlock()
	}
	after := b.newBlock()
	if elseB == nil {
		elseB = after
	}
	b.cond(s.Cond, s, thenB, elseB)

	b.cur = thenB
	b.stmt(s.Then)
	b.goTo(after)
	if s.Else != nil {
		b.cur = elseB
		b.stmt(s.Else)
		b.goTo(after)
	}
	b.cur = after
}

func (b *builder) whileStmt(s *tree.While) {
	label := b.takeLabel()
	condB := b.newBlock()
	b.goTo(condB)
	body := b.newBlock()
	after := b.newBlock()

	b.cur = condB
	b.cond(s.Cond, s, body, after)

	b.push(&scope{kind: loopScope, label: label, brk: after, cont: condB})
	b.cur = body
	b.stmt(s.Body)
	b.goTo(condB)
	b.pop()
	b.cur = after
}

func (b *builder) doWhileStmt(s *tree.DoWhile) {
	label := b.takeLabel()
	body := b.newBlock()
	b.goTo(body)
	condB := b.newBlock()
	after := b.newBlock()

	b.push(&scope{kind: loopScope, label: label, brk: after, cont: condB})
	b.cur = body
	b.stmt(s.Body)
	b.goTo(condB)
	b.pop()

	b.cur = condB
	b.cond(s.Cond, s, body, after)
	b.cur = after
}

func (b *builder) forStmt(s *tree.For) {
	label := b.takeLabel()
	b.stmts(s.Init)
	condB := b.newBlock()
	b.goTo(condB)
	body := b.newBlock()
	update := b.newBlock()
	after := b.newBlock()

	b.cur = condB
	if s.Cond != nil {
		b.cond(s.Cond, s, body, after)
	} else {
		b.goTo(body)
	}

	b.push(&scope{kind: loopScope, label: label, brk: after, cont: update})
	b.cur = body
	b.stmt(s.Body)
	b.goTo(update)
	b.pop()

	b.cur = update
	b.stmts(s.Update)
	b.goTo(condB)
	b.cur = after
}

func (b *builder) forEachStmt(s *tree.ForEach) {
	label := b.takeLabel()
	b.expr(s.X)
	b.endStatement()
	header := b.newBlock()
	b.goTo(header)
	body := b.newBlock()
	after := b.newBlock()

	b.cur = header
	b.terminate(ForEach, s, nil, body, after)

	b.push(&scope{kind: loopScope, label: label, brk: after, cont: header})
	b.cur = body
	b.stmt(s.Body)
	b.goTo(header)
	b.pop()
	b.cur = after
}

func (b *builder) switchStmt(s *tree.Switch) {
	label := b.takeLabel()
	if s.Tag != nil {
		b.expr(s.Tag)
	}
	switchB := b.cur

	clauses := make([]*Block, len(s.Cases))
	hasDefault := false
	for i, c := range s.Cases {
		clauses[i] = b.newBlock()
		if c.Exprs == nil {
			hasDefault = true
		}
	}
	after := b.newBlock()

	succs := append([]*Block(nil), clauses...)
	if !hasDefault {
		succs = append(succs, after)
	}
	b.cur = switchB
	b.terminate(Switch, s, s.Tag, succs...)

	b.push(&scope{kind: switchScope, label: label, brk: after})
	for i, c := range s.Cases {
		b.cur = clauses[i]
		b.stmts(c.Body)
		if i+1 < len(clauses) {
			b.goTo(clauses[i+1])
		} else {
			b.goTo(after)
		}
	}
	b.pop()
	b.cur = after
}

func (b *builder) labeledStmt(s *tree.Labeled) {
	switch s.Stmt.(type) {
	case *tree.While, *tree.DoWhile, *tree.For, *tree.ForEach, *tree.Switch:
		b.label = s.Label
		b.stmt(s.Stmt)
		return
	}
	after := b.newBlock()
	b.push(&scope{kind: labelScope, label: s.Label, brk: after})
	b.stmt(s.Stmt)
	b.goTo(after)
	b.pop()
	b.cur = after
}

// cond evaluates a condition. Short-circuit operators get one block per
// operand; every other expression is evaluated and ends the block with a
// Branch whose successors are [t, f].
func (b *builder) cond(e tree.Expr, owner tree.Node, t, f *Block) {
	if bin, ok := e.(*tree.Binary); ok && bin.Op.IsShortCircuit() {
		right := b.newBlock()
		if bin.Op == tree.OpAndAnd {
			b.cond(bin.X, bin, right, f)
		} else {
			b.cond(bin.X, bin, t, right)
		}
		b.cur = right
		b.cond(bin.Y, owner, t, f)
		return
	}
	b.expr(e)
	b.terminate(Branch, owner, e, t, f)
}

func (b *builder) expr(e tree.Expr) {
	switch e := e.(type) {
	case nil:
	case *tree.Literal, *tree.Ident:
		b.add(e)
	case *tree.Field:
		if e.X != nil {
			b.expr(e.X)
		}
		b.add(e)
	case *tree.Index:
		b.expr(e.X)
		b.expr(e.Index)
		b.add(e)
	case *tree.Deref:
		b.expr(e.X)
		b.add(e)
	case *tree.Call:
		if e.Recv != nil {
			b.expr(e.Recv)
		}
		for _, a := range e.Args {
			b.expr(a)
		}
		b.add(e)
	case *tree.New:
		for _, a := range e.Args {
			b.expr(a)
		}
		b.add(e)
	case *tree.Assign:
		switch t := e.Target.(type) {
		case *tree.Field:
			if t.X != nil {
				b.expr(t.X)
			}
		case *tree.Index:
			b.expr(t.X)
			b.expr(t.Index)
		case *tree.Deref:
			b.expr(t.X)
		}
		b.expr(e.Value)
		b.add(e)
	case *tree.Binary:
		if e.Op.IsShortCircuit() {
			b.shortCircuit(e)
			return
		}
		b.expr(e.X)
		b.expr(e.Y)
		b.add(e)
	case *tree.Unary:
		b.expr(e.X)
		b.add(e)
	case *tree.Conditional:
		thenB := b.newBlock()
		elseB := b.newBlock()
		join := b.newBlock()
		b.cond(e.Cond, e, thenB, elseB)
		b.cur = thenB
		b.expr(e.Then)
		b.goTo(join)
		b.cur = elseB
		b.expr(e.Else)
		b.goTo(join)
		b.cur = join
	case *tree.TypeTest:
		b.expr(e.X)
		b.add(e)
	case *tree.Cast:
		b.expr(e.X)
		b.add(e)
	case *tree.Unknown:
		for _, a := range e.Args {
			b.expr(a)
		}
		b.add(e)
	}
}

// shortCircuit builds && and || used as values. The left operand ends its
// block; the walker pushes the short-circuit literal on the second edge.
func (b *builder) shortCircuit(e *tree.Binary) {
	b.expr(e.X)
	left := b.cur
	right := b.newBlock()
	b.cur = right
	b.expr(e.Y)
	rightEnd := b.cur
	join := b.newBlock()
	kind := ConditionalAnd
	if e.Op == tree.OpOrOr {
		kind = ConditionalOr
	}
	b.cur = left
	b.terminate(kind, e, e.X, right, join)
	b.cur = rightEnd
	b.goTo(join)
	b.cur = join
}
