package golang

import (
	"go/ast"
	"go/token"
	"strconv"

	"go.uber.org/zap"

	"github.com/gnolang/symex/internal/tree"
)

// stmtList lowers a statement list. At the top level of a function body a
// defer wraps the statements after it in a try whose finally clause runs the
// deferred call. Nested defers are dropped.
func (l *lowerer) stmtList(list []ast.Stmt, top bool) []tree.Stmt {
	var out []tree.Stmt
	for i, s := range list {
		d, ok := s.(*ast.DeferStmt)
		if !ok {
			out = append(out, l.stmt(s)...)
			continue
		}
		if !top {
			l.logger.Debug("nested defer ignored",
				zap.String("procedure", l.proc.Key),
				zap.String("pos", l.fset.Position(d.Pos()).String()))
			continue
		}
		rest := l.stmtList(list[i+1:], true)
		body := &tree.Block{Span: span(d), Stmts: rest}
		if len(rest) > 0 {
			body.Span = tree.Span{From: rest[0].Pos(), To: rest[len(rest)-1].End()}
		}
		fin := &tree.Block{Span: span(d), Stmts: []tree.Stmt{l.callStmt(d.Call, span(d))}}
		return append(out, &tree.Try{
			Span:    tree.Span{From: d.Pos(), To: body.End()},
			Body:    body,
			Finally: fin,
		})
	}
	return out
}

func (l *lowerer) block(b *ast.BlockStmt) *tree.Block {
	l.push()
	defer l.pop()
	return &tree.Block{Span: span(b), Stmts: l.stmtList(b.List, false)}
}

// single lowers s into exactly one statement.
func (l *lowerer) single(s ast.Stmt) tree.Stmt {
	stmts := l.stmt(s)
	if len(stmts) == 1 {
		return stmts[0]
	}
	return &tree.Block{Span: span(s), Stmts: stmts}
}

func one(s tree.Stmt) []tree.Stmt { return []tree.Stmt{s} }

func exprStmt(e tree.Expr) tree.Stmt {
	return &tree.ExprStmt{Span: tree.SpanOf(e), X: e}
}

func (l *lowerer) stmt(s ast.Stmt) []tree.Stmt {
	sp := span(s)
	switch s := s.(type) {
	case *ast.BlockStmt:
		return one(l.block(s))
	case *ast.ExprStmt:
		if call, ok := unparen(s.X).(*ast.CallExpr); ok {
			return one(l.callStmt(call, sp))
		}
		return one(&tree.ExprStmt{Span: sp, X: l.expr(s.X)})
	case *ast.AssignStmt:
		return l.assign(s)
	case *ast.IncDecStmt:
		op := tree.OpInc
		if s.Tok == token.DEC {
			op = tree.OpDec
		}
		return one(&tree.ExprStmt{Span: sp, X: &tree.Unary{Span: sp, Op: op, X: l.expr(s.X), Postfix: true}})
	case *ast.DeclStmt:
		return l.decl(s)
	case *ast.IfStmt:
		return one(l.ifStmt(s))
	case *ast.ForStmt:
		return one(l.forStmt(s))
	case *ast.RangeStmt:
		return one(l.rangeStmt(s))
	case *ast.SwitchStmt:
		if s.Tag == nil {
			return one(l.taglessSwitch(s))
		}
		return one(l.switchStmt(s))
	case *ast.TypeSwitchStmt:
		return one(l.typeSwitch(s))
	case *ast.SelectStmt:
		return one(l.selectStmt(s))
	case *ast.ReturnStmt:
		return l.returnStmt(s)
	case *ast.BranchStmt:
		return one(l.branch(s))
	case *ast.LabeledStmt:
		return one(&tree.Labeled{Span: sp, Label: s.Label.Name, Stmt: l.single(s.Stmt)})
	case *ast.GoStmt:
		return one(&tree.ExprStmt{Span: sp, X: &tree.Unknown{Span: sp, Args: l.exprs(s.Call.Args)}})
	case *ast.SendStmt:
		return one(&tree.ExprStmt{Span: sp, X: &tree.Unknown{Span: sp, Args: l.exprs([]ast.Expr{s.Chan, s.Value})}})
	case *ast.DeferStmt:
		// labeled defer
		return nil
	}
	return one(&tree.Empty{Span: sp})
}

// callStmt lowers a call statement. Calls that never return become throws.
func (l *lowerer) callStmt(call *ast.CallExpr, sp tree.Span) tree.Stmt {
	if typ, ok := l.deviating(call); ok {
		return &tree.Throw{Span: sp, X: &tree.New{Span: span(call), Type: typ, Args: l.exprs(call.Args)}}
	}
	return &tree.ExprStmt{Span: sp, X: l.expr(call)}
}

func (l *lowerer) ifStmt(s *ast.IfStmt) tree.Stmt {
	l.push()
	defer l.pop()
	var init []tree.Stmt
	if s.Init != nil {
		init = l.stmt(s.Init)
	}
	res := &tree.If{Span: span(s), Cond: l.expr(s.Cond), Then: l.block(s.Body)}
	if s.Else != nil {
		res.Else = l.single(s.Else)
	}
	if len(init) == 0 {
		return res
	}
	return &tree.Block{Span: span(s), Stmts: append(init, res)}
}

// loop lowers a loop body with unlabeled breaks targeting the loop.
func (l *lowerer) loop(body *ast.BlockStmt) *tree.Block {
	l.breakables = append(l.breakables, "")
	defer func() { l.breakables = l.breakables[:len(l.breakables)-1] }()
	return l.block(body)
}

func (l *lowerer) forStmt(s *ast.ForStmt) tree.Stmt {
	l.push()
	defer l.pop()
	res := &tree.For{Span: span(s)}
	if s.Init != nil {
		res.Init = l.stmt(s.Init)
	}
	if s.Cond != nil {
		res.Cond = l.expr(s.Cond)
	}
	if s.Post != nil {
		res.Update = l.stmt(s.Post)
	}
	res.Body = l.loop(s.Body)
	return res
}

func (l *lowerer) rangeStmt(s *ast.RangeStmt) tree.Stmt {
	x := l.expr(s.X)
	l.push()
	defer l.pop()
	res := &tree.ForEach{Span: span(s), X: x}
	for _, e := range []ast.Expr{s.Key, s.Value} {
		id, ok := e.(*ast.Ident)
		if !ok || id.Name == "_" {
			continue
		}
		var sym *tree.Symbol
		if s.Tok == token.DEFINE {
			sym = l.declare(id.Name, tree.Local, l.defType(id, nil), id.Pos())
		} else if sym = l.lookup(id.Name); sym == nil {
			continue
		}
		res.Vars = append(res.Vars, sym)
	}
	res.Body = l.loop(s.Body)
	return res
}

// clauseBody lowers the statements of a switch clause and closes it with a
// break unless it falls through.
func (l *lowerer) clauseBody(stmts []ast.Stmt, end token.Pos) []tree.Stmt {
	l.push()
	defer l.pop()
	if n := len(stmts); n > 0 {
		if b, ok := stmts[n-1].(*ast.BranchStmt); ok && b.Tok == token.FALLTHROUGH {
			return l.stmtList(stmts[:n-1], false)
		}
	}
	return append(l.stmtList(stmts, false), &tree.Break{Span: tree.Span{From: end, To: end}})
}

func (l *lowerer) switchStmt(s *ast.SwitchStmt) tree.Stmt {
	l.push()
	defer l.pop()
	var init []tree.Stmt
	if s.Init != nil {
		init = l.stmt(s.Init)
	}
	sw := &tree.Switch{Span: span(s), Tag: l.expr(s.Tag)}
	l.breakables = append(l.breakables, "")
	for _, st := range s.Body.List {
		cc := st.(*ast.CaseClause)
		c := &tree.Case{Span: span(cc)}
		if cc.List != nil {
			c.Exprs = make([]tree.Expr, 0, len(cc.List))
			for _, e := range cc.List {
				c.Exprs = append(c.Exprs, l.expr(e))
			}
		}
		c.Body = l.clauseBody(cc.Body, cc.End())
		sw.Cases = append(sw.Cases, c)
	}
	l.breakables = l.breakables[:len(l.breakables)-1]
	if len(init) == 0 {
		return sw
	}
	return &tree.Block{Span: span(s), Stmts: append(init, sw)}
}

// taglessSwitch lowers switch { case c1: ... } into a labeled if-chain whose
// unlabeled breaks target the label.
func (l *lowerer) taglessSwitch(s *ast.SwitchStmt) tree.Stmt {
	for _, st := range s.Body.List {
		cc := st.(*ast.CaseClause)
		if n := len(cc.Body); n > 0 {
			if b, ok := cc.Body[n-1].(*ast.BranchStmt); ok && b.Tok == token.FALLTHROUGH {
				l.proc.Unsupported = "fallthrough in tagless switch"
				return &tree.Empty{Span: span(s)}
			}
		}
	}

	l.push()
	defer l.pop()
	var init []tree.Stmt
	if s.Init != nil {
		init = l.stmt(s.Init)
	}
	l.switches++
	label := "switch~" + strconv.Itoa(l.switches)
	l.breakables = append(l.breakables, label)
	defer func() { l.breakables = l.breakables[:len(l.breakables)-1] }()

	var (
		cases []*ast.CaseClause
		def   *ast.CaseClause
	)
	for _, st := range s.Body.List {
		cc := st.(*ast.CaseClause)
		if cc.List == nil {
			def = cc
		} else {
			cases = append(cases, cc)
		}
	}

	var chain tree.Stmt
	if def != nil {
		chain = l.caseBlock(def)
	}
	for i := len(cases) - 1; i >= 0; i-- {
		cc := cases[i]
		var cond tree.Expr
		for _, e := range cc.List {
			x := l.expr(e)
			if cond == nil {
				cond = x
				continue
			}
			cond = &tree.Binary{Span: tree.Span{From: cond.Pos(), To: x.End()}, Op: tree.OpOrOr, X: cond, Y: x}
		}
		chain = &tree.If{Span: span(cc), Cond: cond, Then: l.caseBlock(cc), Else: chain}
	}
	if chain == nil {
		chain = &tree.Empty{Span: span(s)}
	}
	res := &tree.Labeled{Span: span(s), Label: label, Stmt: chain}
	if len(init) == 0 {
		return res
	}
	return &tree.Block{Span: span(s), Stmts: append(init, res)}
}

func (l *lowerer) caseBlock(cc *ast.CaseClause) *tree.Block {
	l.push()
	defer l.pop()
	return &tree.Block{Span: span(cc), Stmts: l.stmtList(cc.Body, false)}
}

// typeSwitch lowers a type switch into a switch on an unknown tag. A bound
// variable is redeclared in each clause.
func (l *lowerer) typeSwitch(s *ast.TypeSwitchStmt) tree.Stmt {
	l.push()
	defer l.pop()
	var init []tree.Stmt
	if s.Init != nil {
		init = l.stmt(s.Init)
	}

	var (
		bound  *ast.Ident
		assert *ast.TypeAssertExpr
	)
	switch a := s.Assign.(type) {
	case *ast.ExprStmt:
		assert, _ = a.X.(*ast.TypeAssertExpr)
	case *ast.AssignStmt:
		if len(a.Lhs) == 1 && len(a.Rhs) == 1 {
			bound, _ = a.Lhs[0].(*ast.Ident)
			assert, _ = a.Rhs[0].(*ast.TypeAssertExpr)
		}
	}
	var x ast.Expr
	var tag tree.Expr = &tree.Unknown{Span: span(s.Assign)}
	if assert != nil {
		x = assert.X
		tag = &tree.Unknown{Span: span(assert), Args: []tree.Expr{l.expr(x)}}
	}

	sw := &tree.Switch{Span: span(s), Tag: tag}
	l.breakables = append(l.breakables, "")
	for _, st := range s.Body.List {
		cc := st.(*ast.CaseClause)
		c := &tree.Case{Span: span(cc)}
		if cc.List != nil {
			c.Exprs = []tree.Expr{}
		}
		l.push()
		var prelude []tree.Stmt
		if bound != nil && bound.Name != "_" {
			init := l.boundValue(cc, x)
			sym := l.declare(bound.Name, tree.Local, "", bound.Pos())
			prelude = append(prelude, &tree.VarDecl{Span: span(cc), Sym: sym, Init: init})
		}
		c.Body = append(prelude, l.clauseBody(cc.Body, cc.End())...)
		l.pop()
		sw.Cases = append(sw.Cases, c)
	}
	l.breakables = l.breakables[:len(l.breakables)-1]
	if len(init) == 0 {
		return sw
	}
	return &tree.Block{Span: span(s), Stmts: append(init, sw)}
}

// boundValue is the value of a type switch variable in clause cc: nil in a
// nil case, the switched variable itself when it is a plain identifier.
func (l *lowerer) boundValue(cc *ast.CaseClause, x ast.Expr) tree.Expr {
	sp := span(cc)
	if len(cc.List) == 1 {
		if id, ok := cc.List[0].(*ast.Ident); ok && id.Name == "nil" {
			return &tree.Literal{Span: sp, Kind: tree.NullLit, Value: "nil"}
		}
	}
	if id, ok := x.(*ast.Ident); ok {
		typ := ""
		if len(cc.List) == 1 {
			typ = l.typeString(cc.List[0])
		}
		return &tree.Cast{Span: sp, X: l.expr(id), Type: typ}
	}
	return &tree.Unknown{Span: sp}
}

func (l *lowerer) selectStmt(s *ast.SelectStmt) tree.Stmt {
	sw := &tree.Switch{Span: span(s), Tag: &tree.Unknown{Span: span(s)}}
	l.breakables = append(l.breakables, "")
	defer func() { l.breakables = l.breakables[:len(l.breakables)-1] }()
	for _, st := range s.Body.List {
		cc := st.(*ast.CommClause)
		c := &tree.Case{Span: span(cc)}
		l.push()
		var body []tree.Stmt
		if cc.Comm != nil {
			c.Exprs = []tree.Expr{}
			body = l.stmt(cc.Comm)
		}
		c.Body = append(body, l.clauseBody(cc.Body, cc.End())...)
		l.pop()
		sw.Cases = append(sw.Cases, c)
	}
	return sw
}

// returnStmt lowers a return. The first result is the returned value; the
// others are evaluated just before it.
func (l *lowerer) returnStmt(s *ast.ReturnStmt) []tree.Stmt {
	sp := span(s)
	var results []tree.Expr
	if len(s.Results) == 0 {
		for _, sym := range l.results {
			results = append(results, &tree.Ident{Span: sp, Sym: sym})
		}
	} else {
		results = l.exprs(s.Results)
	}
	if len(results) == 0 {
		return one(&tree.Return{Span: sp})
	}
	var out []tree.Stmt
	if len(results) > 1 {
		rest := results[1:]
		out = append(out, &tree.ExprStmt{
			Span: sp,
			X:    &tree.Unknown{Span: tree.Span{From: rest[0].Pos(), To: rest[len(rest)-1].End()}, Args: rest, Returned: true},
		})
	}
	return append(out, &tree.Return{Span: sp, X: results[0]})
}

func (l *lowerer) branch(s *ast.BranchStmt) tree.Stmt {
	sp := span(s)
	label := ""
	if s.Label != nil {
		label = s.Label.Name
	}
	switch s.Tok {
	case token.BREAK:
		if label == "" && len(l.breakables) > 0 {
			label = l.breakables[len(l.breakables)-1]
		}
		return &tree.Break{Span: sp, Label: label}
	case token.CONTINUE:
		return &tree.Continue{Span: sp, Label: label}
	case token.GOTO:
		l.proc.Unsupported = "goto"
	}
	return &tree.Empty{Span: sp}
}

// assign lowers assignments and short variable declarations.
func (l *lowerer) assign(s *ast.AssignStmt) []tree.Stmt {
	define := s.Tok == token.DEFINE
	op := assignOps[s.Tok]

	if len(s.Lhs) == len(s.Rhs) {
		if len(s.Lhs) == 1 {
			value := l.expr(s.Rhs[0])
			return one(exprStmt(l.assignTo(s.Lhs[0], value, op, define, span(s))))
		}
		// a, b = b, a: every value is read before any is stored
		var out []tree.Stmt
		tmps := make([]*tree.Symbol, len(s.Rhs))
		for i, rhs := range s.Rhs {
			tmps[i] = l.temp(rhs.Pos())
			out = append(out, &tree.VarDecl{Span: span(rhs), Sym: tmps[i], Init: l.expr(rhs)})
		}
		for i, lhs := range s.Lhs {
			v := &tree.Ident{Span: span(s.Rhs[i]), Sym: tmps[i]}
			out = append(out, exprStmt(l.assignTo(lhs, v, tree.OpNone, define, span(lhs))))
		}
		return out
	}

	// x, y := f(), v, ok := m[k] and the like
	if len(s.Rhs) != 1 {
		return one(&tree.Empty{Span: span(s)})
	}
	rhs := s.Rhs[0]
	value := l.expr(rhs)
	if _, ok := unparen(rhs).(*ast.CallExpr); !ok {
		value = &tree.Unknown{Span: span(rhs), Args: []tree.Expr{value}}
	}
	var out []tree.Stmt
	for i, lhs := range s.Lhs {
		var v tree.Expr = &tree.Unknown{Span: span(lhs)}
		if i == 0 {
			v = value
		}
		out = append(out, exprStmt(l.assignTo(lhs, v, tree.OpNone, define, span(lhs))))
	}
	return out
}

var assignOps = map[token.Token]tree.Op{
	token.ADD_ASSIGN:     tree.OpAdd,
	token.SUB_ASSIGN:     tree.OpSub,
	token.MUL_ASSIGN:     tree.OpMul,
	token.QUO_ASSIGN:     tree.OpQuo,
	token.REM_ASSIGN:     tree.OpRem,
	token.AND_ASSIGN:     tree.OpAnd,
	token.OR_ASSIGN:      tree.OpOr,
	token.XOR_ASSIGN:     tree.OpXor,
	token.SHL_ASSIGN:     tree.OpShl,
	token.SHR_ASSIGN:     tree.OpShr,
	token.AND_NOT_ASSIGN: tree.OpAndNot,
}

// assignTo stores value into lhs. A blank target only evaluates value.
func (l *lowerer) assignTo(lhs ast.Expr, value tree.Expr, op tree.Op, define bool, sp tree.Span) tree.Expr {
	id, ok := lhs.(*ast.Ident)
	if !ok {
		return &tree.Assign{Span: sp, Target: l.expr(lhs), Op: op, Value: value}
	}
	if id.Name == "_" {
		return value
	}
	var sym *tree.Symbol
	if define {
		if sym = l.scopes[len(l.scopes)-1][id.Name]; sym == nil {
			sym = l.declare(id.Name, tree.Local, l.defType(id, nil), id.Pos())
		}
	} else if sym = l.lookup(id.Name); sym == nil {
		sym = l.global(id.Name)
	}
	return &tree.Assign{Span: sp, Target: &tree.Ident{Span: span(id), Sym: sym}, Op: op, Value: value}
}

// decl lowers var and const declarations. Variables without a value get the
// zero value of their type.
func (l *lowerer) decl(s *ast.DeclStmt) []tree.Stmt {
	gd, ok := s.Decl.(*ast.GenDecl)
	if !ok || (gd.Tok != token.VAR && gd.Tok != token.CONST) {
		return nil
	}
	var out []tree.Stmt
	for _, spec := range gd.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		values := l.exprs(vs.Values)
		if len(values) == 1 && len(vs.Names) > 1 {
			if _, ok := unparen(vs.Values[0]).(*ast.CallExpr); !ok {
				values[0] = &tree.Unknown{Span: tree.SpanOf(values[0]), Args: []tree.Expr{values[0]}}
			}
		}
		for i, n := range vs.Names {
			var init tree.Expr
			switch {
			case i < len(values) && (len(values) == len(vs.Names) || i == 0):
				init = values[i]
			case len(values) > 0:
				init = &tree.Unknown{Span: span(n)}
			case gd.Tok == token.VAR:
				init = l.zero(l.typeOf(n), vs.Type, n)
			}
			if n.Name == "_" {
				if init != nil {
					out = append(out, exprStmt(init))
				}
				continue
			}
			sym := l.declare(n.Name, tree.Local, l.defType(n, vs.Type), n.Pos())
			out = append(out, &tree.VarDecl{Span: span(n), Sym: sym, Init: init})
		}
	}
	return out
}
