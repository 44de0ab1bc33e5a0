package java

import (
	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/gnolang/symex/internal/tree"
)

// block lowers the statements of a block or constructor body in a new
// scope.
func (l *lowerer) block(n *sitter.Node) *tree.Block {
	l.push()
	defer l.pop()
	res := &tree.Block{Span: l.span(n)}
	for _, c := range named(n) {
		res.Stmts = append(res.Stmts, l.stmt(c)...)
	}
	return res
}

// single lowers n into exactly one statement.
func (l *lowerer) single(n *sitter.Node) tree.Stmt {
	if n == nil {
		return &tree.Empty{}
	}
	stmts := l.stmt(n)
	if len(stmts) == 1 {
		return stmts[0]
	}
	return &tree.Block{Span: l.span(n), Stmts: stmts}
}

func one(s tree.Stmt) []tree.Stmt { return []tree.Stmt{s} }

func exprStmt(e tree.Expr) tree.Stmt {
	return &tree.ExprStmt{Span: tree.SpanOf(e), X: e}
}

func (l *lowerer) stmt(n *sitter.Node) []tree.Stmt {
	sp := l.span(n)
	switch n.Type() {
	case "block", "constructor_body":
		return one(l.block(n))
	case "local_variable_declaration":
		return l.localVars(n)
	case "expression_statement":
		x := firstNamed(n)
		if x == nil {
			return one(&tree.Empty{Span: sp})
		}
		if x.Type() == "switch_expression" {
			return one(l.switchStmt(x))
		}
		return one(&tree.ExprStmt{Span: sp, X: l.expr(x)})
	case "if_statement":
		res := &tree.If{
			Span: sp,
			Cond: l.expr(n.ChildByFieldName("condition")),
			Then: l.scoped(n.ChildByFieldName("consequence")),
		}
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			res.Else = l.scoped(alt)
		}
		return one(res)
	case "while_statement":
		return one(&tree.While{
			Span: sp,
			Cond: l.expr(n.ChildByFieldName("condition")),
			Body: l.scoped(n.ChildByFieldName("body")),
		})
	case "do_statement":
		return one(&tree.DoWhile{
			Span: sp,
			Body: l.scoped(n.ChildByFieldName("body")),
			Cond: l.expr(n.ChildByFieldName("condition")),
		})
	case "for_statement":
		return one(l.forStmt(n))
	case "enhanced_for_statement":
		return one(l.forEach(n))
	case "switch_expression", "switch_statement":
		return one(l.switchStmt(n))
	case "try_statement":
		return one(l.tryStmt(n))
	case "try_with_resources_statement":
		return one(l.tryWithResources(n))
	case "throw_statement":
		return one(&tree.Throw{Span: sp, X: l.expr(firstNamed(n))})
	case "return_statement":
		res := &tree.Return{Span: sp}
		if x := firstNamed(n); x != nil {
			res.X = l.expr(x)
		}
		return one(res)
	case "break_statement":
		return one(&tree.Break{Span: sp, Label: l.text(childOfType(n, "identifier"))})
	case "continue_statement":
		return one(&tree.Continue{Span: sp, Label: l.text(childOfType(n, "identifier"))})
	case "labeled_statement":
		var label string
		var body *sitter.Node
		for _, c := range named(n) {
			if c.Type() == "identifier" && label == "" {
				label = l.text(c)
				continue
			}
			body = c
		}
		return one(&tree.Labeled{Span: sp, Label: label, Stmt: l.single(body)})
	case "synchronized_statement":
		res := &tree.Block{Span: sp}
		for _, c := range named(n) {
			if c.Type() == "block" {
				res.Stmts = append(res.Stmts, l.block(c))
				continue
			}
			res.Stmts = append(res.Stmts, exprStmt(l.expr(c)))
		}
		return one(res)
	case "explicit_constructor_invocation":
		return one(exprStmt(l.constructorCall(n)))
	case "assert_statement":
		return one(&tree.ExprStmt{Span: sp, X: &tree.Unknown{Span: sp, Args: l.exprs(named(n))}})
	case "yield_statement":
		if x := firstNamed(n); x != nil {
			return one(&tree.ExprStmt{Span: sp, X: l.expr(x)})
		}
	case "local_class_declaration", "class_declaration", "record_declaration",
		"interface_declaration", "enum_declaration":
		l.logger.Debug("local class skipped", zap.String("procedure", l.proc.Key))
	}
	return one(&tree.Empty{Span: sp})
}

// scoped lowers the body of a compound statement in its own scope.
func (l *lowerer) scoped(n *sitter.Node) tree.Stmt {
	l.push()
	defer l.pop()
	return l.single(n)
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if cs := named(n); len(cs) > 0 {
		return cs[0]
	}
	return nil
}

// localVars lowers a declaration into one VarDecl per declarator. Each
// initializer is evaluated before its variable comes into scope.
func (l *lowerer) localVars(n *sitter.Node) []tree.Stmt {
	typ := l.text(n.ChildByFieldName("type"))
	var out []tree.Stmt
	for _, c := range named(n) {
		if c.Type() != "variable_declarator" {
			continue
		}
		var init tree.Expr
		if v := c.ChildByFieldName("value"); v != nil {
			init = l.expr(v)
		}
		name := c.ChildByFieldName("name")
		t := typ
		if dims := childOfType(c, "dimensions"); dims != nil {
			t += l.text(dims)
		}
		sym := l.declare(l.text(name), tree.Local, t, l.pos(name.StartByte()))
		out = append(out, &tree.VarDecl{Span: l.span(c), Sym: sym, Init: init})
	}
	return out
}

// forStmt lowers a basic for loop. Init and update clauses are separated by
// the semicolons of the header.
func (l *lowerer) forStmt(n *sitter.Node) tree.Stmt {
	l.push()
	defer l.pop()
	res := &tree.For{Span: l.span(n)}
	body := n.ChildByFieldName("body")
	section := 0
	for _, c := range children(n) {
		if body != nil && c.StartByte() == body.StartByte() && c.Type() == body.Type() {
			break
		}
		switch {
		case c.Type() == ";":
			section++
			continue
		case c.Type() == ")":
			section = 3
			continue
		case !c.IsNamed() || isComment(c):
			continue
		}
		switch section {
		case 0:
			if c.Type() == "local_variable_declaration" {
				res.Init = append(res.Init, l.localVars(c)...)
				section++
				continue
			}
			res.Init = append(res.Init, exprStmt(l.expr(c)))
		case 1:
			res.Cond = l.expr(c)
		case 2:
			res.Update = append(res.Update, exprStmt(l.expr(c)))
		}
	}
	res.Body = l.scoped(body)
	return res
}

func (l *lowerer) forEach(n *sitter.Node) tree.Stmt {
	x := l.expr(n.ChildByFieldName("value"))
	l.push()
	defer l.pop()
	name := n.ChildByFieldName("name")
	if name != nil && name.Type() != "identifier" {
		if id := name.ChildByFieldName("name"); id != nil {
			name = id
		}
	}
	res := &tree.ForEach{Span: l.span(n), X: x}
	if name != nil {
		typ := l.text(n.ChildByFieldName("type"))
		res.Vars = []*tree.Symbol{l.declare(l.text(name), tree.Local, typ, l.pos(name.StartByte()))}
	}
	res.Body = l.scoped(n.ChildByFieldName("body"))
	return res
}

// switchStmt lowers both statement groups, which fall through, and arrow
// rules, which end in a break.
func (l *lowerer) switchStmt(n *sitter.Node) tree.Stmt {
	sw := &tree.Switch{Span: l.span(n), Tag: l.expr(n.ChildByFieldName("condition"))}
	body := n.ChildByFieldName("body")
	l.push()
	defer l.pop()
	for _, g := range named(body) {
		c := &tree.Case{Span: l.span(g)}
		isDefault := false
		var stmts []*sitter.Node
		for _, part := range named(g) {
			if part.Type() != "switch_label" {
				stmts = append(stmts, part)
				continue
			}
			exprs := named(part)
			if len(exprs) == 0 {
				isDefault = true
				continue
			}
			for _, e := range exprs {
				c.Exprs = append(c.Exprs, l.label(e))
			}
		}
		if isDefault {
			c.Exprs = nil
		} else if c.Exprs == nil {
			c.Exprs = []tree.Expr{}
		}
		for _, s := range stmts {
			if g.Type() == "switch_rule" && s.Type() != "block" && s.Type() != "expression_statement" && s.Type() != "throw_statement" {
				// arrow rule yielding an expression
				c.Body = append(c.Body, exprStmt(l.expr(s)))
				continue
			}
			c.Body = append(c.Body, l.stmt(s)...)
		}
		if g.Type() == "switch_rule" {
			end := l.pos(g.EndByte())
			c.Body = append(c.Body, &tree.Break{Span: tree.Span{From: end, To: end}})
		}
		sw.Cases = append(sw.Cases, c)
	}
	return sw
}

// label lowers a case label. Patterns match values of unknown shape.
func (l *lowerer) label(n *sitter.Node) tree.Expr {
	switch n.Type() {
	case "type_pattern", "record_pattern", "pattern", "guard":
		return &tree.Unknown{Span: l.span(n)}
	}
	return l.expr(n)
}

func (l *lowerer) tryStmt(n *sitter.Node) tree.Stmt {
	res := &tree.Try{Span: l.span(n), Body: l.block(n.ChildByFieldName("body"))}
	l.handlers(res, n)
	return res
}

func (l *lowerer) handlers(res *tree.Try, n *sitter.Node) {
	for _, c := range named(n) {
		switch c.Type() {
		case "catch_clause":
			res.Catches = append(res.Catches, l.catch(c))
		case "finally_clause":
			res.Finally = l.block(childOfType(c, "block"))
		}
	}
}

func (l *lowerer) catch(n *sitter.Node) *tree.Catch {
	l.push()
	defer l.pop()
	res := &tree.Catch{Span: l.span(n)}
	param := childOfType(n, "catch_formal_parameter")
	var types []string
	for _, t := range named(childOfType(param, "catch_type")) {
		types = append(types, l.text(t))
	}
	res.Types = types
	name := param.ChildByFieldName("name")
	if name == nil {
		name = childOfType(param, "identifier")
	}
	if name != nil {
		typ := ""
		if len(types) == 1 {
			typ = types[0]
		}
		res.Sym = l.declare(l.text(name), tree.Local, typ, l.pos(name.StartByte()))
	}
	res.Body = l.block(n.ChildByFieldName("body"))
	return res
}

// tryWithResources declares the resources in order, each guarding the rest
// of the statement with a finally clause that closes it. Catch and finally
// clauses of the statement wrap the whole.
func (l *lowerer) tryWithResources(n *sitter.Node) tree.Stmt {
	sp := l.span(n)
	l.push()
	defer l.pop()

	var resources []*sitter.Node
	for _, r := range named(n.ChildByFieldName("resources")) {
		if r.Type() == "resource" {
			resources = append(resources, r)
		}
	}

	type opened struct {
		decl   tree.Stmt
		closed tree.Expr
	}
	var opens []opened
	for _, r := range resources {
		name := r.ChildByFieldName("name")
		if name == nil {
			// an existing variable or field
			x := l.expr(firstNamed(r))
			opens = append(opens, opened{decl: exprStmt(x), closed: l.expr(firstNamed(r))})
			continue
		}
		init := l.expr(r.ChildByFieldName("value"))
		sym := l.declare(l.text(name), tree.Local, l.text(r.ChildByFieldName("type")), l.pos(name.StartByte()))
		opens = append(opens, opened{
			decl:   &tree.VarDecl{Span: l.span(r), Sym: sym, Init: init},
			closed: &tree.Ident{Span: l.span(name), Sym: sym},
		})
	}

	var inner tree.Stmt = l.block(n.ChildByFieldName("body"))
	for i := len(opens) - 1; i >= 0; i-- {
		o := opens[i]
		fsp := tree.SpanOf(o.closed)
		closing := &tree.Call{Span: fsp, Recv: o.closed, Name: "close"}
		body, ok := inner.(*tree.Block)
		if !ok {
			body = &tree.Block{Span: tree.SpanOf(inner), Stmts: one(inner)}
		}
		inner = &tree.Block{Span: sp, Stmts: []tree.Stmt{
			o.decl,
			&tree.Try{
				Span:    sp,
				Body:    body,
				Finally: &tree.Block{Span: fsp, Stmts: one(exprStmt(closing))},
			},
		}}
	}

	res := &tree.Try{Span: sp}
	l.handlers(res, n)
	if len(res.Catches) == 0 && res.Finally == nil {
		return inner
	}
	body, ok := inner.(*tree.Block)
	if !ok {
		body = &tree.Block{Span: sp, Stmts: one(inner)}
	}
	res.Body = body
	return res
}

// constructorCall lowers this(...) and super(...). Constructors of the
// same class are resolved.
func (l *lowerer) constructorCall(n *sitter.Node) tree.Expr {
	sp := l.span(n)
	ctor := n.ChildByFieldName("constructor")
	args := named(n.ChildByFieldName("arguments"))
	call := &tree.Call{Span: sp, Name: l.text(ctor), Args: l.exprs(args)}
	if ctor != nil && ctor.Type() == "this" {
		call.Callee = Key(l.className, "<init>", len(args))
		l.proc.Calls = append(l.proc.Calls, call.Callee)
	}
	return call
}
