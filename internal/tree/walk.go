package tree

// Children returns the direct sub-nodes of n in source order.
func Children(n Node) []Node {
	var res []Node
	add := func(ns ...Node) {
		for _, c := range ns {
			if !isNil(c) {
				res = append(res, c)
			}
		}
	}
	switch n := n.(type) {
	case *Block:
		for _, s := range n.Stmts {
			add(s)
		}
	case *ExprStmt:
		add(n.X)
	case *VarDecl:
		add(n.Init)
	case *If:
		add(n.Cond, n.Then, n.Else)
	case *While:
		add(n.Cond, n.Body)
	case *DoWhile:
		add(n.Body, n.Cond)
	case *For:
		for _, s := range n.Init {
			add(s)
		}
		add(n.Cond)
		for _, s := range n.Update {
			add(s)
		}
		add(n.Body)
	case *ForEach:
		add(n.X, n.Body)
	case *Switch:
		add(n.Tag)
		for _, c := range n.Cases {
			add(c)
		}
	case *Case:
		for _, e := range n.Exprs {
			add(e)
		}
		for _, s := range n.Body {
			add(s)
		}
	case *Try:
		add(n.Body)
		for _, c := range n.Catches {
			add(c)
		}
		add(n.Finally)
	case *Catch:
		add(n.Body)
	case *Throw:
		add(n.X)
	case *Return:
		add(n.X)
	case *Labeled:
		add(n.Stmt)
	case *Field:
		add(n.X)
	case *Index:
		add(n.X, n.Index)
	case *Deref:
		add(n.X)
	case *Call:
		add(n.Recv)
		for _, a := range n.Args {
			add(a)
		}
	case *New:
		for _, a := range n.Args {
			add(a)
		}
	case *Assign:
		add(n.Target, n.Value)
	case *Binary:
		add(n.X, n.Y)
	case *Unary:
		add(n.X)
	case *Conditional:
		add(n.Cond, n.Then, n.Else)
	case *TypeTest:
		add(n.X)
	case *Cast:
		add(n.X)
	case *Unknown:
		for _, a := range n.Args {
			add(a)
		}
	}
	return res
}

// Inspect traverses n depth-first. If f returns false the children of that
// node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if isNil(n) {
		return
	}
	stack := []Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !f(cur) {
			continue
		}
		children := Children(cur)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

// isNil catches typed nil pointers stored in an interface.
func isNil(n Node) bool {
	if n == nil {
		return true
	}
	switch n := n.(type) {
	case *Block:
		return n == nil
	case Expr:
		return isNilExpr(n)
	case Stmt:
		return isNilStmt(n)
	}
	return false
}

func isNilExpr(e Expr) bool {
	switch e := e.(type) {
	case *Literal:
		return e == nil
	case *Ident:
		return e == nil
	case *Field:
		return e == nil
	case *Index:
		return e == nil
	case *Deref:
		return e == nil
	case *Call:
		return e == nil
	case *New:
		return e == nil
	case *Assign:
		return e == nil
	case *Binary:
		return e == nil
	case *Unary:
		return e == nil
	case *Conditional:
		return e == nil
	case *TypeTest:
		return e == nil
	case *Cast:
		return e == nil
	case *Unknown:
		return e == nil
	}
	return false
}

func isNilStmt(s Stmt) bool {
	switch s := s.(type) {
	case *ExprStmt:
		return s == nil
	case *VarDecl:
		return s == nil
	case *If:
		return s == nil
	case *While:
		return s == nil
	case *DoWhile:
		return s == nil
	case *For:
		return s == nil
	case *ForEach:
		return s == nil
	case *Switch:
		return s == nil
	case *Case:
		return s == nil
	case *Try:
		return s == nil
	case *Catch:
		return s == nil
	case *Throw:
		return s == nil
	case *Return:
		return s == nil
	case *Break:
		return s == nil
	case *Continue:
		return s == nil
	case *Labeled:
		return s == nil
	case *Empty:
		return s == nil
	}
	return false
}

// StripCasts returns e without enclosing casts.
func StripCasts(e Expr) Expr {
	for {
		c, ok := e.(*Cast)
		if !ok || c == nil {
			return e
		}
		e = c.X
	}
}
