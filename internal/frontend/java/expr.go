package java

import (
	"fmt"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/gnolang/symex/internal/tree"
)

var binaryOps = map[string]tree.Op{
	"==":  tree.OpEq,
	"!=":  tree.OpNe,
	"<":   tree.OpLt,
	"<=":  tree.OpLe,
	">":   tree.OpGt,
	">=":  tree.OpGe,
	"&&":  tree.OpAndAnd,
	"||":  tree.OpOrOr,
	"&":   tree.OpAnd,
	"|":   tree.OpOr,
	"^":   tree.OpXor,
	"+":   tree.OpAdd,
	"-":   tree.OpSub,
	"*":   tree.OpMul,
	"/":   tree.OpQuo,
	"%":   tree.OpRem,
	"<<":  tree.OpShl,
	">>":  tree.OpShr,
	">>>": tree.OpShr,
}

var assignOps = map[string]tree.Op{
	"=":    tree.OpNone,
	"+=":   tree.OpAdd,
	"-=":   tree.OpSub,
	"*=":   tree.OpMul,
	"/=":   tree.OpQuo,
	"%=":   tree.OpRem,
	"&=":   tree.OpAnd,
	"|=":   tree.OpOr,
	"^=":   tree.OpXor,
	"<<=":  tree.OpShl,
	">>=":  tree.OpShr,
	">>>=": tree.OpShr,
}

var unaryOps = map[string]tree.Op{
	"!": tree.OpNot,
	"-": tree.OpNeg,
	"+": tree.OpPlus,
	"~": tree.OpCompl,
}

func (l *lowerer) exprs(ns []*sitter.Node) []tree.Expr {
	res := make([]tree.Expr, 0, len(ns))
	for _, n := range ns {
		res = append(res, l.expr(n))
	}
	return res
}

func (l *lowerer) expr(n *sitter.Node) tree.Expr {
	if n == nil {
		return &tree.Unknown{}
	}
	sp := l.span(n)
	switch n.Type() {
	case "parenthesized_expression":
		return l.expr(firstNamed(n))
	case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal", "binary_integer_literal":
		return &tree.Literal{Span: sp, Kind: tree.IntLit, Value: l.text(n)}
	case "decimal_floating_point_literal", "hex_floating_point_literal":
		return &tree.Literal{Span: sp, Kind: tree.FloatLit, Value: l.text(n)}
	case "character_literal":
		return &tree.Literal{Span: sp, Kind: tree.CharLit, Value: l.text(n)}
	case "string_literal", "text_block":
		return &tree.Literal{Span: sp, Kind: tree.StringLit, Value: l.text(n)}
	case "true", "false":
		return &tree.Literal{Span: sp, Kind: tree.BoolLit, Value: n.Type()}
	case "null_literal":
		return &tree.Literal{Span: sp, Kind: tree.NullLit, Value: "null"}
	case "identifier":
		return l.ident(n)
	case "this", "super":
		return l.self(sp)
	case "field_access":
		return l.fieldAccess(n)
	case "array_access":
		return &tree.Index{
			Span:   sp,
			X:      l.expr(n.ChildByFieldName("array")),
			Index:  l.expr(n.ChildByFieldName("index")),
			Derefs: true,
		}
	case "method_invocation":
		return l.invocation(n)
	case "object_creation_expression":
		return &tree.New{
			Span: sp,
			Type: l.text(n.ChildByFieldName("type")),
			Args: l.exprs(named(n.ChildByFieldName("arguments"))),
		}
	case "array_creation_expression":
		res := &tree.New{Span: sp, Type: l.text(n.ChildByFieldName("type")) + "[]"}
		for _, c := range named(n) {
			switch c.Type() {
			case "dimensions_expr":
				res.Args = append(res.Args, l.expr(firstNamed(c)))
			case "array_initializer":
				res.Args = append(res.Args, l.exprs(named(c))...)
			}
		}
		return res
	case "array_initializer":
		return &tree.New{Span: sp, Type: "[]", Args: l.exprs(named(n))}
	case "assignment_expression":
		op, ok := assignOps[l.text(n.ChildByFieldName("operator"))]
		if !ok {
			op = tree.OpNone
		}
		// the target is resolved first so that a[i] = v evaluates a and i
		// before v
		target := l.expr(n.ChildByFieldName("left"))
		return &tree.Assign{Span: sp, Target: target, Op: op, Value: l.expr(n.ChildByFieldName("right"))}
	case "binary_expression":
		x := l.expr(n.ChildByFieldName("left"))
		y := l.expr(n.ChildByFieldName("right"))
		op, ok := binaryOps[l.text(n.ChildByFieldName("operator"))]
		if !ok {
			return &tree.Unknown{Span: sp, Args: []tree.Expr{x, y}}
		}
		return &tree.Binary{Span: sp, Op: op, X: x, Y: y}
	case "unary_expression":
		x := l.expr(n.ChildByFieldName("operand"))
		if op, ok := unaryOps[l.text(n.ChildByFieldName("operator"))]; ok {
			return &tree.Unary{Span: sp, Op: op, X: x}
		}
		return &tree.Unknown{Span: sp, Args: []tree.Expr{x}}
	case "update_expression":
		return l.update(n)
	case "ternary_expression":
		return &tree.Conditional{
			Span: sp,
			Cond: l.expr(n.ChildByFieldName("condition")),
			Then: l.expr(n.ChildByFieldName("consequence")),
			Else: l.expr(n.ChildByFieldName("alternative")),
		}
	case "instanceof_expression":
		return l.instanceOf(n)
	case "cast_expression":
		return &tree.Cast{
			Span: sp,
			X:    l.expr(n.ChildByFieldName("value")),
			Type: l.text(n.ChildByFieldName("type")),
		}
	case "lambda_expression", "method_reference":
		return &tree.New{Span: sp, Type: "lambda"}
	case "class_literal":
		return &tree.New{Span: sp, Type: "Class"}
	case "switch_expression":
		return &tree.Unknown{Span: sp, Args: []tree.Expr{l.expr(n.ChildByFieldName("condition"))}}
	}
	return &tree.Unknown{Span: sp}
}

func (l *lowerer) self(sp tree.Span) tree.Expr {
	if l.this == nil {
		return &tree.Unknown{Span: sp}
	}
	return &tree.Ident{Span: sp, Sym: l.this}
}

// ident resolves a name to a local, or else to a field of the implicit
// receiver.
func (l *lowerer) ident(n *sitter.Node) tree.Expr {
	sp := l.span(n)
	name := l.text(n)
	if sym := l.lookup(name); sym != nil {
		return &tree.Ident{Span: sp, Sym: sym}
	}
	if isClassName(name) {
		return &tree.Field{Span: sp, Name: name, Sym: l.global(name)}
	}
	return &tree.Field{Span: sp, Name: name, Sym: l.field(name)}
}

func isClassName(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}

// qualifier returns the simple class name when n names a class, as in
// Objects or java.util.Objects.
func (l *lowerer) qualifier(n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "identifier", "field_access", "scoped_identifier":
	default:
		return "", false
	}
	text := l.text(n)
	parts := strings.Split(text, ".")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || strings.ContainsAny(p, "()[]<> \t\n") {
			return "", false
		}
	}
	if l.lookup(strings.TrimSpace(parts[0])) != nil {
		return "", false
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	if !isClassName(last) || len(last) > 1 && strings.ToUpper(last) == last {
		// a constant such as LOG or Color.RED
		return "", false
	}
	return last, true
}

func (l *lowerer) fieldAccess(n *sitter.Node) tree.Expr {
	sp := l.span(n)
	obj := n.ChildByFieldName("object")
	name := l.text(n.ChildByFieldName("field"))
	if q, ok := l.qualifier(obj); ok {
		full := q + "." + name
		return &tree.Field{Span: sp, Name: full, Sym: l.global(full)}
	}
	x := l.expr(obj)
	isSelf := obj != nil && (obj.Type() == "this" || obj.Type() == "super")
	return &tree.Field{Span: sp, X: x, Name: name, Sym: l.field(name), Derefs: !isSelf}
}

// invocation lowers a method call. Static calls and calls of methods of the
// current class that cannot be overridden get a behavior key.
func (l *lowerer) invocation(n *sitter.Node) tree.Expr {
	sp := l.span(n)
	obj := n.ChildByFieldName("object")
	name := l.text(n.ChildByFieldName("name"))
	argNodes := named(n.ChildByFieldName("arguments"))
	arity := len(argNodes)

	var (
		recv   tree.Expr
		key    string
		derefs bool
	)
	switch {
	case obj == nil:
		if l.local[fmt.Sprintf("%s(%d)", name, arity)] {
			key = Key(l.className, name, arity)
		}
		if l.this != nil {
			recv = &tree.Ident{Span: sp, Sym: l.this}
		}
	case obj.Type() == "this":
		recv = l.self(l.span(obj))
		if l.local[fmt.Sprintf("%s(%d)", name, arity)] {
			key = Key(l.className, name, arity)
		}
	case obj.Type() == "super":
		recv = l.self(l.span(obj))
	default:
		if q, ok := l.qualifier(obj); ok {
			if q == "Objects" && name == "equals" && arity == 2 {
				args := l.exprs(argNodes)
				return &tree.Binary{Span: sp, Op: tree.OpValueEq, X: args[0], Y: args[1]}
			}
			key = Key(q, name, arity)
			break
		}
		recv = l.expr(obj)
		derefs = true
		if obj.Type() == "string_literal" && name == "equals" && arity == 1 {
			return &tree.Binary{Span: sp, Op: tree.OpValueEq, X: recv, Y: l.expr(argNodes[0])}
		}
	}

	if key != "" {
		l.proc.Calls = append(l.proc.Calls, key)
	}
	return &tree.Call{
		Span:      sp,
		Recv:      recv,
		Name:      name,
		Args:      l.exprs(argNodes),
		Callee:    key,
		DerefRecv: derefs,
	}
}

func (l *lowerer) update(n *sitter.Node) tree.Expr {
	sp := l.span(n)
	cs := children(n)
	if len(cs) < 2 {
		return &tree.Unknown{Span: sp}
	}
	prefix := !cs[0].IsNamed()
	opNode, xNode := cs[len(cs)-1], cs[0]
	if prefix {
		opNode, xNode = cs[0], cs[len(cs)-1]
	}
	op := tree.OpInc
	if opNode.Type() == "--" {
		op = tree.OpDec
	}
	return &tree.Unary{Span: sp, Op: op, X: l.expr(xNode), Postfix: !prefix}
}

// instanceOf lowers x instanceof T. A pattern variable is declared in the
// enclosing scope with an unknown value.
func (l *lowerer) instanceOf(n *sitter.Node) tree.Expr {
	sp := l.span(n)
	x := l.expr(n.ChildByFieldName("left"))
	typ := n.ChildByFieldName("right")
	name := n.ChildByFieldName("name")
	if pattern := n.ChildByFieldName("pattern"); pattern != nil {
		typ = firstNamed(pattern)
		for _, c := range named(pattern) {
			if c.Type() == "identifier" {
				name = c
			}
		}
	}
	if name != nil {
		l.declare(l.text(name), tree.Local, l.text(typ), l.pos(name.StartByte()))
	}
	return &tree.TypeTest{Span: sp, X: x, Type: l.text(typ)}
}
