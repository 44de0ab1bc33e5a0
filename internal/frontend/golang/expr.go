package golang

import (
	"go/ast"
	"go/token"
	"go/types"

	"github.com/gnolang/symex/internal/tree"
)

var binaryOps = map[token.Token]tree.Op{
	token.EQL:     tree.OpEq,
	token.NEQ:     tree.OpNe,
	token.LSS:     tree.OpLt,
	token.LEQ:     tree.OpLe,
	token.GTR:     tree.OpGt,
	token.GEQ:     tree.OpGe,
	token.LAND:    tree.OpAndAnd,
	token.LOR:     tree.OpOrOr,
	token.ADD:     tree.OpAdd,
	token.SUB:     tree.OpSub,
	token.MUL:     tree.OpMul,
	token.QUO:     tree.OpQuo,
	token.REM:     tree.OpRem,
	token.SHL:     tree.OpShl,
	token.SHR:     tree.OpShr,
	token.AND_NOT: tree.OpAndNot,
}

func (l *lowerer) exprs(list []ast.Expr) []tree.Expr {
	var res []tree.Expr
	for _, e := range list {
		if e != nil {
			res = append(res, l.expr(e))
		}
	}
	return res
}

func (l *lowerer) expr(e ast.Expr) tree.Expr {
	sp := span(e)
	switch e := e.(type) {
	case nil:
		return nil
	case *ast.ParenExpr:
		return l.expr(e.X)
	case *ast.Ident:
		return l.ident(e)
	case *ast.BasicLit:
		return basicLit(e)
	case *ast.CompositeLit:
		return &tree.New{Span: sp, Type: l.typeString(e.Type), Args: l.elements(e.Elts)}
	case *ast.FuncLit:
		return &tree.New{Span: sp, Type: "func"}
	case *ast.SelectorExpr:
		return l.selector(e)
	case *ast.IndexExpr:
		if l.isCallable(e.X) {
			// generic instantiation
			return l.expr(e.X)
		}
		return &tree.Index{Span: sp, X: l.expr(e.X), Index: l.expr(e.Index), Derefs: isPointer(l.typeOf(e.X))}
	case *ast.IndexListExpr:
		return l.expr(e.X)
	case *ast.SliceExpr:
		return &tree.Unknown{Span: sp, Args: l.exprs([]ast.Expr{e.X, e.Low, e.High, e.Max})}
	case *ast.StarExpr:
		return &tree.Deref{Span: sp, X: l.expr(e.X)}
	case *ast.UnaryExpr:
		return l.unary(e)
	case *ast.BinaryExpr:
		x, y := l.expr(e.X), l.expr(e.Y)
		if op, ok := binaryOps[e.Op]; ok {
			return &tree.Binary{Span: sp, Op: op, X: x, Y: y}
		}
		// bitwise and, or and xor
		return &tree.Unknown{Span: sp, Args: []tree.Expr{x, y}}
	case *ast.CallExpr:
		return l.call(e)
	case *ast.TypeAssertExpr:
		return &tree.Cast{Span: sp, X: l.expr(e.X), Type: l.typeString(e.Type)}
	case *ast.KeyValueExpr:
		return l.expr(e.Value)
	}
	return &tree.Unknown{Span: sp}
}

func (l *lowerer) elements(elts []ast.Expr) []tree.Expr {
	res := make([]tree.Expr, 0, len(elts))
	for _, e := range elts {
		res = append(res, l.expr(e))
	}
	return res
}

func basicLit(e *ast.BasicLit) tree.Expr {
	sp := span(e)
	switch e.Kind {
	case token.INT:
		return &tree.Literal{Span: sp, Kind: tree.IntLit, Value: e.Value}
	case token.FLOAT, token.IMAG:
		return &tree.Literal{Span: sp, Kind: tree.FloatLit, Value: e.Value}
	case token.CHAR:
		return &tree.Literal{Span: sp, Kind: tree.CharLit, Value: e.Value}
	}
	return &tree.Literal{Span: sp, Kind: tree.StringLit, Value: e.Value}
}

func (l *lowerer) ident(id *ast.Ident) tree.Expr {
	sp := span(id)
	if sym := l.lookup(id.Name); sym != nil {
		return &tree.Ident{Span: sp, Sym: sym}
	}
	if l.predeclared(id) {
		switch id.Name {
		case "nil":
			return &tree.Literal{Span: sp, Kind: tree.NullLit, Value: "nil"}
		case "true", "false":
			return &tree.Literal{Span: sp, Kind: tree.BoolLit, Value: id.Name}
		case "iota":
			return &tree.Unknown{Span: sp}
		}
	}
	return &tree.Ident{Span: sp, Sym: l.global(id.Name)}
}

// predeclared reports whether id refers to the universe scope.
func (l *lowerer) predeclared(id *ast.Ident) bool {
	if l.info != nil {
		if obj, ok := l.info.Uses[id]; ok {
			return obj.Parent() == types.Universe
		}
	}
	return types.Universe.Lookup(id.Name) != nil
}

func (l *lowerer) selector(e *ast.SelectorExpr) tree.Expr {
	sp := span(e)
	if p, ok := l.packageOf(e.X); ok {
		name := p + "." + e.Sel.Name
		return &tree.Field{Span: sp, Name: name, Sym: l.global(name)}
	}
	return &tree.Field{
		Span:   sp,
		X:      l.expr(e.X),
		Name:   e.Sel.Name,
		Sym:    l.field(e.Sel.Name),
		Derefs: isPointer(l.typeOf(e.X)),
	}
}

func (l *lowerer) unary(e *ast.UnaryExpr) tree.Expr {
	sp := span(e)
	x := l.expr(e.X)
	switch e.Op {
	case token.AND:
		typ := "&"
		if cl, ok := unparen(e.X).(*ast.CompositeLit); ok {
			typ = "*" + l.typeString(cl.Type)
		}
		return &tree.New{Span: sp, Type: typ, Args: []tree.Expr{x}}
	case token.NOT:
		return &tree.Unary{Span: sp, Op: tree.OpNot, X: x}
	case token.SUB:
		return &tree.Unary{Span: sp, Op: tree.OpNeg, X: x}
	case token.ADD:
		return &tree.Unary{Span: sp, Op: tree.OpPlus, X: x}
	case token.XOR:
		return &tree.Unary{Span: sp, Op: tree.OpCompl, X: x}
	}
	// receive
	return &tree.Unknown{Span: sp, Args: []tree.Expr{x}}
}

// isType reports whether e denotes a type, making a call on it a
// conversion.
func (l *lowerer) isType(e ast.Expr) bool {
	if l.info != nil {
		if tv, ok := l.info.Types[e]; ok {
			return tv.IsType()
		}
	}
	switch e := e.(type) {
	case *ast.ArrayType, *ast.MapType, *ast.ChanType, *ast.FuncType, *ast.InterfaceType, *ast.StructType, *ast.StarExpr:
		return true
	case *ast.Ident:
		if l.lookup(e.Name) != nil {
			return false
		}
		_, ok := types.Universe.Lookup(e.Name).(*types.TypeName)
		return ok
	}
	return false
}

// isCallable reports whether e denotes a function or a generic type, so an
// index on it instantiates rather than reads.
func (l *lowerer) isCallable(e ast.Expr) bool {
	t := l.typeOf(e)
	if t == nil {
		return false
	}
	if _, ok := t.Underlying().(*types.Signature); ok {
		return true
	}
	return l.isType(e)
}

var unknownBuiltins = map[string]bool{
	"len": true, "cap": true, "copy": true, "delete": true, "close": true,
	"clear": true, "complex": true, "real": true, "imag": true, "min": true,
	"max": true, "print": true, "println": true, "recover": true, "panic": true,
}

// call lowers a call: conversions become casts, allocating builtins become
// New and other builtins Unknown. Functions and methods get a behavior key
// when the callee is statically known.
func (l *lowerer) call(e *ast.CallExpr) tree.Expr {
	sp := span(e)
	fun := unparen(e.Fun)
	if l.isType(fun) {
		if len(e.Args) != 1 {
			return &tree.Unknown{Span: sp, Args: l.exprs(e.Args)}
		}
		return &tree.Cast{Span: sp, X: l.expr(e.Args[0]), Type: l.typeString(fun)}
	}

	switch fun := fun.(type) {
	case *ast.Ident:
		if l.isBuiltin(fun) {
			switch {
			case fun.Name == "new" || fun.Name == "make":
				typ := ""
				if len(e.Args) > 0 {
					typ = l.typeString(e.Args[0])
				}
				return &tree.New{Span: sp, Type: typ}
			case fun.Name == "append":
				return &tree.New{Span: sp, Type: "append", Args: l.exprs(e.Args)}
			case unknownBuiltins[fun.Name]:
				return &tree.Unknown{Span: sp, Args: l.exprs(e.Args)}
			}
		}
		if sym := l.lookup(fun.Name); sym != nil {
			// function value
			return &tree.Call{Span: sp, Name: fun.Name, Args: l.exprs(e.Args)}
		}
		return l.newCall(sp, nil, fun.Name, l.funcIdentKey(fun), false, e.Args)

	case *ast.SelectorExpr:
		if p, ok := l.packageOf(fun.X); ok {
			key := l.objKey(fun.Sel)
			if key == "" {
				key = p + "." + fun.Sel.Name
			}
			return l.newCall(sp, nil, fun.X.(*ast.Ident).Name+"."+fun.Sel.Name, key, false, e.Args)
		}
		recv := l.expr(fun.X)
		key, derefs := l.method(fun)
		return l.newCall(sp, recv, fun.Sel.Name, key, derefs, e.Args)
	}

	// calls of function literals and call results
	return &tree.Call{Span: sp, Name: "func", Args: l.exprs(e.Args)}
}

func (l *lowerer) newCall(sp tree.Span, recv tree.Expr, name, key string, derefs bool, args []ast.Expr) *tree.Call {
	if key != "" {
		l.proc.Calls = append(l.proc.Calls, key)
	}
	return &tree.Call{
		Span:      sp,
		Recv:      recv,
		Name:      name,
		Args:      l.exprs(args),
		Callee:    key,
		DerefRecv: derefs,
	}
}

func (l *lowerer) objKey(id *ast.Ident) string {
	if l.info == nil {
		return ""
	}
	if fn, ok := l.info.Uses[id].(*types.Func); ok {
		return fn.Origin().FullName()
	}
	return ""
}

func (l *lowerer) funcIdentKey(id *ast.Ident) string {
	if key := l.objKey(id); key != "" {
		return key
	}
	if l.funcs[id.Name] {
		return l.pkgPath + "." + id.Name
	}
	return ""
}

// method resolves x.m(...). The call dereferences its receiver when x is an
// interface, or a pointer whose method has a value receiver. Calling a
// function-typed field reads the field.
func (l *lowerer) method(fun *ast.SelectorExpr) (key string, derefs bool) {
	if l.info == nil {
		return "", false
	}
	sel, ok := l.info.Selections[fun]
	if !ok {
		return "", false
	}
	recv := sel.Recv()
	switch sel.Kind() {
	case types.MethodVal:
		fn, ok := sel.Obj().(*types.Func)
		if !ok {
			return "", false
		}
		if isInterface(recv) {
			return fn.Origin().FullName(), true
		}
		sig, _ := fn.Type().(*types.Signature)
		pointerRecv := sig != nil && sig.Recv() != nil && isPointer(sig.Recv().Type())
		return fn.Origin().FullName(), isPointer(recv) && !pointerRecv
	case types.FieldVal:
		return "", isPointer(recv)
	}
	return "", false
}
