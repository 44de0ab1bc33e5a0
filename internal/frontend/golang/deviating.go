package golang

import (
	"go/ast"
	"go/types"

	"github.com/gnolang/symex/internal/se/engine"
)

const panicType = "panic"

type deviation struct {
	Pkg  string // import path, empty for builtins
	Name string
}

// deviatingFuncs lists calls that never return normally. They are lowered
// to throw statements of the given type.
var deviatingFuncs = map[deviation]string{
	{"os", "Exit"}:     engine.ExitType,
	{"log", "Fatal"}:   engine.ExitType,
	{"log", "Fatalf"}:  engine.ExitType,
	{"log", "Fatalln"}: engine.ExitType,
	{"", "panic"}:      panicType,
	{"log", "Panic"}:   panicType,
	{"log", "Panicf"}:  panicType,
	{"log", "Panicln"}: panicType,
}

// deviating returns the throw type of a terminating call.
func (l *lowerer) deviating(call *ast.CallExpr) (string, bool) {
	var d deviation
	switch fun := unparen(call.Fun).(type) {
	case *ast.Ident:
		if !l.isBuiltin(fun) {
			return "", false
		}
		d = deviation{Name: fun.Name}
	case *ast.SelectorExpr:
		path, ok := l.packageOf(fun.X)
		if !ok {
			return "", false
		}
		d = deviation{Pkg: path, Name: fun.Sel.Name}
	default:
		return "", false
	}
	typ, ok := deviatingFuncs[d]
	return typ, ok
}

// isBuiltin reports whether id refers to a predeclared function.
func (l *lowerer) isBuiltin(id *ast.Ident) bool {
	if l.lookup(id.Name) != nil {
		return false
	}
	if l.info != nil {
		if obj, ok := l.info.Uses[id]; ok {
			_, ok := obj.(*types.Builtin)
			return ok
		}
	}
	_, ok := types.Universe.Lookup(id.Name).(*types.Builtin)
	return ok && !l.funcs[id.Name]
}
