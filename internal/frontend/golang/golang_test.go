package golang

import (
	"errors"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/symex/internal/frontend"
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/internal/tree"
)

func parse(t *testing.T, src string) *tree.File {
	t.Helper()
	f, err := ParseFile(token.NewFileSet(), "test.go", []byte(src))
	require.NoError(t, err)
	return f
}

func procedure(t *testing.T, src, name string) *tree.Procedure {
	t.Helper()
	p := parse(t, src).Lookup(name)
	require.NotNil(t, p, "procedure %s", name)
	return p
}

func find[T tree.Node](n tree.Node) []T {
	var res []T
	tree.Inspect(n, func(n tree.Node) bool {
		if v, ok := n.(T); ok {
			res = append(res, v)
		}
		return true
	})
	return res
}

func TestParseError(t *testing.T) {
	t.Parallel()
	_, err := ParseFile(token.NewFileSet(), "bad.go", []byte("package p\nfunc {"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, frontend.ErrParse))
}

func TestProcedureKeys(t *testing.T) {
	t.Parallel()
	f := parse(t, `package p

type T struct{ x int }

func F(a *int, b ...string) int { return 0 }

func (t *T) M() {}

func (T) V() {}
`)
	require.Len(t, f.Procedures, 3)
	assert.Equal(t, tree.Go, f.Lang)

	keys := make([]string, len(f.Procedures))
	for i, p := range f.Procedures {
		keys[i] = p.Key
	}
	assert.Equal(t, []string{"p.F", "(*p.T).M", "(p.T).V"}, keys)

	fn := f.Procedures[0]
	assert.True(t, fn.Variadic)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, "a", fn.Params[0].Sym.Name)
	assert.Equal(t, tree.Param, fn.Params[0].Sym.Kind)
	assert.Equal(t, "*int", fn.Params[0].Sym.Type)
	assert.Positive(t, fn.Complexity)

	m := f.Procedures[1]
	require.NotNil(t, m.Receiver)
	assert.Equal(t, "t", m.Receiver.Name)
	assert.NotNil(t, f.Procedures[2].Receiver)
}

func TestDirectives(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

// F does things.
//
//symex:nullable a, c
//symex:nonnull b
func F(a, b, c, d *int) {}
`, "F")
	want := []tree.Nullness{tree.Nullable, tree.NonNull, tree.Nullable, tree.NullnessUnknown}
	for i, param := range p.Params {
		assert.Equal(t, want[i], param.Nullness, param.Sym.Name)
	}
}

func TestDereferences(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

type T struct{ x int }

type I interface{ M() }

func F(p *T, v T, i I, q *int) int {
	i.M()
	_ = *q
	_ = v.x
	return p.x
}
`, "F")

	fields := find[*tree.Field](p.Body)
	require.Len(t, fields, 2)
	assert.False(t, fields[0].Derefs, "value receiver")
	assert.True(t, fields[1].Derefs, "pointer receiver")
	assert.Equal(t, "x", fields[1].Name)

	calls := find[*tree.Call](p.Body)
	require.Len(t, calls, 1)
	assert.True(t, calls[0].DerefRecv)
	assert.Equal(t, "(p.I).M", calls[0].Callee)
	assert.Equal(t, []string{"(p.I).M"}, p.Calls)

	assert.Len(t, find[*tree.Deref](p.Body), 1)
}

func TestDeviatingCalls(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

import "os"

func F(x int) {
	if x > 0 {
		panic("positive")
	}
	os.Exit(1)
}
`, "F")
	throws := find[*tree.Throw](p.Body)
	require.Len(t, throws, 2)
	types := make([]string, len(throws))
	for i, th := range throws {
		nw, ok := th.X.(*tree.New)
		require.True(t, ok)
		types[i] = nw.Type
	}
	assert.Equal(t, []string{"panic", engine.ExitType}, types)
}

func TestDeferBecomesFinally(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

import "sync"

func F(mu *sync.Mutex) int {
	mu.Lock()
	defer mu.Unlock()
	return 1
}
`, "F")
	require.Len(t, p.Body.Stmts, 2)
	try, ok := p.Body.Stmts[1].(*tree.Try)
	require.True(t, ok)
	require.NotNil(t, try.Finally)
	require.Len(t, try.Body.Stmts, 1)
	_, ok = try.Body.Stmts[0].(*tree.Return)
	assert.True(t, ok)

	calls := find[*tree.Call](try.Finally)
	require.Len(t, calls, 1)
	assert.Equal(t, "Unlock", calls[0].Name)
}

func TestGotoUnsupported(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

func F() {
loop:
	goto loop
}
`, "F")
	assert.Equal(t, "goto", p.Unsupported)
}

func TestTaglessSwitch(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

func F(x int) int {
	for {
		switch {
		case x > 1, x < -1:
			break
		case x == 0:
			return 0
		default:
			x++
		}
	}
}
`, "F")
	labeled := find[*tree.Labeled](p.Body)
	require.Len(t, labeled, 1)
	ifs := find[*tree.If](labeled[0])
	require.Len(t, ifs, 2)
	cond, ok := ifs[0].Cond.(*tree.Binary)
	require.True(t, ok)
	assert.Equal(t, tree.OpOrOr, cond.Op)

	breaks := find[*tree.Break](labeled[0])
	require.Len(t, breaks, 1)
	assert.Equal(t, labeled[0].Label, breaks[0].Label)
}

func TestTaggedSwitch(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

func F(x int) int {
	y := 0
	switch x {
	case 1:
		y = 1
		fallthrough
	case 2:
		y = 2
	default:
		y = 3
	}
	return y
}
`, "F")
	sws := find[*tree.Switch](p.Body)
	require.Len(t, sws, 1)
	sw := sws[0]
	require.Len(t, sw.Cases, 3)

	last := func(c *tree.Case) tree.Stmt { return c.Body[len(c.Body)-1] }
	_, ok := last(sw.Cases[0]).(*tree.Break)
	assert.False(t, ok, "fallthrough clause")
	_, ok = last(sw.Cases[1]).(*tree.Break)
	assert.True(t, ok)
	assert.Nil(t, sw.Cases[2].Exprs)
	assert.NotNil(t, sw.Cases[1].Exprs)
}

func TestMultiValueAssignment(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

func g() (*int, error) { return nil, nil }

func F(m map[string]int) {
	x, err := g()
	v, ok := m["k"]
	_, _, _, _ = x, err, v, ok
}
`, "F")
	assigns := find[*tree.Assign](p.Body)
	require.GreaterOrEqual(t, len(assigns), 4)

	call, ok := assigns[0].Value.(*tree.Call)
	require.True(t, ok)
	assert.Equal(t, "p.g", call.Callee)
	_, ok = assigns[1].Value.(*tree.Unknown)
	assert.True(t, ok)

	first, ok := assigns[2].Value.(*tree.Unknown)
	require.True(t, ok)
	require.Len(t, first.Args, 1)
	_, ok = first.Args[0].(*tree.Index)
	assert.True(t, ok)
}

func TestSwapReadsBeforeWriting(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

func F(a, b int) (int, int) {
	a, b = b, a
	return a, b
}
`, "F")
	decls := find[*tree.VarDecl](p.Body)
	require.Len(t, decls, 2)
	assert.Equal(t, "b", tree.Describe(decls[0].Init))
	assert.Equal(t, "a", tree.Describe(decls[1].Init))
}

func TestZeroValues(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

type T struct{}

func sink(...any) {}

func F() {
	var p *T
	var n int
	var ok bool
	var s []int
	var t T
	sink(p, n, ok, s, t)
}
`, "F")
	decls := find[*tree.VarDecl](p.Body)
	require.Len(t, decls, 5)

	lit := func(e tree.Expr) *tree.Literal {
		l, ok := e.(*tree.Literal)
		require.True(t, ok, "%T", e)
		return l
	}
	assert.Equal(t, tree.NullLit, lit(decls[0].Init).Kind)
	assert.Equal(t, tree.IntLit, lit(decls[1].Init).Kind)
	assert.Equal(t, tree.BoolLit, lit(decls[2].Init).Kind)
	assert.Equal(t, tree.NullLit, lit(decls[3].Init).Kind)
	_, ok := decls[4].Init.(*tree.New)
	assert.True(t, ok)
}

func TestReturnResults(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

import "errors"

func F(x int) (*int, error) {
	if x > 0 {
		return &x, nil
	}
	return nil, errors.New("negative")
}
`, "F")
	rets := find[*tree.Return](p.Body)
	require.Len(t, rets, 2)
	_, ok := rets[0].X.(*tree.New)
	assert.True(t, ok)
	assert.True(t, tree.IsNull(rets[1].X))

	var returned []*tree.Unknown
	for _, u := range find[*tree.Unknown](p.Body) {
		if u.Returned {
			returned = append(returned, u)
		}
	}
	require.Len(t, returned, 2)
	require.Len(t, returned[1].Args, 1)
	call, ok := returned[1].Args[0].(*tree.Call)
	require.True(t, ok)
	assert.Equal(t, "errors.New", call.Callee)
}

func TestNamedResults(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

func F() (p *int, err error) {
	return
}
`, "F")
	require.Len(t, p.Body.Stmts, 4)
	decl, ok := p.Body.Stmts[0].(*tree.VarDecl)
	require.True(t, ok)
	assert.True(t, tree.IsNull(decl.Init))
	ret, ok := p.Body.Stmts[3].(*tree.Return)
	require.True(t, ok)
	assert.Equal(t, "p", tree.Describe(ret.X))
}

func TestAllocations(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

type T struct{ x int }

func F() {
	a := new(T)
	b := &T{x: 1}
	c := make([]int, 3)
	d := func() {}
	_, _, _, _ = a, b, c, d
}
`, "F")
	assert.Len(t, find[*tree.New](p.Body), 5)
}

func TestTypeSwitchBindsPerClause(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

func F(x any) int {
	switch v := x.(type) {
	case nil:
		return 0
	case int:
		return v
	}
	return 1
}
`, "F")
	sws := find[*tree.Switch](p.Body)
	require.Len(t, sws, 1)
	_, ok := sws[0].Tag.(*tree.Unknown)
	assert.True(t, ok)

	decls := find[*tree.VarDecl](sws[0])
	require.Len(t, decls, 2)
	assert.NotSame(t, decls[0].Sym, decls[1].Sym)
	assert.True(t, tree.IsNull(decls[0].Init))
	_, ok = decls[1].Init.(*tree.Cast)
	assert.True(t, ok)
}

func TestWithoutTypes(t *testing.T) {
	t.Parallel()
	// the import cannot be resolved, so lowering falls back to syntax
	p := procedure(t, `package p

import "example.com/missing/store"

func F(s *store.Store) {
	var conn *store.Conn
	store.Use(conn)
	helper()
}

func helper() {}
`, "F")
	decls := find[*tree.VarDecl](p.Body)
	require.Len(t, decls, 1)
	assert.True(t, tree.IsNull(decls[0].Init))
	assert.Equal(t, []string{"example.com/missing/store.Use", "p.helper"}, p.Calls)
}

func TestScopes(t *testing.T) {
	t.Parallel()
	p := procedure(t, `package p

func F(x int) int {
	if x := x + 1; x > 0 {
		return x
	}
	return x
}
`, "F")
	idents := find[*tree.Ident](p.Body)
	var syms []*tree.Symbol
	for _, id := range idents {
		if id.Sym.Name == "x" {
			syms = append(syms, id.Sym)
		}
	}
	// x := x + 1, x > 0, return x, return x
	require.Len(t, syms, 5)
	param := p.Params[0].Sym
	assert.NotSame(t, param, syms[0])
	assert.Same(t, param, syms[1], "initializer reads the parameter")
	assert.Same(t, syms[0], syms[2])
	assert.Same(t, syms[0], syms[3])
	assert.Same(t, param, syms[4])
}
