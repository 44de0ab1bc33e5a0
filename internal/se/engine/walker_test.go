package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gnolang/symex/internal/analysis/cfg"
	"github.com/gnolang/symex/internal/se/behavior"
	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/tree"
)

type symbols map[string]*tree.Symbol

func (s symbols) sym(name string, kind tree.SymbolKind) *tree.Symbol {
	if sym, ok := s[name]; ok {
		return sym
	}
	sym := &tree.Symbol{ID: len(s) + 1, Name: name, Kind: kind}
	s[name] = sym
	return sym
}

func (s symbols) id(name string) *tree.Ident { return &tree.Ident{Sym: s.sym(name, tree.Local)} }

func (s symbols) param(name string, n tree.Nullness) *tree.Parameter {
	return &tree.Parameter{Sym: s.sym(name, tree.Param), Nullness: n}
}

func null() *tree.Literal { return &tree.Literal{Kind: tree.NullLit, Value: "null"} }

func num(v string) *tree.Literal { return &tree.Literal{Kind: tree.IntLit, Value: v} }

func eq(x, y tree.Expr) *tree.Binary { return &tree.Binary{Op: tree.OpEq, X: x, Y: y} }

func callee(key string, args ...tree.Expr) *tree.Call {
	return &tree.Call{Name: key, Callee: key, Args: args}
}

func stmt(e tree.Expr) *tree.ExprStmt { return &tree.ExprStmt{X: e} }

func proc(key string, params []*tree.Parameter, stmts ...tree.Stmt) *tree.Procedure {
	return &tree.Procedure{Key: key, Name: key, Params: params, Body: &tree.Block{Stmts: stmts}}
}

func explore(t *testing.T, opts Options, p *tree.Procedure) *Result {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	res, err := New(opts).Explore(context.Background(), p, nil)
	require.NoError(t, err)
	return res
}

func nodesAt(g *Graph, p Point) []*Node {
	var res []*Node
	for _, n := range g.Nodes {
		if n.Point == p {
			res = append(res, n)
		}
	}
	return res
}

func TestExploreNoProcedure(t *testing.T) {
	t.Parallel()
	_, err := New(DefaultOptions()).Explore(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoProcedure)
}

func TestNullableParameterSplits(t *testing.T) {
	t.Parallel()
	syms := symbols{}
	p := proc("id", []*tree.Parameter{syms.param("p", tree.Nullable)},
		&tree.Return{X: &tree.Ident{Sym: syms["p"]}})

	res := explore(t, Options{}, p)
	require.Len(t, res.Graph.Roots, 2)
	require.Len(t, res.Graph.Terminals, 2)

	var sawNull, sawNotNull bool
	for _, n := range res.Graph.Terminals {
		switch n.State.ConstraintOf(n.State.Exit(), constraint.Nullness) {
		case constraint.Null:
			sawNull = true
		case constraint.NotNull:
			sawNotNull = true
		}
	}
	assert.True(t, sawNull)
	assert.True(t, sawNotNull)

	// both paths return the parameter and merge into one yield
	require.Len(t, res.Behavior.Yields, 1, res.Behavior.String())
	assert.Equal(t, 0, res.Behavior.HappyPaths()[0].ResultIndex)
	assert.True(t, res.Behavior.Complete)
}

func TestBranchOutcomes(t *testing.T) {
	t.Parallel()
	syms := symbols{}
	q := syms.param("q", tree.NullnessUnknown)
	inner := eq(&tree.Ident{Sym: q.Sym}, null())
	outer := &tree.Binary{Op: tree.OpNe, X: &tree.Ident{Sym: q.Sym}, Y: null()}
	p := proc("f", []*tree.Parameter{q},
		&tree.If{Cond: outer, Then: &tree.If{Cond: inner, Then: stmt(callee("foo"))}})

	res := explore(t, Options{}, p)
	o := res.Outcome(outer)
	require.NotNil(t, o)
	assert.True(t, o.True)
	assert.True(t, o.False)

	o = res.Outcome(inner)
	require.NotNil(t, o)
	assert.False(t, o.True, "q is known not null")
	assert.True(t, o.False)
}

func TestEqualStatesMerge(t *testing.T) {
	t.Parallel()
	syms := symbols{}
	c := syms.sym("c", tree.Local)
	p := proc("f", nil,
		&tree.VarDecl{Sym: c, Init: &tree.Unknown{}},
		&tree.If{Cond: &tree.Ident{Sym: c}, Then: stmt(callee("foo"))},
		stmt(callee("bar")))

	g := cfg.Build(p.Body)
	res, err := New(Options{Logger: zaptest.NewLogger(t)}).Explore(context.Background(), p, g)
	require.NoError(t, err)

	after := g.Entry.TrueBlock().Successors[0]
	joined := nodesAt(res.Graph, Point{Block: after.ID})
	require.Len(t, joined, 1, res.Graph.String())
	assert.Len(t, joined[0].Parents(), 2)
	assert.Len(t, res.Graph.Terminals, 1)
}

func TestStepBudget(t *testing.T) {
	t.Parallel()
	syms := symbols{}
	var stmts []tree.Stmt
	for i := 0; i < 10; i++ {
		stmts = append(stmts, &tree.ExprStmt{X: &tree.Assign{Target: syms.id("x"), Value: num("1")}})
	}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	res := explore(t, Options{MaxSteps: 5, Metrics: m}, proc("long", nil, stmts...))
	assert.True(t, res.Partial)
	assert.ErrorIs(t, res.Err, ErrStepBudgetExceeded)
	assert.Equal(t, 5, res.Steps)
	assert.False(t, res.Behavior.Complete)
	assert.Empty(t, res.Graph.Terminals)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Exhausted))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.Steps))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Procedures))
}

func TestLoopsTerminate(t *testing.T) {
	t.Parallel()
	syms := symbols{}
	i := syms.sym("i", tree.Local)
	p := proc("loop", nil,
		&tree.VarDecl{Sym: i, Init: num("0")},
		&tree.While{
			Cond: callee("more"),
			Body: stmt(&tree.Unary{Op: tree.OpInc, X: &tree.Ident{Sym: i}, Postfix: true}),
		},
		&tree.Return{X: &tree.Ident{Sym: i}})

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	res := explore(t, Options{Metrics: m}, p)
	assert.False(t, res.Partial)
	assert.NoError(t, res.Err)
	assert.NotEmpty(t, res.Graph.Terminals)
	assert.Equal(t, float64(len(res.Graph.Nodes)), testutil.ToFloat64(m.Nodes))
	assert.Equal(t, float64(res.Graph.EdgeCount()), testutil.ToFloat64(m.Edges))
}

func builtinCache(t *testing.T) *behavior.Cache {
	t.Helper()
	reg, err := behavior.DefaultRegistry()
	require.NoError(t, err)
	return behavior.NewCache(nil, nil, reg, zaptest.NewLogger(t))
}

func TestBuiltinBehavior(t *testing.T) {
	t.Parallel()
	syms := symbols{}
	q := syms.param("q", tree.NullnessUnknown)
	cond := eq(&tree.Ident{Sym: q.Sym}, null())
	p := proc("f", []*tree.Parameter{q},
		stmt(callee("Objects#requireNonNull(1)", &tree.Ident{Sym: q.Sym})),
		&tree.If{Cond: cond, Then: stmt(callee("foo"))})
	p.Lang = tree.Java

	res := explore(t, Options{Behaviors: builtinCache(t)}, p)
	o := res.Outcome(cond)
	require.NotNil(t, o)
	assert.False(t, o.True)
	assert.True(t, o.False)

	exc := res.Behavior.Exceptions()
	require.Len(t, exc, 1, res.Behavior.String())
	assert.Equal(t, "NullPointerException", exc[0].Type)
	assert.Equal(t, constraint.Of(constraint.Null), exc[0].ParamConstraints()[0])

	var viaYield int
	for _, n := range res.Graph.Nodes {
		for _, e := range n.Children() {
			if e.Yield != nil {
				viaYield++
				require.NotNil(t, e.Call)
				assert.Equal(t, "Objects#requireNonNull(1)", e.Call.Node.Callee)
			}
		}
	}
	assert.Equal(t, 2, viaYield)
}

func TestExitCallsSkipHandlers(t *testing.T) {
	t.Parallel()
	p := proc("main", nil,
		&tree.Try{
			Body:    &tree.Block{Stmts: []tree.Stmt{stmt(callee("System#exit(1)", num("1")))}},
			Finally: &tree.Block{Stmts: []tree.Stmt{stmt(callee("cleanup"))}},
		})
	p.Lang = tree.Java

	res := explore(t, Options{Behaviors: builtinCache(t)}, p)
	require.Len(t, res.Graph.Terminals, 1)
	exc := res.Graph.Terminals[0].State.Exception()
	require.NotNil(t, exc)
	assert.Equal(t, ExitType, exc.TypeName())
	for _, n := range res.Graph.Nodes {
		if c, ok := n.Syntax().(*tree.Call); ok {
			assert.NotEqual(t, "cleanup", c.Name)
		}
	}
}

func TestThrowRouting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		catchType string
		caught    bool
	}{
		{"exact match", "IOException", true},
		{"qualified match", "java.io.IOException", true},
		{"catch all", "Exception", true},
		{"unrelated handler", "SQLException", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			syms := symbols{}
			e := syms.sym("e", tree.Local)
			p := proc("f", nil,
				&tree.Try{
					Body: &tree.Block{Stmts: []tree.Stmt{
						&tree.Throw{X: &tree.New{Type: "IOException"}},
					}},
					Catches: []*tree.Catch{{
						Types: []string{tt.catchType},
						Sym:   e,
						Body:  &tree.Block{Stmts: []tree.Stmt{stmt(callee("handle", &tree.Ident{Sym: e}))}},
					}},
				})
			p.Lang = tree.Java

			res := explore(t, Options{}, p)
			require.NotEmpty(t, res.Graph.Terminals)
			var thrown bool
			for _, n := range res.Graph.Terminals {
				if exc := n.State.Exception(); exc != nil {
					thrown = true
					assert.Equal(t, "IOException", exc.TypeName())
				}
			}
			assert.Equal(t, !tt.caught, thrown)
			assert.Equal(t, !tt.caught, len(res.Behavior.Exceptions()) == 1)
		})
	}
}

func TestUnknownCallsReachHandlers(t *testing.T) {
	t.Parallel()
	p := proc("f", nil,
		&tree.Try{
			Body: &tree.Block{Stmts: []tree.Stmt{stmt(callee("risky"))}},
			Catches: []*tree.Catch{{
				Types: []string{"IOException"},
				Body:  &tree.Block{Stmts: []tree.Stmt{stmt(callee("handle"))}},
			}},
		})
	p.Lang = tree.Java
	g := cfg.Build(p.Body)

	res, err := New(Options{Logger: zaptest.NewLogger(t)}).Explore(context.Background(), p, g)
	require.NoError(t, err)
	var handler *cfg.Block
	for _, b := range g.Blocks {
		if b.Catch() != nil {
			handler = b
		}
	}
	require.NotNil(t, handler)
	assert.NotEmpty(t, nodesAt(res.Graph, Point{Block: handler.ID}))
}

func TestRoute(t *testing.T) {
	t.Parallel()
	handler := func(types ...string) *cfg.Block {
		return &cfg.Block{Elements: []cfg.Element{{Node: &tree.Catch{Types: types}}}}
	}
	io := handler("IOException")
	multi := handler("SQLException", "java.io.FileNotFoundException")
	all := handler("Throwable")
	finally := &cfg.Block{}

	tests := []struct {
		name    string
		typ     string
		targets []*cfg.Block
		want    []*cfg.Block
	}{
		{"exact", "IOException", []*cfg.Block{io, finally}, []*cfg.Block{io}},
		{"multi catch", "FileNotFoundException", []*cfg.Block{io, multi, finally}, []*cfg.Block{multi}},
		{"uncaught", "IllegalStateException", []*cfg.Block{io, finally}, []*cfg.Block{finally}},
		{"unknown type", "", []*cfg.Block{io, multi, finally}, []*cfg.Block{io, multi, finally}},
		{"catch all stops", "", []*cfg.Block{io, all, finally}, []*cfg.Block{io, all}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, route(tt.typ, tt.targets))
		})
	}
}

func TestIsZeroLiteral(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind tree.LitKind
		text string
		zero bool
		ok   bool
	}{
		{tree.IntLit, "0", true, true},
		{tree.IntLit, "0x0", true, true},
		{tree.IntLit, "0L", true, true},
		{tree.IntLit, "1_000", false, true},
		{tree.IntLit, "0b1", false, true},
		{tree.FloatLit, "0.0", true, true},
		{tree.FloatLit, "0.0f", true, true},
		{tree.FloatLit, "1e3", false, true},
		{tree.CharLit, `'\0'`, true, true},
		{tree.CharLit, "'a'", false, true},
		{tree.IntLit, "zz", false, false},
	}
	for _, tt := range tests {
		zero, ok := isZeroLiteral(tt.kind, tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.zero, zero, tt.text)
	}
}

// recorder is a check counting hook invocations.
type recorder struct {
	pre, post, paths int
	reportAt         tree.Node
}

func (*recorder) Name() string { return "recorder" }

func (r *recorder) PreStatement(ctx *CheckContext, n tree.Node) *state.State {
	r.pre++
	if n == r.reportAt {
		ctx.Report(n, "seen", nil)
	}
	return ctx.State
}

func (r *recorder) PostStatement(ctx *CheckContext, _ tree.Node) *state.State {
	r.post++
	return ctx.State
}

func (r *recorder) EndOfPath(*CheckContext) { r.paths++ }

func TestChecks(t *testing.T) {
	t.Parallel()
	syms := symbols{}
	target := callee("foo")
	p := proc("f", []*tree.Parameter{syms.param("p", tree.Nullable)}, stmt(target))

	rec := &recorder{reportAt: target}
	res := explore(t, Options{Checks: []Check{rec}, Filename: "f.java"}, p)

	// two entry states, one element each
	assert.Equal(t, 2, rec.pre)
	assert.Equal(t, 2, rec.post)
	assert.Equal(t, 2, rec.paths)
	require.Len(t, res.Issues, 1, "duplicate reports are dropped")
	assert.Equal(t, "recorder", res.Issues[0].Rule)
	assert.Equal(t, "f.java", res.Issues[0].Filename)
	assert.Equal(t, "seen", res.Issues[0].Message)
}

func TestOperands(t *testing.T) {
	t.Parallel()
	syms := symbols{}
	a, b := syms.id("a"), syms.id("b")
	div := &tree.Binary{Op: tree.OpQuo, X: a, Y: b}

	res := explore(t, Options{}, proc("f", nil, stmt(div)))
	var at *Node
	for _, n := range res.Graph.Nodes {
		if n.Syntax() == div {
			at = n
		}
	}
	require.NotNil(t, at)
	ops := Operands(at.State, div)
	require.Len(t, ops, 2)
	assert.Equal(t, syms["a"], ops[0].Symbol)
	assert.Equal(t, syms["b"], ops[1].Symbol)
}

func TestBehaviorExplorer(t *testing.T) {
	t.Parallel()
	syms := symbols{}
	p := syms.param("p", tree.NullnessUnknown)
	check := proc("check", []*tree.Parameter{p},
		&tree.If{
			Cond: eq(&tree.Ident{Sym: p.Sym}, null()),
			Then: &tree.Throw{X: &tree.New{Type: "IllegalArgumentException"}},
		})

	q := syms.param("q", tree.NullnessUnknown)
	cond := eq(&tree.Ident{Sym: q.Sym}, null())
	caller := proc("caller", []*tree.Parameter{q},
		stmt(callee("check", &tree.Ident{Sym: q.Sym})),
		&tree.If{Cond: cond, Then: stmt(callee("foo"))})

	logger := zaptest.NewLogger(t)
	explorer := &BehaviorExplorer{Options: Options{Logger: logger}}
	cache := behavior.NewCache(behavior.NewProcedures(check, caller), explorer, nil, logger)

	res := explore(t, Options{Behaviors: cache}, caller)
	o := res.Outcome(cond)
	require.NotNil(t, o)
	assert.False(t, o.True)
	assert.True(t, o.False)

	b, ok := cache.Lookup("check")
	require.True(t, ok)
	require.NotNil(t, b)
	assert.Len(t, b.Exceptions(), 1)
	assert.Len(t, b.HappyPaths(), 1)
}
