package behavior

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
)

func constrained(t *testing.T, st *state.State, v *symbolic.Value, cs ...constraint.Constraint) *state.State {
	t.Helper()
	for _, c := range cs {
		next, err := st.SetConstraint(v, c)
		require.NoError(t, err)
		require.Len(t, next, 1)
		st = next[0]
	}
	return st
}

type node int

func (n node) ID() int { return int(n) }

func TestBuildReducesIdentity(t *testing.T) {
	t.Parallel()

	f := symbolic.NewFactory()
	p := f.New()
	base := state.New()

	nullPath := constrained(t, base, p, constraint.Null).WithExit(p)
	notNullPath := constrained(t, base, p, constraint.NotNull).WithExit(p)
	throwing := constrained(t, base, p, constraint.Null).WithExit(f.Exceptional("IllegalArgumentException"))

	b := Build("id", []*symbolic.Value{p}, false, true, []Outcome{
		{Node: node(1), State: nullPath},
		{Node: node(2), State: notNullPath},
		{Node: node(3), State: notNullPath},
		{Node: node(4), State: throwing},
	})

	require.Len(t, b.Yields, 2, b.String())
	happy := b.HappyPaths()
	require.Len(t, happy, 1)
	assert.Equal(t, 0, happy[0].ResultIndex)
	assert.True(t, happy[0].ParamConstraints()[0].IsEmpty(), "null and not-null merge")
	assert.Equal(t, 1, happy[0].Origin().Node.ID())

	exc := b.Exceptions()
	require.Len(t, exc, 1)
	assert.Equal(t, "IllegalArgumentException", exc[0].Type)
	assert.Equal(t, constraint.Of(constraint.Null), exc[0].ParamConstraints()[0])
	assert.True(t, b.Complete)
}

func TestBuildKeepsDistinctResults(t *testing.T) {
	t.Parallel()

	f := symbolic.NewFactory()
	p, r := f.New(), f.New()
	base := state.New()

	// p null -> returns null, p not null -> returns a fresh non-null value
	a := constrained(t, base, p, constraint.Null).WithExit(symbolic.Null)
	b2 := constrained(t, constrained(t, base, p, constraint.NotNull), r, constraint.NotNull).WithExit(r)

	b := Build("f", []*symbolic.Value{p}, false, false, []Outcome{{State: a}, {State: b2}})
	require.Len(t, b.Yields, 2)
	for _, y := range b.HappyPaths() {
		assert.Equal(t, -1, y.ResultIndex)
	}
	assert.Equal(t, constraint.Of(constraint.Null), b.HappyPaths()[0].Result)
	assert.Equal(t, constraint.Of(constraint.NotNull), b.HappyPaths()[1].Result)
	assert.Contains(t, b.String(), "(partial)")
}

func TestComplementaryDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b constraint.Set
		want bool
	}{
		{"null vs not null", constraint.Of(constraint.Null), constraint.Of(constraint.NotNull), true},
		{"same", constraint.Of(constraint.Null), constraint.Of(constraint.Null), false},
		{"missing on one side", constraint.Of(constraint.Null), constraint.Of(), false},
		{"two domains differ", constraint.Of(constraint.Null, constraint.Zero), constraint.Of(constraint.NotNull, constraint.NonZero), false},
		{"other domain agrees", constraint.Of(constraint.True, constraint.NotNull), constraint.Of(constraint.False, constraint.NotNull), true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := complementaryDomain(tt.a, tt.b)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	r, err := DefaultRegistry()
	require.NoError(t, err)

	b := r.Lookup("Objects#requireNonNull(1)")
	require.NotNil(t, b)
	require.Len(t, b.Yields, 2)
	happy, ok := b.Yields[0].(*HappyPath)
	require.True(t, ok)
	assert.Equal(t, 0, happy.ResultIndex)
	assert.Equal(t, constraint.Of(constraint.NotNull), happy.ParamConstraints()[0])
	exc, ok := b.Yields[1].(*Exceptional)
	require.True(t, ok)
	assert.Equal(t, "NullPointerException", exc.Type)

	open := r.Lookup("os.Open")
	require.NotNil(t, open)
	assert.Equal(t, constraint.Of(constraint.NotNull, constraint.Open), open.HappyPaths()[0].Result)

	errorf := r.Lookup("fmt.Errorf")
	require.NotNil(t, errorf)
	assert.True(t, errorf.VarArgs)
	assert.True(t, errorf.AppliesTo(0, 3))
	assert.False(t, errorf.AppliesTo(1, 3))

	assert.Nil(t, r.Lookup("Nope#nope(0)"))
	assert.Contains(t, r.Keys(), "os.Exit")
}

func TestSpecErrors(t *testing.T) {
	t.Parallel()

	idx := 3
	tests := []struct {
		name string
		spec Spec
	}{
		{"missing key", Spec{}},
		{"bad constraint", Spec{Key: "k", Yields: []YieldSpec{{Params: [][]string{{"maybe"}}}}}},
		{"conflict", Spec{Key: "k", Yields: []YieldSpec{{Result: []string{"null", "not-null"}}}}},
		{"result param out of range", Spec{Key: "k", Params: 1, Yields: []YieldSpec{{ResultParam: &idx}}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.spec.Behavior()
			assert.Error(t, err)
		})
	}
}

func TestParseSpecs(t *testing.T) {
	t.Parallel()

	specs, err := ParseSpecs([]byte(`
- key: "Guard#check(1)"
  yields:
    - params: [[zero]]
      throws: IllegalStateException
    - params: [[non-zero]]
`))
	require.NoError(t, err)
	require.Len(t, specs, 1)

	r := NewRegistry()
	require.NoError(t, r.Load(specs))
	b := r.Lookup("Guard#check(1)")
	require.NotNil(t, b)
	assert.Equal(t, 1, b.Params)
	assert.Len(t, b.Exceptions(), 1)
	assert.Len(t, b.HappyPaths(), 1)
}

func procs(keys ...string) Procedures {
	var list []*tree.Procedure
	for _, k := range keys {
		list = append(list, &tree.Procedure{Key: k, Name: k, Body: &tree.Block{}})
	}
	return NewProcedures(list...)
}

func TestCacheExploresOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	explorer := ExplorerFunc(func(ctx context.Context, proc *tree.Procedure, _ *Cache) (*Behavior, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &Behavior{Key: proc.Key, Complete: true}, nil
	})
	c := NewCache(procs("A"), explorer, nil, nil)

	var wg sync.WaitGroup
	results := make([]*Behavior, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(context.Background(), "A")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, b := range results {
		assert.Same(t, results[0], b)
	}
	assert.Equal(t, []string{"A"}, c.Keys())
}

func TestCacheRecursion(t *testing.T) {
	t.Parallel()

	var inner *Behavior
	var explorer ExplorerFunc
	explorer = func(ctx context.Context, proc *tree.Procedure, cache *Cache) (*Behavior, error) {
		switch proc.Key {
		case "A":
			cache.Get(ctx, "B")
		case "B":
			inner = cache.Get(ctx, "A")
		}
		return &Behavior{Key: proc.Key, Complete: true}, nil
	}
	c := NewCache(procs("A", "B"), explorer, nil, nil)

	a := c.Get(context.Background(), "A")
	require.NotNil(t, a)
	assert.Nil(t, inner, "A is on the call chain while B is explored")

	b, ok := c.Lookup("B")
	assert.True(t, ok)
	assert.NotNil(t, b)
	assert.Equal(t, 2, c.Len())
}

func TestCacheFailures(t *testing.T) {
	t.Parallel()

	builtins := NewRegistry()
	builtins.Add(&Behavior{Key: "B", Complete: true})

	var calls atomic.Int32
	explorer := ExplorerFunc(func(_ context.Context, proc *tree.Procedure, _ *Cache) (*Behavior, error) {
		calls.Add(1)
		if proc.Key == "A" {
			panic("boom")
		}
		return nil, errors.New("no luck")
	})
	c := NewCache(procs("A", "B"), explorer, builtins, nil)

	assert.Nil(t, c.Get(context.Background(), "A"))
	assert.Nil(t, c.Get(context.Background(), "A"))
	assert.Equal(t, int32(1), calls.Load(), "failures are remembered as unknown")

	b := c.Get(context.Background(), "B")
	require.NotNil(t, b, "built-in used when exploration fails")
	assert.Same(t, builtins.Lookup("B"), b)

	assert.Nil(t, c.Get(context.Background(), "C"))
	assert.Nil(t, c.Get(context.Background(), ""))
}

func TestCachePutFirstWins(t *testing.T) {
	t.Parallel()

	c := NewCache(nil, nil, nil, nil)
	first := &Behavior{Key: "k"}
	assert.True(t, c.Put("k", first))
	assert.False(t, c.Put("k", &Behavior{Key: "k"}))
	assert.Same(t, first, c.Get(context.Background(), "k"))
}
