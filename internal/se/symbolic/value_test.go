package symbolic

import (
	"testing"

	"github.com/gnolang/symex/internal/se/relation"
	"github.com/stretchr/testify/assert"
)

func TestFactory(t *testing.T) {
	t.Parallel()
	f := NewFactory()
	a, b := f.New(), f.New()
	assert.NotEqual(t, a.ID(), b.ID())

	rel := f.Relational(relation.LT, a, b)
	r, ok := rel.Relation()
	assert.True(t, ok)
	assert.Equal(t, relation.New(relation.LT, a, b), r)
	assert.Equal(t, []*Value{a, b}, rel.Operands())

	not := f.Not(rel)
	assert.Equal(t, []*Value{rel}, not.Operands())

	tt := f.TypeTest(a, "String")
	assert.Equal(t, "String", tt.TypeName())

	ex := f.Exceptional("IOException")
	assert.True(t, ex.IsExceptional())
	assert.Equal(t, "IOException", ex.TypeName())

	_, ok = a.Relation()
	assert.False(t, ok)
	assert.Nil(t, a.Operands())
}

func TestConstantsAreShared(t *testing.T) {
	t.Parallel()
	for _, c := range Constants() {
		assert.True(t, c.IsConstant())
		assert.Less(t, c.ID(), 0)
	}
	assert.Equal(t, "null", Null.String())
	assert.Panics(t, func() { NewFactory().Logical(Plain, Null, True) })
}
