package constraint

import (
	"testing"

	"github.com/gnolang/symex/internal/se/relation"
	"github.com/stretchr/testify/assert"
)

func TestCopyOver(t *testing.T) {
	t.Parallel()
	tests := []struct {
		c        Constraint
		kind     relation.Kind
		expected Constraint
	}{
		{Null, relation.EQ, Null},
		{NotNull, relation.VEQ, NotNull},
		{Null, relation.NE, NotNull},
		{NotNull, relation.NE, None},
		{Zero, relation.NE, NonZero},
		{NonZero, relation.VNE, None},
		{True, relation.NE, False},
		{False, relation.VNE, True},
		{Zero, relation.LT, NonZero},
		{NonZero, relation.LT, None},
		{Null, relation.LT, None},
		{Zero, relation.GE, None},
		{Zero, relation.GT, None},
		{Locked, relation.EQ, Locked},
		{Locked, relation.VEQ, None},
		{Open, relation.NE, None},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.c.CopyOver(tt.kind), "%s over %s", tt.c, tt.kind)
	}
}

func TestSet(t *testing.T) {
	t.Parallel()
	s := Of(Null, Zero)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has(Null))
	assert.Equal(t, Zero, s.Get(Zeroness))
	assert.True(t, s.Conflicts(NotNull))
	assert.False(t, s.Conflicts(Null))
	assert.False(t, s.Conflicts(True))

	s2 := s.With(NotNull)
	assert.True(t, s.Has(Null), "sets are values")
	assert.True(t, s2.Has(NotNull))

	assert.True(t, s.Without(Nullness).Without(Zeroness).IsEmpty())
	assert.Equal(t, "{NULL,ZERO}", s.String())
	assert.NotEqual(t, s.Hash(), s2.Hash())
}

func TestComplement(t *testing.T) {
	t.Parallel()
	for _, c := range []Constraint{Null, NotNull, Zero, NonZero, True, False, Locked, Unlocked, Open, Closed} {
		assert.Equal(t, c, c.Complement().Complement())
		assert.Equal(t, c.Domain(), c.Complement().Domain())
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Constraint
		wantErr bool
	}{
		{"NOT_NULL", NotNull, false},
		{"not-null", NotNull, false},
		{" zero ", Zero, false},
		{"Closed", Closed, false},
		{"none", None, true},
		{"maybe", None, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
