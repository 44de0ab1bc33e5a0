package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gnolang/symex/internal/tree"
)

func keys(levels [][]component) [][][]string {
	res := make([][][]string, len(levels))
	for i, lvl := range levels {
		for _, comp := range lvl {
			var ks []string
			for _, p := range comp {
				ks = append(ks, p.Key)
			}
			res[i] = append(res[i], ks)
		}
	}
	return res
}

func TestSchedule(t *testing.T) {
	t.Parallel()
	proc := func(key string, calls ...string) *tree.Procedure {
		return &tree.Procedure{Key: key, Name: key, Calls: calls}
	}
	tests := []struct {
		name  string
		procs []*tree.Procedure
		want  [][][]string
	}{
		{
			name:  "independent",
			procs: []*tree.Procedure{proc("a"), proc("b", "fmt.Println")},
			want:  [][][]string{{{"a"}, {"b"}}},
		},
		{
			name:  "chain",
			procs: []*tree.Procedure{proc("a", "b"), proc("b", "c"), proc("c")},
			want:  [][][]string{{{"c"}}, {{"b"}}, {{"a"}}},
		},
		{
			name: "mutual recursion shares a component",
			procs: []*tree.Procedure{
				proc("a", "b", "d"),
				proc("b", "c"),
				proc("c", "b"),
				proc("d", "d"),
			},
			want: [][][]string{{{"b", "c"}, {"d"}}, {{"a"}}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, keys(schedule(tt.procs)))
		})
	}
}
