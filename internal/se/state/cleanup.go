package state

import (
	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
)

// Cleanup drops the bindings of frame symbols for which live returns false,
// then the constraints of values no longer reachable from the remaining
// bindings, the stack, the exit value or protected. Relations between
// reachable values are kept.
func (s *State) Cleanup(live func(*tree.Symbol) bool, protected []*symbolic.Value) *State {
	res := s
	var dead []*tree.Symbol
	s.Bindings(func(sym *tree.Symbol, _ *symbolic.Value) bool {
		if sym.IsLocal() && !live(sym) {
			dead = append(dead, sym)
		}
		return true
	})
	if len(dead) > 0 {
		res = res.clone()
		for _, sym := range dead {
			res.bindings = res.bindings.Delete(sym)
		}
	}

	reachable := res.reachable(protected)
	var unreachable []*symbolic.Value
	res.ConstrainedValues(func(v *symbolic.Value, _ constraint.Set) bool {
		if !reachable[v] {
			unreachable = append(unreachable, v)
		}
		return true
	})
	if len(unreachable) == 0 {
		return res
	}
	if res == s {
		res = res.clone()
	}
	for _, v := range unreachable {
		res.constraints = res.constraints.Delete(v)
	}
	return res
}

func (s *State) reachable(protected []*symbolic.Value) map[*symbolic.Value]bool {
	seen := make(map[*symbolic.Value]bool)
	var work []*symbolic.Value
	mark := func(v *symbolic.Value) {
		if v != nil && !seen[v] {
			seen[v] = true
			work = append(work, v)
		}
	}
	for _, c := range symbolic.Constants() {
		mark(c)
	}
	for _, v := range protected {
		mark(v)
	}
	mark(s.exit)
	for st := s.stack; st != nil; st = st.next {
		mark(st.top.Value)
	}
	s.Bindings(func(_ *tree.Symbol, v *symbolic.Value) bool {
		mark(v)
		return true
	})

	for {
		for len(work) > 0 {
			v := work[len(work)-1]
			work = work[:len(work)-1]
			for _, op := range v.Operands() {
				mark(op)
			}
		}
		// A relation stays while both of its operands are reachable.
		grown := false
		s.ConstrainedValues(func(v *symbolic.Value, _ constraint.Set) bool {
			if seen[v] || v.Kind() != symbolic.Relational {
				return true
			}
			ops := v.Operands()
			if seen[ops[0]] && seen[ops[1]] {
				mark(v)
				grown = true
			}
			return true
		})
		if !grown {
			return seen
		}
	}
}
