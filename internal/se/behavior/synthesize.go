package behavior

import (
	"golang.org/x/exp/slices"

	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/se/symbolic"
)

// Outcome is a terminal state reached by an exploration.
type Outcome struct {
	Node  Terminal
	State *state.State
}

// requirement domains are the ones a caller can check on its arguments.
// Lock and resource states are effects and are not required from callers.
var requirementDomains = []constraint.Domain{constraint.Nullness, constraint.Zeroness, constraint.Boolean}

// Build synthesizes the behavior of a procedure from the terminal states of
// its exploration. params are the values the parameters were bound to at
// entry.
func Build(key string, params []*symbolic.Value, variadic, complete bool, outcomes []Outcome) *Behavior {
	b := &Behavior{Key: key, Params: len(params), Complete: complete, VarArgs: variadic}
	for _, o := range outcomes {
		b.Yields = append(b.Yields, yieldOf(params, o))
	}
	b.Yields = reduce(dedupe(b.Yields))
	return b
}

func yieldOf(params []*symbolic.Value, o Outcome) Yield {
	st := o.State
	required := make([]constraint.Set, len(params))
	for i, p := range params {
		var cs constraint.Set
		for _, d := range requirementDomains {
			cs = cs.With(st.ConstraintOf(p, d))
		}
		required[i] = cs
	}
	exit := st.Exit()
	from := &Origin{Node: o.Node, Params: params, Exit: exit}
	if exc := st.Exception(); exc != nil {
		return NewExceptional(required, exc.TypeName(), from)
	}
	idx := -1
	var result constraint.Set
	if exit != nil {
		// a returned parameter carries the caller's argument constraints
		if idx = slices.Index(params, exit); idx < 0 {
			result = st.Constraints(exit)
		}
	}
	return NewHappyPath(required, result, idx, from)
}

func sameOutcome(a, b Yield) bool {
	switch a := a.(type) {
	case *HappyPath:
		b, ok := b.(*HappyPath)
		return ok && a.ResultIndex == b.ResultIndex && a.Result == b.Result
	case *Exceptional:
		b, ok := b.(*Exceptional)
		return ok && a.Type == b.Type
	}
	return false
}

// dedupe keeps the first of yields with the same parameter constraints and
// outcome.
func dedupe(yields []Yield) []Yield {
	res := make([]Yield, 0, len(yields))
	for _, y := range yields {
		dup := slices.ContainsFunc(res, func(o Yield) bool {
			return sameOutcome(o, y) && slices.Equal(o.ParamConstraints(), y.ParamConstraints())
		})
		if !dup {
			res = append(res, y)
		}
	}
	return res
}

// reduce merges pairs of yields with the same outcome whose parameter
// constraints differ only by the two constraints of one domain on one
// parameter. The merged yield leaves that parameter unconstrained in that
// domain. It repeats until no pair merges.
func reduce(yields []Yield) []Yield {
	for {
		merged := false
	search:
		for i := 0; i < len(yields); i++ {
			for j := i + 1; j < len(yields); j++ {
				if m := merge(yields[i], yields[j]); m != nil {
					yields[i] = m
					yields = slices.Delete(yields, j, j+1)
					merged = true
					break search
				}
			}
		}
		if !merged {
			return dedupe(yields)
		}
	}
}

func merge(a, b Yield) Yield {
	if !sameOutcome(a, b) {
		return nil
	}
	pa, pb := a.ParamConstraints(), b.ParamConstraints()
	if len(pa) != len(pb) {
		return nil
	}
	diff := -1
	for i := range pa {
		if pa[i] != pb[i] {
			if diff >= 0 {
				return nil
			}
			diff = i
		}
	}
	if diff < 0 {
		return nil
	}
	d, ok := complementaryDomain(pa[diff], pb[diff])
	if !ok {
		return nil
	}
	params := slices.Clone(pa)
	params[diff] = pa[diff].Without(d)
	switch a := a.(type) {
	case *HappyPath:
		return NewHappyPath(params, a.Result, a.ResultIndex, a.From)
	case *Exceptional:
		return NewExceptional(params, a.Type, a.From)
	}
	return nil
}

// complementaryDomain returns the single domain where a and b hold the two
// constraints of the domain, when every other domain agrees.
func complementaryDomain(a, b constraint.Set) (constraint.Domain, bool) {
	found := false
	var res constraint.Domain
	for _, d := range constraint.Domains() {
		ca, cb := a.Get(d), b.Get(d)
		if ca == cb {
			continue
		}
		if found || ca == constraint.None || cb != ca.Complement() {
			return 0, false
		}
		found, res = true, d
	}
	return res, found
}
