package relation

import (
	"errors"
	"fmt"
)

// ErrTransitiveLimitExceeded is returned by Resolve when saturating the known
// relations needs more deductions or iterations than allowed.
var ErrTransitiveLimitExceeded = errors.New("transitive relation limit exceeded")

const (
	DefaultMaxDeduced    = 1000
	DefaultMaxIterations = 10000
)

// Limits bound a single Resolve call.
type Limits struct {
	MaxDeduced    int
	MaxIterations int
}

// DefaultLimits returns the limits used by Resolve.
func DefaultLimits() Limits {
	return Limits{MaxDeduced: DefaultMaxDeduced, MaxIterations: DefaultMaxIterations}
}

func (l Limits) orDefault() Limits {
	if l.MaxDeduced <= 0 {
		l.MaxDeduced = DefaultMaxDeduced
	}
	if l.MaxIterations <= 0 {
		l.MaxIterations = DefaultMaxIterations
	}
	return l
}

// Resolve decides r given the known relations, using the default limits.
func (r Relation) Resolve(known []Relation) (State, error) {
	return r.ResolveWithLimits(known, DefaultLimits())
}

// ResolveWithLimits decides r given the known relations. Known relations are
// saturated with a worklist: each one is first checked against r, then
// combined with every relation seen so far to deduce new ones. The first
// determined answer wins. Exceeding limits is reported as
// ErrTransitiveLimitExceeded and never as Undetermined.
func (r Relation) ResolveWithLimits(known []Relation, limits Limits) (State, error) {
	if sameOperand(r.Left, r.Right) {
		return sameOperandState(r.Kind), nil
	}
	limits = limits.orDefault()
	target := normalize(r)

	all := newRelationSet(len(known))
	worklist := make([]normalized, 0, len(known))
	for _, k := range known {
		n := normalize(k)
		if all.add(n) {
			worklist = append(worklist, n)
		}
	}

	iterations := 0
	for len(worklist) > 0 {
		if all.len() > limits.MaxDeduced || iterations > limits.MaxIterations {
			return Undetermined, fmt.Errorf("%w: used relations: %d, iterations: %d",
				ErrTransitiveLimitExceeded, all.len(), iterations)
		}
		iterations++

		rel := worklist[0]
		worklist = worklist[1:]
		if st := rel.implies(target); st.Determined() {
			return st, nil
		}

		// all grows while deducing; only relations seen before this pop are combined.
		seen := all.items[:all.len():all.len()]
		for _, other := range seen {
			deduced, ok := rel.deduce(other)
			if !ok {
				continue
			}
			if all.add(deduced) {
				worklist = append(worklist, deduced)
			}
		}
	}
	return Undetermined, nil
}

func sameOperandState(k Kind) State {
	switch k {
	case EQ, GE, LE, VEQ:
		return Fulfilled
	default:
		return Unfulfilled
	}
}

// normalized is a relation restricted to EQ, NE, LT, GE, VEQ and VNE; GT and
// LE are rewritten by swapping the endpoints.
type normalized struct {
	kind Kind
	l, r Operand
}

func normalize(rel Relation) normalized {
	switch rel.Kind {
	case GT, LE:
		return normalized{kind: rel.Kind.Inverse(), l: rel.Right, r: rel.Left}
	default:
		return normalized{kind: rel.Kind, l: rel.Left, r: rel.Right}
	}
}

func (n normalized) relation() Relation {
	return Relation{Kind: n.kind, Left: n.l, Right: n.r}
}

func (n normalized) negate() normalized {
	return normalize(n.relation().Negate())
}

func (n normalized) equal(o normalized) bool {
	if n.kind != o.kind {
		return false
	}
	if n.kind.IsSymmetric() {
		return n.sameOperandsAs(o)
	}
	return sameOperand(n.l, o.l) && sameOperand(n.r, o.r)
}

func (n normalized) key() relationKey {
	a, b := n.l.ID(), n.r.ID()
	if n.kind.IsSymmetric() && a > b {
		a, b = b, a
	}
	return relationKey{kind: n.kind, a: a, b: b}
}

func (n normalized) hasOperand(v Operand) bool {
	return sameOperand(n.l, v) || sameOperand(n.r, v)
}

func (n normalized) hasSameOperand() bool {
	return sameOperand(n.l, n.r)
}

func (n normalized) sameOperandsAs(o normalized) bool {
	return (sameOperand(n.l, o.l) && sameOperand(n.r, o.r)) ||
		(sameOperand(n.l, o.r) && sameOperand(n.r, o.l))
}

func (n normalized) implies(target normalized) State {
	if n.equal(target) {
		return Fulfilled
	}
	if n.negate().equal(target) {
		return Unfulfilled
	}
	if n.sameOperandsAs(target) {
		return n.relation().Implies(target.relation())
	}
	return Undetermined
}

// deduce combines n with other, first as a conjunction over the same
// endpoints, then transitively over a shared endpoint.
func (n normalized) deduce(other normalized) (normalized, bool) {
	if res, ok := n.simplify(other); ok {
		return res, true
	}
	return n.combineTransitively(other)
}

func (n normalized) simplify(other normalized) (normalized, bool) {
	if n.kind != GE || !n.sameOperandsAs(other) || n.equal(other) {
		return normalized{}, false
	}
	switch other.kind {
	case GE:
		// a >= b && b >= a => a == b
		return normalized{kind: EQ, l: n.l, r: n.r}, true
	case NE, VNE:
		// a >= b && a != b => b < a
		return normalized{kind: LT, l: n.r, r: n.l}, true
	}
	return normalized{}, false
}

func (n normalized) potentiallyTransitiveWith(other normalized) bool {
	if n.hasSameOperand() || other.hasSameOperand() {
		return false
	}
	return (n.hasOperand(other.l) || n.hasOperand(other.r)) && !n.sameOperandsAs(other)
}

// differentOperand is the endpoint of n that other does not share.
func (n normalized) differentOperand(other normalized) Operand {
	if other.hasOperand(n.l) {
		return n.r
	}
	return n.l
}

func (n normalized) combineTransitively(other normalized) (normalized, bool) {
	if !n.potentiallyTransitiveWith(other) {
		return normalized{}, false
	}
	if res, ok := n.combineOneWay(other); ok {
		return res, true
	}
	return other.combineOneWay(n)
}

func (n normalized) combineOneWay(other normalized) (normalized, bool) {
	if res, ok := n.equalityTransitive(other); ok {
		return res, true
	}
	if res, ok := n.lessThanTransitive(other); ok {
		return res, true
	}
	return n.greaterOrEqualTransitive(other)
}

// equalityTransitive substitutes the shared endpoint of other with the far
// endpoint of n. Value equality never rewrites a reference equality.
func (n normalized) equalityTransitive(other normalized) (normalized, bool) {
	if !n.kind.IsEquality() || (n.kind == VEQ && other.kind == EQ) {
		return normalized{}, false
	}
	if n.hasOperand(other.l) {
		return normalize(Relation{Kind: other.kind, Left: n.differentOperand(other), Right: other.r}), true
	}
	return normalize(Relation{Kind: other.kind, Left: other.l, Right: n.differentOperand(other)}), true
}

func (n normalized) lessThanTransitive(other normalized) (normalized, bool) {
	if n.kind != LT {
		return normalized{}, false
	}
	switch other.kind {
	case LT:
		// a < x && x < b => a < b
		if sameOperand(n.r, other.l) {
			return normalized{kind: LT, l: n.l, r: other.r}, true
		}
		// x < a && b < x => b < a
		if sameOperand(n.l, other.r) {
			return normalized{kind: LT, l: other.l, r: n.r}, true
		}
	case GE:
		// a < x && b >= x => a < b
		if sameOperand(n.r, other.r) {
			return normalized{kind: LT, l: n.l, r: other.l}, true
		}
		// x < a && x >= b => b < a
		if sameOperand(n.l, other.l) {
			return normalized{kind: LT, l: other.r, r: n.r}, true
		}
	}
	return normalized{}, false
}

func (n normalized) greaterOrEqualTransitive(other normalized) (normalized, bool) {
	// a >= x && x >= b => a >= b
	if n.kind == GE && other.kind == GE && sameOperand(n.r, other.l) {
		return normalized{kind: GE, l: n.l, r: other.r}, true
	}
	return normalized{}, false
}

type relationKey struct {
	kind Kind
	a, b int
}

// relationSet keeps insertion order so that saturation is deterministic.
type relationSet struct {
	index map[relationKey]struct{}
	items []normalized
}

func newRelationSet(capacity int) *relationSet {
	return &relationSet{
		index: make(map[relationKey]struct{}, capacity),
		items: make([]normalized, 0, capacity),
	}
}

func (s *relationSet) add(n normalized) bool {
	k := n.key()
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = struct{}{}
	s.items = append(s.items, n)
	return true
}

func (s *relationSet) len() int { return len(s.items) }
