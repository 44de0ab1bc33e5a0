package relation

import "fmt"

// Operand is an endpoint of a relation. Operands are compared by identity and
// ID must be unique among the operands of one query.
type Operand interface {
	ID() int
	String() string
}

// State is the outcome of checking a relation against known facts.
type State int

const (
	Undetermined State = iota
	Fulfilled
	Unfulfilled
)

func (s State) String() string {
	switch s {
	case Fulfilled:
		return "FULFILLED"
	case Unfulfilled:
		return "UNFULFILLED"
	default:
		return "UNDETERMINED"
	}
}

// Determined reports whether s is Fulfilled or Unfulfilled.
func (s State) Determined() bool {
	return s != Undetermined
}

// Rejects reports whether assuming the relation is `holds` contradicts s.
func (s State) Rejects(holds bool) bool {
	switch s {
	case Fulfilled:
		return !holds
	case Unfulfilled:
		return holds
	default:
		return false
	}
}

// Relation is a directed binary fact Left Kind Right.
type Relation struct {
	Kind  Kind
	Left  Operand
	Right Operand
}

// New returns the relation left kind right.
func New(kind Kind, left, right Operand) Relation {
	return Relation{Kind: kind, Left: left, Right: right}
}

func (r Relation) String() string {
	return fmt.Sprintf("%s%s%s", r.Left, r.Kind, r.Right)
}

// Inverse mirrors the operator and keeps the endpoints, a < b becomes a > b.
func (r Relation) Inverse() Relation {
	return Relation{Kind: r.Kind.Inverse(), Left: r.Left, Right: r.Right}
}

// Symmetric swaps the endpoints and mirrors the operator so that the result
// states the same fact: a < b becomes b > a.
func (r Relation) Symmetric() Relation {
	return Relation{Kind: r.Kind.Inverse(), Left: r.Right, Right: r.Left}
}

// Negate returns the logical negation over the same endpoints.
func (r Relation) Negate() Relation {
	return Relation{Kind: r.Kind.Negate(), Left: r.Left, Right: r.Right}
}

// Involves reports whether v is one of the endpoints.
func (r Relation) Involves(v Operand) bool {
	return sameOperand(r.Left, v) || sameOperand(r.Right, v)
}

// Other returns the endpoint that is not v.
func (r Relation) Other(v Operand) Operand {
	if sameOperand(r.Left, v) {
		return r.Right
	}
	return r.Left
}

// equivalent reports whether r and o state the same fact.
func (r Relation) equivalent(o Relation) bool {
	return normalize(r).equal(normalize(o))
}

// Implies tells what r holding says about o over the same endpoints. Relations
// over different endpoints are Undetermined.
func (r Relation) Implies(o Relation) State {
	switch {
	case sameOperand(r.Left, o.Left) && sameOperand(r.Right, o.Right):
	case sameOperand(r.Left, o.Right) && sameOperand(r.Right, o.Left):
		o = o.Symmetric()
	default:
		return Undetermined
	}
	return impliesTable[r.Kind][o.Kind]
}

const (
	dd = Undetermined
	ff = Fulfilled
	uu = Unfulfilled
)

// impliesTable[r][o] is the truth of "a o b" when "a r b" holds.
var impliesTable = [...][8]State{
	//    EQ  NE  LT  LE  GT  GE  VEQ VNE
	EQ:  {ff, uu, uu, ff, uu, ff, ff, uu},
	NE:  {uu, ff, dd, dd, dd, dd, dd, dd},
	LT:  {uu, ff, ff, ff, uu, uu, dd, dd},
	LE:  {dd, dd, dd, ff, uu, dd, dd, dd},
	GT:  {uu, ff, uu, uu, ff, ff, dd, dd},
	GE:  {dd, dd, uu, dd, dd, ff, dd, dd},
	VEQ: {dd, dd, dd, dd, dd, dd, ff, uu},
	VNE: {uu, ff, dd, dd, dd, dd, uu, ff},
}

func sameOperand(a, b Operand) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID() == b.ID()
}
