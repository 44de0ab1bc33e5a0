package relation

import "fmt"

// Kind is the operator of a binary relation between two symbolic values.
type Kind int

const (
	EQ  Kind = iota // ==
	NE              // !=
	LT              // <
	LE              // <=
	GT              // >
	GE              // >=
	VEQ             // value equality, e.g. a.equals(b)
	VNE             // negated value equality
)

var kindNames = [...]string{
	EQ:  "==",
	NE:  "!=",
	LT:  "<",
	LE:  "<=",
	GT:  ">",
	GE:  ">=",
	VEQ: ".EQ.",
	VNE: ".NE.",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// kinds lists every relation kind.
func kinds() []Kind {
	return []Kind{EQ, NE, LT, LE, GT, GE, VEQ, VNE}
}

// Inverse mirrors the operator so that the same endpoints are read in the
// opposite direction: < becomes >, <= becomes >=. Symmetric operators map to
// themselves.
func (k Kind) Inverse() Kind {
	switch k {
	case LT:
		return GT
	case GT:
		return LT
	case LE:
		return GE
	case GE:
		return LE
	default:
		return k
	}
}

// Negate returns the operator of the logical negation.
func (k Kind) Negate() Kind {
	switch k {
	case EQ:
		return NE
	case NE:
		return EQ
	case LT:
		return GE
	case GE:
		return LT
	case GT:
		return LE
	case LE:
		return GT
	case VEQ:
		return VNE
	case VNE:
		return VEQ
	default:
		panic(fmt.Sprintf("relation: unsupported kind %d", int(k)))
	}
}

// IsSymmetric reports whether swapping the endpoints keeps the meaning.
func (k Kind) IsSymmetric() bool {
	switch k {
	case EQ, NE, VEQ, VNE:
		return true
	default:
		return false
	}
}

// IsEquality reports whether k is one of the equality operators.
func (k Kind) IsEquality() bool {
	return k == EQ || k == VEQ
}
