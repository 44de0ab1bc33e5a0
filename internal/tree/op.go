package tree

import "github.com/gnolang/symex/internal/se/relation"

type Op int

const (
	OpNone Op = iota

	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	// OpValueEq is value equality such as Java's equals.
	OpValueEq

	OpAndAnd
	OpOrOr

	OpAnd
	OpOr
	OpXor

	OpAdd
	OpSub
	OpMul
	OpQuo
	OpRem
	OpShl
	OpShr
	OpAndNot

	OpNot
	OpNeg
	OpPlus
	OpCompl
	OpInc
	OpDec
)

var opNames = [...]string{
	OpNone:    "",
	OpEq:      "==",
	OpNe:      "!=",
	OpLt:      "<",
	OpLe:      "<=",
	OpGt:      ">",
	OpGe:      ">=",
	OpValueEq: "equals",
	OpAndAnd:  "&&",
	OpOrOr:    "||",
	OpAnd:     "&",
	OpOr:      "|",
	OpXor:     "^",
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpQuo:     "/",
	OpRem:     "%",
	OpShl:     "<<",
	OpShr:     ">>",
	OpAndNot:  "&^",
	OpNot:     "!",
	OpNeg:     "-",
	OpPlus:    "+",
	OpCompl:   "^",
	OpInc:     "++",
	OpDec:     "--",
}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return "?"
	}
	return opNames[o]
}

// Relation maps a comparison operator to its relation kind.
func (o Op) Relation() (relation.Kind, bool) {
	switch o {
	case OpEq:
		return relation.EQ, true
	case OpNe:
		return relation.NE, true
	case OpLt:
		return relation.LT, true
	case OpLe:
		return relation.LE, true
	case OpGt:
		return relation.GT, true
	case OpGe:
		return relation.GE, true
	case OpValueEq:
		return relation.VEQ, true
	}
	return 0, false
}

// IsLogical reports whether o is a non short-circuit boolean operator.
func (o Op) IsLogical() bool {
	return o == OpAnd || o == OpOr || o == OpXor
}

func (o Op) IsShortCircuit() bool {
	return o == OpAndAnd || o == OpOrOr
}

// IsDivision reports whether o fails on a zero right operand.
func (o Op) IsDivision() bool {
	return o == OpQuo || o == OpRem
}
