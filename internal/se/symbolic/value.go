// Package symbolic defines the opaque values the engine reasons about.
package symbolic

import (
	"fmt"

	"github.com/gnolang/symex/internal/se/relation"
)

type Kind int

const (
	Plain Kind = iota
	Constant
	Relational
	Not
	And
	Or
	Xor
	TypeTest
	Exceptional
)

// Value stands for an unknown runtime value. Values are immutable and
// compared by identity; a Factory hands out ids unique within one
// exploration. Constants use negative ids shared by every exploration.
type Value struct {
	id    int
	kind  Kind
	rel   relation.Kind
	left  *Value
	right *Value
	// name is the constant name, the tested type or the thrown type.
	name string
}

var (
	Null  = &Value{id: -1, kind: Constant, name: "null"}
	True  = &Value{id: -2, kind: Constant, name: "true"}
	False = &Value{id: -3, kind: Constant, name: "false"}
)

// Constants lists the process-wide constant values.
func Constants() []*Value {
	return []*Value{Null, True, False}
}

func (v *Value) ID() int    { return v.id }
func (v *Value) Kind() Kind { return v.kind }

func (v *Value) IsConstant() bool { return v.kind == Constant }

// Relation returns the relation a relational value stands for.
func (v *Value) Relation() (relation.Relation, bool) {
	if v.kind != Relational {
		return relation.Relation{}, false
	}
	return relation.New(v.rel, v.left, v.right), true
}

// Operands returns the values v is computed from.
func (v *Value) Operands() []*Value {
	switch v.kind {
	case Relational, And, Or, Xor:
		return []*Value{v.left, v.right}
	case Not, TypeTest:
		return []*Value{v.left}
	}
	return nil
}

// TypeName is the tested type of a type test or the thrown type of an
// exceptional value. It is empty when unknown.
func (v *Value) TypeName() string {
	if v.kind == TypeTest || v.kind == Exceptional {
		return v.name
	}
	return ""
}

func (v *Value) IsExceptional() bool { return v != nil && v.kind == Exceptional }

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.kind {
	case Constant:
		return v.name
	case Relational:
		return fmt.Sprintf("SV_%d(%s%s%s)", v.id, v.left, v.rel, v.right)
	case Not:
		return fmt.Sprintf("SV_%d(!%s)", v.id, v.left)
	case And:
		return fmt.Sprintf("SV_%d(%s&%s)", v.id, v.left, v.right)
	case Or:
		return fmt.Sprintf("SV_%d(%s|%s)", v.id, v.left, v.right)
	case Xor:
		return fmt.Sprintf("SV_%d(%s^%s)", v.id, v.left, v.right)
	case TypeTest:
		return fmt.Sprintf("SV_%d(%s instanceof %s)", v.id, v.left, v.name)
	case Exceptional:
		if v.name == "" {
			return fmt.Sprintf("SV_%d(exception)", v.id)
		}
		return fmt.Sprintf("SV_%d(exception %s)", v.id, v.name)
	}
	return fmt.Sprintf("SV_%d", v.id)
}

// Factory issues fresh values. It is not safe for concurrent use; every
// exploration owns one.
type Factory struct {
	next int
}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) fresh(kind Kind) *Value {
	f.next++
	return &Value{id: f.next, kind: kind}
}

// New returns a fresh unconstrained value.
func (f *Factory) New() *Value {
	return f.fresh(Plain)
}

func (f *Factory) Relational(kind relation.Kind, left, right *Value) *Value {
	v := f.fresh(Relational)
	v.rel, v.left, v.right = kind, left, right
	return v
}

func (f *Factory) Not(operand *Value) *Value {
	v := f.fresh(Not)
	v.left = operand
	return v
}

// Logical returns the value of a non short-circuit boolean operator. kind is
// one of And, Or and Xor.
func (f *Factory) Logical(kind Kind, left, right *Value) *Value {
	if kind != And && kind != Or && kind != Xor {
		panic(fmt.Sprintf("symbolic: %d is not a logical kind", int(kind)))
	}
	v := f.fresh(kind)
	v.left, v.right = left, right
	return v
}

func (f *Factory) TypeTest(operand *Value, typeName string) *Value {
	v := f.fresh(TypeTest)
	v.left, v.name = operand, typeName
	return v
}

// Exceptional returns a value standing for a thrown exception of typeName.
func (f *Factory) Exceptional(typeName string) *Value {
	v := f.fresh(Exceptional)
	v.name = typeName
	return v
}
