// Package constraint defines the independent axes of knowledge the symbolic
// engine keeps about a value.
package constraint

import (
	"fmt"
	"strings"

	"github.com/gnolang/symex/internal/se/relation"
)

// Domain is one axis of knowledge. A value carries at most one constraint per
// domain.
type Domain int

const (
	Nullness Domain = iota
	Zeroness
	Boolean
	Lock
	Resource

	domainCount
)

var domainNames = [...]string{
	Nullness: "nullness",
	Zeroness: "zeroness",
	Boolean:  "boolean",
	Lock:     "lock",
	Resource: "resource",
}

func (d Domain) String() string {
	if d < 0 || d >= domainCount {
		return fmt.Sprintf("Domain(%d)", int(d))
	}
	return domainNames[d]
}

// Domains lists every domain in a fixed order.
func Domains() []Domain {
	return []Domain{Nullness, Zeroness, Boolean, Lock, Resource}
}

// Constraint is a tag within a domain. The zero value means "no constraint".
type Constraint int

const (
	None Constraint = iota
	Null
	NotNull
	Zero
	NonZero
	True
	False
	Locked
	Unlocked
	Open
	Closed
)

var constraintInfo = [...]struct {
	name   string
	domain Domain
}{
	None:     {"NONE", -1},
	Null:     {"NULL", Nullness},
	NotNull:  {"NOT_NULL", Nullness},
	Zero:     {"ZERO", Zeroness},
	NonZero:  {"NON_ZERO", Zeroness},
	True:     {"TRUE", Boolean},
	False:    {"FALSE", Boolean},
	Locked:   {"LOCKED", Lock},
	Unlocked: {"UNLOCKED", Lock},
	Open:     {"OPEN", Resource},
	Closed:   {"CLOSED", Resource},
}

func (c Constraint) valid() bool {
	return c > None && int(c) < len(constraintInfo)
}

func (c Constraint) String() string {
	if c == None || !c.valid() {
		return constraintInfo[None].name
	}
	return constraintInfo[c].name
}

// Parse returns the constraint named s. Names are matched case
// insensitively and '-' may stand for '_', so "not-null" is NotNull.
func Parse(s string) (Constraint, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for c := Null; c.valid(); c++ {
		if constraintInfo[c].name == name {
			return c, nil
		}
	}
	return None, fmt.Errorf("unknown constraint %q", s)
}

// Domain returns the domain c belongs to. It panics on None.
func (c Constraint) Domain() Domain {
	if !c.valid() {
		panic(fmt.Sprintf("constraint: no domain for %d", int(c)))
	}
	return constraintInfo[c].domain
}

// Inverse returns the constraint that must hold on a value known to differ
// from a value carrying c. NotNull and NonZero say nothing about a different
// value and have no inverse.
func (c Constraint) Inverse() Constraint {
	switch c {
	case Null:
		return NotNull
	case Zero:
		return NonZero
	case True:
		return False
	case False:
		return True
	default:
		return None
	}
}

// Complement returns the other constraint of c's domain.
func (c Constraint) Complement() Constraint {
	switch c {
	case Null:
		return NotNull
	case NotNull:
		return Null
	case Zero:
		return NonZero
	case NonZero:
		return Zero
	case True:
		return False
	case False:
		return True
	case Locked:
		return Unlocked
	case Unlocked:
		return Locked
	case Open:
		return Closed
	case Closed:
		return Open
	default:
		return None
	}
}

// CopyOver returns the constraint implied on b when a carries c and "a kind b"
// holds, or None.
func (c Constraint) CopyOver(kind relation.Kind) Constraint {
	if !c.valid() {
		return None
	}
	switch c.Domain() {
	case Lock, Resource:
		if kind == relation.EQ {
			return c
		}
		return None
	}
	switch kind {
	case relation.EQ, relation.VEQ:
		return c
	case relation.NE, relation.VNE:
		return c.Inverse()
	case relation.LT:
		if c == Zero {
			return NonZero
		}
	}
	return None
}

// Set holds at most one constraint per domain. Sets are small comparable
// values and can be used as map keys.
type Set struct {
	byDomain [domainCount]Constraint
}

// Of returns a set holding the given constraints. Later constraints replace
// earlier ones of the same domain.
func Of(cs ...Constraint) Set {
	var s Set
	for _, c := range cs {
		s = s.With(c)
	}
	return s
}

// Get returns the constraint held for d, or None.
func (s Set) Get(d Domain) Constraint {
	if d < 0 || d >= domainCount {
		return None
	}
	return s.byDomain[d]
}

// Has reports whether s holds exactly c.
func (s Set) Has(c Constraint) bool {
	return c.valid() && s.byDomain[c.Domain()] == c
}

// Conflicts reports whether s holds another constraint in c's domain.
func (s Set) Conflicts(c Constraint) bool {
	if !c.valid() {
		return false
	}
	cur := s.byDomain[c.Domain()]
	return cur != None && cur != c
}

// With returns s with c replacing any constraint of the same domain.
func (s Set) With(c Constraint) Set {
	if c.valid() {
		s.byDomain[c.Domain()] = c
	}
	return s
}

// Without returns s with the constraint of d removed.
func (s Set) Without(d Domain) Set {
	if d >= 0 && d < domainCount {
		s.byDomain[d] = None
	}
	return s
}

func (s Set) IsEmpty() bool {
	return s == Set{}
}

func (s Set) Len() int {
	n := 0
	for _, c := range s.byDomain {
		if c != None {
			n++
		}
	}
	return n
}

// List returns the held constraints in domain order.
func (s Set) List() []Constraint {
	var res []Constraint
	for _, c := range s.byDomain {
		if c != None {
			res = append(res, c)
		}
	}
	return res
}

// Hash mixes the held constraints into a small integer.
func (s Set) Hash() uint64 {
	var h uint64
	for _, c := range s.byDomain {
		h = h*16 + uint64(c)
	}
	return h
}

func (s Set) String() string {
	parts := make([]string, 0, domainCount)
	for _, c := range s.List() {
		parts = append(parts, c.String())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
