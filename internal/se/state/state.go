// Package state holds the persistent program state of the symbolic engine.
//
// A State is never mutated. Every operation returns a new State that shares
// structure with its receiver, so states can be kept in the exploded graph
// and compared cheaply.
package state

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/benbjohnson/immutable"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/relation"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
)

// Frame is an evaluation stack entry. Symbol is set when the value was read
// from a variable.
type Frame struct {
	Value  *symbolic.Value
	Symbol *tree.Symbol
}

// Point is a program point: a block id and an element index. An index equal
// to the number of elements addresses the block terminator.
type Point struct {
	Block int
	Index int
}

func (p Point) String() string { return fmt.Sprintf("B%d.%d", p.Block, p.Index) }

type stack struct {
	top  Frame
	next *stack
	size int
}

func (s *stack) push(f Frame) *stack {
	size := 1
	if s != nil {
		size = s.size + 1
	}
	return &stack{top: f, next: s, size: size}
}

func (s *stack) len() int {
	if s == nil {
		return 0
	}
	return s.size
}

// env is shared by every state derived from the same root.
type env struct {
	logger *zap.Logger
	limits relation.Limits
}

type Option func(*env)

func WithLogger(l *zap.Logger) Option {
	return func(e *env) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRelationLimits bounds the relation queries made while setting
// constraints on relational values.
func WithRelationLimits(l relation.Limits) Option {
	return func(e *env) { e.limits = l }
}

type State struct {
	env         *env
	stack       *stack
	exit        *symbolic.Value
	bindings    *immutable.SortedMap[*tree.Symbol, *symbolic.Value]
	constraints *immutable.SortedMap[*symbolic.Value, constraint.Set]
	visits      *immutable.Map[Point, int]

	hash   uint64
	hashed bool
}

type symbolComparer struct{}

func (symbolComparer) Compare(a, b *tree.Symbol) int { return compareInts(a.ID, b.ID) }

type valueComparer struct{}

func (valueComparer) Compare(a, b *symbolic.Value) int { return compareInts(a.ID(), b.ID()) }

type pointHasher struct{}

func (pointHasher) Hash(p Point) uint32 { return uint32(p.Block*31 + p.Index) }

func (pointHasher) Equal(a, b Point) bool { return a == b }

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// New returns the empty state. The constants carry their own constraints.
func New(opts ...Option) *State {
	e := &env{logger: zap.NewNop(), limits: relation.DefaultLimits()}
	for _, opt := range opts {
		opt(e)
	}
	constraints := immutable.NewSortedMap[*symbolic.Value, constraint.Set](valueComparer{})
	constraints = constraints.Set(symbolic.Null, constraint.Of(constraint.Null))
	constraints = constraints.Set(symbolic.True, constraint.Of(constraint.True, constraint.NotNull))
	constraints = constraints.Set(symbolic.False, constraint.Of(constraint.False, constraint.NotNull))
	return &State{
		env:         e,
		bindings:    immutable.NewSortedMap[*tree.Symbol, *symbolic.Value](symbolComparer{}),
		constraints: constraints,
		visits:      immutable.NewMap[Point, int](pointHasher{}),
	}
}

func (s *State) clone() *State {
	c := *s
	c.hashed = false
	c.hash = 0
	return &c
}

// Logger returns the logger states were created with.
func (s *State) Logger() *zap.Logger { return s.env.logger }

// Stack.

func (s *State) Push(v *symbolic.Value, sym *tree.Symbol) *State {
	c := s.clone()
	c.stack = s.stack.push(Frame{Value: v, Symbol: sym})
	return c
}

// Pop removes the top frame. Popping an empty stack returns a zero Frame.
func (s *State) Pop() (*State, Frame) {
	if s.stack == nil {
		return s, Frame{}
	}
	c := s.clone()
	c.stack = s.stack.next
	return c, s.stack.top
}

// PopN removes n frames and returns them top first.
func (s *State) PopN(n int) (*State, []Frame) {
	frames := make([]Frame, 0, n)
	cur := s
	for i := 0; i < n; i++ {
		var f Frame
		cur, f = cur.Pop()
		frames = append(frames, f)
	}
	return cur, frames
}

// Peek returns the frame n positions below the top, 0 being the top.
func (s *State) Peek(n int) Frame {
	st := s.stack
	for i := 0; i < n && st != nil; i++ {
		st = st.next
	}
	if st == nil {
		return Frame{}
	}
	return st.top
}

func (s *State) StackSize() int { return s.stack.len() }

func (s *State) ClearStack() *State {
	if s.stack == nil {
		return s
	}
	c := s.clone()
	c.stack = nil
	return c
}

// Exit value: the returned value or the pending exception.

func (s *State) Exit() *symbolic.Value { return s.exit }

func (s *State) WithExit(v *symbolic.Value) *State {
	c := s.clone()
	c.exit = v
	return c
}

// Exception returns the pending exceptional value, if any.
func (s *State) Exception() *symbolic.Value {
	if s.exit.IsExceptional() {
		return s.exit
	}
	return nil
}

// Bindings.

func (s *State) Bind(sym *tree.Symbol, v *symbolic.Value) *State {
	c := s.clone()
	c.bindings = s.bindings.Set(sym, v)
	return c
}

func (s *State) Value(sym *tree.Symbol) (*symbolic.Value, bool) {
	if sym == nil {
		return nil, false
	}
	return s.bindings.Get(sym)
}

func (s *State) Unbind(sym *tree.Symbol) *State {
	if _, ok := s.bindings.Get(sym); !ok {
		return s
	}
	c := s.clone()
	c.bindings = s.bindings.Delete(sym)
	return c
}

// Bindings calls fn for every binding in symbol id order until fn returns
// false.
func (s *State) Bindings(fn func(*tree.Symbol, *symbolic.Value) bool) {
	it := s.bindings.Iterator()
	for !it.Done() {
		sym, v, _ := it.Next()
		if !fn(sym, v) {
			return
		}
	}
}

// SymbolOf returns a symbol currently bound to v.
func (s *State) SymbolOf(v *symbolic.Value) *tree.Symbol {
	var res *tree.Symbol
	s.Bindings(func(sym *tree.Symbol, bound *symbolic.Value) bool {
		if bound == v {
			res = sym
			return false
		}
		return true
	})
	return res
}

// Constraints.

func (s *State) Constraints(v *symbolic.Value) constraint.Set {
	if v == nil {
		return constraint.Set{}
	}
	cs, _ := s.constraints.Get(v)
	return cs
}

func (s *State) ConstraintOf(v *symbolic.Value, d constraint.Domain) constraint.Constraint {
	return s.Constraints(v).Get(d)
}

// ConstrainedValues calls fn for every value carrying a constraint until fn
// returns false.
func (s *State) ConstrainedValues(fn func(*symbolic.Value, constraint.Set) bool) {
	it := s.constraints.Iterator()
	for !it.Done() {
		v, cs, _ := it.Next()
		if !fn(v, cs) {
			return
		}
	}
}

func (s *State) withConstraints(v *symbolic.Value, cs constraint.Set) *State {
	c := s.clone()
	if cs.IsEmpty() {
		c.constraints = s.constraints.Delete(v)
	} else {
		c.constraints = s.constraints.Set(v, cs)
	}
	return c
}

// RemoveConstraint drops the constraint of domain d from v.
func (s *State) RemoveConstraint(v *symbolic.Value, d constraint.Domain) *State {
	cs := s.Constraints(v)
	if cs.Get(d) == constraint.None {
		return s
	}
	return s.withConstraints(v, cs.Without(d))
}

// KnownRelations returns the relations that hold in s: relational values
// constrained True, and the negation of those constrained False.
func (s *State) KnownRelations() []relation.Relation {
	var res []relation.Relation
	s.ConstrainedValues(func(v *symbolic.Value, cs constraint.Set) bool {
		rel, ok := v.Relation()
		if !ok {
			return true
		}
		switch cs.Get(constraint.Boolean) {
		case constraint.True:
			res = append(res, rel)
		case constraint.False:
			res = append(res, rel.Negate())
		}
		return true
	})
	return res
}

// Visits.

func (s *State) Visits(p Point) int {
	n, _ := s.visits.Get(p)
	return n
}

// Visit returns s with the visit count of p incremented.
func (s *State) Visit(p Point) *State {
	c := s.clone()
	c.visits = s.visits.Set(p, s.Visits(p)+1)
	c.hash, c.hashed = s.hash, s.hashed
	return c
}

// Equality.

// Equal compares stack, exit value, bindings and constraints. Visit counts
// are ignored.
func (s *State) Equal(o *State) bool {
	if s == o {
		return true
	}
	if o == nil || s.exit != o.exit || s.stack.len() != o.stack.len() {
		return false
	}
	for a, b := s.stack, o.stack; a != nil; a, b = a.next, b.next {
		if a == b {
			break
		}
		if a.top != b.top {
			return false
		}
	}
	return sortedMapsEqual(s.bindings, o.bindings) && sortedMapsEqual(s.constraints, o.constraints)
}

func sortedMapsEqual[K, V comparable](a, b *immutable.SortedMap[K, V]) bool {
	if a == b {
		return true
	}
	if a.Len() != b.Len() {
		return false
	}
	ia, ib := a.Iterator(), b.Iterator()
	for !ia.Done() {
		ka, va, _ := ia.Next()
		kb, vb, _ := ib.Next()
		if ka != kb || va != vb {
			return false
		}
	}
	return true
}

// Hash is consistent with Equal.
func (s *State) Hash() uint64 {
	if s.hashed {
		return s.hash
	}
	d := xxhash.New()
	var buf [8]byte
	write := func(x int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
		_, _ = d.Write(buf[:])
	}
	for st := s.stack; st != nil; st = st.next {
		write(valueID(st.top.Value))
		write(symbolID(st.top.Symbol))
	}
	write(valueID(s.exit))
	s.Bindings(func(sym *tree.Symbol, v *symbolic.Value) bool {
		write(sym.ID)
		write(v.ID())
		return true
	})
	s.ConstrainedValues(func(v *symbolic.Value, cs constraint.Set) bool {
		write(v.ID())
		write(int(cs.Hash()))
		return true
	})
	s.hash, s.hashed = d.Sum64(), true
	return s.hash
}

func valueID(v *symbolic.Value) int {
	if v == nil {
		return 0
	}
	return v.ID()
}

func symbolID(sym *tree.Symbol) int {
	if sym == nil {
		return 0
	}
	return sym.ID
}

func (s *State) String() string {
	var sb strings.Builder
	sb.WriteString("stack: [")
	first := true
	for st := s.stack; st != nil; st = st.next {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(st.top.Value.String())
		if st.top.Symbol != nil {
			sb.WriteString("(" + st.top.Symbol.Name + ")")
		}
	}
	sb.WriteString("]\n")
	if s.exit != nil {
		fmt.Fprintf(&sb, "exit: %s\n", s.exit)
	}
	sb.WriteString("bindings:")
	s.Bindings(func(sym *tree.Symbol, v *symbolic.Value) bool {
		fmt.Fprintf(&sb, " %s->%s", sym.Name, v)
		return true
	})
	sb.WriteString("\nconstraints:")
	s.ConstrainedValues(func(v *symbolic.Value, cs constraint.Set) bool {
		if v.IsConstant() {
			return true
		}
		fmt.Fprintf(&sb, " %s%s", v, cs)
		return true
	})
	sb.WriteString("\n")
	return sb.String()
}
