package state

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/relation"
	"github.com/gnolang/symex/internal/se/symbolic"
)

// maxPropagation bounds the number of constraint applications made by one
// SetConstraint call.
const maxPropagation = 10000

// ErrPropagationLimit is returned when propagating a constraint does not
// converge.
var ErrPropagationLimit = errors.New("constraint propagation limit exceeded")

type pending struct {
	v *symbolic.Value
	c constraint.Constraint
}

type task struct {
	st    *State
	queue []pending
}

// SetConstraint returns the states in which v carries c. No state is
// returned when c contradicts what is already known. Boolean constraints on
// relational and logical values are propagated to their operands, and every
// new constraint is copied to the values v is known to relate to, which may
// split or prune states further.
func (s *State) SetConstraint(v *symbolic.Value, c constraint.Constraint) ([]*State, error) {
	if v == nil || c == constraint.None {
		return []*State{s}, nil
	}
	var done []*State
	tasks := []task{{st: s, queue: []pending{{v, c}}}}
	for steps := 0; len(tasks) > 0; steps++ {
		if steps > maxPropagation {
			return nil, fmt.Errorf("setting %s on %s: %w", c, v, ErrPropagationLimit)
		}
		t := tasks[0]
		tasks = tasks[1:]
		if len(t.queue) == 0 {
			done = append(done, t.st)
			continue
		}
		head, rest := t.queue[0], t.queue[1:]
		for _, out := range t.st.apply(head) {
			queue := make([]pending, 0, len(rest)+len(out.more))
			queue = append(queue, rest...)
			queue = append(queue, out.more...)
			tasks = append(tasks, task{st: out.st, queue: queue})
		}
	}
	return done, nil
}

type outcome struct {
	st   *State
	more []pending
}

func (s *State) apply(p pending) []outcome {
	cur := s.Constraints(p.v)
	if cur.Has(p.c) {
		return []outcome{{st: s}}
	}
	if cur.Conflicts(p.c) {
		return nil
	}

	rel, relational := p.v.Relation()
	isBool := p.c.Domain() == constraint.Boolean
	if relational && isBool {
		if s.checkRelation(rel).Rejects(p.c == constraint.True) {
			return nil
		}
		if p.c == constraint.False {
			rel = rel.Negate()
		}
	}

	next := s.withConstraints(p.v, cur.With(p.c))
	more := next.copies(p.v, p.c)
	if relational && isBool {
		more = append(more, next.copiesAcross(rel)...)
	}
	if !isBool {
		return []outcome{{st: next, more: more}}
	}
	return splitLogical(next, p.v, p.c, more)
}

// checkRelation resolves rel against the relations known in s. A query that
// exceeds its limits is treated as undetermined.
func (s *State) checkRelation(rel relation.Relation) relation.State {
	st, err := rel.ResolveWithLimits(s.KnownRelations(), s.env.limits)
	if err != nil {
		s.env.logger.Debug("relation undetermined",
			zap.Stringer("relation", rel),
			zap.Error(err),
		)
		return relation.Undetermined
	}
	return st
}

// copies returns the constraints implied by c on v for every value v is
// known to relate to.
func (s *State) copies(v *symbolic.Value, c constraint.Constraint) []pending {
	var res []pending
	for _, rel := range s.KnownRelations() {
		if !rel.Involves(v) || rel.Left == rel.Right {
			continue
		}
		oriented := rel
		if rel.Right.ID() == v.ID() {
			oriented = rel.Symmetric()
		}
		if cc := c.CopyOver(oriented.Kind); cc != constraint.None {
			res = append(res, pending{v: oriented.Right.(*symbolic.Value), c: cc})
		}
	}
	return res
}

// copiesAcross returns the constraints a newly known relation transfers
// between its operands.
func (s *State) copiesAcross(rel relation.Relation) []pending {
	left := rel.Left.(*symbolic.Value)
	right := rel.Right.(*symbolic.Value)
	var res []pending
	for _, c := range s.Constraints(left).List() {
		if cc := c.CopyOver(rel.Kind); cc != constraint.None {
			res = append(res, pending{v: right, c: cc})
		}
	}
	sym := rel.Symmetric()
	for _, c := range s.Constraints(right).List() {
		if cc := c.CopyOver(sym.Kind); cc != constraint.None {
			res = append(res, pending{v: left, c: cc})
		}
	}
	return res
}

func splitLogical(st *State, v *symbolic.Value, c constraint.Constraint, more []pending) []outcome {
	with := func(ps ...pending) outcome {
		m := make([]pending, 0, len(more)+len(ps))
		m = append(m, more...)
		return outcome{st: st, more: append(m, ps...)}
	}
	isTrue := c == constraint.True
	ops := v.Operands()
	switch v.Kind() {
	case symbolic.Not:
		return []outcome{with(pending{ops[0], c.Complement()})}
	case symbolic.TypeTest:
		if isTrue {
			return []outcome{with(pending{ops[0], constraint.NotNull})}
		}
	case symbolic.And:
		l, r := ops[0], ops[1]
		if isTrue {
			return []outcome{with(pending{l, constraint.True}, pending{r, constraint.True})}
		}
		return []outcome{
			with(pending{l, constraint.False}),
			with(pending{l, constraint.True}, pending{r, constraint.False}),
		}
	case symbolic.Or:
		l, r := ops[0], ops[1]
		if isTrue {
			return []outcome{
				with(pending{l, constraint.True}),
				with(pending{l, constraint.False}, pending{r, constraint.True}),
			}
		}
		return []outcome{with(pending{l, constraint.False}, pending{r, constraint.False})}
	case symbolic.Xor:
		l, r := ops[0], ops[1]
		if isTrue {
			return []outcome{
				with(pending{l, constraint.True}, pending{r, constraint.False}),
				with(pending{l, constraint.False}, pending{r, constraint.True}),
			}
		}
		return []outcome{
			with(pending{l, constraint.True}, pending{r, constraint.True}),
			with(pending{l, constraint.False}, pending{r, constraint.False}),
		}
	}
	return []outcome{with()}
}
