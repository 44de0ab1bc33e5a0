package lints

import (
	"fmt"

	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/internal/se/state"
	"github.com/gnolang/symex/internal/se/symbolic"
	"github.com/gnolang/symex/internal/tree"
	"github.com/gnolang/symex/internal/types"
)

var (
	lockMethods   = map[string]bool{"Lock": true, "RLock": true, "lock": true, "lockInterruptibly": true}
	unlockMethods = map[string]bool{"Unlock": true, "RUnlock": true, "unlock": true}
)

// LocksNotUnlocked reports locks still held when a procedure returns
// normally. Fields read a fresh value on every access, so an unlock of the
// same field or variable releases the lock taken through it.
type LocksNotUnlocked struct{}

func NewLocksNotUnlocked() Rule { return &LocksNotUnlocked{} }

func (*LocksNotUnlocked) Name() string { return "locks-not-unlocked" }

func (*LocksNotUnlocked) Severity() types.Severity { return types.SeverityWarning }

func (c *LocksNotUnlocked) PostStatement(ctx *engine.CheckContext, n tree.Node) *state.State {
	call, ok := n.(*tree.Call)
	if !ok || (!lockMethods[call.Name] && !unlockMethods[call.Name]) {
		return ctx.State
	}
	recv, ok := receiver(ctx, call)
	if !ok {
		return ctx.State
	}
	st := ctx.State
	if lockMethods[call.Name] {
		ctx.Protect(recv.Value)
		if next := learn(ctx, st, recv.Value, constraint.Locked); next != nil {
			return next
		}
		return st
	}

	held := []*symbolic.Value{recv.Value}
	if st.ConstraintOf(recv.Value, constraint.Lock) != constraint.Locked {
		held = c.heldThrough(ctx, symbolOf(call.Recv))
	}
	for _, v := range held {
		if next := learn(ctx, st, v, constraint.Unlocked); next != nil {
			st = next
		}
	}
	return st
}

// heldThrough returns the locked values that were locked through sym.
func (c *LocksNotUnlocked) heldThrough(ctx *engine.CheckContext, sym *tree.Symbol) []*symbolic.Value {
	if sym == nil {
		return nil
	}
	var res []*symbolic.Value
	ctx.State.ConstrainedValues(func(v *symbolic.Value, cs constraint.Set) bool {
		if !cs.Has(constraint.Locked) {
			return true
		}
		if site, ok := origin(ctx.Node, v, constraint.Locked).(*tree.Call); ok && symbolOf(site.Recv) == sym {
			res = append(res, v)
		}
		return true
	})
	return res
}

func (c *LocksNotUnlocked) EndOfPath(ctx *engine.CheckContext) {
	if ctx.State.Exception() != nil {
		return
	}
	ctx.State.ConstrainedValues(func(v *symbolic.Value, cs constraint.Set) bool {
		if !cs.Has(constraint.Locked) {
			return true
		}
		site, ok := origin(ctx.Node, v, constraint.Locked).(*tree.Call)
		if !ok {
			return true
		}
		ctx.Report(site, fmt.Sprintf("%q is not unlocked on every path", tree.Describe(site.Recv)), explain(ctx, v))
		return true
	})
}
