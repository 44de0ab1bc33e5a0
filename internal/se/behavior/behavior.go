// Package behavior summarizes procedures for their call sites.
//
// A Behavior lists the observable outcomes (yields) of a callee as a function
// of the constraints on its parameters. Behaviors are computed once per run
// by exploring the callee, or supplied as built-ins, and cached by key.
package behavior

import (
	"fmt"
	"strings"

	"github.com/gnolang/symex/internal/se/constraint"
	"github.com/gnolang/symex/internal/se/symbolic"
)

// Behavior is the summary of one callee.
type Behavior struct {
	Key    string
	Params int
	Yields []Yield
	// Complete is false when the exploration ran out of budget; the yields
	// then under-approximate the callee.
	Complete bool
	// VarArgs is set when the last parameter collects the remaining
	// arguments. Constraints on it are not applied to call arguments.
	VarArgs bool
}

// Terminal is the state-graph node a yield was synthesized from.
type Terminal interface {
	ID() int
}

// Origin links a yield to the callee exploration it came from, so a flow
// can be explained across the call.
type Origin struct {
	Node Terminal
	// Params are the callee's parameter values, in declaration order.
	Params []*symbolic.Value
	// Exit is the returned or thrown value.
	Exit *symbolic.Value
}

// Yield is one outcome of a callee: either a *HappyPath or an *Exceptional.
type Yield interface {
	// ParamConstraints returns the constraints the arguments must satisfy
	// for this outcome, one set per parameter.
	ParamConstraints() []constraint.Set
	Origin() *Origin
	String() string
	isYield()
}

type yieldBase struct {
	Params []constraint.Set
	From   *Origin
}

func (y *yieldBase) ParamConstraints() []constraint.Set { return y.Params }
func (y *yieldBase) Origin() *Origin                    { return y.From }
func (*yieldBase) isYield()                             {}

func (y *yieldBase) paramString() string {
	parts := make([]string, len(y.Params))
	for i, p := range y.Params {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// HappyPath is a normal return.
type HappyPath struct {
	yieldBase
	// ResultIndex is the parameter the returned value is identical to, or -1.
	ResultIndex int
	Result      constraint.Set
}

func NewHappyPath(params []constraint.Set, result constraint.Set, resultIndex int, from *Origin) *HappyPath {
	return &HappyPath{yieldBase: yieldBase{Params: params, From: from}, Result: result, ResultIndex: resultIndex}
}

func (y *HappyPath) String() string {
	if y.ResultIndex >= 0 {
		return fmt.Sprintf("%s -> param %d", y.paramString(), y.ResultIndex)
	}
	return fmt.Sprintf("%s -> %s", y.paramString(), y.Result)
}

// Exceptional is a path leaving the callee with a pending exception.
type Exceptional struct {
	yieldBase
	// Type is the thrown type name, empty when unknown.
	Type string
}

func NewExceptional(params []constraint.Set, typ string, from *Origin) *Exceptional {
	return &Exceptional{yieldBase: yieldBase{Params: params, From: from}, Type: typ}
}

func (y *Exceptional) String() string {
	typ := y.Type
	if typ == "" {
		typ = "?"
	}
	return fmt.Sprintf("%s -> throws %s", y.paramString(), typ)
}

func (b *Behavior) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s", b.Key)
	if !b.Complete {
		sb.WriteString(" (partial)")
	}
	for _, y := range b.Yields {
		sb.WriteString("\n  ")
		sb.WriteString(y.String())
	}
	return sb.String()
}

// HappyPaths returns the normal-return yields.
func (b *Behavior) HappyPaths() []*HappyPath {
	var res []*HappyPath
	for _, y := range b.Yields {
		if h, ok := y.(*HappyPath); ok {
			res = append(res, h)
		}
	}
	return res
}

// Exceptions returns the exceptional yields.
func (b *Behavior) Exceptions() []*Exceptional {
	var res []*Exceptional
	for _, y := range b.Yields {
		if e, ok := y.(*Exceptional); ok {
			res = append(res, e)
		}
	}
	return res
}

// AppliesTo reports whether the constraints of parameter i bind argument i
// of a call with nargs arguments.
func (b *Behavior) AppliesTo(i, nargs int) bool {
	if i >= nargs {
		return false
	}
	if b.VarArgs && i == b.Params-1 {
		return false
	}
	return true
}
