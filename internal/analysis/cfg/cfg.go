package cfg

import (
	"fmt"
	"strings"

	"github.com/gnolang/symex/internal/tree"
)

// Kind is the kind of a block terminator.
type Kind int

const (
	// None means the block falls through to its single successor.
	None Kind = iota
	// Branch pops a condition. Successors are [true, false].
	Branch
	// ConditionalAnd and ConditionalOr end the left operand of a short-circuit
	// operator used as a value. Successors are [evaluate-right, short-circuit].
	ConditionalAnd
	ConditionalOr
	// Switch pops the tag. There is one successor per clause in source order,
	// plus the block after the switch when there is no default clause.
	Switch
	// ForEach successors are [body, after].
	ForEach
	Return
	Throw
	// Rethrow ends an exceptional copy of a finally clause.
	Rethrow
	Break
	Continue
)

var kindNames = [...]string{
	None:           "none",
	Branch:         "branch",
	ConditionalAnd: "conditional-and",
	ConditionalOr:  "conditional-or",
	Switch:         "switch",
	ForEach:        "for-each",
	Return:         "return",
	Throw:          "throw",
	Rethrow:        "rethrow",
	Break:          "break",
	Continue:       "continue",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsBranching reports whether the terminator pops a condition and splits on
// its truth.
func (k Kind) IsBranching() bool {
	return k == Branch || k == ConditionalAnd || k == ConditionalOr
}

// Element is a tree node evaluated by a block. Elements are stored in
// evaluation order: operands before the node using them.
type Element struct {
	Node tree.Node
	// EndsStatement is set on the last element of a statement. The
	// evaluation stack is empty after it.
	EndsStatement bool
}

type Block struct {
	ID       int
	Elements []Element
	Kind     Kind
	// Terminator is the statement or operator ending the block.
	Terminator tree.Node
	// Cond is the expression popped by branching terminators and the tag of
	// a switch.
	Cond       tree.Expr
	Successors []*Block
	// ExceptionSuccessors is the route of exceptions raised while evaluating
	// the elements: matching catch blocks first, then the uncaught target. It
	// is nil outside try statements, meaning the exit block.
	ExceptionSuccessors []*Block
	Predecessors        []*Block
}

// TrueBlock is the successor taken when the branch condition holds.
func (b *Block) TrueBlock() *Block {
	if !b.Kind.IsBranching() || len(b.Successors) != 2 {
		return nil
	}
	return b.Successors[0]
}

// FalseBlock is the successor taken when the branch condition does not hold.
func (b *Block) FalseBlock() *Block {
	if !b.Kind.IsBranching() || len(b.Successors) != 2 {
		return nil
	}
	return b.Successors[1]
}

// Catch returns the catch clause starting the block, if any.
func (b *Block) Catch() *tree.Catch {
	if len(b.Elements) == 0 {
		return nil
	}
	c, _ := b.Elements[0].Node.(*tree.Catch)
	return c
}

// IsEmpty reports whether the block evaluates nothing and has no terminator.
func (b *Block) IsEmpty() bool {
	return len(b.Elements) == 0 && b.Kind == None
}

func (b *Block) String() string { return fmt.Sprintf("B%d", b.ID) }

// CFG is the control flow graph of one procedure body. Blocks are ordered
// with the exit block last; a block's ID is its index.
type CFG struct {
	Blocks []*Block
	Entry  *Block
	Exit   *Block
}

// Block returns the block with the given id, or nil.
func (g *CFG) Block(id int) *Block {
	if id < 0 || id >= len(g.Blocks) {
		return nil
	}
	return g.Blocks[id]
}

func (g *CFG) String() string {
	var sb strings.Builder
	for _, b := range g.Blocks {
		sb.WriteString(b.String())
		switch b {
		case g.Entry:
			sb.WriteString(" (entry)")
		case g.Exit:
			sb.WriteString(" (exit)")
		}
		sb.WriteString("\n")
		for i, e := range b.Elements {
			end := ""
			if e.EndsStatement {
				end = " ;"
			}
			fmt.Fprintf(&sb, "  %d: %s%s\n", i, tree.Describe(e.Node), end)
		}
		if b.Kind != None {
			fmt.Fprintf(&sb, "  T: %s %s\n", b.Kind, tree.Describe(b.Terminator))
		}
		if len(b.Successors) > 0 {
			fmt.Fprintf(&sb, "  -> %s\n", blockList(b.Successors))
		}
		if len(b.ExceptionSuccessors) > 0 {
			fmt.Fprintf(&sb, "  exceptions -> %s\n", blockList(b.ExceptionSuccessors))
		}
	}
	return sb.String()
}

func blockList(bs []*Block) string {
	ids := make([]string, len(bs))
	for i, b := range bs {
		ids[i] = b.String()
	}
	return strings.Join(ids, ", ")
}
