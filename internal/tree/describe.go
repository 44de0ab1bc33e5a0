package tree

import (
	"fmt"
	"strings"
)

// Describe returns a short human readable form of n for debug output and
// graph labels.
func Describe(n Node) string {
	switch n := n.(type) {
	case nil:
		return "<nil>"
	case *Literal:
		if n.Kind == NullLit {
			return "null"
		}
		if n.Kind == StringLit {
			return fmt.Sprintf("%q", n.Value)
		}
		return n.Value
	case *Ident:
		return n.Sym.String()
	case *Field:
		if n.X == nil {
			return n.Name
		}
		return Describe(n.X) + "." + n.Name
	case *Index:
		return Describe(n.X) + "[" + Describe(n.Index) + "]"
	case *Deref:
		return "*" + Describe(n.X)
	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = Describe(a)
		}
		name := n.Name
		if n.Recv != nil {
			name = Describe(n.Recv) + "." + name
		}
		return name + "(" + strings.Join(args, ", ") + ")"
	case *New:
		return "new " + n.Type
	case *Assign:
		return Describe(n.Target) + " " + n.Op.String() + "= " + Describe(n.Value)
	case *Binary:
		return Describe(n.X) + " " + n.Op.String() + " " + Describe(n.Y)
	case *Unary:
		if n.Postfix {
			return Describe(n.X) + n.Op.String()
		}
		return n.Op.String() + Describe(n.X)
	case *Conditional:
		return Describe(n.Cond) + " ? " + Describe(n.Then) + " : " + Describe(n.Else)
	case *TypeTest:
		return Describe(n.X) + " instanceof " + n.Type
	case *Cast:
		return "(" + n.Type + ") " + Describe(n.X)
	case *Unknown:
		return "?"
	case *VarDecl:
		if n.Init == nil {
			return "var " + n.Sym.String()
		}
		return "var " + n.Sym.String() + " = " + Describe(n.Init)
	case *Catch:
		return "catch (" + strings.Join(n.Types, " | ") + " " + n.Sym.String() + ")"
	case *Return:
		if n.X == nil {
			return "return"
		}
		return "return " + Describe(n.X)
	case *Throw:
		return "throw " + Describe(n.X)
	case *Break:
		return strings.TrimSpace("break " + n.Label)
	case *Continue:
		return strings.TrimSpace("continue " + n.Label)
	case *If:
		return "if " + Describe(n.Cond)
	case *While:
		return "while " + Describe(n.Cond)
	case *DoWhile:
		return "do-while " + Describe(n.Cond)
	case *For:
		return "for " + Describe(n.Cond)
	case *ForEach:
		return "for-each " + Describe(n.X)
	case *Switch:
		return "switch " + Describe(n.Tag)
	case *Try:
		return "try"
	}
	return fmt.Sprintf("%T", n)
}
