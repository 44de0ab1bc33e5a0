// Package tree is the language-neutral procedure representation the front
// ends produce and the CFG builder and the symbolic engine consume.
package tree

import (
	"fmt"
	"go/token"
)

// Node is any statement or expression. Pos and End locate it in the FileSet
// of the file it came from.
type Node interface {
	Pos() token.Pos
	End() token.Pos
}

type Stmt interface {
	Node
	stmtNode()
}

type Expr interface {
	Node
	exprNode()
}

// Span is embedded by every node to carry its source range.
type Span struct {
	From, To token.Pos
}

func (s Span) Pos() token.Pos { return s.From }
func (s Span) End() token.Pos { return s.To }

// SpanOf returns the range covered by n, or an empty span for nil.
func SpanOf(n Node) Span {
	if n == nil {
		return Span{}
	}
	return Span{From: n.Pos(), To: n.End()}
}

type SymbolKind int

const (
	Local SymbolKind = iota
	Param
	FieldSym
	Global
	This
)

func (k SymbolKind) String() string {
	switch k {
	case Local:
		return "local"
	case Param:
		return "param"
	case FieldSym:
		return "field"
	case Global:
		return "global"
	case This:
		return "this"
	default:
		return fmt.Sprintf("SymbolKind(%d)", int(k))
	}
}

// Symbol is a named storage location. Front ends hand out one *Symbol per
// declaration; IDs are unique within a file.
type Symbol struct {
	ID   int
	Name string
	Kind SymbolKind
	Type string
	Pos  token.Pos
}

func (s *Symbol) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.Name
}

// IsLocal reports whether the symbol lives in the procedure frame.
func (s *Symbol) IsLocal() bool {
	return s != nil && (s.Kind == Local || s.Kind == Param || s.Kind == This)
}

// Nullness is the declared nullability of a parameter.
type Nullness int

const (
	NullnessUnknown Nullness = iota
	Nullable
	NonNull
)

type Parameter struct {
	Sym      *Symbol
	Nullness Nullness
}

type Language int

const (
	Go Language = iota
	Java
)

func (l Language) String() string {
	if l == Java {
		return "java"
	}
	return "go"
}

// Procedure is a function, method or constructor body.
type Procedure struct {
	Span
	// Key identifies the procedure as a callee, e.g. "(*pkg.T).M" or "Foo#bar(2)".
	Key      string
	Name     string
	Params   []*Parameter
	Receiver *Symbol
	// Variadic is set when the last parameter collects the remaining
	// arguments.
	Variadic bool
	Body     *Block
	Lang     Language
	// Calls lists the keys of callees referenced in the body, in source order.
	Calls []string
	// Unsupported is set when the body uses a construct the builder cannot
	// lower. Such procedures are skipped.
	Unsupported string
	// Complexity is the cyclomatic complexity when the front end computes it.
	Complexity int
}

func (p *Procedure) String() string { return p.Key }

// Comment is a source comment, markers included.
type Comment struct {
	Span
	Text string
}

// File groups the procedures of one source file.
type File struct {
	Name       string
	Lang       Language
	Procedures []*Procedure
	Comments   []Comment
	// Start is the first declaration, package clause included. Comments
	// above it concern the whole file.
	Start token.Pos
}

// Lookup returns the procedure with the given key or name.
func (f *File) Lookup(name string) *Procedure {
	for _, p := range f.Procedures {
		if p.Key == name || p.Name == name {
			return p
		}
	}
	return nil
}

// Statements.

type (
	Block struct {
		Span
		Stmts []Stmt
	}

	ExprStmt struct {
		Span
		X Expr
	}

	// VarDecl declares Sym. A nil Init leaves the value unknown.
	VarDecl struct {
		Span
		Sym  *Symbol
		Init Expr
	}

	If struct {
		Span
		Cond Expr
		Then Stmt
		Else Stmt
	}

	While struct {
		Span
		Cond Expr
		Body Stmt
	}

	DoWhile struct {
		Span
		Body Stmt
		Cond Expr
	}

	// For has an optional condition; a nil Cond loops until a jump leaves.
	For struct {
		Span
		Init   []Stmt
		Cond   Expr
		Update []Stmt
		Body   Stmt
	}

	ForEach struct {
		Span
		Vars []*Symbol
		X    Expr
		Body Stmt
	}

	Switch struct {
		Span
		Tag   Expr
		Cases []*Case
	}

	// Case is a switch clause. A nil Exprs marks the default clause.
	Case struct {
		Span
		Exprs []Expr
		Body  []Stmt
	}

	Try struct {
		Span
		Body    *Block
		Catches []*Catch
		Finally *Block
	}

	// Catch is a handler. It is also the first element of its CFG block so
	// the walker can bind the caught exception.
	Catch struct {
		Span
		Types []string
		Sym   *Symbol
		Body  *Block
	}

	Throw struct {
		Span
		X Expr
	}

	Return struct {
		Span
		X Expr
	}

	Break struct {
		Span
		Label string
	}

	Continue struct {
		Span
		Label string
	}

	Labeled struct {
		Span
		Label string
		Stmt  Stmt
	}

	Empty struct {
		Span
	}
)

func (*Block) stmtNode()    {}
func (*ExprStmt) stmtNode() {}
func (*VarDecl) stmtNode()  {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*DoWhile) stmtNode()  {}
func (*For) stmtNode()      {}
func (*ForEach) stmtNode()  {}
func (*Switch) stmtNode()   {}
func (*Case) stmtNode()     {}
func (*Try) stmtNode()      {}
func (*Catch) stmtNode()    {}
func (*Throw) stmtNode()    {}
func (*Return) stmtNode()   {}
func (*Break) stmtNode()    {}
func (*Continue) stmtNode() {}
func (*Labeled) stmtNode()  {}
func (*Empty) stmtNode()    {}

// Expressions.

type LitKind int

const (
	NullLit LitKind = iota
	BoolLit
	IntLit
	FloatLit
	StringLit
	CharLit
)

type (
	Literal struct {
		Span
		Kind  LitKind
		Value string
	}

	Ident struct {
		Span
		Sym *Symbol
	}

	// Field reads Name from X. X is nil for static fields and implicit
	// receivers. Derefs is set when evaluating the access dereferences X.
	Field struct {
		Span
		X      Expr
		Name   string
		Sym    *Symbol
		Derefs bool
	}

	Index struct {
		Span
		X      Expr
		Index  Expr
		Derefs bool
	}

	// Deref is an explicit pointer indirection.
	Deref struct {
		Span
		X Expr
	}

	// Call invokes Callee. Recv is evaluated before the arguments.
	Call struct {
		Span
		Recv Expr
		Name string
		Args []Expr
		// Callee is the behavior key. Empty when the target is unknown.
		Callee string
		// DerefRecv is set when the call fails on a null receiver.
		DerefRecv bool
	}

	// New allocates a value that is never null: object creation, composite
	// literals, make and function literals.
	New struct {
		Span
		Type string
		Args []Expr
	}

	// Assign stores Value into Target. Op is OpNone for plain assignment and
	// the arithmetic operator for compound forms.
	Assign struct {
		Span
		Target Expr
		Op     Op
		Value  Expr
	}

	Binary struct {
		Span
		Op Op
		X  Expr
		Y  Expr
	}

	// Unary covers prefix operators and increments. Postfix is set for x++.
	Unary struct {
		Span
		Op      Op
		X       Expr
		Postfix bool
	}

	Conditional struct {
		Span
		Cond Expr
		Then Expr
		Else Expr
	}

	TypeTest struct {
		Span
		X    Expr
		Type string
	}

	Cast struct {
		Span
		X    Expr
		Type string
	}

	// Unknown evaluates Args and yields an unconstrained value. Returned is
	// set when Args are the trailing results of a return statement.
	Unknown struct {
		Span
		Args     []Expr
		Returned bool
	}
)

func (*Literal) exprNode()     {}
func (*Ident) exprNode()       {}
func (*Field) exprNode()       {}
func (*Index) exprNode()       {}
func (*Deref) exprNode()       {}
func (*Call) exprNode()        {}
func (*New) exprNode()         {}
func (*Assign) exprNode()      {}
func (*Binary) exprNode()      {}
func (*Unary) exprNode()       {}
func (*Conditional) exprNode() {}
func (*TypeTest) exprNode()    {}
func (*Cast) exprNode()        {}
func (*Unknown) exprNode()     {}

// IsNull reports whether e is the null literal.
func IsNull(e Expr) bool {
	lit, ok := e.(*Literal)
	return ok && lit.Kind == NullLit
}

// Operand returns the expression a node dereferences, or nil.
func Operand(n Node) Expr {
	switch n := n.(type) {
	case *Field:
		if n.Derefs {
			return n.X
		}
	case *Index:
		if n.Derefs {
			return n.X
		}
	case *Deref:
		return n.X
	case *Call:
		if n.DerefRecv {
			return n.Recv
		}
	}
	return nil
}
