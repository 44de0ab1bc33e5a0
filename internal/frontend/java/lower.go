package java

import (
	"fmt"
	"go/token"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/gnolang/symex/internal/tree"
)

type lowerer struct {
	src    []byte
	file   *token.File
	logger *zap.Logger
	nextID int

	fields  map[string]*tree.Symbol
	globals map[string]*tree.Symbol

	// per class
	className string
	local     map[string]bool // name(arity) of methods resolved in the file

	// per procedure
	proc   *tree.Procedure
	scopes []map[string]*tree.Symbol
	this   *tree.Symbol
}

func newLowerer(src []byte, file *token.File, logger *zap.Logger) *lowerer {
	return &lowerer{
		src:     src,
		file:    file,
		logger:  logger,
		fields:  make(map[string]*tree.Symbol),
		globals: make(map[string]*tree.Symbol),
	}
}

func (l *lowerer) span(n *sitter.Node) tree.Span {
	if n == nil {
		return tree.Span{}
	}
	return tree.Span{From: l.pos(n.StartByte()), To: l.pos(n.EndByte())}
}

func (l *lowerer) pos(offset uint32) token.Pos {
	if int(offset) > l.file.Size() {
		return token.NoPos
	}
	return l.file.Pos(int(offset))
}

func (l *lowerer) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(l.src)
}

func isComment(n *sitter.Node) bool {
	switch n.Type() {
	case "line_comment", "block_comment", "comment":
		return true
	}
	return false
}

// named returns the named children of n, comments excluded.
func named(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	var res []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.IsNamed() && !isComment(c) {
			res = append(res, c)
		}
	}
	return res
}

func children(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	res := make([]*sitter.Node, 0, n.ChildCount())
	for i := 0; i < int(n.ChildCount()); i++ {
		res = append(res, n.Child(i))
	}
	return res
}

func childOfType(n *sitter.Node, typ string) *sitter.Node {
	for _, c := range children(n) {
		if c.Type() == typ {
			return c
		}
	}
	return nil
}

// Declarations.

var classTypes = map[string]bool{
	"class_declaration":     true,
	"interface_declaration": true,
	"enum_declaration":      true,
	"record_declaration":    true,
}

// declarations lowers every class of the compilation unit, nested ones
// included.
func (l *lowerer) declarations(root *sitter.Node) []*tree.Procedure {
	var procs []*tree.Procedure
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for _, c := range named(n) {
			if classTypes[c.Type()] {
				procs = append(procs, l.classDecl(c)...)
				walk(c.ChildByFieldName("body"))
				continue
			}
			if c.Type() == "enum_body_declarations" {
				walk(c)
			}
		}
	}
	walk(root)
	return procs
}

// comments collects every comment under n in source order.
func (l *lowerer) comments(n *sitter.Node) []tree.Comment {
	var res []tree.Comment
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if isComment(c) {
			res = append(res, tree.Comment{Span: l.span(c), Text: l.text(c)})
			continue
		}
		res = append(res, l.comments(c)...)
	}
	return res
}

type modifiers map[string]bool

// modifiersOf returns the keywords and annotation names of a declaration.
func (l *lowerer) modifiersOf(n *sitter.Node) modifiers {
	m := make(modifiers)
	mods := childOfType(n, "modifiers")
	for _, c := range children(mods) {
		switch c.Type() {
		case "marker_annotation", "annotation":
			name := l.text(c.ChildByFieldName("name"))
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
			m["@"+name] = true
		default:
			m[c.Type()] = true
		}
	}
	return m
}

func (l *lowerer) classDecl(n *sitter.Node) []*tree.Procedure {
	l.className = l.text(n.ChildByFieldName("name"))
	final := l.modifiersOf(n)["final"]
	body := n.ChildByFieldName("body")
	members := named(body)
	if body != nil && body.Type() == "enum_body" {
		if decls := childOfType(body, "enum_body_declarations"); decls != nil {
			members = named(decls)
		}
	}

	l.local = make(map[string]bool)
	for _, m := range members {
		if m.Type() != "method_declaration" {
			continue
		}
		mods := l.modifiersOf(m)
		if final || mods["private"] || mods["static"] || mods["final"] {
			name := l.text(m.ChildByFieldName("name"))
			l.local[fmt.Sprintf("%s(%d)", name, len(l.params(m)))] = true
		}
	}

	var procs []*tree.Procedure
	for _, m := range members {
		switch m.Type() {
		case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
			if p := l.method(m); p != nil {
				procs = append(procs, p)
			}
		}
	}
	return procs
}

func (l *lowerer) params(m *sitter.Node) []*sitter.Node {
	var res []*sitter.Node
	for _, c := range named(m.ChildByFieldName("parameters")) {
		switch c.Type() {
		case "formal_parameter", "spread_parameter":
			res = append(res, c)
		}
	}
	return res
}

// Key returns the behavior key of a method of class.
func Key(class, method string, arity int) string {
	return fmt.Sprintf("%s#%s(%d)", class, method, arity)
}

func (l *lowerer) method(m *sitter.Node) *tree.Procedure {
	body := m.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	name := l.text(m.ChildByFieldName("name"))
	if m.Type() != "method_declaration" {
		name = "<init>"
	}
	params := l.params(m)
	p := &tree.Procedure{
		Span: l.span(m),
		Key:  Key(l.className, name, len(params)),
		Name: name,
		Lang: tree.Java,
	}
	l.proc = p
	l.scopes = nil
	l.push()
	defer l.pop()

	l.this = nil
	if !l.modifiersOf(m)["static"] {
		l.this = l.newSymbol("this", tree.This, l.className, l.pos(m.StartByte()))
		p.Receiver = l.this
	}
	for _, param := range params {
		p.Params = append(p.Params, l.param(param))
	}
	p.Body = l.block(body)
	return p
}

func (l *lowerer) param(n *sitter.Node) *tree.Parameter {
	typ := l.text(n.ChildByFieldName("type"))
	nameNode := n.ChildByFieldName("name")
	if n.Type() == "spread_parameter" {
		l.proc.Variadic = true
		for _, c := range named(n) {
			switch c.Type() {
			case "variable_declarator":
				nameNode = c.ChildByFieldName("name")
			case "identifier":
				nameNode = c
			}
		}
		if typ == "" {
			for _, c := range named(n) {
				if c.Type() != "modifiers" && c.Type() != "variable_declarator" && c.Type() != "identifier" {
					typ = l.text(c)
					break
				}
			}
		}
		typ += "[]"
	}
	p := &tree.Parameter{Sym: l.declare(l.text(nameNode), tree.Param, typ, l.pos(n.StartByte()))}
	mods := l.modifiersOf(n)
	switch {
	case mods["@Nullable"] || mods["@CheckForNull"]:
		p.Nullness = tree.Nullable
	case mods["@Nonnull"] || mods["@NonNull"] || mods["@NotNull"]:
		p.Nullness = tree.NonNull
	}
	return p
}

// Scopes.

func (l *lowerer) push() { l.scopes = append(l.scopes, make(map[string]*tree.Symbol)) }

func (l *lowerer) pop() { l.scopes = l.scopes[:len(l.scopes)-1] }

func (l *lowerer) newSymbol(name string, kind tree.SymbolKind, typ string, pos token.Pos) *tree.Symbol {
	l.nextID++
	return &tree.Symbol{ID: l.nextID, Name: name, Kind: kind, Type: typ, Pos: pos}
}

func (l *lowerer) declare(name string, kind tree.SymbolKind, typ string, pos token.Pos) *tree.Symbol {
	sym := l.newSymbol(name, kind, typ, pos)
	if len(l.scopes) > 0 {
		l.scopes[len(l.scopes)-1][name] = sym
	}
	return sym
}

func (l *lowerer) lookup(name string) *tree.Symbol {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if sym, ok := l.scopes[i][name]; ok {
			return sym
		}
	}
	return nil
}

func (l *lowerer) field(name string) *tree.Symbol {
	sym, ok := l.fields[name]
	if !ok {
		sym = l.newSymbol(name, tree.FieldSym, "", token.NoPos)
		l.fields[name] = sym
	}
	return sym
}

func (l *lowerer) global(name string) *tree.Symbol {
	sym, ok := l.globals[name]
	if !ok {
		sym = l.newSymbol(name, tree.Global, "", token.NoPos)
		l.globals[name] = sym
	}
	return sym
}
