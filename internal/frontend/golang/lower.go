package golang

import (
	"go/ast"
	"go/token"
	"go/types"
	"path"
	"strconv"
	"strings"

	"github.com/fzipp/gocyclo"
	"go.uber.org/zap"

	"github.com/gnolang/symex/internal/tree"
)

// lowerer turns the functions of one file into procedures. info may be nil
// or partial; every query on it has a syntactic fallback.
type lowerer struct {
	fset    *token.FileSet
	info    *types.Info
	pkgPath string
	logger  *zap.Logger

	imports map[string]string // local name -> import path
	funcs   map[string]bool   // package-level functions of the file
	globals map[string]*tree.Symbol
	fields  map[string]*tree.Symbol
	nextID  int

	// per procedure
	proc       *tree.Procedure
	scopes     []map[string]*tree.Symbol
	breakables []string
	results    []*tree.Symbol
	switches   int
	temps      int
}

func newLowerer(fset *token.FileSet, info *types.Info, pkgPath string, logger *zap.Logger) *lowerer {
	return &lowerer{
		fset:    fset,
		info:    info,
		pkgPath: pkgPath,
		logger:  logger,
		imports: make(map[string]string),
		funcs:   make(map[string]bool),
		globals: make(map[string]*tree.Symbol),
		fields:  make(map[string]*tree.Symbol),
	}
}

func span(n ast.Node) tree.Span {
	if n == nil {
		return tree.Span{}
	}
	return tree.Span{From: n.Pos(), To: n.End()}
}

func unparen(e ast.Expr) ast.Expr {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}

func (l *lowerer) file(f *ast.File, filename string) *tree.File {
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		name := path.Base(p)
		if imp.Name != nil {
			name = imp.Name.Name
		}
		l.imports[name] = p
	}
	for _, d := range f.Decls {
		if fd, ok := d.(*ast.FuncDecl); ok && fd.Recv == nil {
			l.funcs[fd.Name.Name] = true
		}
	}

	complexity := make(map[int]int)
	for _, s := range gocyclo.AnalyzeASTFile(f, l.fset, nil) {
		complexity[s.Pos.Offset] = s.Complexity
	}

	out := &tree.File{Name: filename, Lang: tree.Go, Start: f.Package}
	for _, cg := range f.Comments {
		for _, c := range cg.List {
			out.Comments = append(out.Comments, tree.Comment{Span: span(c), Text: c.Text})
		}
	}
	for _, d := range f.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok || fd.Body == nil {
			continue
		}
		p := l.funcDecl(fd)
		p.Complexity = complexity[l.fset.Position(fd.Pos()).Offset]
		if p.Unsupported != "" {
			l.logger.Debug("unsupported procedure",
				zap.String("procedure", p.Key),
				zap.String("reason", p.Unsupported))
		}
		out.Procedures = append(out.Procedures, p)
	}
	return out
}

func (l *lowerer) funcDecl(fd *ast.FuncDecl) *tree.Procedure {
	p := &tree.Procedure{
		Span: span(fd),
		Key:  l.funcKey(fd),
		Name: fd.Name.Name,
		Lang: tree.Go,
	}
	l.proc = p
	l.scopes = nil
	l.breakables = nil
	l.results = nil
	l.switches = 0
	l.temps = 0
	l.push()
	defer l.pop()

	dirs := parseDirectives(fd.Doc)
	if fd.Recv != nil && len(fd.Recv.List) > 0 {
		field := fd.Recv.List[0]
		name := "_"
		if len(field.Names) > 0 {
			name = field.Names[0].Name
		}
		p.Receiver = l.declare(name, tree.Param, l.typeString(field.Type), field.Pos())
	}
	for _, field := range fd.Type.Params.List {
		if _, ok := field.Type.(*ast.Ellipsis); ok {
			p.Variadic = true
		}
		typ := l.typeString(field.Type)
		if len(field.Names) == 0 {
			p.Params = append(p.Params, &tree.Parameter{Sym: l.declare("_", tree.Param, typ, field.Pos())})
			continue
		}
		for _, n := range field.Names {
			p.Params = append(p.Params, &tree.Parameter{
				Sym:      l.declare(n.Name, tree.Param, typ, n.Pos()),
				Nullness: dirs.nullness(n.Name),
			})
		}
	}

	// named results start at their zero value
	var prelude []tree.Stmt
	if fd.Type.Results != nil {
		for _, field := range fd.Type.Results.List {
			for _, n := range field.Names {
				sym := l.declare(n.Name, tree.Local, l.typeString(field.Type), n.Pos())
				l.results = append(l.results, sym)
				prelude = append(prelude, &tree.VarDecl{
					Span: span(n),
					Sym:  sym,
					Init: l.zero(l.typeOf(n), field.Type, n),
				})
			}
		}
	}

	p.Body = &tree.Block{
		Span:  span(fd.Body),
		Stmts: append(prelude, l.stmtList(fd.Body.List, true)...),
	}
	return p
}

// funcKey is the behavior key of a declared function: its full name when
// types are known, otherwise pkg.Name or pkg.Recv.Name.
func (l *lowerer) funcKey(fd *ast.FuncDecl) string {
	if l.info != nil {
		if fn, ok := l.info.Defs[fd.Name].(*types.Func); ok {
			return fn.FullName()
		}
	}
	if fd.Recv != nil && len(fd.Recv.List) > 0 {
		return l.pkgPath + "." + recvName(fd.Recv.List[0].Type) + "." + fd.Name.Name
	}
	return l.pkgPath + "." + fd.Name.Name
}

func recvName(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.StarExpr:
		return recvName(e.X)
	case *ast.IndexExpr:
		return recvName(e.X)
	case *ast.IndexListExpr:
		return recvName(e.X)
	case *ast.Ident:
		return e.Name
	}
	return types.ExprString(e)
}

// Scopes.

func (l *lowerer) push() { l.scopes = append(l.scopes, make(map[string]*tree.Symbol)) }

func (l *lowerer) pop() { l.scopes = l.scopes[:len(l.scopes)-1] }

func (l *lowerer) newSymbol(name string, kind tree.SymbolKind, typ string, pos token.Pos) *tree.Symbol {
	l.nextID++
	return &tree.Symbol{ID: l.nextID, Name: name, Kind: kind, Type: typ, Pos: pos}
}

// declare adds a symbol to the innermost scope. The blank identifier gets a
// symbol that no lookup finds.
func (l *lowerer) declare(name string, kind tree.SymbolKind, typ string, pos token.Pos) *tree.Symbol {
	sym := l.newSymbol(name, kind, typ, pos)
	if name != "_" && len(l.scopes) > 0 {
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

func (l *lowerer) global(name string) *tree.Symbol {
	sym, ok := l.globals[name]
	if !ok {
		sym = l.newSymbol(name, tree.Global, "", token.NoPos)
		l.globals[name] = sym
	}
	return sym
}

func (l *lowerer) field(name string) *tree.Symbol {
	sym, ok := l.fields[name]
	if !ok {
		sym = l.newSymbol(name, tree.FieldSym, "", token.NoPos)
		l.fields[name] = sym
	}
	return sym
}

// temp declares a synthetic local.
func (l *lowerer) temp(pos token.Pos) *tree.Symbol {
	l.temps++
	return l.declare("~t"+strconv.Itoa(l.temps), tree.Local, "", pos)
}

// packageOf returns the import path when x names an imported package.
func (l *lowerer) packageOf(x ast.Expr) (string, bool) {
	id, ok := x.(*ast.Ident)
	if !ok || l.lookup(id.Name) != nil {
		return "", false
	}
	if l.info != nil {
		if pn, ok := l.info.Uses[id].(*types.PkgName); ok {
			return pn.Imported().Path(), true
		}
	}
	p, ok := l.imports[id.Name]
	return p, ok
}

// Types.

func (l *lowerer) typeOf(e ast.Expr) types.Type {
	if l.info == nil || e == nil {
		return nil
	}
	t := l.info.TypeOf(e)
	if b, ok := t.(*types.Basic); ok && b.Kind() == types.Invalid {
		return nil
	}
	return t
}

func (l *lowerer) typeString(e ast.Expr) string {
	if t := l.typeOf(e); t != nil {
		return types.TypeString(t, types.RelativeTo(nil))
	}
	if e == nil {
		return ""
	}
	return types.ExprString(e)
}

// defType is the type of a declared identifier, falling back to the
// declared type syntax.
func (l *lowerer) defType(id *ast.Ident, typ ast.Expr) string {
	if t := l.typeOf(id); t != nil {
		return types.TypeString(t, types.RelativeTo(nil))
	}
	if typ != nil {
		return types.ExprString(typ)
	}
	return ""
}

func isPointer(t types.Type) bool {
	if t == nil {
		return false
	}
	_, ok := t.Underlying().(*types.Pointer)
	return ok
}

func isInterface(t types.Type) bool {
	return t != nil && types.IsInterface(t)
}

func nilable(t types.Type) bool {
	switch u := t.Underlying().(type) {
	case *types.Pointer, *types.Interface, *types.Map, *types.Slice, *types.Chan, *types.Signature:
		return true
	case *types.Basic:
		return u.Kind() == types.UntypedNil || u.Kind() == types.UnsafePointer
	}
	return false
}

// zero returns the zero value of a declared variable, from its type or from
// the declared type syntax. It returns nil when neither tells.
func (l *lowerer) zero(t types.Type, typ ast.Expr, at ast.Node) tree.Expr {
	sp := span(at)
	if t != nil {
		if b, ok := t.Underlying().(*types.Basic); ok {
			switch {
			case b.Info()&types.IsBoolean != 0:
				return &tree.Literal{Span: sp, Kind: tree.BoolLit, Value: "false"}
			case b.Info()&types.IsNumeric != 0:
				return &tree.Literal{Span: sp, Kind: tree.IntLit, Value: "0"}
			case b.Info()&types.IsString != 0:
				return &tree.Literal{Span: sp, Kind: tree.StringLit}
			}
		}
		if nilable(t) {
			return &tree.Literal{Span: sp, Kind: tree.NullLit, Value: "nil"}
		}
		switch t.Underlying().(type) {
		case *types.Struct, *types.Array:
			return &tree.New{Span: sp, Type: t.String()}
		}
		return nil
	}
	return zeroOf(typ, sp)
}

var numericNames = map[string]bool{
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"uintptr": true, "float32": true, "float64": true, "byte": true, "rune": true,
}

func zeroOf(typ ast.Expr, sp tree.Span) tree.Expr {
	switch typ := typ.(type) {
	case *ast.StarExpr, *ast.InterfaceType, *ast.MapType, *ast.ChanType, *ast.FuncType:
		return &tree.Literal{Span: sp, Kind: tree.NullLit, Value: "nil"}
	case *ast.ArrayType:
		if typ.Len == nil {
			return &tree.Literal{Span: sp, Kind: tree.NullLit, Value: "nil"}
		}
		return &tree.New{Span: sp, Type: types.ExprString(typ)}
	case *ast.StructType:
		return &tree.New{Span: sp, Type: "struct"}
	case *ast.Ident:
		switch {
		case numericNames[typ.Name]:
			return &tree.Literal{Span: sp, Kind: tree.IntLit, Value: "0"}
		case typ.Name == "bool":
			return &tree.Literal{Span: sp, Kind: tree.BoolLit, Value: "false"}
		case typ.Name == "string":
			return &tree.Literal{Span: sp, Kind: tree.StringLit}
		case typ.Name == "error" || typ.Name == "any":
			return &tree.Literal{Span: sp, Kind: tree.NullLit, Value: "nil"}
		}
	}
	return nil
}

// Directives.

const (
	nullableDirective = "symex:nullable"
	nonnullDirective  = "symex:nonnull"
)

type directives map[string]tree.Nullness

func (d directives) nullness(name string) tree.Nullness { return d[name] }

// parseDirectives reads //symex:nullable and //symex:nonnull lines of a doc
// comment. Each names one or more parameters separated by commas or spaces.
func parseDirectives(doc *ast.CommentGroup) directives {
	d := make(directives)
	if doc == nil {
		return d
	}
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		var n tree.Nullness
		switch {
		case strings.HasPrefix(text, nullableDirective):
			n, text = tree.Nullable, text[len(nullableDirective):]
		case strings.HasPrefix(text, nonnullDirective):
			n, text = tree.NonNull, text[len(nonnullDirective):]
		default:
			continue
		}
		for _, name := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			d[name] = n
		}
	}
	return d
}
