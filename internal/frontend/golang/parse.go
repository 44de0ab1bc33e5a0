// Package golang lowers Go sources into procedures for the symbolic
// execution engine.
package golang

import (
	"context"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"

	"go.uber.org/zap"
	"golang.org/x/tools/go/packages"

	"github.com/gnolang/symex/internal/frontend"
	"github.com/gnolang/symex/internal/tree"
)

const loadMode = packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
	packages.NeedTypes | packages.NeedTypesInfo

type Options struct {
	Logger *zap.Logger
}

type Option func(*Options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func options(opts []Option) Options {
	o := Options{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// ParseFile parses a single file and lowers its functions. Types are checked
// on a best effort basis: type errors only lose precision.
func ParseFile(fset *token.FileSet, filename string, src []byte, opts ...Option) (*tree.File, error) {
	o := options(opts)
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", frontend.ErrParse, filename, err)
	}

	info := &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
	}
	var typeErrors int
	conf := types.Config{
		Importer: importer.Default(),
		Error:    func(error) { typeErrors++ },
	}
	_, _ = conf.Check(f.Name.Name, fset, []*ast.File{f}, info)
	if typeErrors > 0 {
		o.Logger.Debug("type check incomplete",
			zap.String("file", filename),
			zap.Int("errors", typeErrors))
	}

	l := newLowerer(fset, info, f.Name.Name, o.Logger)
	return l.file(f, filename), nil
}

// Load loads the packages matching patterns under dir and lowers every file
// they contain.
func Load(ctx context.Context, dir string, patterns []string, opts ...Option) ([]*tree.File, *token.FileSet, error) {
	o := options(opts)
	fset := token.NewFileSet()
	cfg := &packages.Config{
		Context: ctx,
		Mode:    loadMode,
		Dir:     dir,
		Fset:    fset,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, nil, fmt.Errorf("loading packages: %w", err)
	}

	var files []*tree.File
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			o.Logger.Debug("package error",
				zap.String("package", pkg.PkgPath),
				zap.String("error", e.Error()))
		}
		for _, f := range pkg.Syntax {
			l := newLowerer(fset, pkg.TypesInfo, pkg.PkgPath, o.Logger)
			files = append(files, l.file(f, fset.Position(f.Pos()).Filename))
		}
	}
	return files, fset, nil
}
