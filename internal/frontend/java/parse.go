// Package java lowers Java sources, parsed with tree-sitter, into procedures
// for the symbolic execution engine.
package java

import (
	"context"
	"fmt"
	"go/token"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"go.uber.org/zap"

	"github.com/gnolang/symex/internal/frontend"
	"github.com/gnolang/symex/internal/tree"
)

type Options struct {
	Logger *zap.Logger
}

type Option func(*Options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// ParseFile parses src and lowers the methods and constructors of every
// class it declares. Positions are registered in fset under filename.
// Syntax errors are recovered from; only a failing parser is an error.
func ParseFile(ctx context.Context, fset *token.FileSet, filename string, src []byte, opts ...Option) (*tree.File, error) {
	o := Options{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(java.GetLanguage())

	parsed, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", frontend.ErrParse, filename, err)
	}
	defer parsed.Close()

	root := parsed.RootNode()
	if root.HasError() {
		o.Logger.Debug("syntax errors recovered", zap.String("file", filename))
	}

	file := fset.AddFile(filename, -1, len(src))
	file.SetLinesForContent(src)

	l := newLowerer(src, file, o.Logger)
	out := &tree.File{Name: filename, Lang: tree.Java}
	out.Procedures = l.declarations(root)
	out.Comments = l.comments(root)
	if decls := named(root); len(decls) > 0 {
		out.Start = l.pos(decls[0].StartByte())
	}
	return out, nil
}
