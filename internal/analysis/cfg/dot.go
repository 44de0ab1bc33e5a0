package cfg

import (
	"fmt"
	"go/token"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
)

// PrintDot writes the graph in DOT format. label names a block; when nil
// blocks are named by id and first source line. Unreachable blocks are drawn
// dashed.
func (g *CFG) PrintDot(w io.Writer, fset *token.FileSet, label func(*Block) string) {
	if label == nil {
		label = func(b *Block) string { return g.defaultLabel(fset, b) }
	}
	fmt.Fprintf(w, "\ndigraph mgraph {\n\tmode=\"heir\";\n\tsplines=\"ortho\";\n\n")
	for _, b := range g.Blocks {
		from := label(b)
		for i, s := range b.Successors {
			attr := ""
			if b.Kind.IsBranching() {
				if i == 0 {
					attr = " [label=\"true\"]"
				} else {
					attr = " [label=\"false\"]"
				}
			}
			fmt.Fprintf(w, "\t%q -> %q%s\n", from, label(s), attr)
		}
		for _, s := range b.ExceptionSuccessors {
			fmt.Fprintf(w, "\t%q -> %q [style=dashed]\n", from, label(s))
		}
	}
	for _, b := range g.Unreachable() {
		fmt.Fprintf(w, "\t%q [style=dashed, color=gray]\n", label(b))
	}
	fmt.Fprintf(w, "}\n")
}

func (g *CFG) defaultLabel(fset *token.FileSet, b *Block) string {
	switch b {
	case g.Entry:
		if b == g.Exit {
			return "EXIT"
		}
		return "ENTRY"
	case g.Exit:
		return "EXIT"
	}
	line := 0
	if fset != nil {
		if pos := firstPos(b); pos.IsValid() {
			line = fset.Position(pos).Line
		}
	}
	return fmt.Sprintf("B%d - line %d", b.ID, line)
}

func firstPos(b *Block) token.Pos {
	if len(b.Elements) > 0 {
		return b.Elements[0].Node.Pos()
	}
	if b.Terminator != nil {
		return b.Terminator.Pos()
	}
	return token.NoPos
}

// RenderToGraphVizFile renders DOT source with the dot binary. The output
// format follows the file extension and defaults to svg.
func RenderToGraphVizFile(dot []byte, path string) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		format = "svg"
	}
	cmd := exec.Command("dot", "-T"+format, "-o", path)
	cmd.Stdin = strings.NewReader(string(dot))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running dot: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
