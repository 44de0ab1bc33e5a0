// Package nolint finds the suppression comments of a lowered file and tells
// which issues they silence. Two markers are understood in Go and Java alike:
//
//	//nolint                 every rule
//	//nolint:rule-a,rule-b   the listed rules
//	// NOSONAR               every rule, on the comment line only
//
// A //nolint comment above the first declaration covers the file. Written
// after a statement it covers that statement. On a line of its own it covers
// the statement or procedure that starts on the next line.
package nolint

import (
	"fmt"
	"go/token"
	"math"
	"strings"

	"github.com/gnolang/symex/internal/tree"
)

const (
	prefix  = "//nolint"
	nosonar = "NOSONAR"
)

// Manager holds the scopes of the files it was built from.
type Manager struct {
	scopes map[string][]scope
}

// scope is a line range. An empty rule set silences every rule.
type scope struct {
	rules     map[string]struct{}
	startLine int
	endLine   int
}

// index locates the statements and procedures of a file by line.
type index struct {
	fset  *token.FileSet
	stmts map[int]tree.Node
	procs map[int]*tree.Procedure
}

func newIndex(f *tree.File, fset *token.FileSet) *index {
	idx := &index{
		fset:  fset,
		stmts: make(map[int]tree.Node),
		procs: make(map[int]*tree.Procedure),
	}
	for _, p := range f.Procedures {
		if p.Pos().IsValid() {
			idx.procs[fset.Position(p.Pos()).Line] = p
		}
		if p.Body == nil {
			continue
		}
		tree.Inspect(p.Body, func(n tree.Node) bool {
			if _, ok := n.(tree.Stmt); !ok || !n.Pos().IsValid() {
				return true
			}
			if _, ok := n.(*tree.Block); ok {
				return true
			}
			line := fset.Position(n.Pos()).Line
			if _, seen := idx.stmts[line]; !seen {
				idx.stmts[line] = n
			}
			return true
		})
	}
	return idx
}

func (idx *index) line(pos token.Pos) int { return idx.fset.Position(pos).Line }

// Parse collects the suppression scopes of f. Malformed //nolint comments
// are ignored.
func Parse(f *tree.File, fset *token.FileSet) *Manager {
	m := &Manager{scopes: make(map[string][]scope)}
	m.Add(f, fset)
	return m
}

// Add collects the scopes of another file.
func (m *Manager) Add(f *tree.File, fset *token.FileSet) {
	idx := newIndex(f, fset)
	startLine := 0
	if f.Start.IsValid() {
		startLine = idx.line(f.Start)
	}
	for _, c := range f.Comments {
		s, err := parseComment(c, idx, startLine)
		if err != nil {
			continue
		}
		m.scopes[f.Name] = append(m.scopes[f.Name], s)
	}
}

func parseComment(c tree.Comment, idx *index, startLine int) (scope, error) {
	line := idx.line(c.Pos())
	if strings.Contains(c.Text, nosonar) {
		return scope{rules: map[string]struct{}{}, startLine: line, endLine: line}, nil
	}
	if !strings.HasPrefix(c.Text, prefix) {
		return scope{}, fmt.Errorf("not a nolint comment")
	}
	rest := c.Text[len(prefix):]
	if rest != "" && rest[0] != ':' && rest[0] != ' ' {
		return scope{}, fmt.Errorf("invalid nolint comment %q", c.Text)
	}
	var rules map[string]struct{}
	if strings.HasPrefix(rest, ":") {
		rest = strings.TrimSpace(rest[1:])
		if rest == "" {
			return scope{}, fmt.Errorf("nolint comment without rules after colon")
		}
		rules = ruleNames(rest)
	} else {
		rules = map[string]struct{}{}
	}
	s := scope{rules: rules, startLine: line, endLine: line}

	switch {
	case startLine > 0 && line < startLine:
		s.startLine, s.endLine = 1, math.MaxInt32
	case idx.inline(c):
		stmt := idx.stmts[line]
		s.endLine = idx.line(stmt.End())
	default:
		if stmt, ok := idx.stmts[line+1]; ok {
			s.endLine = idx.line(stmt.End())
		} else if p, ok := idx.procs[line+1]; ok {
			s.endLine = idx.line(p.End())
		}
	}
	return s, nil
}

// inline reports whether c follows a statement on its line.
func (idx *index) inline(c tree.Comment) bool {
	stmt, ok := idx.stmts[idx.line(c.Pos())]
	return ok && c.Pos() > stmt.Pos()
}

// ruleNames splits a comma-separated rule list. Text after the first space
// of an entry is an explanation.
func ruleNames(text string) map[string]struct{} {
	rules := make(map[string]struct{})
	for _, r := range strings.Split(text, ",") {
		r = strings.TrimSpace(r)
		if i := strings.IndexByte(r, ' '); i >= 0 {
			r = r[:i]
		}
		if r != "" {
			rules[r] = struct{}{}
		}
	}
	return rules
}

// IsNolint reports whether an issue of rule at pos is suppressed.
func (m *Manager) IsNolint(pos token.Position, rule string) bool {
	for _, s := range m.scopes[pos.Filename] {
		if pos.Line < s.startLine || pos.Line > s.endLine {
			continue
		}
		if len(s.rules) == 0 {
			return true
		}
		if _, ok := s.rules[rule]; ok {
			return true
		}
	}
	return false
}
