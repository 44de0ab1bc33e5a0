package lints

import (
	"context"
	"go/token"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gnolang/symex/internal/frontend/golang"
	"github.com/gnolang/symex/internal/frontend/java"
	"github.com/gnolang/symex/internal/se/behavior"
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/internal/tree"
	"github.com/gnolang/symex/internal/types"
)

func analyze(t *testing.T, filename, src string, rule Rule) []types.Issue {
	t.Helper()
	ctx := context.Background()
	fset := token.NewFileSet()

	var (
		f   *tree.File
		err error
	)
	if strings.HasSuffix(filename, ".java") {
		f, err = java.ParseFile(ctx, fset, filename, []byte(src))
	} else {
		f, err = golang.ParseFile(fset, filename, []byte(src))
	}
	require.NoError(t, err)

	reg, err := behavior.DefaultRegistry()
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	opts := engine.Options{Logger: logger, Fset: fset, Filename: filename}
	cache := behavior.NewCache(behavior.NewProcedures(f.Procedures...), &engine.BehaviorExplorer{Options: opts}, reg, logger)
	opts.Behaviors = cache
	opts.Checks = []engine.Check{rule}

	w := engine.New(opts)
	var issues []types.Issue
	for _, p := range f.Procedures {
		if p.Unsupported != "" {
			continue
		}
		res, err := w.Explore(ctx, p, nil)
		require.NoError(t, err)
		issues = append(issues, res.Issues...)
	}
	return issues
}

func procedures(issues []types.Issue) []string {
	res := make([]string, 0, len(issues))
	for _, is := range issues {
		res = append(res, is.Procedure)
	}
	sort.Strings(res)
	return res
}

type ruleCase struct {
	name     string
	filename string
	src      string
	want     []string
	message  string
}

func runCases(t *testing.T, newRule func() Rule, tests []ruleCase) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			filename := tt.filename
			if filename == "" {
				filename = "test.go"
			}
			issues := analyze(t, filename, tt.src, newRule())
			if len(tt.want) == 0 {
				assert.Empty(t, issues)
				return
			}
			assert.Equal(t, tt.want, procedures(issues))
			for _, is := range issues {
				assert.Equal(t, newRule().Name(), is.Rule)
				if tt.message != "" {
					assert.Contains(t, is.Message, tt.message)
				}
			}
		})
	}
}

func TestNilDereference(t *testing.T) {
	t.Parallel()
	runCases(t, NewNilDereference, []ruleCase{
		{
			name: "dereference in the nil branch",
			src: `package p

type T struct{ x int }

func f(t *T) int {
	if t == nil {
		return t.x
	}
	return t.x
}`,
			want:    []string{"f"},
			message: `"t" is nil`,
		},
		{
			name: "guarded",
			src: `package p

type T struct{ x int }

func f(t *T) int {
	if t != nil {
		return t.x
	}
	return 0
}`,
		},
		{
			name:     "nullable parameter",
			filename: "A.java",
			src: `class A {
    int f(@Nullable String s) {
        return s.length();
    }
}`,
			want:    []string{"f"},
			message: "null dereference",
		},
		{
			name:     "null local",
			filename: "A.java",
			src: `class A {
    int f() {
        String s = null;
        return s.length();
    }
}`,
			want: []string{"f"},
		},
		{
			name:     "checked by requireNonNull",
			filename: "A.java",
			src: `class A {
    int f(@Nullable String s) {
        Objects.requireNonNull(s);
        return s.length();
    }
}`,
		},
	})
}

func TestDivisionByZero(t *testing.T) {
	t.Parallel()
	runCases(t, NewDivisionByZero, []ruleCase{
		{
			name: "zero divisor",
			src: `package p

func f(a int) int {
	y := 0
	return a / y
}`,
			want:    []string{"f"},
			message: `"y" is zero`,
		},
		{
			name: "guarded divisor",
			src: `package p

func f(a, b int) int {
	if b != 0 {
		return a / b
	}
	return 0
}`,
		},
		{
			name: "product with zero",
			src: `package p

func f(a int) int {
	z := a * 0
	return 10 / z
}`,
			want: []string{"f"},
		},
		{
			name: "sum of zeros",
			src: `package p

func f(a int) int {
	z := 0 + 0
	return a % z
}`,
			want: []string{"f"},
		},
		{
			name: "compound assignment",
			src: `package p

func f(a int) int {
	d := 0
	a /= d
	return a
}`,
			want: []string{"f"},
		},
		{
			name:     "java remainder",
			filename: "A.java",
			src: `class A {
    int f(int a) {
        int d = 0x0;
        return a % d;
    }
}`,
			want: []string{"f"},
		},
	})
}

func TestConstantCondition(t *testing.T) {
	t.Parallel()
	runCases(t, NewConstantCondition, []ruleCase{
		{
			name: "redundant nil check",
			src: `package p

func f(p *int) int {
	if p == nil {
		return 0
	}
	if p != nil {
		return 1
	}
	return 2
}`,
			want:    []string{"f"},
			message: "always true",
		},
		{
			name: "literal condition",
			src: `package p

func f() int {
	if true {
		return 1
	}
	return 0
}`,
		},
		{
			name: "independent conditions",
			src: `package p

func f(a, b *int) int {
	if a == nil {
		return 0
	}
	if b == nil {
		return 1
	}
	return 2
}`,
		},
	})
}

func TestLocksNotUnlocked(t *testing.T) {
	t.Parallel()
	runCases(t, NewLocksNotUnlocked, []ruleCase{
		{
			name: "early return",
			src: `package p

import "sync"

type S struct {
	mu sync.Mutex
	n  int
}

func (s *S) bad(c bool) {
	s.mu.Lock()
	if c {
		return
	}
	s.mu.Unlock()
}

func (s *S) good() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
}`,
			want:    []string{"bad"},
			message: `"s.mu"`,
		},
		{
			name:     "unlock in finally",
			filename: "A.java",
			src: `class A {
    private final Lock lock = new ReentrantLock();

    void f(boolean c) {
        lock.lock();
        try {
            if (c) {
                return;
            }
        } finally {
            lock.unlock();
        }
    }
}`,
		},
	})
}

func TestUnclosedResource(t *testing.T) {
	t.Parallel()
	runCases(t, NewUnclosedResource, []ruleCase{
		{
			name: "go files",
			src: `package p

import "os"

func leak(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	_ = f
	return nil
}

func closed(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	return nil
}

func returned(p string) (*os.File, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}`,
			want:    []string{"leak"},
			message: "not closed",
		},
		{
			name:     "java streams",
			filename: "A.java",
			src: `class A {
    int leak(String p) throws IOException {
        InputStream in = new FileInputStream(p);
        return in.read();
    }

    int safe(String p) throws IOException {
        try (InputStream in = new FileInputStream(p)) {
            return in.read();
        }
    }

    BufferedReader wrap(String p) throws IOException {
        return new BufferedReader(new FileReader(p));
    }
}`,
			want: []string{"leak"},
		},
	})
}

func TestIsResourceType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want bool
	}{
		{"FileInputStream", true},
		{"java.io.BufferedReader", true},
		{"ByteArrayOutputStream", false},
		{"StringWriter", false},
		{"Stream<String>", false},
		{"net.Socket", true},
		{"String", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isResourceType(tt.name), tt.name)
	}
}
