package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gnolang/symex/internal/config"
	"github.com/gnolang/symex/internal/frontend"
	"github.com/gnolang/symex/internal/types"
)

const nilDerefSource = `package p

type T struct{ x int }

func f(t *T) int {
	if t == nil {
		return t.x
	}
	return t.x
}
`

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return e
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	assert.Equal(t, RuleNames(), e.Rules())

	cfg := config.Default()
	cfg.Rules["unclosed-resource"] = types.ConfigRule{Severity: types.SeverityOff}
	cfg.Rules["division-by-zero"] = types.ConfigRule{Severity: types.SeverityInfo}
	cfg.Rules["no-such-rule"] = types.ConfigRule{Severity: types.SeverityError}
	e = newTestEngine(t, cfg)
	assert.NotContains(t, e.Rules(), "unclosed-resource")
	assert.Equal(t, types.SeverityInfo, e.severities["division-by-zero"])
	assert.NotContains(t, e.Rules(), "no-such-rule")
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Engine.MaxSteps = -1
	_, err := NewEngine(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestEngine_IgnoreRule(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)
	e.IgnoreRule("nil-dereference")

	assert.True(t, e.ignoredRules["nil-dereference"])
	assert.NotContains(t, e.Rules(), "nil-dereference")

	issues, err := e.RunSource(context.Background(), "f.go", []byte(nilDerefSource))
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestRunSource(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		filename string
		src      string
		rules    map[string]types.ConfigRule
		want     []string
		severity types.Severity
		line     int
	}{
		{
			name:     "go",
			filename: "f.go",
			src:      nilDerefSource,
			want:     []string{"nil-dereference"},
			severity: types.SeverityError,
			line:     7,
		},
		{
			name:     "configured severity",
			filename: "f.go",
			src:      nilDerefSource,
			rules:    map[string]types.ConfigRule{"nil-dereference": {Severity: types.SeverityWarning}},
			want:     []string{"nil-dereference"},
			severity: types.SeverityWarning,
			line:     7,
		},
		{
			name:     "nolint",
			filename: "f.go",
			src:      strings.Replace(nilDerefSource, "\t\treturn t.x\n", "\t\treturn t.x //nolint:nil-dereference\n", 1),
		},
		{
			name:     "gno",
			filename: "f.gno",
			src:      nilDerefSource,
			want:     []string{"nil-dereference"},
			severity: types.SeverityError,
			line:     7,
		},
		{
			name:     "java",
			filename: "A.java",
			src: `class A {
    int f(int a) {
        int d = 0;
        return a / d;
    }
}
`,
			want:     []string{"division-by-zero"},
			severity: types.SeverityError,
			line:     4,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			for k, v := range tt.rules {
				cfg.Rules[k] = v
			}
			e := newTestEngine(t, cfg)
			issues, err := e.RunSource(context.Background(), tt.filename, []byte(tt.src))
			require.NoError(t, err)

			var rules []string
			for _, is := range issues {
				rules = append(rules, is.Rule)
			}
			assert.Equal(t, tt.want, rules)
			for _, is := range issues {
				assert.Equal(t, tt.filename, is.Filename)
				assert.Equal(t, tt.severity, is.Severity)
				assert.Equal(t, tt.line, is.Start.Line)
			}
		})
	}
}

func TestRunFile(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "f.gno", nilDerefSource)

	e := newTestEngine(t, nil)
	issues, err := e.Run(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, path, issues[0].Filename)
	assert.Equal(t, "f", issues[0].Procedure)
	assert.NotEmpty(t, issues[0].Flows)

	e.IgnorePath(filepath.Dir(path))
	issues, err = e.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestIgnorePathPatterns(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)
	e.IgnorePath("vendor")
	e.IgnorePath("*_gen.go")

	assert.True(t, e.isIgnoredPath("vendor/x/y.go"))
	assert.True(t, e.isIgnoredPath("pkg/api_gen.go"))
	assert.False(t, e.isIgnoredPath("pkg/api.go"))
	assert.False(t, e.isIgnoredPath("vendored.go"))
}

func TestRunUnsupportedFile(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)
	_, err := e.RunSource(context.Background(), "main.py", []byte("print(1)"))
	assert.ErrorIs(t, err, frontend.ErrUnsupportedLanguage)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.RunSource(ctx, "f.go", []byte(nilDerefSource))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComplexityGuard(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Engine.MaxComplexity = 1
	e := newTestEngine(t, cfg)

	issues, err := e.RunSource(context.Background(), "f.go", []byte(nilDerefSource))
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestBehaviors(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "b.go", `package p

func orZero(p *int) int {
	if p == nil {
		return 0
	}
	return 1
}

func use(p *int) int {
	return orZero(p)
}
`)
	e := newTestEngine(t, nil)
	bs, err := e.Behaviors(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, bs, 2)
	assert.True(t, strings.HasSuffix(bs[0].Key, "orZero"))
	assert.NotEmpty(t, bs[0].Yields)
}

func TestCFG(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "c.go", nilDerefSource)
	e := newTestEngine(t, nil)

	g, fset, err := e.CFG(context.Background(), path, "f")
	require.NoError(t, err)
	assert.NotNil(t, fset)
	assert.NotEmpty(t, g.Blocks)

	_, _, err = e.CFG(context.Background(), path, "missing")
	assert.ErrorIs(t, err, ErrProcedureNotFound)
}

func TestReadSourceCode(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "s.go", "a\nb\n")
	src, err := ReadSourceCode(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", ""}, src.Lines)
}
