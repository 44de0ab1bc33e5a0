package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gnolang/symex/internal"
	"github.com/gnolang/symex/internal/config"
	"github.com/gnolang/symex/internal/se/engine"
	"github.com/gnolang/symex/lint"
)

const source = `package p

type T struct{ x int }

func f(t *T) int {
	if t == nil {
		return t.x
	}
	return t.x
}
`

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.go")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Empty(t, splitList(""))
}

func TestPrintIssues(t *testing.T) {
	t.Parallel()
	path := writeSource(t)
	eng, err := internal.NewEngine(nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	issues, err := eng.Run(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	var text bytes.Buffer
	require.NoError(t, printIssues(&text, zaptest.NewLogger(t), issues, false, ""))
	assert.Contains(t, text.String(), "nil-dereference")
	assert.Contains(t, text.String(), "return t.x")

	var js bytes.Buffer
	require.NoError(t, printIssues(&js, zaptest.NewLogger(t), issues, true, ""))
	var decoded map[string][]map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	require.Len(t, decoded[path], 1)
	assert.Equal(t, "error", decoded[path][0]["severity"])

	out := filepath.Join(t.TempDir(), "issues.json")
	require.NoError(t, printIssues(&js, zaptest.NewLogger(t), issues, true, out))
	assert.FileExists(t, out)
}

func TestApplyIgnores(t *testing.T) {
	t.Parallel()
	eng, err := internal.NewEngine(nil, nil)
	require.NoError(t, err)
	applyIgnores(eng, "nil-dereference, division-by-zero", "")
	assert.NotContains(t, eng.Rules(), "nil-dereference")
	assert.NotContains(t, eng.Rules(), "division-by-zero")
}

func TestWriteMetrics(t *testing.T) {
	t.Parallel()
	path := writeSource(t)
	reg := prometheus.NewRegistry()
	eng, err := lint.New(filepath.Dir(path), "", nil)
	require.NoError(t, err)
	eng.SetMetrics(engine.NewMetrics(reg))
	_, err = eng.Run(context.Background(), path)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "metrics.txt")
	families, err := writeMetrics(reg, out)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "symex_procedures_explored_total")
	assert.GreaterOrEqual(t, counterTotal(families, "symex_procedures_explored_total"), float64(1))
	assert.Zero(t, counterTotal(families, "no_such_metric"))
}

func TestRunCFGAnalysis(t *testing.T) {
	t.Parallel()
	path := writeSource(t)
	eng, err := internal.NewEngine(nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	assert.True(t, runCFGAnalysis(context.Background(), zaptest.NewLogger(t), eng, &buf, []string{path}, "f", ""))
	assert.True(t, strings.Contains(buf.String(), "digraph"))
	assert.Contains(t, buf.String(), "loops: false")
	assert.False(t, runCFGAnalysis(context.Background(), zaptest.NewLogger(t), eng, &buf, []string{path}, "g", ""))
}

func TestPrintBehaviors(t *testing.T) {
	t.Parallel()
	path := writeSource(t)
	eng, err := internal.NewEngine(nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printBehaviors(context.Background(), eng, &buf, []string{path}))
	assert.Contains(t, buf.String(), path+":")
	assert.Contains(t, buf.String(), "p.f")
	assert.Regexp(t, `= \d+ returning, \d+ throwing`, buf.String())
}

func TestPrintBehaviorsCountsYields(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "y.go")
	require.NoError(t, os.WriteFile(path, []byte(`package p

func pick(p *int) int {
	if p == nil {
		return 0
	}
	return 1
}
`), 0o644))
	eng, err := internal.NewEngine(nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printBehaviors(context.Background(), eng, &buf, []string{path}))
	assert.Contains(t, buf.String(), "= 2 returning, 0 throwing")
}

func TestInitConfigurationFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "conf.yaml")
	got, err := initConfigurationFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Engine, cfg.Engine)
}

func TestSummarizeCFG(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "s.go")
	require.NoError(t, os.WriteFile(path, []byte(`package p

func loop(n int) int {
	for n > 0 {
		n--
	}
	return n
	println("dead")
}
`), 0o644))
	eng, err := internal.NewEngine(nil, nil)
	require.NoError(t, err)
	g, _, err := eng.CFG(context.Background(), path, "loop")
	require.NoError(t, err)

	summary := summarizeCFG(g)
	assert.Contains(t, summary, "loops: true")
	assert.Contains(t, summary, "unreachable: B")
}
