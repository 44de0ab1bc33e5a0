package lint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

)

func writeNilDerefFiles(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		content := fmt.Sprintf(`package main

type T struct{ x int }

func get%d(t *T) int {
	if t == nil {
		return t.x
	}
	return 0
}
`, i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("test%d.go", i)), []byte(content), 0o644))
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".symex.yaml"), []byte(`
rules:
  nil-dereference:
    severity: off
`), 0o644))

	engine, err := New(dir, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotContains(t, engine.Rules(), "nil-dereference")

	_, err = New(dir, filepath.Join(dir, "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestProcessPathContextCancellation(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()
	writeNilDerefFiles(t, tempDir, 10)

	engine, err := New(tempDir, "", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	issues, err := ProcessPath(ctx, nil, engine, tempDir, ProcessFile)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancelled(err))
	assert.NotNil(t, issues)
}

func TestProcessPathCollectsAllFiles(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()
	writeNilDerefFiles(t, tempDir, 5)

	engine, err := New(tempDir, "", nil)
	require.NoError(t, err)

	issues, err := ProcessPath(context.Background(), nil, engine, tempDir, ProcessFile)
	require.NoError(t, err)
	require.Len(t, issues, 5)
	for i := 1; i < len(issues); i++ {
		assert.LessOrEqual(t, issues[i-1].Filename, issues[i].Filename)
	}
	for _, issue := range issues {
		assert.Equal(t, "nil-dereference", issue.Rule)
		assert.Equal(t, 7, issue.Start.Line)
	}
}

func TestProcessPathWithInvalidFile(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()
	writeNilDerefFiles(t, tempDir, 2)
	invalidFile := filepath.Join(tempDir, "invalid.go")
	require.NoError(t, os.WriteFile(invalidFile, []byte("this is not valid go code"), 0o644))

	engine, err := New(tempDir, "", zaptest.NewLogger(t))
	require.NoError(t, err)

	issues, err := ProcessPath(context.Background(), zaptest.NewLogger(t), engine, tempDir, ProcessFile)
	assert.NoError(t, err)
	assert.Len(t, issues, 2)

	issues, err = ProcessPath(context.Background(), nil, engine, invalidFile, ProcessFile)
	assert.Error(t, err)
	assert.Empty(t, issues)
}

func TestCollectFiles(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()
	sub := filepath.Join(tempDir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	createTempFiles(t, tempDir, "a.go", "b.gno", "README.md")
	createTempFiles(t, sub, "C.java", "d.py")

	files, err := collectFiles(tempDir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(tempDir, "a.go"),
		filepath.Join(tempDir, "b.gno"),
		filepath.Join(sub, "C.java"),
	}, files)

	_, err = collectFiles(filepath.Join(tempDir, "absent"))
	assert.Error(t, err)
}

