package lint

import (
	"context"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gnolang/symex/internal/types"
)

type mockLintEngine struct {
	mock.Mock
}

func (m *mockLintEngine) Run(_ context.Context, filePath string) ([]types.Issue, error) {
	args := m.Called(filePath)
	return args.Get(0).([]types.Issue), args.Error(1)
}

func (m *mockLintEngine) RunSource(_ context.Context, filename string, source []byte) ([]types.Issue, error) {
	args := m.Called(filename, source)
	return args.Get(0).([]types.Issue), args.Error(1)
}

func (m *mockLintEngine) IgnoreRule(rule string) {
	m.Called(rule)
}

func (m *mockLintEngine) IgnorePath(path string) {
	m.Called(path)
}

func issueAt(rule, filename string) types.Issue {
	return types.Issue{
		Rule:     rule,
		Filename: filename,
		Start:    token.Position{Filename: filename, Offset: 0, Line: 1, Column: 1},
		End:      token.Position{Filename: filename, Offset: 10, Line: 1, Column: 11},
		Message:  "Test issue",
	}
}

func createTempFiles(t *testing.T, dir string, fileNames ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(fileNames))
	for _, fileName := range fileNames {
		filePath := filepath.Join(dir, fileName)
		require.NoError(t, os.WriteFile(filePath, nil, 0o644))
		paths = append(paths, filePath)
	}
	return paths
}

func TestProcessFile(t *testing.T) {
	t.Parallel()
	expected := []types.Issue{issueAt("test-rule", "test.go")}
	mockEngine := new(mockLintEngine)
	mockEngine.On("Run", "test.go").Return(expected, nil)

	issues, err := ProcessFile(context.Background(), mockEngine, "test.go")

	assert.NoError(t, err)
	assert.Equal(t, expected, issues)
	mockEngine.AssertExpectations(t)
}

func TestProcessPath(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()
	paths := createTempFiles(t, tempDir, "test1.go", "Test2.java", "notes.txt")

	expected := []types.Issue{issueAt("rule1", paths[0]), issueAt("rule2", paths[1])}
	mockEngine := new(mockLintEngine)
	mockEngine.On("Run", paths[0]).Return([]types.Issue{expected[0]}, nil)
	mockEngine.On("Run", paths[1]).Return([]types.Issue{expected[1]}, nil)

	issues, err := ProcessPath(context.Background(), zaptest.NewLogger(t), mockEngine, tempDir, ProcessFile)

	assert.NoError(t, err)
	assert.ElementsMatch(t, expected, issues)
	mockEngine.AssertExpectations(t)
	mockEngine.AssertNotCalled(t, "Run", paths[2])
}

func TestProcessPathSkipsFailingFiles(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()
	paths := createTempFiles(t, tempDir, "ok.go", "broken.go")

	mockEngine := new(mockLintEngine)
	mockEngine.On("Run", paths[0]).Return([]types.Issue{issueAt("rule1", paths[0])}, nil)
	mockEngine.On("Run", paths[1]).Return([]types.Issue(nil), assert.AnError)

	issues, err := ProcessPath(context.Background(), zaptest.NewLogger(t), mockEngine, tempDir, ProcessFile)

	assert.NoError(t, err)
	assert.Len(t, issues, 1)
}

func TestProcessFiles(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()
	paths := createTempFiles(t, tempDir, "test1.go", "test2.gno")

	expected := []types.Issue{issueAt("rule1", paths[0]), issueAt("rule2", paths[1])}
	mockEngine := new(mockLintEngine)
	mockEngine.On("Run", paths[0]).Return([]types.Issue{expected[0]}, nil)
	mockEngine.On("Run", paths[1]).Return([]types.Issue{expected[1]}, nil)

	issues, err := ProcessFiles(context.Background(), zaptest.NewLogger(t), mockEngine, paths, ProcessFile)

	assert.NoError(t, err)
	assert.Equal(t, expected, issues)
	mockEngine.AssertExpectations(t)
}

func TestProcessFilesMissingPath(t *testing.T) {
	t.Parallel()
	mockEngine := new(mockLintEngine)
	_, err := ProcessFiles(context.Background(), nil, mockEngine, []string{filepath.Join(t.TempDir(), "absent.go")}, ProcessFile)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProcessSources(t *testing.T) {
	t.Parallel()
	sources := []Source{
		{Filename: "a.go", Content: []byte("package main1")},
		{Filename: "B.java", Content: []byte("class B {}")},
	}
	expected := []types.Issue{issueAt("rule1", "a.go"), issueAt("rule2", "B.java")}

	mockEngine := new(mockLintEngine)
	mockEngine.On("RunSource", "a.go", sources[0].Content).Return([]types.Issue{expected[0]}, nil)
	mockEngine.On("RunSource", "B.java", sources[1].Content).Return([]types.Issue{expected[1]}, nil)

	issues, err := ProcessSources(context.Background(), zaptest.NewLogger(t), mockEngine, sources, ProcessSource)

	assert.NoError(t, err)
	assert.Equal(t, expected, issues)
	mockEngine.AssertExpectations(t)
}

func TestIsCancelled(t *testing.T) {
	t.Parallel()
	assert.True(t, IsCancelled(context.Canceled))
	assert.True(t, IsCancelled(context.DeadlineExceeded))
	assert.False(t, IsCancelled(assert.AnError))
}
