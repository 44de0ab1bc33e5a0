package internal

import (
	"context"
	"go/token"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/symex/internal/config"
	tt "github.com/gnolang/symex/internal/types"
)

func TestCache(t *testing.T) {
	t.Parallel()
	src := []byte("package main\n\nfunc main() {}\n")
	issues := []tt.Issue{{
		Rule:     "nil-dereference",
		Filename: "test.go",
		Message:  "test issue",
		Start:    token.Position{Line: 3, Column: 1, Filename: "test.go"},
		End:      token.Position{Line: 3, Column: 10, Filename: "test.go"},
		Flows:    []tt.Flow{{{Position: token.Position{Line: 2}, Message: "step"}}},
	}}

	t.Run("SaveAndLoad", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "cache")
		cache, err := NewCache(dir)
		require.NoError(t, err)
		require.NoError(t, cache.Set("test.go", "rules", src, issues))

		got, found := cache.Get("test.go", "rules", src)
		assert.True(t, found)
		assert.Equal(t, issues, got)

		reloaded, err := NewCache(dir)
		require.NoError(t, err)
		got, found = reloaded.Get("test.go", "rules", src)
		assert.True(t, found)
		assert.Equal(t, issues, got)
	})

	t.Run("NotFound", func(t *testing.T) {
		t.Parallel()
		cache, err := NewCache("")
		require.NoError(t, err)
		_, found := cache.Get("nonexistent.go", "rules", src)
		assert.False(t, found)
	})

	t.Run("ContentModified", func(t *testing.T) {
		t.Parallel()
		cache, err := NewCache("")
		require.NoError(t, err)
		require.NoError(t, cache.Set("test.go", "rules", src, issues))

		_, found := cache.Get("test.go", "rules", []byte("package main\n"))
		assert.False(t, found)
		_, found = cache.Get("test.go", "rules", src)
		assert.False(t, found, "a stale entry is dropped")
	})

	t.Run("SettingsChanged", func(t *testing.T) {
		t.Parallel()
		cache, err := NewCache("")
		require.NoError(t, err)
		require.NoError(t, cache.Set("test.go", "rules", src, issues))

		_, found := cache.Get("test.go", "other rules", src)
		assert.False(t, found)
	})

	t.Run("Expired", func(t *testing.T) {
		t.Parallel()
		cache, err := NewCache("")
		require.NoError(t, err)
		cache.SetMaxAge(time.Nanosecond)
		require.NoError(t, cache.Set("test.go", "rules", src, issues))
		time.Sleep(time.Millisecond)
		_, found := cache.Get("test.go", "rules", src)
		assert.False(t, found)
	})

	t.Run("InvalidateAll", func(t *testing.T) {
		t.Parallel()
		cache, err := NewCache(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, cache.Set("test.go", "rules", src, issues))
		cache.InvalidateAll()
		_, found := cache.Get("test.go", "rules", src)
		assert.False(t, found)
	})
}

func TestEngineUsesCache(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "f.go", nilDerefSource)
	cache, err := NewCache("")
	require.NoError(t, err)

	e := newTestEngine(t, nil)
	e.SetCache(cache)
	cached := []tt.Issue{{Rule: "from-cache", Filename: path}}
	require.NoError(t, cache.Set(path, e.settings(), []byte(nilDerefSource), cached))
	issues, err := e.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, cached, issues)

	e.IgnoreRule("division-by-zero")
	issues, err = e.Run(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "nil-dereference", issues[0].Rule)

	got, found := cache.Get(path, e.settings(), []byte(nilDerefSource))
	assert.True(t, found)
	assert.Equal(t, issues, got)
}

func TestPersistedCacheFollowsEnabledRules(t *testing.T) {
	t.Parallel()

	offConfig := config.Default()
	offConfig.Rules = map[string]tt.ConfigRule{"nil-dereference": {Severity: tt.SeverityOff}}

	tests := []struct {
		name   string
		second func(t *testing.T) *Engine
	}{
		{
			name: "ignored before the cache is set",
			second: func(t *testing.T) *Engine {
				e := newTestEngine(t, nil)
				e.IgnoreRule("nil-dereference")
				return e
			},
		},
		{
			name: "turned off in the configuration",
			second: func(t *testing.T) *Engine {
				return newTestEngine(t, offConfig)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "f.go", nilDerefSource)
			dir := filepath.Join(t.TempDir(), "cache")

			first := newTestEngine(t, nil)
			firstCache, err := NewCache(dir)
			require.NoError(t, err)
			first.SetCache(firstCache)
			issues, err := first.Run(context.Background(), path)
			require.NoError(t, err)
			require.Len(t, issues, 1)
			assert.Equal(t, "nil-dereference", issues[0].Rule)
			assert.Equal(t, 7, issues[0].Start.Line)

			second := tt.second(t)
			secondCache, err := NewCache(dir)
			require.NoError(t, err)
			second.SetCache(secondCache)
			issues, err = second.Run(context.Background(), path)
			require.NoError(t, err)
			assert.Empty(t, issues)
		})
	}
}
