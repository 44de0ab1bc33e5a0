package frontend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/symex/internal/tree"
)

func TestLanguageOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		filename string
		want     tree.Language
		wantErr  bool
	}{
		{"main.go", tree.Go, false},
		{"realm.gno", tree.Go, false},
		{"src/Foo.java", tree.Java, false},
		{"Foo.JAVA", tree.Java, false},
		{"README.md", 0, true},
		{"Makefile", 0, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.filename, func(t *testing.T) {
			t.Parallel()
			got, err := LanguageOf(tt.filename)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnsupportedLanguage))
				assert.False(t, Supported(tt.filename))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, Supported(tt.filename))
		})
	}
}
