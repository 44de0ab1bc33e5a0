// Package frontend holds what the language front ends share: the language
// detection the driver dispatches on and the errors they report.
package frontend

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gnolang/symex/internal/tree"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrParse               = errors.New("parse error")
)

// LanguageOf returns the language of filename from its extension.
func LanguageOf(filename string) (tree.Language, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".go", ".gno":
		return tree.Go, nil
	case ".java":
		return tree.Java, nil
	}
	return 0, fmt.Errorf("%s: %w", filename, ErrUnsupportedLanguage)
}

// Supported reports whether filename has a front end.
func Supported(filename string) bool {
	_, err := LanguageOf(filename)
	return err == nil
}
