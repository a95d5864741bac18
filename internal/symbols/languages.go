package symbols

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language describes how to find named declarations in one grammar.
type Language struct {
	Name       string
	Extensions []string
	// Kinds maps a declaration node type to the symbol kind it produces.
	Kinds map[string]Kind

	grammar *sitter.Language
}

var (
	goLang = &Language{
		Name:       "go",
		Extensions: []string{".go"},
		Kinds: map[string]Kind{
			"function_declaration": KindFunction,
			"method_declaration":   KindMethod,
			"type_spec":            KindType,
		},
		grammar: golang.GetLanguage(),
	}

	tsKinds = map[string]Kind{
		"function_declaration":   KindFunction,
		"method_definition":      KindMethod,
		"class_declaration":      KindClass,
		"interface_declaration":  KindInterface,
		"type_alias_declaration": KindType,
	}

	jsKinds = map[string]Kind{
		"function_declaration": KindFunction,
		"method_definition":    KindMethod,
		"class_declaration":    KindClass,
	}

	languages = []*Language{
		goLang,
		{Name: "typescript", Extensions: []string{".ts"}, Kinds: tsKinds, grammar: typescript.GetLanguage()},
		{Name: "tsx", Extensions: []string{".tsx"}, Kinds: tsKinds, grammar: tsx.GetLanguage()},
		{Name: "javascript", Extensions: []string{".js", ".mjs", ".jsx"}, Kinds: jsKinds, grammar: javascript.GetLanguage()},
		{
			Name:       "python",
			Extensions: []string{".py"},
			Kinds: map[string]Kind{
				"function_definition": KindFunction,
				"class_definition":    KindClass,
			},
			grammar: python.GetLanguage(),
		},
	}

	byExtension = func() map[string]*Language {
		m := make(map[string]*Language)
		for _, l := range languages {
			for _, ext := range l.Extensions {
				m[ext] = l
			}
		}
		return m
	}()
)

// ForPath returns the language for a file path, by extension.
func ForPath(path string) (*Language, bool) {
	l, ok := byExtension[strings.ToLower(filepath.Ext(path))]
	return l, ok
}

// Extensions lists every supported file extension.
func Extensions() []string {
	exts := make([]string, 0, len(byExtension))
	for ext := range byExtension {
		exts = append(exts, ext)
	}
	return exts
}
