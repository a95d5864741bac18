// Package symbols extracts declared names (functions, types, classes) from
// source files with tree-sitter, so code is searchable by what it defines.
package symbols

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Kind is the kind of a declared symbol.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
)

// Symbol is one named declaration.
type Symbol struct {
	Name string
	Kind Kind
	// Line is 1-indexed.
	Line int
}

// Extract parses source as lang and returns its declarations in source order.
// A fresh tree-sitter parser is used per call, so Extract is safe for concurrent use.
func Extract(ctx context.Context, source []byte, lang *Language) ([]Symbol, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.grammar)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s source: %w", lang.Name, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s source: nil tree", lang.Name)
	}
	defer tree.Close()

	var out []Symbol
	walk(tree.RootNode(), func(n *sitter.Node) {
		kind, ok := lang.Kinds[n.Type()]
		if !ok {
			return
		}
		name := n.ChildByFieldName("name")
		if name == nil {
			return
		}
		out = append(out, Symbol{
			Name: name.Content(source),
			Kind: kind,
			Line: int(n.StartPoint().Row) + 1,
		})
	})
	return out, nil
}

func walk(n *sitter.Node, fn func(*sitter.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}

// Names joins symbol names with spaces, for indexing.
func Names(syms []Symbol) string {
	names := make([]string, len(syms))
	for i, s := range syms {
		names[i] = s.Name
	}
	return strings.Join(names, " ")
}
