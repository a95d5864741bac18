package resource

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftsindex/internal/index"
	"github.com/Aman-CERP/ftsindex/internal/store"
)

func resolve(t *testing.T, root, rel string) index.Resource {
	t.Helper()
	r, err := NewFileResolver(root, nil)
	require.NoError(t, err)
	res, err := r.Resolve(context.Background(), rel)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestTextPreprocessor_Markdown(t *testing.T) {
	// Given: a markdown file with frontmatter, a heading and a link
	root := t.TempDir()
	writeFile(t, root, "docs/setup.md", "---\ntitle: x\n---\n# Setup Guide\n\nRead the [install notes](install.md) **first**.\n")
	p := &TextPreprocessor{}

	// When: preprocessing it
	doc, err := p.Preprocess(context.Background(), "file:docs/setup.md", resolve(t, root, "docs/setup.md"))

	// Then: the heading is the title and markup is gone
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Setup Guide", doc[store.FieldTitle])
	assert.Equal(t, "Setup Guide Read the install notes first.", doc[store.FieldBody])
	assert.Equal(t, "docs", doc[store.FieldContainer])
	assert.Equal(t, "/docs/setup.md", doc[store.FieldURL])
	assert.Equal(t, "file", doc[store.FieldCategory])
	assert.Contains(t, doc, store.FieldModified)
}

func TestTextPreprocessor_HTML(t *testing.T) {
	// Given: an HTML page with a script block and entities
	root := t.TempDir()
	writeFile(t, root, "site/index.html",
		`<html><head><title>Home &amp; Away</title><script>var x = 1;</script></head>`+
			`<body><h1>Welcome</h1><p>Fish &amp; chips</p></body></html>`)
	p := &TextPreprocessor{Category: "web"}

	// When: preprocessing it
	doc, err := p.Preprocess(context.Background(), "file:site/index.html", resolve(t, root, "site/index.html"))

	// Then: title and visible text are extracted
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Home & Away", doc[store.FieldTitle])
	assert.Equal(t, "Welcome Fish & chips", doc[store.FieldBody])
	assert.Equal(t, "web", doc[store.FieldCategory])
}

func TestTextPreprocessor_SourceFileGetsSymbols(t *testing.T) {
	// Given: a Go source file
	root := t.TempDir()
	writeFile(t, root, "pkg/queue.go", "package pkg\n\ntype Queue struct{}\n\nfunc NewQueue() *Queue { return &Queue{} }\n")
	p := &TextPreprocessor{}

	// When: preprocessing it
	doc, err := p.Preprocess(context.Background(), "file:pkg/queue.go", resolve(t, root, "pkg/queue.go"))

	// Then: declared names are indexed alongside the body
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "queue.go", doc[store.FieldTitle])
	assert.Equal(t, "Queue NewQueue", doc[store.FieldSymbols])
}

func TestTextPreprocessor_Skips(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "image.png", "\x89PNG")
	writeFile(t, root, "bad.txt", "\xff\xfe\xfd")
	writeFile(t, root, "big.txt", strings.Repeat("a", 64))
	p := &TextPreprocessor{MaxFileSize: 32}

	tests := []struct {
		name string
		rel  string
	}{
		{"unsupported type", "image.png"},
		{"invalid utf-8", "bad.txt"},
		{"over size limit", "big.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := p.Preprocess(context.Background(), "file:"+tt.rel, resolve(t, root, tt.rel))
			require.NoError(t, err)
			assert.Nil(t, doc)
		})
	}
}

type bareResource struct{}

func (bareResource) Name() string { return "x:y" }
func (bareResource) Exists() bool { return true }

func TestTextPreprocessor_NonContentResourceSkipped(t *testing.T) {
	doc, err := (&TextPreprocessor{}).Preprocess(context.Background(), "x:y", bareResource{})
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short text unchanged", "hello  world", 20, "hello world"},
		{"cut at word boundary", "the quick brown fox", 12, "the quick..."},
		{"trailing punctuation dropped", "one, two, three", 9, "one..."},
		{"no space to cut at", "abcdefghij", 4, "abcd..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.in, tt.max))
		})
	}
}
