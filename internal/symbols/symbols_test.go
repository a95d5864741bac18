package symbols

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Go(t *testing.T) {
	// Given: a Go file with a function, a method and a type
	src := []byte(`package demo

type Queue struct{}

func (q *Queue) Put(v int) {}

func NewQueue() *Queue { return &Queue{} }
`)
	lang, ok := ForPath("demo/queue.go")
	require.True(t, ok)

	// When: extracting symbols
	syms, err := Extract(context.Background(), src, lang)

	// Then: all three declarations are found in order
	require.NoError(t, err)
	assert.Equal(t, []Symbol{
		{Name: "Queue", Kind: KindType, Line: 3},
		{Name: "Put", Kind: KindMethod, Line: 5},
		{Name: "NewQueue", Kind: KindFunction, Line: 7},
	}, syms)
	assert.Equal(t, "Queue Put NewQueue", Names(syms))
}

func TestExtract_Python(t *testing.T) {
	src := []byte("class Indexer:\n    def commit(self):\n        pass\n")
	lang, ok := ForPath("indexer.PY")
	require.True(t, ok)

	syms, err := Extract(context.Background(), src, lang)

	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "Indexer", syms[0].Name)
	assert.Equal(t, KindClass, syms[0].Kind)
	assert.Equal(t, "commit", syms[1].Name)
}

func TestExtract_TypeScript(t *testing.T) {
	src := []byte("interface Doc { id: string }\nclass Store { save() {} }\n")
	lang, ok := ForPath("store.ts")
	require.True(t, ok)

	syms, err := Extract(context.Background(), src, lang)

	require.NoError(t, err)
	assert.Equal(t, "Doc Store save", Names(syms))
}

func TestForPath_Unsupported(t *testing.T) {
	_, ok := ForPath("README.md")
	assert.False(t, ok)
	assert.Contains(t, Extensions(), ".go")
}
