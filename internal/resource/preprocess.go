package resource

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/ftsindex/internal/index"
	"github.com/Aman-CERP/ftsindex/internal/store"
	"github.com/Aman-CERP/ftsindex/internal/symbols"
)

// DefaultMaxFileSize is the largest file TextPreprocessor will read (1 MiB).
const DefaultMaxFileSize = 1 << 20

// Content is a resource whose bytes can be read and described.
type Content interface {
	index.Resource
	ContentType() string
	Size() int64
	URL() string
	Container() string
	ReadContent() ([]byte, error)
}

// modTimer is implemented by resources with a modification time.
type modTimer interface {
	ModTime() time.Time
}

// TextPreprocessor turns text, markdown, HTML and source files into documents.
// Anything else is skipped.
type TextPreprocessor struct {
	MaxFileSize int64
	// Category is stored on every document; empty means "file".
	Category string
}

var _ index.Preprocessor = (*TextPreprocessor)(nil)

// Preprocess builds the document for r, or returns nil to skip it.
func (p *TextPreprocessor) Preprocess(ctx context.Context, id string, r index.Resource) (index.Document, error) {
	c, ok := r.(Content)
	if !ok {
		return nil, nil
	}

	limit := p.MaxFileSize
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	if c.Size() > limit {
		slog.Debug("skipping large file", slog.String("id", id), slog.Int64("size", c.Size()))
		return nil, nil
	}

	name := path.Base(c.URL())
	lang, isCode := symbols.ForPath(name)
	ct := c.ContentType()
	if !isCode && !isText(ct) {
		return nil, nil
	}

	data, err := c.ReadContent()
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		slog.Debug("skipping non-utf8 file", slog.String("id", id))
		return nil, nil
	}
	src := string(data)

	var title, body string
	switch {
	case ct == "text/html":
		title, body = htmlText(src)
	case ct == "text/markdown":
		title, body = markdownText(src)
	default:
		body = src
	}
	if title == "" {
		title = name
	}

	category := p.Category
	if category == "" {
		category = "file"
	}

	doc := index.Document{
		store.FieldTitle:     title,
		store.FieldBody:      body,
		store.FieldSummary:   Summarize(body, SummaryLength),
		store.FieldURL:       c.URL(),
		store.FieldContainer: c.Container(),
		store.FieldCategory:  category,
	}
	if mt, ok := r.(modTimer); ok {
		doc[store.FieldModified] = mt.ModTime().UTC()
	}

	if isCode {
		syms, err := symbols.Extract(ctx, data, lang)
		if err != nil {
			// index the body without symbols
			slog.Debug("symbol extraction failed", slog.String("id", id), slog.String("error", err.Error()))
		} else if len(syms) > 0 {
			doc[store.FieldSymbols] = symbols.Names(syms)
		}
	}
	return doc, nil
}

func isText(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		contentType == "application/json" ||
		contentType == "application/xml" ||
		contentType == "application/x-yaml" ||
		contentType == "application/yaml"
}
