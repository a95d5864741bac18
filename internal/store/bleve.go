// Package store holds the concrete index engine and the sqlite side tables
// that back the indexing pipeline.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
	"github.com/Aman-CERP/ftsindex/internal/index"
)

// Document field names written by the preprocessor and read back by Search.
const (
	FieldTitle     = "title"
	FieldBody      = "body"
	FieldSummary   = "summary"
	FieldURL       = "url"
	FieldContainer = "container"
	FieldCategory  = "category"
	FieldModified  = "modified"
	FieldSymbols   = "symbols"
)

// pageSize bounds how many hits are fetched per query when deleting by query.
const pageSize = 1000

// Hit is one search result.
type Hit struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	Title     string  `json:"title,omitempty"`
	URL       string  `json:"url,omitempty"`
	Summary   string  `json:"summary,omitempty"`
	Container string  `json:"container,omitempty"`
}

// BleveEngine implements index.Engine on a bleve index. Writes collect in a
// pending batch and become visible to Search on Commit.
type BleveEngine struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	batch  *bleve.Batch
	closed bool
}

var _ index.Engine = (*BleveEngine)(nil)

// OpenBleveEngine opens or creates the index at path. An empty path gives an
// in-memory index. A corrupt index directory is removed and recreated empty.
func OpenBleveEngine(path string) (*BleveEngine, error) {
	m := newIndexMapping()

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = openOrCreate(path, m)
	}
	if err != nil {
		return nil, fterrors.New(fterrors.ErrCodeIndexOpen, "failed to open search index", err).
			WithDetail("path", path)
	}

	return &BleveEngine{index: idx, path: path, batch: idx.NewBatch()}, nil
}

func openOrCreate(path string, m mapping.IndexMapping) (bleve.Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if validErr := CheckIndexIntegrity(path); validErr != nil {
		slog.Warn("search index corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("index corrupted and cannot be removed: %w (original: %v)", err, validErr)
		}
		slog.Info("search index cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
	}

	idx, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		return bleve.New(path, m)
	case err != nil && isCorruptionError(err):
		slog.Warn("search index open failed", slog.String("path", path), slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("index corrupted and cannot be removed: %w (original: %v)", rmErr, err)
		}
		return bleve.New(path, m)
	}
	return idx, err
}

// CheckIndexIntegrity checks index_meta.json before bleve touches the directory.
// A missing index is not an error.
func CheckIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// newIndexMapping analyzes prose fields with the English analyzer and keeps
// identifiers (container, url, category) as exact keywords.
func newIndexMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName
	text.Store = true

	body := bleve.NewTextFieldMapping()
	body.Analyzer = en.AnalyzerName
	body.Store = false

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name
	exact.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(FieldTitle, text)
	doc.AddFieldMappingsAt(FieldSummary, text)
	doc.AddFieldMappingsAt(FieldBody, body)
	doc.AddFieldMappingsAt(FieldSymbols, text)
	doc.AddFieldMappingsAt(FieldURL, exact)
	doc.AddFieldMappingsAt(FieldContainer, exact)
	doc.AddFieldMappingsAt(FieldCategory, exact)
	doc.AddFieldMappingsAt(FieldModified, bleve.NewDateTimeFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}

// Index stages a document in the pending batch.
func (e *BleveEngine) Index(_ context.Context, id string, _ index.Resource, doc index.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fterrors.ErrIndexClosed
	}
	if err := e.batch.Index(id, map[string]any(doc)); err != nil {
		return fmt.Errorf("failed to stage document %s: %w", id, err)
	}
	return nil
}

// DeleteDocument stages removal of one document.
func (e *BleveEngine) DeleteDocument(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fterrors.ErrIndexClosed
	}
	e.batch.Delete(id)
	return nil
}

// Commit applies the pending batch.
func (e *BleveEngine) Commit(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fterrors.ErrIndexClosed
	}
	return e.flushLocked()
}

func (e *BleveEngine) flushLocked() error {
	if e.batch.Size() == 0 {
		return nil
	}
	if err := e.index.Batch(e.batch); err != nil {
		return fmt.Errorf("failed to apply batch: %w", err)
	}
	e.batch.Reset()
	return nil
}

// DeleteContainer stages removal of every committed document in a container.
func (e *BleveEngine) DeleteContainer(ctx context.Context, containerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fterrors.ErrIndexClosed
	}
	// pending writes for the container must be visible to the query
	if err := e.flushLocked(); err != nil {
		return err
	}

	q := bleve.NewTermQuery(containerID)
	q.SetField(FieldContainer)
	ids, err := e.matchingIDsLocked(ctx, q)
	if err != nil {
		return err
	}
	for _, id := range ids {
		e.batch.Delete(id)
	}
	slog.Debug("container delete staged",
		slog.String("container", containerID),
		slog.Int("documents", len(ids)))
	return nil
}

// Clear removes every document, pending or committed.
func (e *BleveEngine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fterrors.ErrIndexClosed
	}
	e.batch.Reset()

	ids, err := e.matchingIDsLocked(ctx, bleve.NewMatchAllQuery())
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += pageSize {
		b := e.index.NewBatch()
		for _, id := range ids[start:min(start+pageSize, len(ids))] {
			b.Delete(id)
		}
		if err := e.index.Batch(b); err != nil {
			return fmt.Errorf("failed to clear documents: %w", err)
		}
	}
	return nil
}

func (e *BleveEngine) matchingIDsLocked(ctx context.Context, q query.Query) ([]string, error) {
	var ids []string
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(q, pageSize, from, false)
		res, err := e.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < pageSize {
			return ids, nil
		}
	}
}

// Shutdown applies pending writes and closes the index. Later calls are no-ops.
func (e *BleveEngine) Shutdown(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	flushErr := e.flushLocked()
	e.closed = true
	if err := e.index.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	return flushErr
}

// Search runs a query-string query over committed documents.
func (e *BleveEngine) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, fterrors.ErrIndexClosed
	}
	if strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{FieldTitle, FieldURL, FieldSummary, FieldContainer}
	res, err := e.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fterrors.ValidationError("search failed", err).WithDetail("query", query)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{
			ID:        h.ID,
			Score:     h.Score,
			Title:     fieldString(h.Fields, FieldTitle),
			URL:       fieldString(h.Fields, FieldURL),
			Summary:   fieldString(h.Fields, FieldSummary),
			Container: fieldString(h.Fields, FieldContainer),
		})
	}
	return hits, nil
}

// DocCount returns the number of committed documents.
func (e *BleveEngine) DocCount() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0, fterrors.ErrIndexClosed
	}
	return e.index.DocCount()
}

// Path returns the index directory, or "" for an in-memory index.
func (e *BleveEngine) Path() string { return e.path }

func fieldString(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
