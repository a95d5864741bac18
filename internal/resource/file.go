// Package resource resolves "file:" identifiers to files under a root
// directory and turns their content into indexable documents.
package resource

import (
	"context"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
	"github.com/Aman-CERP/ftsindex/internal/index"
)

// Prefix is the identifier prefix handled by FileResolver.
const Prefix = "file"

// PathRecorder stores when a path was last indexed.
type PathRecorder interface {
	UpdateFile(ctx context.Context, path string, t time.Time) error
}

// Identifier returns the pipeline identifier for a root-relative path.
func Identifier(rel string) string {
	return Prefix + ":" + filepath.ToSlash(rel)
}

// FileResolver resolves "file:<relative path>" under a root directory.
type FileResolver struct {
	root  string
	paths PathRecorder
}

var _ index.Resolver = (*FileResolver)(nil)

// NewFileResolver creates a resolver rooted at root. paths may be nil.
func NewFileResolver(root string, paths PathRecorder) (*FileResolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fterrors.ValidationError("invalid crawl root", err).WithDetail("root", root)
	}
	return &FileResolver{root: abs, paths: paths}, nil
}

// Root returns the absolute root directory.
func (f *FileResolver) Root() string { return f.root }

// Rel converts an absolute path under the root to a root-relative one.
func (f *FileResolver) Rel(path string) (string, error) {
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fterrors.New(fterrors.ErrCodeInvalidIdentifier, "path is outside the crawl root", err).
			WithDetail("path", path)
	}
	return rel, nil
}

// Resolve returns the file for rest, or nil when it does not exist or is a directory.
func (f *FileResolver) Resolve(_ context.Context, rest string) (index.Resource, error) {
	rel := filepath.Clean(filepath.FromSlash(rest))
	if rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fterrors.New(fterrors.ErrCodeInvalidIdentifier, "file identifier escapes the crawl root", nil).
			WithDetail("identifier", rest)
	}

	info, err := os.Stat(filepath.Join(f.root, rel))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, nil
	}
	return &FileResource{root: f.root, rel: rel, info: info, paths: f.paths}, nil
}

// FileResource is a regular file under the crawl root.
type FileResource struct {
	root  string
	rel   string
	info  os.FileInfo
	paths PathRecorder
}

// Name returns the "file:" identifier.
func (r *FileResource) Name() string { return Identifier(r.rel) }

// Exists reports whether the file is still present.
func (r *FileResource) Exists() bool {
	_, err := os.Stat(r.Path())
	return err == nil
}

// Path returns the absolute path.
func (r *FileResource) Path() string { return filepath.Join(r.root, r.rel) }

// Rel returns the root-relative path.
func (r *FileResource) Rel() string { return r.rel }

// URL returns the slash-separated relative path used as the document URL.
func (r *FileResource) URL() string { return "/" + filepath.ToSlash(r.rel) }

// Container is the top-level directory, or "" for files directly under the root.
func (r *FileResource) Container() string {
	first, _, found := strings.Cut(filepath.ToSlash(r.rel), "/")
	if !found {
		return ""
	}
	return first
}

// Size returns the size at resolution time.
func (r *FileResource) Size() int64 { return r.info.Size() }

// ModTime returns the modification time at resolution time.
func (r *FileResource) ModTime() time.Time { return r.info.ModTime() }

// ContentType guesses the MIME type from the extension.
func (r *FileResource) ContentType() string {
	return contentType(r.rel)
}

// ReadContent reads the whole file.
func (r *FileResource) ReadContent() ([]byte, error) {
	return os.ReadFile(r.Path())
}

// SetLastIndexed records the index time so unchanged files are skipped on the next crawl.
func (r *FileResource) SetLastIndexed(t time.Time) {
	if r.paths == nil {
		return
	}
	if err := r.paths.UpdateFile(context.Background(), r.rel, t); err != nil {
		slog.Warn("failed to record last indexed time",
			slog.String("path", r.rel),
			slog.String("error", err.Error()))
	}
}

var knownTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := knownTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}
