package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
	"github.com/Aman-CERP/ftsindex/internal/index"
)

// PathStore remembers when each crawled path was last indexed so the crawler
// can skip unchanged files.
type PathStore struct {
	db *sql.DB
}

var _ index.ClearListener = (*PathStore)(nil)

// NewPathStore creates the path table if needed.
func NewPathStore(db *sql.DB) (*PathStore, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS indexed_paths (
		path         TEXT PRIMARY KEY,
		last_indexed INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fterrors.StorageError("failed to create path table", err)
	}
	return &PathStore{db: db}, nil
}

// UpdateFile records that path was indexed at t.
func (s *PathStore) UpdateFile(ctx context.Context, path string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexed_paths (path, last_indexed) VALUES (?, ?)
		ON CONFLICT (path) DO UPDATE SET last_indexed = excluded.last_indexed`,
		path, t.UnixMilli())
	if err != nil {
		return fterrors.StorageError("failed to record indexed path", err).WithDetail("path", path)
	}
	return nil
}

// LastIndexed returns when path was last indexed. ok is false for unknown paths.
func (s *PathStore) LastIndexed(ctx context.Context, path string) (t time.Time, ok bool, err error) {
	var ms int64
	err = s.db.QueryRowContext(ctx, `SELECT last_indexed FROM indexed_paths WHERE path = ?`, path).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fterrors.StorageError("failed to read indexed path", err)
	}
	return time.UnixMilli(ms), true, nil
}

// ClearPrefix forgets every path under prefix.
func (s *PathStore) ClearPrefix(ctx context.Context, prefix string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM indexed_paths WHERE path LIKE ? ESCAPE '\'`, likePrefix(prefix))
	if err != nil {
		return fterrors.StorageError("failed to clear indexed paths", err).WithDetail("prefix", prefix)
	}
	return nil
}

// PathsUnder lists the tracked paths equal to dir or inside it. An empty dir lists everything.
func (s *PathStore) PathsUnder(ctx context.Context, dir string) ([]string, error) {
	query, args := `SELECT path FROM indexed_paths ORDER BY path`, []any{}
	if dir != "" {
		query = `SELECT path FROM indexed_paths WHERE path = ? OR path LIKE ? ESCAPE '\' ORDER BY path`
		args = []any{dir, likePrefix(dir + string(filepath.Separator))}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fterrors.StorageError("failed to list indexed paths", err).WithDetail("dir", dir)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fterrors.StorageError("failed to scan indexed path", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Forget removes path and every tracked path inside it.
func (s *PathStore) Forget(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM indexed_paths WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		path, likePrefix(path+string(filepath.Separator)))
	if err != nil {
		return fterrors.StorageError("failed to forget indexed path", err).WithDetail("path", path)
	}
	return nil
}

func likePrefix(prefix string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix) + "%"
}

// Count returns the number of tracked paths.
func (s *PathStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexed_paths`).Scan(&n); err != nil {
		return 0, fterrors.StorageError("failed to count indexed paths", err)
	}
	return n, nil
}

// OnClear forgets every path, so a cleared index is fully recrawled.
func (s *PathStore) OnClear(ctx context.Context) error {
	return s.ClearPrefix(ctx, "")
}
