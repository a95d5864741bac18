package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftsindex/internal/index"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "ftsindex.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestParticipantStore_UpsertAndLookup(t *testing.T) {
	// Given: a participant store
	ctx := context.Background()
	s, err := NewParticipantStore(newTestDB(t))
	require.NoError(t, err)

	// When: upserting the same pair twice plus another
	ps := []index.Participant{
		{Container: "study-1", ParticipantID: "P-001"},
		{Container: "study-1", ParticipantID: "P-001"},
		{Container: "study-2", ParticipantID: "P-002"},
	}
	require.NoError(t, s.Upsert(ctx, ps))

	// Then: lookups reflect the ids seen
	ok, err := s.IsParticipant(ctx, "P-001")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsParticipant(ctx, "P-999")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParticipantStore_PurgeRemovesStaleRows(t *testing.T) {
	// Given: one row seen 8 days ago and one seen now
	ctx := context.Background()
	s, err := NewParticipantStore(newTestDB(t))
	require.NoError(t, err)

	now := time.Now()
	s.now = func() time.Time { return now.Add(-8 * 24 * time.Hour) }
	require.NoError(t, s.Upsert(ctx, []index.Participant{{Container: "c", ParticipantID: "old"}}))
	s.now = func() time.Time { return now }
	require.NoError(t, s.Upsert(ctx, []index.Participant{{Container: "c", ParticipantID: "new"}}))

	// When: running the maintenance job
	require.NoError(t, s.PurgeRunnable(0)(ctx))

	// Then: only the recent row remains
	old, err := s.IsParticipant(ctx, "old")
	require.NoError(t, err)
	fresh, err := s.IsParticipant(ctx, "new")
	require.NoError(t, err)
	assert.False(t, old)
	assert.True(t, fresh)
}

func TestPathStore_LastIndexed(t *testing.T) {
	ctx := context.Background()
	s, err := NewPathStore(newTestDB(t))
	require.NoError(t, err)

	_, ok, err := s.LastIndexed(ctx, "docs/a.md")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, s.UpdateFile(ctx, "docs/a.md", at))

	got, ok, err := s.LastIndexed(ctx, "docs/a.md")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
}

func TestPathStore_ClearPrefixIsLiteral(t *testing.T) {
	// Given: paths whose names contain LIKE wildcards
	ctx := context.Background()
	s, err := NewPathStore(newTestDB(t))
	require.NoError(t, err)
	for _, p := range []string{"docs_v1/a.md", "docsXv1/b.md", "other/c.md"} {
		require.NoError(t, s.UpdateFile(ctx, p, time.Now()))
	}

	// When: clearing "docs_v1/"
	require.NoError(t, s.ClearPrefix(ctx, "docs_v1/"))

	// Then: the underscore is not a wildcard
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// When: the index is cleared
	require.NoError(t, s.OnClear(ctx))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenSQLite_InMemory(t *testing.T) {
	db, err := OpenSQLite("")
	require.NoError(t, err)
	defer db.Close()

	s, err := NewPathStore(db)
	require.NoError(t, err)
	require.NoError(t, s.UpdateFile(context.Background(), "x", time.Now()))
}

func TestPathStore_PathsUnderAndForget(t *testing.T) {
	// Given: paths in a directory, a sibling with a shared prefix, and a root file
	ctx := context.Background()
	s, err := NewPathStore(newTestDB(t))
	require.NoError(t, err)
	now := time.Now()
	for _, p := range []string{
		filepath.Join("docs", "a.md"),
		filepath.Join("docs", "sub", "b.md"),
		filepath.Join("docs2", "c.md"),
		"top.txt",
	} {
		require.NoError(t, s.UpdateFile(ctx, p, now))
	}

	// When: listing the docs directory
	under, err := s.PathsUnder(ctx, "docs")

	// Then: only its own files are returned
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("docs", "a.md"), filepath.Join("docs", "sub", "b.md")}, under)

	// When: forgetting the directory
	require.NoError(t, s.Forget(ctx, "docs"))

	// Then: the sibling and root file survive
	all, err := s.PathsUnder(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("docs2", "c.md"), "top.txt"}, all)
}
