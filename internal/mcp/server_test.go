package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftsindex/internal/daemon"
	"github.com/Aman-CERP/ftsindex/internal/index"
	"github.com/Aman-CERP/ftsindex/internal/store"
	"github.com/Aman-CERP/ftsindex/internal/telemetry"
)

type fakeBackend struct {
	enqueued []daemon.EnqueueParams
	deleted  []daemon.DeleteParams
	calls    []string
	searched daemon.SearchParams
	hits     []store.Hit
	err      error
}

func (f *fakeBackend) Status(context.Context) (*daemon.StatusResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &daemon.StatusResult{
		Running: true, PID: 42, Uptime: "1m0s", Root: "/data", Documents: 7,
		Pipeline: index.Status{
			State: "running", Busy: true, RunQueue: 1, ItemQueue: 2, IndexQueue: 3, PendingCommit: 4,
			Tasks: []index.TaskStats{{Description: "crawl", Pending: 5, Succeeded: 6, Failed: 1}},
		},
	}, nil
}

func (f *fakeBackend) Enqueue(_ context.Context, p daemon.EnqueueParams) (int, error) {
	f.enqueued = append(f.enqueued, p)
	return len(p.IDs), f.err
}

func (f *fakeBackend) Delete(_ context.Context, p daemon.DeleteParams) (int, error) {
	f.deleted = append(f.deleted, p)
	return len(p.IDs), f.err
}

func (f *fakeBackend) Pause(context.Context) error {
	f.calls = append(f.calls, "pause")
	return f.err
}

func (f *fakeBackend) Resume(context.Context) error {
	f.calls = append(f.calls, "resume")
	return f.err
}

func (f *fakeBackend) Commit(context.Context) error {
	f.calls = append(f.calls, "commit")
	return f.err
}

func (f *fakeBackend) Search(_ context.Context, p daemon.SearchParams) (*daemon.SearchResult, error) {
	f.searched = p
	if f.err != nil {
		return nil, f.err
	}
	return &daemon.SearchResult{Hits: f.hits}, nil
}

func (f *fakeBackend) Stats(context.Context, int) (*daemon.StatsResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &daemon.StatsResult{
		Snapshot: telemetry.Snapshot{
			Queries:           4,
			ZeroResults:       1,
			TopTerms:          []telemetry.TermCount{{Term: "fox", Count: 3}},
			RecentZeroResults: []string{"missing"},
			Latency:           map[telemetry.LatencyBucket]int64{telemetry.BucketP10: 4},
		},
		ZeroResultPercent: 25,
	}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{}
	s, err := NewServer(fb)
	require.NoError(t, err)
	return s, fb
}

func TestNewServer_RegistersTools(t *testing.T) {
	// Given/When: a server over a backend
	s, _ := newTestServer(t)

	// Then: every control tool is registered
	var names []string
	for _, tool := range s.Tools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.ElementsMatch(t,
		[]string{"search", "status", "enqueue", "delete", "pause", "resume", "commit", "stats"}, names)
}

func TestNewServer_RequiresBackend(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestHandleSearch_ReturnsHits(t *testing.T) {
	// Given: a backend with one hit
	s, fb := newTestServer(t)
	fb.hits = []store.Hit{{ID: "file:a.md", Score: 1.5, Title: "A"}}

	// When: searching
	_, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "fox", Limit: 3})

	// Then: the query is forwarded and hits returned
	require.NoError(t, err)
	assert.Equal(t, daemon.SearchParams{Query: "fox", Limit: 3}, fb.searched)
	require.Len(t, out.Hits, 1)
	assert.Equal(t, "file:a.md", out.Hits[0].ID)
}

func TestHandleSearch_EmptyQuery(t *testing.T) {
	s, _ := newTestServer(t)

	_, _, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "  "})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestHandleSearch_NoHitsIsEmptyList(t *testing.T) {
	s, _ := newTestServer(t)

	_, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "nothing"})

	require.NoError(t, err)
	assert.NotNil(t, out.Hits)
	assert.Empty(t, out.Hits)
}

func TestHandleStatus_FlattensPipeline(t *testing.T) {
	s, _ := newTestServer(t)

	_, out, err := s.handleStatus(context.Background(), nil, EmptyInput{})

	require.NoError(t, err)
	assert.Equal(t, 42, out.PID)
	assert.Equal(t, uint64(7), out.Documents)
	assert.Equal(t, "running", out.State)
	assert.Equal(t, 6, out.Queued)
	assert.Equal(t, 4, out.Uncommitted)
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, TaskOutput{Description: "crawl", Pending: 5, Succeeded: 6, Failed: 1}, out.Tasks[0])
}

func TestHandleEnqueue_ValidatesBeforeForwarding(t *testing.T) {
	// Given: a server
	s, fb := newTestServer(t)

	// When: enqueuing with a bad priority
	_, _, err := s.handleEnqueue(context.Background(), nil, EnqueueInput{IDs: []string{"file:a"}, Priority: "urgent"})

	// Then: the call is rejected locally
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Empty(t, fb.enqueued)

	// When: enqueuing valid ids
	_, out, err := s.handleEnqueue(context.Background(), nil, EnqueueInput{IDs: []string{"file:a", "file:b"}, Priority: "alert"})

	// Then: they reach the backend
	require.NoError(t, err)
	assert.Equal(t, AckOutput{OK: true, Queued: 2}, out)
	require.Len(t, fb.enqueued, 1)
	assert.Equal(t, "alert", fb.enqueued[0].Priority)
}

func TestHandleDelete_RequiresTarget(t *testing.T) {
	s, fb := newTestServer(t)

	_, _, err := s.handleDelete(context.Background(), nil, DeleteInput{})
	assert.Error(t, err)

	_, out, err := s.handleDelete(context.Background(), nil, DeleteInput{Container: "docs"})
	require.NoError(t, err)
	assert.True(t, out.OK)
	require.Len(t, fb.deleted, 1)
	assert.Equal(t, "docs", fb.deleted[0].Container)
}

func TestControlTools_Forward(t *testing.T) {
	s, fb := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handlePause(ctx, nil, EmptyInput{})
	require.NoError(t, err)
	_, _, err = s.handleResume(ctx, nil, EmptyInput{})
	require.NoError(t, err)
	_, out, err := s.handleCommit(ctx, nil, EmptyInput{})
	require.NoError(t, err)

	assert.True(t, out.OK)
	assert.Equal(t, []string{"pause", "resume", "commit"}, fb.calls)
}

func TestHandleStats_FlattensSnapshot(t *testing.T) {
	s, _ := newTestServer(t)

	_, out, err := s.handleStats(context.Background(), nil, StatsInput{Top: 5})

	require.NoError(t, err)
	assert.Equal(t, int64(4), out.Queries)
	assert.Equal(t, 25.0, out.ZeroResultPercent)
	assert.Equal(t, []string{"fox"}, out.TopTerms)
	assert.Equal(t, int64(4), out.Latency["p10"])
}

func TestHandlers_MapBackendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"shutting down", &daemon.Error{Code: daemon.ErrCodeShuttingDown, Message: "bye"}, ErrCodeShuttingDown},
		{"invalid params", &daemon.Error{Code: daemon.ErrCodeInvalidParams, Message: "bad"}, ErrCodeInvalidParams},
		{"operation failed", &daemon.Error{Code: daemon.ErrCodeOperationFailed, Message: "boom"}, ErrCodeDaemonFailed},
		{"unreachable", errors.New("dial unix: no such file"), ErrCodeDaemonNotReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fb := newTestServer(t)
			fb.err = tt.err

			_, _, err := s.handleStatus(context.Background(), nil, EmptyInput{})

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}
