package daemon

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
	"github.com/Aman-CERP/ftsindex/internal/index"
	"github.com/Aman-CERP/ftsindex/internal/store"
)

// shortDir returns a directory whose socket paths stay under the sun_path limit.
func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ftsd")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

type memResource struct {
	name string
	body string
}

func (r memResource) Name() string { return r.name }
func (r memResource) Exists() bool { return true }

// memDocs is a "mem:" resolver over an in-memory map.
type memDocs struct {
	mu   sync.Mutex
	docs map[string]string
}

func (m *memDocs) Resolve(_ context.Context, rest string) (index.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.docs[rest]
	if !ok {
		return nil, nil
	}
	return memResource{name: rest, body: body}, nil
}

type fixture struct {
	cfg    Config
	client *Client
	engine *store.BleveEngine
	svc    *index.Service
	purged chan struct{}
	cancel context.CancelFunc
	done   chan error
}

// startDaemon runs a daemon over a real service and in-memory index.
func startDaemon(t *testing.T, docs map[string]string) *fixture {
	t.Helper()

	engine, err := store.OpenBleveEngine("")
	require.NoError(t, err)
	db, err := store.OpenSQLite("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	participants, err := store.NewParticipantStore(db)
	require.NoError(t, err)

	pre := index.PreprocessorFunc(func(_ context.Context, _ string, r index.Resource) (index.Document, error) {
		mr := r.(memResource)
		return index.Document{store.FieldTitle: mr.name, store.FieldBody: mr.body, store.FieldContainer: "mem"}, nil
	})
	svc, err := index.NewService(index.Options{
		Config:          index.Config{CommitInterval: 50 * time.Millisecond, ItemPollTimeout: 20 * time.Millisecond, RunPollTimeout: 20 * time.Millisecond},
		Engine:          engine,
		Preprocessor:    pre,
		ParticipantSink: participants,
	})
	require.NoError(t, err)
	svc.AddResourceResolver("mem", &memDocs{docs: docs})

	dir := shortDir(t)
	cfg := DefaultConfig(dir)
	cfg.Timeout = 5 * time.Second
	cfg.ShutdownGracePeriod = 2 * time.Second
	cfg.MaintenanceInterval = 20 * time.Millisecond

	purged := make(chan struct{}, 16)
	d, err := New(Options{
		Config:       cfg,
		Root:         dir,
		Pipeline:     svc,
		Searcher:     engine,
		Participants: participants,
		Maintenance: func(context.Context) error {
			select {
			case purged <- struct{}{}:
			default:
			}
			return nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{cfg: cfg, client: NewClient(cfg), engine: engine, svc: svc, purged: purged, cancel: cancel, done: make(chan error, 1)}
	go func() { f.done <- d.Run(ctx) }()
	t.Cleanup(func() { f.stop(t) })

	require.Eventually(t, f.client.IsRunning, 3*time.Second, 10*time.Millisecond, "daemon did not start")
	return f
}

func (f *fixture) stop(t *testing.T) {
	t.Helper()
	if f.cancel == nil {
		return
	}
	f.cancel()
	f.cancel = nil
	select {
	case err := <-f.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

// searchCount commits and returns the hit count for q.
func (f *fixture) searchCount(t *testing.T, q string) int {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.client.Commit(ctx))
	res, err := f.client.Search(ctx, SearchParams{Query: q})
	require.NoError(t, err)
	return len(res.Hits)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/p/.ftsindex")

	assert.Equal(t, "/p/.ftsindex/ftsindex.sock", cfg.SocketPath)
	assert.Equal(t, "/p/.ftsindex/ftsindex.pid", cfg.PIDPath)
	assert.Equal(t, 24*time.Hour, cfg.MaintenanceInterval)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty socket", func(c *Config) { c.SocketPath = "" }},
		{"empty pid", func(c *Config) { c.PIDPath = "" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero grace", func(c *Config) { c.ShutdownGracePeriod = 0 }},
		{"negative maintenance", func(c *Config) { c.MaintenanceInterval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(t.TempDir())
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{Config: DefaultConfig(t.TempDir())})
	require.Error(t, err)
}

func TestDaemon_EnqueueSearchDelete(t *testing.T) {
	// Given: a running daemon with two resolvable documents
	f := startDaemon(t, map[string]string{
		"a": "the quick brown fox",
		"b": "lazy dogs sleep",
	})
	ctx := context.Background()

	// When: both are enqueued
	n, err := f.client.Enqueue(ctx, EnqueueParams{IDs: []string{"mem:a", "mem:b"}, Priority: "item"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Then: they become searchable
	require.Eventually(t, func() bool {
		return f.searchCount(t, "fox") == 1 && f.searchCount(t, "dogs") == 1
	}, 3*time.Second, 20*time.Millisecond)

	st, err := f.client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, "running", st.Pipeline.State)
	assert.EqualValues(t, 2, st.Documents)

	// When: one is deleted
	n, err = f.client.Delete(ctx, DeleteParams{IDs: []string{"mem:a"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Then: it disappears and the other remains
	require.Eventually(t, func() bool { return f.searchCount(t, "fox") == 0 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, f.searchCount(t, "dogs"))
}

func TestDaemon_DeleteContainerAndClear(t *testing.T) {
	f := startDaemon(t, map[string]string{"a": "alpha", "b": "alpha beta"})
	ctx := context.Background()

	_, err := f.client.Enqueue(ctx, EnqueueParams{IDs: []string{"mem:a", "mem:b"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.searchCount(t, "alpha") == 2 }, 3*time.Second, 20*time.Millisecond)

	// container delete runs as a background runnable
	n, err := f.client.Delete(ctx, DeleteParams{Container: "mem"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Eventually(t, func() bool { return f.searchCount(t, "alpha") == 0 }, 3*time.Second, 20*time.Millisecond)

	// re-add and clear synchronously
	_, err = f.client.Enqueue(ctx, EnqueueParams{IDs: []string{"mem:b"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.searchCount(t, "beta") == 1 }, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, f.client.Clear(ctx))
	assert.Equal(t, 0, f.searchCount(t, "beta"))
}

func TestDaemon_PauseResume(t *testing.T) {
	f := startDaemon(t, map[string]string{"a": "paused text"})
	ctx := context.Background()

	// Given: a paused pipeline
	require.NoError(t, f.client.Pause(ctx))
	st, err := f.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "paused", st.Pipeline.State)

	// When: work is enqueued while paused
	_, err = f.client.Enqueue(ctx, EnqueueParams{IDs: []string{"mem:a"}})
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	// Then: nothing is indexed until resume
	assert.Equal(t, 0, f.searchCount(t, "paused"))
	require.NoError(t, f.client.Resume(ctx))
	require.Eventually(t, func() bool { return f.searchCount(t, "paused") == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestDaemon_SchedulesMaintenance(t *testing.T) {
	f := startDaemon(t, nil)

	select {
	case <-f.purged:
	case <-time.After(3 * time.Second):
		t.Fatal("maintenance runnable never ran")
	}
}

func TestDaemon_SecondInstanceRefused(t *testing.T) {
	// Given: a running daemon
	f := startDaemon(t, nil)

	// When: another daemon starts on the same data directory
	engine, err := store.OpenBleveEngine("")
	require.NoError(t, err)
	svc, err := index.NewService(index.Options{Engine: engine})
	require.NoError(t, err)
	d, err := New(Options{Config: f.cfg, Pipeline: svc, Searcher: engine})
	require.NoError(t, err)

	// Then: it fails on the PID lock without touching the socket
	err = d.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, fterrors.ErrCodeDaemonRunning, fterrors.GetCode(err))
	assert.True(t, f.client.IsRunning())
	_ = svc.Shutdown(context.Background())
}

func TestDaemon_StopReleasesResources(t *testing.T) {
	f := startDaemon(t, nil)

	f.stop(t)

	assert.NoFileExists(t, f.cfg.SocketPath)
	assert.NoFileExists(t, f.cfg.PIDPath)
	assert.False(t, NewPIDFile(f.cfg.PIDPath).IsRunning())
	assert.Equal(t, index.StateShuttingDown, f.svc.State())
	assert.False(t, f.client.IsRunning())
}

func TestClient_ValidatesBeforeSending(t *testing.T) {
	c := NewClient(DefaultConfig(shortDir(t)))
	ctx := context.Background()

	_, err := c.Enqueue(ctx, EnqueueParams{})
	assert.ErrorContains(t, err, "ids is required")
	_, err = c.Enqueue(ctx, EnqueueParams{IDs: []string{"mem:a"}, Priority: "commit"})
	assert.ErrorContains(t, err, "unknown priority")
	_, err = c.Delete(ctx, DeleteParams{})
	assert.ErrorContains(t, err, "ids or container")
	_, err = c.Search(ctx, SearchParams{Query: "  "})
	assert.ErrorContains(t, err, "query is required")
}

func TestClient_NotRunning(t *testing.T) {
	c := NewClient(DefaultConfig(shortDir(t)))

	assert.False(t, c.IsRunning())
	assert.Error(t, c.Ping(context.Background()))
}

// rawCall sends one hand-written request line and decodes the response.
func rawCall(t *testing.T, socket, line string) Response {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}

func TestServer_ProtocolErrors(t *testing.T) {
	f := startDaemon(t, nil)

	tests := []struct {
		name string
		line string
		code int
	}{
		{"malformed json", `{not json`, ErrCodeParseError},
		{"missing version", `{"method":"ping","id":"1"}`, ErrCodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"explode","id":"1"}`, ErrCodeMethodNotFound},
		{"missing params", `{"jsonrpc":"2.0","method":"enqueue","id":"1"}`, ErrCodeInvalidParams},
		{"bad params", `{"jsonrpc":"2.0","method":"search","params":{"query":""},"id":"1"}`, ErrCodeInvalidParams},
		{"bad priority", `{"jsonrpc":"2.0","method":"delete","params":{"ids":["x"],"priority":"soon"},"id":"1"}`, ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rawCall(t, f.cfg.SocketPath, tt.line)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	resp := rawCall(t, f.cfg.SocketPath, `{"jsonrpc":"2.0","method":"ping","id":"p-1"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, "p-1", resp.ID)
	assert.JSONEq(t, `{"pong":true}`, string(resp.Result))
}

func TestOperationError_MapsShutdown(t *testing.T) {
	resp := operationError("1", fterrors.ErrShuttingDown)
	assert.Equal(t, ErrCodeShuttingDown, resp.Error.Code)
	assert.Equal(t, fterrors.ErrCodeShuttingDown, resp.Error.Data)

	resp = operationError("2", fterrors.StorageError("disk full", nil))
	assert.Equal(t, ErrCodeOperationFailed, resp.Error.Code)
	assert.True(t, strings.HasPrefix(resp.Error.Data, "ERR_"))
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ftsindex.pid")

	// Given: a held PID file
	owner := NewPIDFile(path)
	require.NoError(t, owner.Acquire())
	pid, err := owner.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// Then: other handles see it running and cannot acquire it
	other := NewPIDFile(path)
	assert.True(t, other.IsRunning())
	err = other.Acquire()
	require.Error(t, err)
	assert.Equal(t, fterrors.ErrCodeDaemonRunning, fterrors.GetCode(err))

	// When: released
	require.NoError(t, owner.Release())
	require.NoError(t, owner.Release())

	// Then: the file is gone and the lock is free
	_, err = other.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)
	assert.False(t, other.IsRunning())
	require.NoError(t, other.Acquire())
	require.NoError(t, other.Release())
}

func TestPIDFile_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ftsindex.pid")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))

	_, err := NewPIDFile(path).Read()
	assert.ErrorContains(t, err, "invalid PID")
}

func TestDaemon_StatsRecordSearches(t *testing.T) {
	// Given: a daemon with one indexed document
	f := startDaemon(t, map[string]string{"a": "the quick brown fox"})
	ctx := context.Background()
	_, err := f.client.Enqueue(ctx, EnqueueParams{IDs: []string{"mem:a"}, Priority: "item"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.searchCount(t, "fox") == 1 }, 3*time.Second, 20*time.Millisecond)

	// When: a query that finds nothing runs as well
	assert.Zero(t, f.searchCount(t, "walrus"))
	st, err := f.client.Stats(ctx, 5)

	// Then: both show up in the statistics
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.Queries, int64(2))
	assert.GreaterOrEqual(t, st.ZeroResults, int64(1))
	assert.Contains(t, st.RecentZeroResults, "walrus")
	assert.Greater(t, st.ZeroResultPercent, 0.0)
	var terms []string
	for _, tc := range st.TopTerms {
		terms = append(terms, tc.Term)
	}
	assert.Contains(t, terms, "fox")
}

func TestDaemon_Participants(t *testing.T) {
	// Given: a running daemon backed by a participant store
	f := startDaemon(t, nil)
	ctx := context.Background()

	// When: participant ids are recorded for a container
	n, err := f.client.AddParticipants(ctx, ParticipantsParams{Container: "chat-1", IDs: []string{"alice", "bob"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Then: they become known once the run stage drains its queue
	require.Eventually(t, func() bool {
		known, err := f.client.IsParticipant(ctx, "alice")
		return err == nil && known
	}, 3*time.Second, 20*time.Millisecond)

	known, err := f.client.IsParticipant(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestParticipantsParams_Validate(t *testing.T) {
	assert.Error(t, ParticipantsParams{IDs: []string{"a"}}.Validate())
	assert.Error(t, ParticipantsParams{Container: "c"}.Validate())
	assert.Error(t, ParticipantsParams{Container: "c", IDs: []string{" "}}.Validate())
	assert.NoError(t, ParticipantsParams{Container: "c", IDs: []string{"a"}}.Validate())
}
