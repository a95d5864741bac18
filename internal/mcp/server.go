package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/ftsindex/internal/daemon"
	"github.com/Aman-CERP/ftsindex/internal/store"
	"github.com/Aman-CERP/ftsindex/pkg/version"
)

// Backend is the daemon control surface the tools call into.
type Backend interface {
	Status(ctx context.Context) (*daemon.StatusResult, error)
	Enqueue(ctx context.Context, params daemon.EnqueueParams) (int, error)
	Delete(ctx context.Context, params daemon.DeleteParams) (int, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Commit(ctx context.Context) error
	Search(ctx context.Context, params daemon.SearchParams) (*daemon.SearchResult, error)
	Stats(ctx context.Context, top int) (*daemon.StatsResult, error)
}

var _ Backend = (*daemon.Client)(nil)

// Server exposes Backend as MCP tools.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	tools   []ToolInfo
}

// ToolInfo names a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// SearchInput is the search tool input.
type SearchInput struct {
	Query string `json:"query" jsonschema:"query-string query, e.g. 'fox +title:quick container:docs'"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchOutput is the search tool output.
type SearchOutput struct {
	Hits []store.Hit `json:"hits" jsonschema:"matching committed documents, best first"`
}

// EmptyInput is the input of tools without arguments.
type EmptyInput struct{}

// StatusOutput is the status tool output.
type StatusOutput struct {
	PID         int          `json:"pid"`
	Uptime      string       `json:"uptime"`
	Root        string       `json:"root"`
	Documents   uint64       `json:"documents"`
	State       string       `json:"state"`
	Busy        bool         `json:"busy"`
	Queued      int          `json:"queued" jsonschema:"items waiting in the run, item and index queues"`
	Uncommitted int          `json:"uncommitted"`
	Tasks       []TaskOutput `json:"tasks"`
}

// TaskOutput summarizes one active task.
type TaskOutput struct {
	Description string `json:"description"`
	Pending     int    `json:"pending"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
}

// EnqueueInput is the enqueue tool input.
type EnqueueInput struct {
	IDs      []string `json:"ids" jsonschema:"identifiers to (re)index, e.g. file:docs/readme.md"`
	Priority string   `json:"priority,omitempty" jsonschema:"alert, item, group, bulk, background, crawl or idle; default bulk"`
}

// DeleteInput is the delete tool input.
type DeleteInput struct {
	IDs       []string `json:"ids,omitempty" jsonschema:"identifiers whose documents to remove"`
	Container string   `json:"container,omitempty" jsonschema:"remove every document in this container"`
}

// AckOutput acknowledges a control tool.
type AckOutput struct {
	OK     bool `json:"ok"`
	Queued int  `json:"queued,omitempty"`
}

// StatsInput is the stats tool input.
type StatsInput struct {
	Top int `json:"top,omitempty" jsonschema:"number of top terms, default 10"`
}

// StatsOutput is the stats tool output.
type StatsOutput struct {
	Queries           int64            `json:"queries"`
	ZeroResults       int64            `json:"zero_results"`
	ZeroResultPercent float64          `json:"zero_result_percent"`
	TopTerms          []string         `json:"top_terms"`
	RecentZeroResults []string         `json:"recent_zero_results"`
	Latency           map[string]int64 `json:"latency" jsonschema:"searches per latency bucket"`
}

// NewServer creates the MCP server and registers its tools.
func NewServer(backend Backend) (*Server, error) {
	if backend == nil {
		return nil, errors.New("mcp server requires a backend")
	}
	s := &Server{
		backend: backend,
		mcp:     mcp.NewServer(&mcp.Implementation{Name: "ftsindex", Version: version.Version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Tools lists the registered tools.
func (s *Server) Tools() []ToolInfo { return s.tools }

func (s *Server) registerTools() {
	add := func(name, desc string) *mcp.Tool {
		s.tools = append(s.tools, ToolInfo{Name: name, Description: desc})
		return &mcp.Tool{Name: name, Description: desc}
	}

	mcp.AddTool(s.mcp, add("search", "Search committed documents with a query-string query."), s.handleSearch)
	mcp.AddTool(s.mcp, add("status", "Show the daemon and indexing pipeline status."), s.handleStatus)
	mcp.AddTool(s.mcp, add("enqueue", "Queue identifiers for (re)indexing."), s.handleEnqueue)
	mcp.AddTool(s.mcp, add("delete", "Remove documents by identifier or by container."), s.handleDelete)
	mcp.AddTool(s.mcp, add("pause", "Pause the pipeline after a commit."), s.handlePause)
	mcp.AddTool(s.mcp, add("resume", "Resume a paused pipeline."), s.handleResume)
	mcp.AddTool(s.mcp, add("commit", "Commit pending writes so they become searchable."), s.handleCommit)
	mcp.AddTool(s.mcp, add("stats", "Show search statistics: volume, latency, top terms, empty searches."), s.handleStats)

	slog.Debug("MCP tools registered", slog.Int("count", len(s.tools)))
}

// Run serves over stdio until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("MCP server starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	slog.Info("MCP server stopped")
	return nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	res, err := s.backend.Search(ctx, daemon.SearchParams{Query: in.Query, Limit: in.Limit})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	out := SearchOutput{Hits: res.Hits}
	if out.Hits == nil {
		out.Hits = []store.Hit{}
	}
	return nil, out, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, StatusOutput, error) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, StatusOutput{}, MapError(err)
	}
	pl := st.Pipeline
	out := StatusOutput{
		PID:         st.PID,
		Uptime:      st.Uptime,
		Root:        st.Root,
		Documents:   st.Documents,
		State:       pl.State,
		Busy:        pl.Busy,
		Queued:      pl.RunQueue + pl.ItemQueue + pl.IndexQueue,
		Uncommitted: pl.PendingCommit,
		Tasks:       make([]TaskOutput, 0, len(pl.Tasks)),
	}
	for _, t := range pl.Tasks {
		out.Tasks = append(out.Tasks, TaskOutput{
			Description: t.Description,
			Pending:     t.Pending,
			Succeeded:   t.Succeeded,
			Failed:      t.Failed,
		})
	}
	return nil, out, nil
}

func (s *Server) handleEnqueue(ctx context.Context, _ *mcp.CallToolRequest, in EnqueueInput) (*mcp.CallToolResult, AckOutput, error) {
	params := daemon.EnqueueParams{IDs: in.IDs, Priority: in.Priority}
	if _, err := params.Validate(); err != nil {
		return nil, AckOutput{}, NewInvalidParamsError(err.Error())
	}
	n, err := s.backend.Enqueue(ctx, params)
	if err != nil {
		return nil, AckOutput{}, MapError(err)
	}
	return nil, AckOutput{OK: true, Queued: n}, nil
}

func (s *Server) handleDelete(ctx context.Context, _ *mcp.CallToolRequest, in DeleteInput) (*mcp.CallToolResult, AckOutput, error) {
	params := daemon.DeleteParams{IDs: in.IDs, Container: in.Container}
	if _, err := params.Validate(); err != nil {
		return nil, AckOutput{}, NewInvalidParamsError(err.Error())
	}
	n, err := s.backend.Delete(ctx, params)
	if err != nil {
		return nil, AckOutput{}, MapError(err)
	}
	return nil, AckOutput{OK: true, Queued: n}, nil
}

func (s *Server) handlePause(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, AckOutput, error) {
	return s.ack(s.backend.Pause(ctx))
}

func (s *Server) handleResume(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, AckOutput, error) {
	return s.ack(s.backend.Resume(ctx))
}

func (s *Server) handleCommit(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, AckOutput, error) {
	return s.ack(s.backend.Commit(ctx))
}

func (s *Server) ack(err error) (*mcp.CallToolResult, AckOutput, error) {
	if err != nil {
		return nil, AckOutput{}, MapError(err)
	}
	return nil, AckOutput{OK: true}, nil
}

func (s *Server) handleStats(ctx context.Context, _ *mcp.CallToolRequest, in StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	res, err := s.backend.Stats(ctx, in.Top)
	if err != nil {
		return nil, StatsOutput{}, MapError(err)
	}
	out := StatsOutput{
		Queries:           res.Queries,
		ZeroResults:       res.ZeroResults,
		ZeroResultPercent: res.ZeroResultPercent,
		TopTerms:          make([]string, 0, len(res.TopTerms)),
		RecentZeroResults: res.RecentZeroResults,
		Latency:           make(map[string]int64, len(res.Latency)),
	}
	for _, tc := range res.TopTerms {
		out.TopTerms = append(out.TopTerms, tc.Term)
	}
	for b, n := range res.Latency {
		out.Latency[string(b)] = n
	}
	return nil, out, nil
}
