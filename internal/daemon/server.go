package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
	"github.com/Aman-CERP/ftsindex/internal/index"
	"github.com/Aman-CERP/ftsindex/internal/store"
)

// Handler executes control requests.
type Handler interface {
	Status(ctx context.Context) (StatusResult, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Commit(ctx context.Context) error
	Clear(ctx context.Context) error
	Enqueue(ctx context.Context, ids []string, pri index.Priority) int
	Delete(ctx context.Context, p DeleteParams, pri index.Priority) int
	Search(ctx context.Context, query string, limit int) ([]store.Hit, error)
	Stats(ctx context.Context, top int) (StatsResult, error)
	AddParticipants(ctx context.Context, p ParticipantsParams) int
	IsParticipant(ctx context.Context, id string) (bool, error)
}

// Server listens on a Unix socket and answers one request per connection.
type Server struct {
	socketPath string
	handler    Handler
	timeout    time.Duration
	grace      time.Duration

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for handler on socketPath.
func NewServer(socketPath string, handler Handler, cfg Config) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		timeout:    cfg.Timeout,
		grace:      cfg.ShutdownGracePeriod,
	}
}

// ListenAndServe accepts connections until ctx ends, then waits up to the
// grace period for open connections. It returns ctx.Err() after a clean stop.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// a stale socket from a crashed daemon; the PID lock already proved it dead
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	defer func() { _ = os.Remove(s.socketPath) }()

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	slog.Info("control socket listening", slog.String("socket", s.socketPath))

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closing() {
				break
			}
			slog.Error("accept failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.waitConnections()
	return ctx.Err()
}

func (s *Server) waitConnections() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.grace):
		slog.Warn("control connections still open after grace period", slog.Duration("grace", s.grace))
	}
}

func (s *Server) closing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return nil
	}
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		slog.Warn("failed to set connection deadline", slog.String("error", err.Error()))
	}

	enc := json.NewEncoder(conn)
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = enc.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		_ = enc.Encode(NewErrorResponse(req.ID, ErrCodeInvalidRequest, "invalid JSON-RPC 2.0 request"))
		return
	}

	// requests outlive a daemon shutdown signal only until the deadline
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	resp := s.handleRequest(reqCtx, req)
	slog.Debug("control request",
		slog.String("method", req.Method),
		slog.String("id", req.ID),
		slog.Bool("ok", resp.Error == nil))
	_ = enc.Encode(resp)
}

// handleRequest dispatches a request to the handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		st, err := s.handler.Status(ctx)
		if err != nil {
			return operationError(req.ID, err)
		}
		return NewSuccessResponse(req.ID, st)

	case MethodPause:
		return ack(req.ID, s.handler.Pause(ctx))
	case MethodResume:
		return ack(req.ID, s.handler.Resume(ctx))
	case MethodCommit:
		return ack(req.ID, s.handler.Commit(ctx))
	case MethodClear:
		return ack(req.ID, s.handler.Clear(ctx))

	case MethodEnqueue:
		var p EnqueueParams
		if resp, ok := decodeParams(req, &p); !ok {
			return resp
		}
		pri, err := p.Validate()
		if err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		n := s.handler.Enqueue(ctx, p.IDs, pri)
		return NewSuccessResponse(req.ID, AckResult{OK: true, Queued: n})

	case MethodDelete:
		var p DeleteParams
		if resp, ok := decodeParams(req, &p); !ok {
			return resp
		}
		pri, err := p.Validate()
		if err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		n := s.handler.Delete(ctx, p, pri)
		return NewSuccessResponse(req.ID, AckResult{OK: true, Queued: n})

	case MethodSearch:
		var p SearchParams
		if resp, ok := decodeParams(req, &p); !ok {
			return resp
		}
		if err := p.Validate(); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		hits, err := s.handler.Search(ctx, p.Query, p.Limit)
		if err != nil {
			return operationError(req.ID, err)
		}
		return NewSuccessResponse(req.ID, SearchResult{Hits: hits})

	case MethodStats:
		var p StatsParams
		if len(req.Params) > 0 {
			if resp, ok := decodeParams(req, &p); !ok {
				return resp
			}
		}
		st, err := s.handler.Stats(ctx, p.Top)
		if err != nil {
			return operationError(req.ID, err)
		}
		return NewSuccessResponse(req.ID, st)

	case MethodParticipants:
		var p ParticipantsParams
		if resp, ok := decodeParams(req, &p); !ok {
			return resp
		}
		if err := p.Validate(); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		n := s.handler.AddParticipants(ctx, p)
		return NewSuccessResponse(req.ID, AckResult{OK: true, Queued: n})

	case MethodIsParticipant:
		var p IsParticipantParams
		if resp, ok := decodeParams(req, &p); !ok {
			return resp
		}
		if strings.TrimSpace(p.ID) == "" {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, "id is required")
		}
		known, err := s.handler.IsParticipant(ctx, p.ID)
		if err != nil {
			return operationError(req.ID, err)
		}
		return NewSuccessResponse(req.ID, IsParticipantResult{Known: known})

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func decodeParams(req Request, v any) (Response, bool) {
	if len(req.Params) == 0 {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "params are required"), false
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params"), false
	}
	return Response{}, true
}

func ack(id string, err error) Response {
	if err != nil {
		return operationError(id, err)
	}
	return NewSuccessResponse(id, AckResult{OK: true})
}

// operationError maps a handler error, keeping the ftsindex error code in Data.
func operationError(id string, err error) Response {
	code := ErrCodeOperationFailed
	if errors.Is(err, fterrors.ErrShuttingDown) {
		code = ErrCodeShuttingDown
	}
	resp := NewErrorResponse(id, code, err.Error())
	resp.Error.Data = fterrors.GetCode(err)
	return resp
}
