package daemon

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aman-CERP/ftsindex/internal/index"
	"github.com/Aman-CERP/ftsindex/internal/store"
	"github.com/Aman-CERP/ftsindex/internal/telemetry"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing    = "ping"
	MethodStatus  = "status"
	MethodPause   = "pause"
	MethodResume  = "resume"
	MethodCommit  = "commit"
	MethodClear   = "clear"
	MethodEnqueue = "enqueue"
	MethodDelete  = "delete"
	MethodSearch  = "search"
	MethodStats   = "stats"

	MethodParticipants  = "participants"
	MethodIsParticipant = "is_participant"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Daemon-specific error codes.
const (
	ErrCodeOperationFailed = -32001
	ErrCodeShuttingDown    = -32002
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error is a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// Data carries the ftsindex error code when there is one.
	Data string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Data)
	}
	return e.Message
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result")
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// EnqueueParams submits identifiers for (re)indexing.
type EnqueueParams struct {
	IDs []string `json:"ids"`
	// Priority is a priority name; empty means bulk.
	Priority string `json:"priority,omitempty"`
}

// Validate checks the identifiers and parses the priority.
func (p EnqueueParams) Validate() (index.Priority, error) {
	if len(p.IDs) == 0 {
		return 0, fmt.Errorf("ids is required")
	}
	for _, id := range p.IDs {
		if strings.TrimSpace(id) == "" {
			return 0, fmt.Errorf("ids must not contain empty identifiers")
		}
	}
	return index.ParsePriority(p.Priority)
}

// DeleteParams removes documents by identifier or by container.
type DeleteParams struct {
	IDs       []string `json:"ids,omitempty"`
	Container string   `json:"container,omitempty"`
	Priority  string   `json:"priority,omitempty"`
}

// Validate requires ids or a container and parses the priority.
func (p DeleteParams) Validate() (index.Priority, error) {
	if len(p.IDs) == 0 && p.Container == "" {
		return 0, fmt.Errorf("ids or container is required")
	}
	return index.ParsePriority(p.Priority)
}

// SearchParams queries committed documents.
type SearchParams struct {
	Query string `json:"query"`
	// Limit defaults to 10.
	Limit int `json:"limit,omitempty"`
}

// Validate requires a query and defaults the limit.
func (p *SearchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	return nil
}

// SearchResult is the search response.
type SearchResult struct {
	Hits []store.Hit `json:"hits"`
}

// ParticipantsParams records participant ids seen in a container.
type ParticipantsParams struct {
	Container string   `json:"container"`
	IDs       []string `json:"ids"`
}

// Validate requires a container and at least one non-empty id.
func (p ParticipantsParams) Validate() error {
	if strings.TrimSpace(p.Container) == "" {
		return fmt.Errorf("container is required")
	}
	if len(p.IDs) == 0 {
		return fmt.Errorf("ids is required")
	}
	for _, id := range p.IDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("ids must not contain empty identifiers")
		}
	}
	return nil
}

// IsParticipantParams asks whether a participant id is known.
type IsParticipantParams struct {
	ID string `json:"id"`
}

// IsParticipantResult answers is_participant.
type IsParticipantResult struct {
	Known bool `json:"known"`
}

// StatsParams selects how many top terms to return.
type StatsParams struct {
	// Top defaults to 10.
	Top int `json:"top,omitempty"`
}

// StatsResult reports recorded search activity.
type StatsResult struct {
	telemetry.Snapshot
	ZeroResultPercent float64 `json:"zero_result_percent"`
}

// StatusResult describes the daemon and its pipeline.
type StatusResult struct {
	Running   bool         `json:"running"`
	PID       int          `json:"pid"`
	Uptime    string       `json:"uptime"`
	Root      string       `json:"root"`
	Documents uint64       `json:"documents"`
	Pipeline  index.Status `json:"pipeline"`
}

// PingResult is the response to ping.
type PingResult struct {
	Pong bool `json:"pong"`
}

// AckResult acknowledges a control request.
type AckResult struct {
	OK bool `json:"ok"`
	// Queued counts the identifiers handed to the pipeline.
	Queued int `json:"queued,omitempty"`
}
