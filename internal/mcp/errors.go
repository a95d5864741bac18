// Package mcp serves the daemon's control surface as Model Context Protocol
// tools over stdio, so an assistant can search the index and steer the pipeline.
package mcp

import (
	"errors"
	"fmt"

	"github.com/Aman-CERP/ftsindex/internal/daemon"
)

// Error codes returned to MCP clients.
const (
	ErrCodeDaemonFailed   = -32001
	ErrCodeShuttingDown   = -32002
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeDaemonNotReady = -32004
)

// MCPError is a tool error with a JSON-RPC style code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError reports a bad tool argument.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts a daemon or transport error into an MCPError.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var rpcErr *daemon.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case daemon.ErrCodeInvalidParams:
			return NewInvalidParamsError(rpcErr.Message)
		case daemon.ErrCodeShuttingDown:
			return &MCPError{Code: ErrCodeShuttingDown, Message: "The indexing daemon is shutting down."}
		default:
			return &MCPError{Code: ErrCodeDaemonFailed, Message: rpcErr.Error()}
		}
	}
	return &MCPError{Code: ErrCodeDaemonNotReady, Message: "The indexing daemon did not answer: " + err.Error()}
}
