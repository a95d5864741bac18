package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// Client sends control requests to a running daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for cfg.SocketPath.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{socketPath: cfg.SocketPath, timeout: timeout}
}

// IsRunning reports whether the daemon accepts connections.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	return c.call(ctx, MethodPing, nil, &res)
}

// Status returns the daemon and pipeline status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var res StatusResult
	if err := c.call(ctx, MethodStatus, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Pause stops the pipeline after a commit.
func (c *Client) Pause(ctx context.Context) error { return c.ack(ctx, MethodPause, nil) }

// Resume restarts a paused pipeline.
func (c *Client) Resume(ctx context.Context) error { return c.ack(ctx, MethodResume, nil) }

// Commit forces a commit.
func (c *Client) Commit(ctx context.Context) error { return c.ack(ctx, MethodCommit, nil) }

// Clear empties the index.
func (c *Client) Clear(ctx context.Context) error { return c.ack(ctx, MethodClear, nil) }

// Enqueue submits identifiers for indexing and returns how many were queued.
func (c *Client) Enqueue(ctx context.Context, params EnqueueParams) (int, error) {
	if _, err := params.Validate(); err != nil {
		return 0, fmt.Errorf("invalid params: %w", err)
	}
	var res AckResult
	if err := c.call(ctx, MethodEnqueue, params, &res); err != nil {
		return 0, err
	}
	return res.Queued, nil
}

// Delete removes identifiers or a container and returns how many deletes were queued.
func (c *Client) Delete(ctx context.Context, params DeleteParams) (int, error) {
	if _, err := params.Validate(); err != nil {
		return 0, fmt.Errorf("invalid params: %w", err)
	}
	var res AckResult
	if err := c.call(ctx, MethodDelete, params, &res); err != nil {
		return 0, err
	}
	return res.Queued, nil
}

// Search queries committed documents.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var res SearchResult
	if err := c.call(ctx, MethodSearch, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Stats returns recorded search statistics.
func (c *Client) Stats(ctx context.Context, top int) (*StatsResult, error) {
	var res StatsResult
	if err := c.call(ctx, MethodStats, StatsParams{Top: top}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AddParticipants records participant ids for a container and returns how many were queued.
func (c *Client) AddParticipants(ctx context.Context, params ParticipantsParams) (int, error) {
	if err := params.Validate(); err != nil {
		return 0, fmt.Errorf("invalid params: %w", err)
	}
	var res AckResult
	if err := c.call(ctx, MethodParticipants, params, &res); err != nil {
		return 0, err
	}
	return res.Queued, nil
}

// IsParticipant reports whether id has been recorded in any container.
func (c *Client) IsParticipant(ctx context.Context, id string) (bool, error) {
	var res IsParticipantResult
	if err := c.call(ctx, MethodIsParticipant, IsParticipantParams{ID: id}, &res); err != nil {
		return false, err
	}
	return res.Known, nil
}

func (c *Client) ack(ctx context.Context, method string, params any) error {
	var res AckResult
	return c.call(ctx, method, params, &res)
}

// call performs one request/response exchange on a fresh connection.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	req := Request{JSONRPC: "2.0", Method: method, ID: uuid.NewString()}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = data
	}

	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("failed to receive response: %w", err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s failed: %w", method, resp.Error)
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
