package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/ftsindex/internal/store"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	// StatusPass means the check passed.
	StatusPass CheckStatus = iota
	// StatusWarn is a non-critical problem.
	StatusWarn
	// StatusFail means the check failed.
	StatusFail
)

// String returns PASS, WARN or FAIL.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name for --json output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult is the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Target names the on-disk state to check.
type Target struct {
	DataDir      string
	IndexPath    string
	DatabasePath string
}

// Checker runs the checks.
type Checker struct {
	verbose  bool
	output   io.Writer
	minDisk  uint64
	minFiles uint64
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets where PrintResults writes.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// WithMinDiskSpace overrides MinDiskSpaceBytes.
func WithMinDiskSpace(bytes uint64) Option {
	return func(c *Checker) { c.minDisk = bytes }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		output:   os.Stdout,
		minDisk:  MinDiskSpaceBytes,
		minFiles: MinFileDescriptors,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against t.
func (c *Checker) RunAll(ctx context.Context, t Target) []CheckResult {
	results := []CheckResult{
		c.CheckWritePermissions(t.DataDir),
		c.CheckDiskSpace(t.DataDir),
		c.CheckFileDescriptors(),
	}
	if ctx.Err() != nil {
		return results
	}
	if t.IndexPath != "" {
		results = append(results, c.CheckIndex(t.IndexPath))
	}
	if t.DatabasePath != "" {
		results = append(results, c.CheckDatabase(t.DatabasePath))
	}
	return results
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns ready, ready_with_warnings or failed.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes one line per check and a summary.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "ftsindex system check")
	_, _ = fmt.Fprintln(c.output)
	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (c.verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}
	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))
}

// CheckWritePermissions creates the data directory if needed and writes a scratch file in it.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{Name: "write_permissions", Required: true}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}
	scratch := filepath.Join(dir, ".ftsindex-preflight")
	f, err := os.Create(scratch)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(scratch)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckIndex validates an existing search index. A corrupt index is rebuilt
// on open, so it only warns.
func (c *Checker) CheckIndex(path string) CheckResult {
	result := CheckResult{Name: "search_index"}
	if err := store.CheckIndexIntegrity(path); err != nil {
		result.Status = StatusWarn
		result.Message = "corrupt, will be rebuilt"
		result.Details = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckDatabase validates an existing side-table database.
func (c *Checker) CheckDatabase(path string) CheckResult {
	result := CheckResult{Name: "database"}
	if err := store.CheckSQLiteIntegrity(path); err != nil {
		result.Status = StatusWarn
		result.Message = "corrupt, will be recreated"
		result.Details = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = "OK"
	return result
}
