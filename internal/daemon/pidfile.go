package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
)

// ErrPIDFileNotFound is returned when the PID file doesn't exist.
var ErrPIDFileNotFound = errors.New("PID file not found")

// PIDFile records the daemon's process id. The exclusive lock on path+".lock"
// is what decides ownership; the PID itself is informational.
type PIDFile struct {
	path string
	lock *flock.Flock
}

// NewPIDFile creates a PIDFile for path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the PID file path.
func (p *PIDFile) Path() string { return p.path }

// Acquire takes the lock and writes the current PID. It fails with
// ErrCodeDaemonRunning when another process holds the lock.
func (p *PIDFile) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}

	ok, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock PID file: %w", err)
	}
	if !ok {
		e := fterrors.New(fterrors.ErrCodeDaemonRunning, "another ftsindex daemon owns this index", nil).
			WithDetail("pid_file", p.path)
		if pid, err := p.Read(); err == nil {
			e = e.WithDetail("pid", strconv.Itoa(pid))
		}
		return e
	}

	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = p.lock.Unlock()
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Release removes the PID file and drops the lock. Safe to call when not held.
func (p *PIDFile) Release() error {
	if !p.lock.Locked() {
		return nil
	}
	err := p.Remove()
	if uerr := p.lock.Unlock(); uerr != nil && err == nil {
		err = fmt.Errorf("failed to unlock PID file: %w", uerr)
	}
	return err
}

// Read returns the recorded PID.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return 0, ErrPIDFileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether some process, this one included, holds the lock.
func (p *PIDFile) IsRunning() bool {
	if p.lock.Locked() {
		return true
	}
	trial := flock.New(p.lock.Path())
	ok, err := trial.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = trial.Unlock()
		return false
	}
	return true
}

// Signal sends sig to the recorded process.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return fmt.Errorf("failed to read PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}
