package server

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// AlreadyRunningError means another live daemon owns the pid file.
type AlreadyRunningError struct {
	PID  int
	Path string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("daemon already running with pid %d (per %s)", e.PID, e.Path)
}

// PIDFile is single-instance enforcement: the file holds the owning
// daemon's pid as decimal text.
type PIDFile struct {
	path string
}

// AcquirePIDFile claims path for this process. A file naming a live
// process is a hard error; a stale or unreadable one is reclaimed.
func AcquirePIDFile(path string, logger *slog.Logger) (*PIDFile, error) {
	if data, err := os.ReadFile(path); err == nil {
		pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if convErr == nil && pidAlive(pid) {
			return nil, &AlreadyRunningError{PID: pid, Path: path}
		}
		logger.Warn("reclaiming stale pid file", "path", path, "contents", strings.TrimSpace(string(data)))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create pid dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("write pid file %s: %w", path, err)
	}
	return &PIDFile{path: path}, nil
}

// Release removes the pid file. Safe to call once during shutdown.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file %s: %w", p.path, err)
	}
	return nil
}

// pidAlive probes with signal 0. EPERM means the process exists but
// belongs to someone else, which still counts as alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
