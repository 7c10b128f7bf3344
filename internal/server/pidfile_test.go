package server

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAcquireWritesOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "d.pid")

	pf, err := AcquirePIDFile(path, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file = %q", data)
	}

	if err := pf.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pid file still present after release")
	}
}

func TestAcquireRefusesLivePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.pid")
	// Our own pid is definitely alive.
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := AcquirePIDFile(path, discardLogger())
	var running *AlreadyRunningError
	if !errors.As(err, &running) {
		t.Fatalf("err = %v, want AlreadyRunningError", err)
	}
	if running.PID != os.Getpid() {
		t.Errorf("reported pid = %d", running.PID)
	}
}

func TestAcquireReclaimsStalePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.pid")
	// Kernel pids cap out well below this.
	if err := os.WriteFile(path, []byte("99999999"), 0600); err != nil {
		t.Fatal(err)
	}

	pf, err := AcquirePIDFile(path, discardLogger())
	if err != nil {
		t.Fatalf("stale pid not reclaimed: %v", err)
	}
	defer pf.Release()

	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file = %q after reclaim", data)
	}
}

func TestAcquireReclaimsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.pid")
	if err := os.WriteFile(path, []byte("not a pid\n"), 0600); err != nil {
		t.Fatal(err)
	}

	pf, err := AcquirePIDFile(path, discardLogger())
	if err != nil {
		t.Fatalf("garbage pid file not reclaimed: %v", err)
	}
	defer pf.Release()
}

func TestReleaseTwiceIsSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.pid")
	pf, err := AcquirePIDFile(path, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := pf.Release(); err != nil {
		t.Fatal(err)
	}
	if err := pf.Release(); err != nil {
		t.Errorf("second release errored: %v", err)
	}
}
