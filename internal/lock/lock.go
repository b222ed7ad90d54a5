// Package lock provides PID lock files so that two processes do not edit
// the same draft at once.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld is returned by Acquire when a running process owns the lock.
var ErrHeld = errors.New("lock held")

// Acquire creates the lock file at path holding the current PID. A lock
// left behind by a process that is no longer running is taken over.
// The returned func releases the lock.
func Acquire(path string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("writing lock: %w", werr)
			}
			return func() error { return Release(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock: %w", err)
		}

		held, pid, err := IsHeld(path)
		if err != nil {
			return nil, err
		}
		if held {
			return nil, fmt.Errorf("%w by PID %d (%s)", ErrHeld, pid, path)
		}
		// stale
		if err := Release(path); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrHeld, path)
}

// Release removes the lock file.
func Release(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsHeld checks if the lock is currently held by a running process.
func IsHeld(path string) (bool, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0, nil
	}
	if isProcessRunning(pid) {
		return true, pid, nil
	}
	return false, pid, nil
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
