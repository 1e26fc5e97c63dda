// Package lockfile provides a cross-process advisory lock backed by flock(2),
// used to serialize textual-mirror import/export across processes sharing a
// workspace (section 5).
package lockfile

import (
	"fmt"
	"os"
	"time"
)

// Lock represents a held advisory lock on a file.
type Lock struct {
	file *os.File
	path string
}

// Acquire opens (creating if necessary) the file at path and takes an
// exclusive, non-blocking flock on it, retrying with a short fixed backoff
// until timeout elapses. The caller's own PID is recorded in the file for
// diagnostics, mirroring the daemon lock's convention.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
		if err != nil {
			return nil, fmt.Errorf("cannot open lock file %s: %w", path, err)
		}

		err = flockExclusive(f)
		if err == nil {
			_ = f.Truncate(0)
			_, _ = f.Seek(0, 0)
			_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Sync()
			return &Lock{file: f, path: path}, nil
		}
		_ = f.Close()

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out acquiring lock %s: %w", path, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Release releases the lock. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
