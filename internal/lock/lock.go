// Package lock implements the single-run process exclusion guard: a
// PID-stamped file that prevents two sync cycles from running
// concurrently against the same state directory.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockFileName = "lock"

// holder is the JSON body written into the lock file.
type holder struct {
	PID int       `json:"pid"`
	At  time.Time `json:"at"`
}

// ErrHeld is returned by Acquire when another live process holds the lock.
type ErrHeld struct {
	PID int
	At  time.Time
}

func (e *ErrHeld) Error() string {
	return fmt.Sprintf("sync already running (pid %d, started %s)", e.PID, e.At.Format(time.RFC3339))
}

// Acquire creates the lock file under dir, failing if a live process
// already holds it. A lock file left behind by a dead process is
// reclaimed automatically. The returned release func is safe to call
// more than once and should be deferred immediately.
func Acquire(dir string) (release func(), err error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, lockFileName)

	if err := tryCreate(path); err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file %s: %w", path, err)
		}

		if reclaimErr := reclaimIfStale(path); reclaimErr != nil {
			return nil, reclaimErr
		}

		if err := tryCreate(path); err != nil {
			return nil, fmt.Errorf("create lock file %s after reclaim attempt: %w", path, err)
		}
	}

	released := false
	release = func() {
		if released {
			return
		}

		released = true
		_ = os.Remove(path)
	}

	return release, nil
}

func tryCreate(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	h := holder{PID: os.Getpid(), At: time.Now().UTC()}

	enc := json.NewEncoder(f)
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("write lock file %s: %w", path, err)
	}

	return nil
}

// reclaimIfStale inspects an existing lock file and removes it if its
// holder is unparsable or no longer alive. It returns ErrHeld if the
// holder is confirmed alive.
func reclaimIfStale(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with another process's release; the caller's retry
			// will succeed or fail on its own.
			return nil
		}

		return fmt.Errorf("read lock file %s: %w", path, err)
	}

	var h holder
	if err := json.Unmarshal(data, &h); err != nil {
		// Unparsable lock file: assume abandoned and reclaim it.
		return os.Remove(path)
	}

	if isAlive(h.PID) {
		return &ErrHeld{PID: h.PID, At: h.At}
	}

	return os.Remove(path)
}
