package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	release, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, lockFileName)); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}

	release()

	if _, err := os.Stat(filepath.Join(dir, lockFileName)); !os.IsNotExist(err) {
		t.Fatalf("expected lock file to be removed after release, got err=%v", err)
	}

	// release is safe to call more than once.
	release()
}

func TestAcquireFailsWhileHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()

	release, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	_, err = Acquire(dir)
	if err == nil {
		t.Fatalf("expected second Acquire to fail while the first holds the lock")
	}

	if _, ok := err.(*ErrHeld); !ok {
		t.Errorf("expected *ErrHeld, got %T: %v", err, err)
	}
}

func TestAcquireReclaimsStaleLockFromDeadProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, lockFileName)

	// PID 1<<30 is not a real process on any system this test runs on.
	stale := holder{PID: 1 << 30, At: time.Now().UTC().Add(-time.Hour)}
	data, err := json.Marshal(stale)
	if err != nil {
		t.Fatalf("marshal stale holder: %v", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write stale lock file: %v", err)
	}

	release, err := Acquire(dir)
	if err != nil {
		t.Fatalf("expected Acquire to reclaim the stale lock, got: %v", err)
	}

	release()
}

func TestAcquireReclaimsUnparsableLockFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, lockFileName)

	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("write garbage lock file: %v", err)
	}

	release, err := Acquire(dir)
	if err != nil {
		t.Fatalf("expected Acquire to reclaim the unparsable lock, got: %v", err)
	}

	release()
}
