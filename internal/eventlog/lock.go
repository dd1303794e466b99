package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"entity/internal/domain"
)

// lockFileName is the advisory lock file inside the events/ directory
// (spec §6: "events/.lock — advisory lock file; contents: {owner, pid,
// timestamp_ms}").
const lockFileName = ".lock"

const (
	lockRetryInterval = 50 * time.Millisecond
	lockTimeout       = 5 * time.Second
)

type lockContents struct {
	Owner       string `json:"owner"`
	PID         int    `json:"pid"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// fileLock is an exclusive, cross-process advisory lock on a single file,
// using syscall.Flock the same way internal/chunk/file's store-directory
// lock does, but acquired per critical section (acquire/release, not
// held for the process's lifetime) with retry and staleness detection
// per spec §5.
type fileLock struct {
	path  string
	owner string
	fh    *os.File
}

func newFileLock(dir, owner string) *fileLock {
	return &fileLock{path: filepath.Join(dir, lockFileName), owner: owner}
}

// Acquire blocks (retrying every 50ms) until the lock is obtained or
// lockTimeout elapses, forcibly clearing a stale lock (one whose recorded
// timestamp is older than lockTimeout) before retrying.
func (l *fileLock) Acquire() error {
	deadline := time.Now().Add(lockTimeout)
	for {
		fh, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return domain.NewError(domain.KindLogIo, "open lock file", err)
		}
		flockErr := syscall.Flock(int(fh.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if flockErr == nil {
			l.fh = fh
			return l.writeContents()
		}
		_ = fh.Close()

		l.clearIfStale()

		if time.Now().After(deadline) {
			return domain.NewError(domain.KindLockTimeout, fmt.Sprintf("could not acquire %s within %s", l.path, lockTimeout), flockErr)
		}
		time.Sleep(lockRetryInterval)
	}
}

// Release clears the lock contents, unlocks, and closes the file handle.
// Always safe to call; it is a no-op if the lock was never acquired.
func (l *fileLock) Release() {
	if l.fh == nil {
		return
	}
	_ = os.Truncate(l.path, 0)
	_ = syscall.Flock(int(l.fh.Fd()), syscall.LOCK_UN)
	_ = l.fh.Close()
	l.fh = nil
}

func (l *fileLock) writeContents() error {
	c := lockContents{Owner: l.owner, PID: os.Getpid(), TimestampMs: time.Now().UnixMilli()}
	b, err := json.Marshal(c)
	if err != nil {
		return domain.NewError(domain.KindLogIo, "encode lock contents", err)
	}
	if _, err := l.fh.WriteAt(b, 0); err != nil {
		return domain.NewError(domain.KindLogIo, "write lock contents", err)
	}
	return nil
}

// clearIfStale removes the lock file's flock if its recorded timestamp is
// older than lockTimeout, so a crashed holder cannot wedge the store
// forever. It is harmless if the lock is actually live: removing a file
// that another process still holds an flock on does not break that
// process's lock, it only lets waiters create a fresh lock file to
// contend for (the classic unlink-then-recreate lockfile pattern).
func (l *fileLock) clearIfStale() {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	var c lockContents
	if err := json.Unmarshal(b, &c); err != nil {
		return
	}
	age := time.Since(time.UnixMilli(c.TimestampMs))
	if age > lockTimeout {
		_ = os.Remove(l.path)
	}
}
