// Package filelock serializes mutations to a markdown store file across
// processes. The lock is advisory: every writer must acquire it, readers are
// unserialized and rely on the parser's tolerance of partial rewrites.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Lock holds an exclusive advisory lock scoped to a target file. The lock is
// taken on a sibling "<path>.lock" marker, not the target itself, so the
// target can be atomically replaced while locked.
//
// Locks are not reentrant. Acquiring the same target twice from one caller
// deadlocks; operations that touch two files (promotion) must take the locks
// strictly in sequence.
type Lock struct {
	target   string
	lockPath string
	file     *os.File
}

// New prepares a lock for the given target file. Nothing is acquired yet.
func New(target string) *Lock {
	return &Lock{
		target:   target,
		lockPath: target + ".lock",
	}
}

// Acquire blocks until the exclusive lock is held.
func (l *Lock) Acquire() error {
	if l.file != nil {
		return fmt.Errorf("lock already held for %s", l.target)
	}
	if err := os.MkdirAll(filepath.Dir(l.lockPath), 0755); err != nil {
		return fmt.Errorf("creating lock dir: %w", err)
	}
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("opening lock file %s: %w", l.lockPath, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return fmt.Errorf("locking %s: %w", l.lockPath, err)
	}
	l.file = f
	return nil
}

// Release drops the lock. The marker file is intentionally left in place:
// removing it races with a contender that has already opened the old inode
// and would then hold a lock nobody else can see.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("unlocking %s: %w", l.lockPath, err)
	}
	return closeErr
}

// WithLock runs fn while holding the exclusive lock for target, releasing it
// on every exit path.
func WithLock(target string, fn func() error) error {
	l := New(target)
	if err := l.Acquire(); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
