// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

// Package dirlock implements directory-level exclusive advisory locking.
//
// A database directory may have at most one writer-owner at a time. The
// lock is a kernel flock on a LOCK file inside the directory, so it holds
// across processes as well as across handles within one process, and it
// evaporates automatically if the holder dies.
package dirlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// FileName is the lock file kept inside a locked directory.
const FileName = "LOCK"

// ErrConflict is returned when the directory is already exclusively held.
var ErrConflict = errors.New("directory locked by another holder")

// retryInterval is the pause between acquisition attempts when a wait
// budget is given.
const retryInterval = 50 * time.Millisecond

// Lock is a held exclusive lock on one directory.
type Lock struct {
	dir  string
	file *os.File
}

// Acquire takes the exclusive lock for dir. With wait == 0 a held lock
// fails immediately with ErrConflict; with wait > 0 acquisition is retried
// until the deadline passes, then fails with ErrConflict.
func Acquire(dir string, wait time.Duration) (*Lock, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(wait)
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		if wait <= 0 || !time.Now().Before(deadline) {
			f.Close()
			return nil, fmt.Errorf("%s: %w", dir, ErrConflict)
		}
		time.Sleep(retryInterval)
	}

	// Record the holder PID for diagnostics. Written after the flock
	// succeeds so a failed acquire never clobbers the holder's entry.
	f.Truncate(0)
	fmt.Fprintf(f, "%d\n", os.Getpid())

	return &Lock{dir: dir, file: f}, nil
}

// Release drops the lock. The LOCK file itself stays behind: removing it
// would let two later opens race on different inodes of the same path.
// Release is idempotent.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlock %s: %w", l.dir, err)
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}
	return nil
}

// Dir returns the locked directory.
func (l *Lock) Dir() string { return l.dir }

// Held probes whether dir is currently locked by anyone. The probe briefly
// takes and drops the lock itself, so it is diagnostic only; the answer can
// be stale by the time the caller acts on it.
func Held(dir string) (bool, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close()

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return false, nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return true, nil
	}
	return false, fmt.Errorf("flock %s: %w", path, err)
}
