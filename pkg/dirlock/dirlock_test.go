// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package dirlock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if l.Dir() != dir {
		t.Errorf("Dir = %q, want %q", l.Dir(), dir)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestSecondAcquireConflicts(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, 0)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer l.Release()

	// flock arbitrates per open file description, so a second handle in
	// the same process conflicts just like one in another process.
	_, err = Acquire(dir, 0)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("second Acquire err = %v, want ErrConflict", err)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	l2, err := Acquire(dir, 0)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	l2.Release()
}

func TestAcquireWaitsForRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	go func() {
		time.Sleep(150 * time.Millisecond)
		l.Release()
	}()

	start := time.Now()
	l2, err := Acquire(dir, 2*time.Second)
	if err != nil {
		t.Fatalf("Acquire with wait: %v", err)
	}
	defer l2.Release()

	if time.Since(start) < 100*time.Millisecond {
		t.Error("Acquire should have waited for the holder to release")
	}
}

func TestAcquireWaitDeadline(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	start := time.Now()
	_, err = Acquire(dir, 200*time.Millisecond)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict after deadline", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("gave up after %v, should have retried until the deadline", elapsed)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestLockFileSurvivesRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	l.Release()

	// The file stays so later opens contend on one inode.
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("LOCK file should remain after release: %v", err)
	}
}

func TestHeld(t *testing.T) {
	dir := t.TempDir()

	held, err := Held(dir)
	if err != nil {
		t.Fatalf("Held: %v", err)
	}
	if held {
		t.Error("fresh directory should not be held")
	}

	l, err := Acquire(dir, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	held, err = Held(dir)
	if err != nil {
		t.Fatalf("Held: %v", err)
	}
	if !held {
		t.Error("locked directory should report held")
	}

	l.Release()
	held, err = Held(dir)
	if err != nil {
		t.Fatalf("Held: %v", err)
	}
	if held {
		t.Error("released directory should not report held")
	}
}
