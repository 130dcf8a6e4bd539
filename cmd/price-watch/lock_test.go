package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), lockFileName)
	if err := acquireLock(path, time.Hour); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := acquireLock(path, time.Hour); err == nil {
		t.Fatalf("second acquire succeeded while lock is fresh")
	}
	releaseLock(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("lock still present after release: %v", err)
	}
	if err := acquireLock(path, time.Hour); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestAcquireLockTakesOverStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), lockFileName)
	if err := os.WriteFile(path, []byte(`{"pid":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	if err := acquireLock(path, time.Hour); err != nil {
		t.Fatalf("stale lock not taken over: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(fi.ModTime()) > time.Minute {
		t.Fatalf("lock not rewritten, mtime %s", fi.ModTime())
	}
}

func TestLockHeartbeatTouches(t *testing.T) {
	path := filepath.Join(t.TempDir(), lockFileName)
	if err := acquireLock(path, time.Hour); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-30 * time.Minute)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		lockHeartbeat(ctx, path, 10*time.Millisecond)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		fi, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if fi.ModTime().After(old.Add(time.Minute)) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("heartbeat never touched the lock")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestReleaseLockEmptyPath(t *testing.T) {
	releaseLock("")
}
