package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// lockFileName sits next to the status record; one watcher per data dir.
const lockFileName = "price-watch.lock"

func absPath(p string) string {
	ap, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return ap
}

// acquireLock creates lockPath exclusively. A lock whose mtime is older
// than ttl belongs to a dead process and is taken over.
func acquireLock(lockPath string, ttl time.Duration) error {
	abspath := absPath(lockPath)
	for {
		f, err := os.OpenFile(abspath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = fmt.Fprintf(f, `{"pid":%d,"time":%d}`+"\n", os.Getpid(), time.Now().Unix())
			return f.Close()
		}
		if !os.IsExist(err) {
			return err
		}
		fi, err := os.Stat(abspath)
		if err != nil {
			continue
		}
		if age := time.Since(fi.ModTime()); age >= ttl {
			_ = os.Remove(abspath)
			continue
		}
		return fmt.Errorf("another watcher holds %s", abspath)
	}
}

func releaseLock(lockPath string) {
	if lockPath == "" {
		return
	}
	_ = os.Remove(absPath(lockPath))
}

// lockHeartbeat touches the lock until ctx is done.
func lockHeartbeat(ctx context.Context, lockPath string, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := time.Now()
			_ = os.Chtimes(absPath(lockPath), now, now)
		}
	}
}
