// Package health keeps the per-item liveness record consulted by the
// healthcheck probe.
package health

import (
	"context"
	"fmt"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Store is the shared status record. Implementations serialize every
// read-modify-write and are safe for concurrent use.
type Store interface {
	// Initialize creates an empty record if none exists. It never
	// overwrites an existing record.
	Initialize(ctx context.Context) error

	// SetStatus upserts the status of one item.
	SetStatus(ctx context.Context, name string, status Status) error

	// AnyRunning reports whether at least one item is running. A missing
	// record is not an error.
	AnyRunning(ctx context.Context) (bool, error)

	// Snapshot returns a copy of the record.
	Snapshot(ctx context.Context) (map[string]Status, error)
}

// PersistenceError is returned when the backing medium cannot be read or
// written.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("status store %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("status store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func anyRunning(m map[string]Status) bool {
	for _, s := range m {
		if s == StatusRunning {
			return true
		}
	}
	return false
}

// Probe maps the record to a process exit code: 0 if any item is running,
// 1 otherwise (including read errors).
func Probe(ctx context.Context, s Store) int {
	ok, err := s.AnyRunning(ctx)
	if err != nil || !ok {
		return 1
	}
	return 0
}
