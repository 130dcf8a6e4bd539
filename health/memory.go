package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errNotInitialized = errors.New("not initialized")

// MemoryStore is an in-process record, used in mock mode and tests.
type MemoryStore struct {
	mu       sync.Mutex
	statuses map[string]Status
	history  []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		s.statuses = make(map[string]Status)
	}
	return nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, name string, status Status) error {
	if !status.Valid() {
		return &PersistenceError{Op: "set", Err: fmt.Errorf("invalid status %q", status)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		return &PersistenceError{Op: "set", Err: errNotInitialized}
	}
	s.statuses[name] = status
	s.history = append(s.history, name+"="+string(status))
	return nil
}

func (s *MemoryStore) AnyRunning(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return anyRunning(s.statuses), nil
}

func (s *MemoryStore) Snapshot(ctx context.Context) (map[string]Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Status, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out, nil
}

// History lists every accepted write as "name=status", oldest first.
func (s *MemoryStore) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}
