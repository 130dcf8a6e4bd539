package health

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the record's name inside the data directory.
const FileName = "tasks.status"

type fileRecord struct {
	Statuses map[string]Status `json:"statuses"`
}

// FileStore keeps the record as a JSON document. Writes replace the file
// atomically, so an external probe never reads a torn document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// NewFileStoreIn places the record at dir/tasks.status.
func NewFileStoreIn(dir string) *FileStore {
	return NewFileStore(filepath.Join(dir, FileName))
}

func (s *FileStore) Path() string { return s.path }

// Initialize publishes an empty record with a hard link from a synced temp
// file, so the record is never visible half written and an existing one is
// left alone.
func (s *FileStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &PersistenceError{Op: "initialize", Path: s.path, Err: err}
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	tmpName, err := s.writeTemp(fileRecord{Statuses: map[string]Status{}})
	if err != nil {
		return &PersistenceError{Op: "initialize", Path: s.path, Err: err}
	}
	defer os.Remove(tmpName)
	if err := os.Link(tmpName, s.path); err != nil && !errors.Is(err, os.ErrExist) {
		return &PersistenceError{Op: "initialize", Path: s.path, Err: err}
	}
	return nil
}

func (s *FileStore) SetStatus(ctx context.Context, name string, status Status) error {
	if !status.Valid() {
		return &PersistenceError{Op: "set", Path: s.path, Err: fmt.Errorf("invalid status %q", status)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return &PersistenceError{Op: "set", Path: s.path, Err: err}
	}
	rec.Statuses[name] = status
	if err := s.write(rec); err != nil {
		return &PersistenceError{Op: "set", Path: s.path, Err: err}
	}
	return nil
}

func (s *FileStore) AnyRunning(ctx context.Context) (bool, error) {
	m, err := s.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return anyRunning(m), nil
}

func (s *FileStore) Snapshot(ctx context.Context) (map[string]Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Status{}, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}
	return rec.Statuses, nil
}

// read loads the record. Caller holds mu.
func (s *FileStore) read() (fileRecord, error) {
	var rec fileRecord
	b, err := os.ReadFile(s.path)
	if err != nil {
		return rec, err
	}
	// A zero-length record is one whose creation never completed.
	if len(bytes.TrimSpace(b)) == 0 {
		rec.Statuses = map[string]Status{}
		return rec, nil
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("decode: %w", err)
	}
	if rec.Statuses == nil {
		rec.Statuses = map[string]Status{}
	}
	return rec, nil
}

// write replaces the record through a synced temp file. Caller holds mu.
func (s *FileStore) write(rec fileRecord) error {
	tmpName, err := s.writeTemp(rec)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName)
	return os.Rename(tmpName, s.path)
}

// writeTemp writes rec to a synced temp file next to the record and returns
// its name. The caller removes it.
func (s *FileStore) writeTemp(rec fileRecord) (string, error) {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return tmpName, nil
}
