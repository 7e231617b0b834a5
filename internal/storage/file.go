package storage

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
)

// FileStore persists state as a flat YAML document. Every write rewrites the
// file through a temporary file and rename so a crash never leaves it half written.
type FileStore struct {
	watchers
	path   string
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// NewFileStore opens path, creating an empty document when the file does not exist
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, data: make(map[string]string)}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &s.data); err != nil {
			return nil, errors.New(fmt.Errorf("parse state file: %w", err)).
				Component("storage").
				Category(errors.CategoryStorage).
				Context("operation", "open_file_store").
				Build()
		}
		if s.data == nil {
			s.data = make(map[string]string)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.New(fmt.Errorf("read state file: %w", err)).
			Component("storage").
			Category(errors.CategoryFileIO).
			Context("operation", "open_file_store").
			Build()
	}

	return s, nil
}

// Get returns the value for key
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key and persists the document
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old, existed := s.data[key]
	if existed && old == value {
		s.mu.Unlock()
		return nil
	}
	next := maps.Clone(s.data)
	next[key] = value
	if err := s.persistLocked(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.data = next
	s.mu.Unlock()

	s.notify(Change{Key: key, OldValue: old, Value: value})
	return nil
}

// Delete removes key and persists the document
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old, existed := s.data[key]
	if !existed {
		s.mu.Unlock()
		return nil
	}
	next := maps.Clone(s.data)
	delete(next, key)
	if err := s.persistLocked(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.data = next
	s.mu.Unlock()

	s.notify(Change{Key: key, OldValue: old, Deleted: true})
	return nil
}

// Watch registers fn for changes
func (s *FileStore) Watch(fn func(Change)) func() {
	return s.add(fn)
}

// Close marks the store closed. Data is already on disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) persistLocked(data map[string]string) error {
	wrap := func(err error) error {
		return errors.New(err).
			Component("storage").
			Category(errors.CategoryFileIO).
			Context("operation", "persist_file_store").
			Build()
	}

	raw, err := yaml.Marshal(data)
	if err != nil {
		return wrap(fmt.Errorf("marshal state: %w", err))
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return wrap(fmt.Errorf("create state directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, ".tabla-state-*.yaml")
	if err != nil {
		return wrap(fmt.Errorf("create temporary state file: %w", err))
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return wrap(fmt.Errorf("write temporary state file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return wrap(fmt.Errorf("close temporary state file: %w", err))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return wrap(fmt.Errorf("replace state file: %w", err))
	}

	return nil
}
