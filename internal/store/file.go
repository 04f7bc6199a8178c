package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"recletter/internal/errors"
)

// FileStore keeps one JSON document per session in a directory
type FileStore struct {
	mu     sync.Mutex
	dir    string
	logger *errors.Logger
}

// NewFileStore creates the state directory if needed
func NewFileStore(dir string, logger *errors.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "store.path is required for the file backend", nil)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, storeError(fmt.Sprintf("failed to create state directory %s", dir), err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// LoadState implements Store
func (s *FileStore) LoadState(_ context.Context, sessionID string) (*State, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return NewState(), nil
	}
	if err != nil {
		return nil, storeError("failed to read state file", err)
	}

	state, err := DecodeState(raw, s.logger)
	if err != nil {
		return nil, storeError("failed to decode state file", err)
	}
	return state, nil
}

// SaveState implements Store. The document is written to a temporary file and
// renamed into place so readers never see a partial write.
func (s *FileStore) SaveState(_ context.Context, sessionID string, state *State) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	raw, err := EncodeState(state)
	if err != nil {
		return storeError("failed to encode state", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, sessionID+".*.tmp")
	if err != nil {
		return storeError("failed to create temporary state file", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return storeError("failed to write state file", err)
	}
	if err := tmp.Close(); err != nil {
		return storeError("failed to close state file", err)
	}
	if err := os.Rename(tmpName, s.path(sessionID)); err != nil {
		return storeError("failed to replace state file", err)
	}
	return nil
}

// Close implements Store
func (s *FileStore) Close() error { return nil }
