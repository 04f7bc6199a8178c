package store

import (
	"context"
	"sync"

	"recletter/internal/errors"
)

// MemoryStore holds encoded documents in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	logger *errors.Logger
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore(logger *errors.Logger) *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte), logger: logger}
}

// Put stores a raw document, bypassing encoding. Used to seed legacy documents.
func (s *MemoryStore) Put(sessionID string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[sessionID] = append([]byte(nil), raw...)
}

// LoadState implements Store
func (s *MemoryStore) LoadState(_ context.Context, sessionID string) (*State, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	raw, ok := s.docs[sessionID]
	s.mu.RUnlock()
	if !ok {
		return NewState(), nil
	}
	state, err := DecodeState(raw, s.logger)
	if err != nil {
		return nil, storeError("failed to decode stored state", err)
	}
	return state, nil
}

// SaveState implements Store
func (s *MemoryStore) SaveState(_ context.Context, sessionID string, state *State) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	raw, err := EncodeState(state)
	if err != nil {
		return storeError("failed to encode state", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[sessionID] = raw
	return nil
}

// Close implements Store
func (s *MemoryStore) Close() error { return nil }
