// Package store persists session state: the program context and the draft
// history. Every backend reads through the same migration table so documents
// written by older releases keep loading.
package store

import (
	"context"
	"fmt"
	"regexp"

	"recletter/internal/config"
	"recletter/internal/errors"
	"recletter/internal/types"
)

// SchemaVersion is the version written by SaveState
const SchemaVersion = 2

// DefaultSessionID is used when a caller does not name a session
const DefaultSessionID = "default"

// State is the persisted document of one session
type State struct {
	SchemaVersion int                  `json:"schemaVersion"`
	Context       types.ProgramContext `json:"context"`
	Drafts        []types.Draft        `json:"drafts"`
}

// NewState returns the state a session starts with
func NewState() *State {
	return &State{
		SchemaVersion: SchemaVersion,
		Context:       types.DefaultProgramContext().Normalized(),
		Drafts:        []types.Draft{},
	}
}

// Store loads and saves session state
type Store interface {
	// LoadState returns the stored state of a session, or NewState when none exists
	LoadState(ctx context.Context, sessionID string) (*State, error)
	SaveState(ctx context.Context, sessionID string, state *State) error
	Close() error
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidSessionID reports whether id is usable as a storage key
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func checkSessionID(id string) error {
	if !ValidSessionID(id) {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid session id %q", id), nil)
	}
	return nil
}

// New creates the backend selected by cfg.Backend
func New(cfg config.StoreConfig, logger *errors.Logger) (Store, error) {
	switch cfg.Backend {
	case "file", "":
		return NewFileStore(cfg.Path, logger)
	case "memory":
		return NewMemoryStore(logger), nil
	case "redis":
		return NewRedisStore(cfg.Redis, logger)
	case "sqlite":
		return NewSQLStore(cfg.SQLite.Path, logger)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unsupported store backend: %s", cfg.Backend), nil)
	}
}

func storeError(message string, cause error) *errors.AppError {
	return errors.NewIOError(errors.ErrCodeStoreFailed, message, cause)
}
