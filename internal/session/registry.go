package session

import (
	"context"
	"sort"
	"sync"

	"recletter/internal/store"
	"recletter/internal/types"
)

// Registry keeps one live Session per session id, loading each from the store on first use
type Registry struct {
	mu       sync.Mutex
	deps     Deps
	sessions map[string]*Session
}

// NewRegistry creates an empty registry sharing deps across sessions
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating and loading it when needed.
// An empty id selects the default session.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = store.DefaultSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	s, err := New(id, r.deps)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	r.sessions[id] = s
	return s, nil
}

// ApplyContext imports a context into the session id, as the context file watcher does
func (r *Registry) ApplyContext(ctx context.Context, id string, programCtx types.ProgramContext) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.ImportContext(ctx, programCtx)
}

// IDs returns the ids of the live sessions in sorted order
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
